package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"rankitpro/drip"
	"rankitpro/utils"
)

const (
	EventsQueue  = "review_drip_events"
	InboundQueue = "review_drip_inbound"
)

// RabbitMQ publishes drip events and consumes inbound customer events
type RabbitMQ struct {
	conn *amqp.Connection

	mu      sync.Mutex
	publish *amqp.Channel
	log     *logrus.Entry
}

var _ drip.EventSink = (*RabbitMQ)(nil)

// Dial connects and declares both durable queues
func Dial(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range []string{EventsQueue, InboundQueue} {
		_, err = channel.QueueDeclare(
			name,  // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			channel.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
		}
	}

	r := &RabbitMQ{conn: conn, publish: channel, log: utils.Logger("rabbitmq")}
	r.log.Info("RabbitMQ connected, drip queues declared")
	return r, nil
}

// Publish sends a drip event to the events queue as persistent JSON
func (r *RabbitMQ) Publish(ctx context.Context, e drip.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.publish.PublishWithContext(ctx,
		"",          // exchange
		EventsQueue, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(e.Type),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// ConsumeInbound applies inbound customer events until ctx is cancelled.
// Malformed or rejected messages are acked and logged, anything else is
// requeued.
func (r *RabbitMQ) ConsumeInbound(ctx context.Context, ingester EventIngester) error {
	channel, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer channel.Close()

	if err := channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}
	deliveries, err := channel.Consume(
		InboundQueue,   // queue
		"drip-inbound", // consumer
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", InboundQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("inbound delivery channel closed")
			}
			r.handle(ctx, ingester, d)
		}
	}
}

func (r *RabbitMQ) handle(ctx context.Context, ingester EventIngester, d amqp.Delivery) {
	err := HandleInbound(ctx, ingester, d.Body, time.Now())
	switch {
	case err == nil:
		d.Ack(false)
	case IsPermanent(err):
		r.log.WithError(err).WithField("body", string(d.Body)).Warn("Dropping inbound drip message")
		d.Ack(false)
	default:
		utils.LogError("drip_inbound", err, map[string]interface{}{"body": string(d.Body)})
		d.Nack(false, true)
	}
}

// Close closes the RabbitMQ connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publish != nil {
		if err := r.publish.Close(); err != nil {
			r.log.WithError(err).Warn("Error closing channel")
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
