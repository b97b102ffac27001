package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"rankitpro/models"
)

// SMTPConfig holds the outbound mail settings
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

const reviewRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .content { margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="content">
        {{range .Paragraphs}}<p>{{.}}</p>
        {{end}}
    </div>
    <div class="footer">
        <p>&copy; {{.Year}} {{.FromName}}</p>
    </div>
</body>
</html>`

// EmailSender delivers review messages over SMTP
type EmailSender struct {
	cfg  SMTPConfig
	tmpl *template.Template
	send func(m *gomail.Message) error
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailSender{
		cfg:  cfg,
		tmpl: template.Must(template.New("review_request").Parse(reviewRequestTemplate)),
		send: func(m *gomail.Message) error { return d.DialAndSend(m) },
	}
}

// WithSendFunc replaces the SMTP delivery, used by tests
func (s *EmailSender) WithSendFunc(fn func(m *gomail.Message) error) *EmailSender {
	s.send = fn
	return s
}

// Send renders the message as HTML with a plain text alternative and returns
// the generated Message-ID once the SMTP server accepted it
func (s *EmailSender) Send(ctx context.Context, n models.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n.To == "" {
		return "", errors.New("email recipient is empty")
	}

	var body bytes.Buffer
	err := s.tmpl.Execute(&body, struct {
		Subject    string
		Paragraphs []string
		Year       int
		FromName   string
	}{
		Subject:    n.Subject,
		Paragraphs: paragraphs(n.Body),
		Year:       time.Now().Year(),
		FromName:   s.cfg.FromName,
	})
	if err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), mailDomain(s.cfg.FromEmail))

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	m.SetHeader("To", n.To)
	m.SetHeader("Subject", n.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetHeader("X-Review-Request-ID", fmt.Sprintf("%d", n.RequestID))
	m.SetHeader("X-Review-Stage", n.Stage)
	m.SetBody("text/plain", n.Body)
	m.AddAlternative("text/html", body.String())

	if err := s.send(m); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}
	return messageID, nil
}

func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mailDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
