package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"rankitpro/utils"
)

// PublicRateLimiter limits the unauthenticated tracking and webhook endpoints
// per client IP. A nil storage keeps counters in memory.
func PublicRateLimiter(max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return utils.GenerateRateLimitKey(c.IP(), c.Route().Path)
		},
		LimitReached: func(c *fiber.Ctx) error {
			utils.LogEvent("rate_limit_hit", map[string]interface{}{
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get("User-Agent"),
			})

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please wait before trying again.",
				"retry_after": "1 minute",
			})
		},
		Storage: storage,
	})
}

const rateLimitPrefix = "rankitpro:limiter:"

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(addr, password string, db int) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping checks the connection at startup
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), rateLimitPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if len(key) == 0 || len(val) == 0 {
		return nil
	}
	return r.client.Set(context.Background(), rateLimitPrefix+key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), rateLimitPrefix+key).Err()
}

// Reset removes the limiter keys only, other data in the database is kept
func (r *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, rateLimitPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
