// Package events delivers domain events to downstream consumers. The
// coordinator publishes one ordered batch per successful operation.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-core/internal/domain"
)

const (
	// Stream trimming: keep roughly a day of order activity.
	streamMaxLen = 100000
)

// RedisSinkConfig configures the Redis event sink.
type RedisSinkConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, e.g. "orders:events"
}

// RedisSink appends domain events to a capped Redis Stream.
type RedisSink struct {
	client *goredis.Client
	stream string
}

// Client returns the underlying Redis client for health checks.
func (s *RedisSink) Client() *goredis.Client { return s.client }

// NewRedisSink creates a RedisSink and pings the server.
func NewRedisSink(cfg RedisSinkConfig) (*RedisSink, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = "orders:events"
	}
	return &RedisSink{client: client, stream: stream}, nil
}

// Publish appends the batch to the stream in order. XADD preserves arrival
// order per connection, so one batch lands contiguously and ordered.
func (s *RedisSink) Publish(ctx context.Context, batch []domain.Event) error {
	for _, e := range batch {
		values := map[string]interface{}{
			"type":     string(e.Type),
			"order_id": e.OrderID,
			"symbol":   e.Symbol,
			"status":   string(e.Status),
			"at":       e.At.Format(time.RFC3339Nano),
		}
		if e.Qty != 0 {
			values["qty"] = strconv.FormatFloat(e.Qty, 'f', -1, 64)
		}
		if e.Price != 0 {
			values["price"] = strconv.FormatFloat(e.Price, 'f', -1, 64)
		}
		err := s.client.XAdd(ctx, &goredis.XAddArgs{
			Stream:       s.stream,
			MaxLenApprox: streamMaxLen,
			Values:       values,
		}).Err()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", s.stream, err)
		}
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
