package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/streadway/amqp"
)

const (
	rabbitMQAttempts   = 5
	rabbitMQRetryDelay = 5 * time.Second
)

// NewRabbitMQ dials the broker, retrying a fixed number of times while it
// comes up.
func NewRabbitMQ(ctx context.Context, cfg *Config) (*amqp.Connection, error) {
	return dialRabbitMQ(ctx, cfg.RabbitMQ.URL, rabbitMQRetryDelay)
}

func dialRabbitMQ(ctx context.Context, url string, delay time.Duration) (*amqp.Connection, error) {
	var conn *amqp.Connection
	attempt := 0
	b := retry.WithMaxRetries(rabbitMQAttempts-1, retry.NewConstant(delay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		slog.Info("connecting to rabbitmq", "attempt", attempt, "max", rabbitMQAttempts)
		c, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("rabbitmq connect failed", "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect after %d attempts: %w", attempt, err)
	}
	return conn, nil
}
