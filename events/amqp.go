package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

var _ Sink = (*AMQPSink)(nil)

// AMQPSink publishes events to a fanout exchange, routed by event type.
type AMQPSink struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewAMQPSink(conn *amqp.Connection, exchange string) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPSink{ch: ch, exchange: exchange}, nil
}

func (a *AMQPSink) Emit(_ context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.Publish(
		a.exchange,      // exchange
		string(ev.Type), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Unix(ev.Timestamp, 0),
			Body:        body,
		},
	)
}

func (a *AMQPSink) Close() error {
	return a.ch.Close()
}
