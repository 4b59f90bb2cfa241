package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"food-delivery/tracking/durable"
)

var _ Sink = (*KafkaSink)(nil)

// KafkaSink appends events to a topic keyed by entity. Every send outcome
// is reported to the capability.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	cap      *durable.Capability
}

func NewKafkaSink(producer sarama.SyncProducer, topic string, capability *durable.Capability) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, cap: capability}
}

func (k *KafkaSink) Emit(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(ev.Key()),
		Value: sarama.ByteEncoder(data),
	})
	if k.cap.Observe(err) != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.producer.Close()
}
