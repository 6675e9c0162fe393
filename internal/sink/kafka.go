package sink

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes events keyed by node, so one node's events stay ordered
// within a partition.
type Kafka struct {
	w *kafka.Writer
}

// NewKafka returns a writer for topic on brokers. Connections are made
// lazily on the first publish.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka: no topic")
	}
	return &Kafka{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}, nil
}

// Name identifies the sink in publish errors.
func (k *Kafka) Name() string { return "kafka" }

// Publish writes ev synchronously.
func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	payload, err := ev.marshal()
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Node),
		Value: payload,
		Time:  ev.PublishedAt,
	})
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
