package events

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/ecomify/internal/domain/payment"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ payment.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes events to a Kafka topic keyed by payment id, so all
// events of one payment land in the same partition.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaWriter returns a writer for topic that waits for all in-sync replicas.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher returns a KafkaPublisher over w.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// PublishStatusChanged implements payment.Publisher.
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, e payment.StatusChanged) error {
	id, data := EncodeStatusChanged(e)
	msg := kafka.Message{
		Key:   []byte(e.PaymentID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(TypePaymentStatusChanged)},
			{Key: "event_id", Value: []byte(id)},
		},
		Time: e.Change.Timestamp,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write kafka message")
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
