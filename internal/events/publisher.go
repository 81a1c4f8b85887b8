package events

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/hackgods/clinic-slot-scheduling/internal/scheduling"
)

// Publisher hands one outbox event to whatever delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, ev scheduling.EventLog) error
	Close() error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireOne),
		BatchTimeout: 50 * time.Millisecond,
	})
	return &KafkaPublisher{writer: writer}
}

// Publish keys messages by appointment so every event of one appointment
// lands on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, ev scheduling.EventLog) error {
	msg := kafka.Message{
		Value: ev.Payload,
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "event_id", Value: []byte(fmt.Sprint(ev.ID))},
		},
	}
	if ev.AppointmentID != nil {
		msg.Key = []byte(ev.AppointmentID.String())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce %s: %w", ev.EventType, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher writes events to the log. It stands in for Kafka when no
// brokers are configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev scheduling.EventLog) error {
	p.log.Info().
		Int64("event_id", ev.ID).
		Str("event_type", ev.EventType).
		RawJSON("payload", ev.Payload).
		Msg("appointment event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
