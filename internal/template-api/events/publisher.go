package events

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

// KafkaProducerInterface is the part of *kafka.Writer the publisher uses.
type KafkaProducerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	Producer KafkaProducerInterface
}

func NewPublisher(producer KafkaProducerInterface) *Publisher {
	return &Publisher{Producer: producer}
}

// Publish writes ev keyed by task id so one task's events stay ordered.
func (p *Publisher) Publish(ctx context.Context, ev TaskEvent) error {
	value, err := ev.Marshal()
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.TaskID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}
	if err := p.Producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for task %s: %w", ev.Type, ev.TaskID, err)
	}
	hlog.CtxDebugf(ctx, "Published %s for task %s", ev.Type, ev.TaskID)
	return nil
}

func (p *Publisher) Close() error {
	return p.Producer.Close()
}
