package kafka

import (
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBrokers   = "localhost:9092"
	DefaultTaskEventTopic = "template_task_events"
)

// NewKafkaProducer builds a synchronous writer for task lifecycle events.
func NewKafkaProducer(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 {
		brokers = []string{DefaultKafkaBrokers}
	}
	if topic == "" {
		topic = DefaultTaskEventTopic
	}
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	hlog.Infof("Kafka producer configured for topic %s (brokers: %v)", topic, brokers)
	return producer
}
