package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProducer struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockProducer) Close() error {
	m.closed = true
	return nil
}

func TestPublish_EncodesEventKeyedByTask(t *testing.T) {
	producer := &mockProducer{}
	p := NewPublisher(producer)
	occurred := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	ev := TaskEvent{
		Type:         TypeTaskFinished,
		TaskID:       "t-1",
		Backend:      "local",
		TemplateName: "rds",
		Status:       "completed",
		OutputPath:   "/out/rds",
		OccurredAt:   occurred,
	}
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "t-1", string(msg.Key))
	assert.Equal(t, TypeTaskFinished, string(msg.Headers[0].Value))

	decoded, err := Unmarshal(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)

	require.NoError(t, p.Close())
	assert.True(t, producer.closed)
}

func TestPublish_WriteError(t *testing.T) {
	p := NewPublisher(&mockProducer{err: errors.New("broker down")})
	err := p.Publish(context.Background(), TaskEvent{Type: TypeTaskSubmitted, TaskID: "t-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0xff})
	assert.Error(t, err)
}
