package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafkago.Writer this adapter depends on.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink adapts a Kafka topic into a pipeline.RowSink.
type Sink struct {
	writer MessageWriter
}

// NewSink wraps a live *kafkago.Writer.
func NewSink(writer *kafkago.Writer) *Sink {
	return NewSinkWithWriter(writer)
}

// NewSinkWithWriter wraps any MessageWriter, used directly by tests
// against a fake.
func NewSinkWithWriter(writer MessageWriter) *Sink {
	return &Sink{writer: writer}
}

// WriteHeader is a no-op: the header lives in the consumer's
// configuration, not on the wire, so there is nothing to publish.
func (s *Sink) WriteHeader(_ context.Context, _ []string) error { return nil }

// WriteRow publishes row as a single JSON-array-valued message.
func (s *Sink) WriteRow(ctx context.Context, row []string) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("kafka: encode row: %w", err)
	}
	if err := s.writer.WriteMessages(ctx, kafkago.Message{Value: data}); err != nil {
		return fmt.Errorf("kafka: write message: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
