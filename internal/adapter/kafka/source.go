// Package kafka implements a Kafka-backed pipeline.RowSource and
// pipeline.RowSink, so the same geocoding pipeline can run as a standing
// consumer/producer instead of a one-shot CLI invocation. Kafka has no
// notion of a "first row" header the way a CSV file does, so the header
// is supplied out of band (the caller's column configuration) rather
// than read off the topic; each message's value is a JSON array of
// field strings in that header's order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	kafkago "github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafkago.Reader this adapter depends
// on, narrowed to a local interface so tests can fake it without a live
// broker.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Source adapts a Kafka topic into a pipeline.RowSource.
type Source struct {
	reader MessageReader
	header []string
}

// NewSource wraps a live *kafkago.Reader.
func NewSource(reader *kafkago.Reader, header []string) *Source {
	return NewSourceWithReader(reader, header)
}

// NewSourceWithReader wraps any MessageReader, used directly by tests
// against a fake.
func NewSourceWithReader(reader MessageReader, header []string) *Source {
	return &Source{reader: reader, header: header}
}

// Header returns the caller-supplied header immediately; Kafka topics
// carry no header record of their own.
func (s *Source) Header(_ context.Context) ([]string, error) {
	return s.header, nil
}

// ReadRow decodes the next message's value as a JSON array of strings.
// ReadMessage returning io.EOF signals a bounded reader (tests, or a
// reader configured against a finite partition range) has run out of
// messages; ok=false in that case ends the pipeline's input cleanly
// rather than treating end-of-topic as an error.
func (s *Source) ReadRow(ctx context.Context) ([]string, bool, error) {
	msg, err := s.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kafka: read message: %w", err)
	}

	var row []string
	if err := json.Unmarshal(msg.Value, &row); err != nil {
		return nil, false, fmt.Errorf("kafka: decode row from offset %d: %w", msg.Offset, err)
	}
	return row, true, nil
}
