// Package csv adapts encoding/csv onto the pipeline's RowSource/RowSink
// interfaces — the default transport, reading a header and data rows
// from stdin and writing the enriched rows back out to stdout.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// Source reads rows from a CSV stream. The first Header call consumes
// the header row; ReadRow must not be called before it.
type Source struct {
	reader *csv.Reader
}

// NewSource wraps r as a pipeline.RowSource.
func NewSource(r io.Reader) *Source {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false
	return &Source{reader: reader}
}

// Header reads and returns the CSV header row.
func (s *Source) Header(_ context.Context) ([]string, error) {
	header, err := s.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	return header, nil
}

// ReadRow returns the next data row, or ok=false at end of input.
func (s *Source) ReadRow(_ context.Context) ([]string, bool, error) {
	row, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("csv: read row: %w", err)
	}
	return row, true, nil
}

// Sink writes a header row followed by data rows to a CSV stream,
// flushing and surfacing any write error after every row so a failed
// flush is never silently dropped.
type Sink struct {
	writer *csv.Writer
}

// NewSink wraps w as a pipeline.RowSink.
func NewSink(w io.Writer) *Sink {
	return &Sink{writer: csv.NewWriter(w)}
}

func (s *Sink) WriteHeader(_ context.Context, header []string) error {
	return s.write(header)
}

func (s *Sink) WriteRow(_ context.Context, row []string) error {
	return s.write(row)
}

func (s *Sink) write(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return fmt.Errorf("csv: write record: %w", err)
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *Sink) Close() error {
	s.writer.Flush()
	return s.writer.Error()
}
