// Package pipeline wires a RowSource through a geocoder and out to a
// RowSink: read rows, batch them into chunks, geocode chunks concurrently
// across a worker pool, and write results back out in the original row
// order despite the pool completing chunks out of order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/observability"
)

const (
	// ChannelBuffer bounds how many chunks the reader can get ahead of
	// the worker pool before it blocks, keeping memory bounded under
	// backpressure.
	ChannelBuffer = 8
	// Concurrency is the worker pool size geocoding chunks in parallel.
	Concurrency = 48
	// GeocodeSize is the most addresses one chunk sends to the geocoder.
	// A chunk holds GeocodeSize / (number of prefixes) input rows, and at
	// least one row.
	GeocodeSize = 72
	// MaxExpectedChunks is the capacity of the ordering channel between
	// the reader and the writer; once that many chunks are queued and not
	// yet written, the reader blocks until the writer catches up.
	MaxExpectedChunks = 76
)

// RowSource reads rows into the pipeline. The encoding/csv-backed and
// Kafka-backed sources implement this.
type RowSource interface {
	// Header returns the input's column header, read once before any
	// row.
	Header(ctx context.Context) ([]string, error)
	// ReadRow returns the next row, or ok=false at end of input.
	ReadRow(ctx context.Context) (row []string, ok bool, err error)
}

// RowSink writes output rows in order.
type RowSink interface {
	WriteHeader(ctx context.Context, header []string) error
	WriteRow(ctx context.Context, row []string) error
	Close() error
}

// Report summarizes how a Run call ended: at most one of these is
// non-nil per field, and the caller decides how to treat a partial
// failure (e.g. rows already written stay written).
type Report struct {
	ReaderErr  error
	GeocodeErr error
	WriterErr  error
}

// Failed reports whether any stage ended in error.
func (r Report) Failed() bool {
	return r.ReaderErr != nil || r.GeocodeErr != nil || r.WriterErr != nil
}

// Options configures a pipeline run.
type Options struct {
	Spec             domain.AddressColumnSpec[string]
	Geocoder         domain.Geocoder
	MaxRetries       int
	DuplicateColumns DuplicatePolicy
	Logger           *slog.Logger
	Metrics          *observability.Metrics
}

type chunkJob struct {
	chunk  Chunk
	result chan chunkResult
}

type chunkResult struct {
	rows [][]string
	err  error
}

// geocodeStageErr tags an error as having originated in the geocode
// worker pool rather than in the writer itself, so Run can report it
// under Report.GeocodeErr instead of Report.WriterErr even though both
// kinds of error surface through the same ordering queue.
type geocodeStageErr struct{ err error }

func (e *geocodeStageErr) Error() string { return e.err.Error() }
func (e *geocodeStageErr) Unwrap() error { return e.err }

// Run drives one end-to-end pass: read every row from src, geocode it
// through opts.Geocoder, and write the enriched rows to sink, in the
// original input order.
func Run(ctx context.Context, src RowSource, sink RowSink, opts Options) Report {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header, err := src.Header(ctx)
	if err != nil {
		return Report{ReaderErr: fmt.Errorf("pipeline: read header: %w", err)}
	}

	spec, err := newSharedSpec(opts.Spec, header, opts.Geocoder, opts.DuplicateColumns)
	if err != nil {
		return Report{ReaderErr: err}
	}

	if err := sink.WriteHeader(ctx, spec.header); err != nil {
		return Report{WriterErr: fmt.Errorf("pipeline: write header: %w", err)}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tripped atomic.Bool // set once any stage hits a fatal error, so the
	// rest of the pipeline winds down quickly instead of doing wasted work.

	jobs := make(chan chunkJob, ChannelBuffer)
	order := make(chan chan chunkResult, MaxExpectedChunks)

	var readerErr error
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		defer close(order)
		readerErr = readChunks(ctx, src, spec, jobs, order, &tripped)
	}()

	var workersWG sync.WaitGroup
	for i := 0; i < Concurrency; i++ {
		workersWG.Add(1)
		go func() {
			defer workersWG.Done()
			geocodeWorker(ctx, jobs, spec, opts, &tripped, logger)
		}()
	}

	var writerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		writerErr = writeChunks(ctx, sink, order, &tripped, cancel)
	}()

	workersWG.Wait()
	wg.Wait()

	report := Report{ReaderErr: readerErr}
	var stageErr *geocodeStageErr
	if errors.As(writerErr, &stageErr) {
		report.GeocodeErr = stageErr.err
	} else {
		report.WriterErr = writerErr
	}
	return report
}

// readChunks reads rows off src chunkSize at a time (sized so a chunk
// holds at most GeocodeSize addresses), builds a Chunk, and submits it to
// both the worker job queue and the writer's ordering queue (so the
// writer knows, in submission order, which result channel to wait on
// next).
func readChunks(ctx context.Context, src RowSource, spec *sharedSpec, jobs chan<- chunkJob, order chan<- chan chunkResult, tripped *atomic.Bool) error {
	index := 0
	var batch [][]string
	chunkSize := max(1, GeocodeSize/max(spec.addressesPerRow(), 1))

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		c := newChunk(index, batch, spec)
		index++
		batch = nil

		result := make(chan chunkResult, 1)
		select {
		case jobs <- chunkJob{chunk: c, result: result}:
		case <-ctx.Done():
			return false
		}
		select {
		case order <- result:
		case <-ctx.Done():
			return false
		}
		return true
	}

	for {
		if tripped.Load() {
			return nil
		}
		row, ok, err := src.ReadRow(ctx)
		if err != nil {
			flush()
			return fmt.Errorf("pipeline: read row: %w", err)
		}
		if !ok {
			flush()
			return nil
		}

		batch = append(batch, row)
		if len(batch) >= chunkSize {
			if !flush() {
				return nil
			}
		}
	}
}

// geocodeWorker is one member of the geocode worker pool: it pulls
// chunks off jobs until the channel closes, geocodes each with retry,
// and posts the outcome to the chunk's own result channel.
func geocodeWorker(ctx context.Context, jobs <-chan chunkJob, spec *sharedSpec, opts Options, tripped *atomic.Bool, logger *slog.Logger) {
	for job := range jobs {
		if tripped.Load() {
			job.result <- chunkResult{err: &geocodeStageErr{err: context.Canceled}}
			close(job.result)
			continue
		}

		start := clock.Now()
		results, err := geocodeChunkWithRetry(ctx, opts.Geocoder, job.chunk.Addrs, opts.MaxRetries, opts.Metrics, logger)
		if opts.Metrics != nil {
			opts.Metrics.ChunkProcessTime.Observe(clock.Now().Sub(start).Seconds())
		}
		if err != nil {
			tripped.Store(true)
			wrapped := fmt.Errorf("pipeline: geocode chunk %d: %w", job.chunk.Index, err)
			job.result <- chunkResult{err: &geocodeStageErr{err: wrapped}}
			close(job.result)
			continue
		}
		if opts.Metrics != nil {
			opts.Metrics.ChunksGeocoded.Inc()
		}

		job.result <- chunkResult{rows: job.chunk.buildRows(spec, results)}
		close(job.result)
	}
}

// geocodeChunkWithRetry calls geocoder.GeocodeAddresses, retrying up to
// maxRetries times with exponential backoff on error, doubling the wait
// after each attempt up to a fixed ceiling.
func geocodeChunkWithRetry(ctx context.Context, geocoder domain.Geocoder, addrs []domain.Address, maxRetries int, metrics *observability.Metrics, logger *slog.Logger) ([]*domain.Geocoded, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	backoff := 2 * time.Second
	const maxBackoff = 16 * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		results, err := geocoder.GeocodeAddresses(ctx, addrs)
		if err == nil {
			return results, nil
		}
		lastErr = err
		logger.Warn("geocode attempt failed", "attempt", attempt, "error", err)

		if domain.IsPermanent(err) {
			return nil, fmt.Errorf("permanent geocoder error: %w", err)
		}
		if errors.Is(err, domain.ErrArityMismatch) || errors.Is(err, domain.ErrCacheLengthMismatch) || errors.Is(err, domain.ErrCachedValueHasNUL) {
			return nil, fmt.Errorf("geocoder data error: %w", err)
		}

		if metrics != nil {
			metrics.ChunkRetries.WithLabelValues("geocoder_error").Inc()
		}

		if attempt == maxRetries {
			break
		}
		if !sleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return nil, fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// writeChunks drains the writer's ordering queue: for each chunk, in the
// order the reader submitted it, wait for that chunk's own result to be
// ready (workers complete chunks out of order, but each result channel
// is only consumed once its turn comes up), then write its rows.
func writeChunks(ctx context.Context, sink RowSink, order <-chan chan chunkResult, tripped *atomic.Bool, cancel context.CancelFunc) error {
	defer sink.Close()

	for resultCh := range order {
		var result chunkResult
		select {
		case result = <-resultCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		if result.err != nil {
			tripped.Store(true)
			cancel()
			return result.err
		}
		for _, row := range result.rows {
			if err := sink.WriteRow(ctx, row); err != nil {
				tripped.Store(true)
				cancel()
				return fmt.Errorf("pipeline: write row: %w", err)
			}
		}
	}
	return nil
}
