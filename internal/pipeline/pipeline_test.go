package pipeline_test

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/geocode-csv/internal/domain"
	"github.com/couchcryptid/geocode-csv/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	header []string
	rows   [][]string
	idx    int
	failAt int // -1 means never fail
}

func (f *fakeSource) Header(_ context.Context) ([]string, error) { return f.header, nil }

func (f *fakeSource) ReadRow(_ context.Context) ([]string, bool, error) {
	if f.failAt >= 0 && f.idx == f.failAt {
		return nil, false, fmt.Errorf("simulated read failure at row %d", f.idx)
	}
	if f.idx >= len(f.rows) {
		return nil, false, nil
	}
	row := f.rows[f.idx]
	f.idx++
	return row, true, nil
}

type fakeSink struct {
	mu     sync.Mutex
	header []string
	rows   [][]string
	closed bool
}

func (f *fakeSink) WriteHeader(_ context.Context, header []string) error {
	f.header = header
	return nil
}

func (f *fakeSink) WriteRow(_ context.Context, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, append([]string(nil), row...))
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// reorderingGeocoder sleeps longer for lower-numbered addresses so chunks
// complete out of submission order, exercising the writer's
// order-preserving reassembly rather than just its happy path.
type reorderingGeocoder struct {
	calls atomic.Int64
	err   error
}

func (g *reorderingGeocoder) Tag() string              { return "reorder-fake" }
func (g *reorderingGeocoder) ConfigurationKey() string { return "v1" }
func (g *reorderingGeocoder) ColumnNames() []string     { return []string{"geo"} }

func (g *reorderingGeocoder) GeocodeAddresses(_ context.Context, addrs []domain.Address) ([]*domain.Geocoded, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	if len(addrs) > 0 {
		if n, err := rowNumber(addrs[0].Street); err == nil {
			time.Sleep(time.Duration(200-n) * time.Microsecond)
		}
	}
	out := make([]*domain.Geocoded, len(addrs))
	for i, a := range addrs {
		out[i] = &domain.Geocoded{ColumnValues: []string{"geo:" + a.Street}}
	}
	return out, nil
}

func rowNumber(street string) (int, error) {
	parts := strings.Split(street, "-")
	return strconv.Atoi(parts[len(parts)-1])
}

func testSpec() domain.AddressColumnSpec[string] {
	return domain.AddressColumnSpec[string]{
		"home": domain.AddressColumnKeys[string]{Street: domain.SingleKey("street")},
	}
}

func TestRun_PreservesRowOrderAcrossManyChunks(t *testing.T) {
	header := []string{"id", "street"}
	var rows [][]string
	total := pipeline.GeocodeSize*3 + 5
	for i := 0; i < total; i++ {
		rows = append(rows, []string{strconv.Itoa(i), fmt.Sprintf("addr-%d", i)})
	}

	src := &fakeSource{header: header, rows: rows, failAt: -1}
	sink := &fakeSink{}
	geo := &reorderingGeocoder{}

	report := pipeline.Run(context.Background(), src, sink, pipeline.Options{
		Spec:       testSpec(),
		Geocoder:   geo,
		MaxRetries: 1,
		Logger:     slog.Default(),
	})

	require.False(t, report.Failed())
	require.Len(t, sink.rows, total)
	for i, row := range sink.rows {
		assert.Equal(t, strconv.Itoa(i), row[0])
		assert.Equal(t, fmt.Sprintf("geo:addr-%d", i), row[2])
	}
	assert.Equal(t, []string{"id", "street", "home_geo"}, sink.header)
}

func TestRun_ReaderErrorReportedAndPartialRowsFlushed(t *testing.T) {
	header := []string{"id", "street"}
	rows := [][]string{{"0", "addr-0"}, {"1", "addr-1"}}

	src := &fakeSource{header: header, rows: rows, failAt: 2}
	sink := &fakeSink{}
	geo := &reorderingGeocoder{}

	report := pipeline.Run(context.Background(), src, sink, pipeline.Options{
		Spec:       testSpec(),
		Geocoder:   geo,
		MaxRetries: 0,
	})

	require.Error(t, report.ReaderErr)
	assert.Len(t, sink.rows, 2)
}

func TestRun_GeocodeErrorExhaustsRetriesAndReportsGeocodeErr(t *testing.T) {
	header := []string{"id", "street"}
	rows := [][]string{{"0", "addr-0"}}

	src := &fakeSource{header: header, rows: rows, failAt: -1}
	sink := &fakeSink{}
	geo := &reorderingGeocoder{err: assert.AnError}

	fc := clockwork.NewFakeClock()
	pipeline.SetClock(fc)
	defer pipeline.SetClock(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			fc.BlockUntil(1)
			fc.Advance(20 * time.Second)
		}
	}()

	report := pipeline.Run(context.Background(), src, sink, pipeline.Options{
		Spec:       testSpec(),
		Geocoder:   geo,
		MaxRetries: 2,
	})
	<-done

	require.Error(t, report.GeocodeErr)
	assert.Nil(t, report.ReaderErr)
	assert.GreaterOrEqual(t, int(geo.calls.Load()), 3)
}
