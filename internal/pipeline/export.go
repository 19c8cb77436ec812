package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/gammazero/workerpool"
)

// RecordSink persists a table of period records.
type RecordSink interface {
	Name() string
	ExportRecords(ctx context.Context, name, runID string, records []domain.PeriodRecord) error
}

// RasterSink persists a raster.
type RasterSink interface {
	Name() string
	ExportRaster(ctx context.Context, name string, r domain.Raster) error
}

// Dispatcher fans run outputs out to the sinks on a worker pool. Submit does
// not wait: export failures are logged and counted, never returned. Summaries
// submitted after Close are dropped with a warning.
type Dispatcher struct {
	mu      sync.RWMutex
	closed  bool
	pool    *workerpool.WorkerPool
	records []RecordSink
	rasters []RasterSink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewDispatcher starts a pool with the given number of workers.
func NewDispatcher(workers int, records []RecordSink, rasters []RasterSink, logger *slog.Logger, metrics *observability.Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		pool:    workerpool.New(workers),
		records: records,
		rasters: rasters,
		logger:  logger,
		metrics: metrics,
	}
}

// Submit queues every export for the summary. Jobs outlive ctx cancellation so
// that Close can drain them during shutdown.
func (d *Dispatcher) Submit(ctx context.Context, s *Summary) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("exports dropped, dispatcher closed", "run_id", s.RunID)
		return
	}
	ctx = context.WithoutCancel(ctx)
	prefix := exportPrefix(s.Lake.Name)

	tables := map[string][]domain.PeriodRecord{
		prefix + "_seasonal": s.Seasonal,
		fmt.Sprintf("%s_annual_%s", prefix, yearSpan(s.Annual)): s.Annual,
	}
	if s.SecchiChange != nil {
		tables[prefix+"_secchi_change"] = []domain.PeriodRecord{s.SecchiChange.Record()}
	}
	for _, sink := range d.records {
		for name, records := range tables {
			if len(records) == 0 {
				continue
			}
			d.submit(sink.Name(), name, func() error {
				return sink.ExportRecords(ctx, name, s.RunID, records)
			})
		}
	}

	for _, sink := range d.rasters {
		for _, rec := range s.Seasonal {
			if rec.Raster == nil {
				continue
			}
			name := fmt.Sprintf("%s_secchi_%s", prefix, rec.PeriodID)
			r := *rec.Raster
			d.submit(sink.Name(), name, func() error { return sink.ExportRaster(ctx, name, r) })
		}
		if c := s.Classification; c != nil {
			name := fmt.Sprintf("%s_clarity_classes_%s", prefix, c.Season)
			d.submit(sink.Name(), name, func() error { return sink.ExportRaster(ctx, name, c.Raster) })
		}
	}
}

func (d *Dispatcher) submit(sink, name string, job func() error) {
	d.metrics.ExportsSubmitted.WithLabelValues(sink).Inc()
	d.pool.Submit(func() {
		start := time.Now()
		if err := job(); err != nil {
			d.metrics.ExportErrors.WithLabelValues(sink).Inc()
			d.logger.Error("export failed", "sink", sink, "name", name, "error", err)
			return
		}
		d.logger.Debug("export written", "sink", sink, "name", name, "duration", time.Since(start))
	})
}

// Close waits for queued exports to finish and stops the workers.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.pool.StopWait()
}

func exportPrefix(lake string) string {
	if lake == "" {
		return "lake"
	}
	return "lake_" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lake), " ", "_"))
}

func yearSpan(records []domain.PeriodRecord) string {
	if len(records) == 0 {
		return "none"
	}
	return fmt.Sprintf("%d_%d", records[0].Year, records[len(records)-1].Year)
}
