package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/classify"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/index"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/couchcryptid/lake-water-quality/internal/trend"
	"github.com/google/uuid"
)

// TrendMetrics are the annual series fitted at the end of each run.
var TrendMetrics = []string{domain.MetricTurbidity, domain.MetricWaterIndex, domain.MetricRed, domain.MetricNIR}

// SeriesBuilder produces the seasonal and annual period records.
type SeriesBuilder interface {
	BuildSeasonal(ctx context.Context, seasons []domain.SeasonDef) ([]domain.PeriodRecord, error)
	BuildAnnual(ctx context.Context, from, to int) ([]domain.PeriodRecord, error)
}

// Exporter receives each completed run summary.
type Exporter interface {
	Submit(ctx context.Context, s *Summary)
}

// Options selects the periods analysed in each run.
type Options struct {
	Seasons        []domain.SeasonDef
	YearStart      int
	YearEnd        int
	AreaToleranceM float64
	// RunInterval repeats the analysis on a ticker. Zero runs once.
	RunInterval time.Duration
}

// Pipeline orchestrates analysis runs over one lake.
type Pipeline struct {
	builder  SeriesBuilder
	lake     *spatial.Domain
	opts     Options
	exporter Exporter
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu     sync.RWMutex
	latest *Summary
}

// New creates a Pipeline. The exporter may be nil.
func New(b SeriesBuilder, lake *spatial.Domain, opts Options, exp Exporter, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		builder:  b,
		lake:     lake,
		opts:     opts,
		exporter: exp,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// Latest returns the most recent successful run summary, or nil.
func (p *Pipeline) Latest() *Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Run performs an analysis run, then repeats every RunInterval until the
// context is cancelled. With no interval a failed run is returned as an
// error; on a schedule failures are logged and the next tick retries.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"lake", p.lake.Name(),
		"seasons", len(p.opts.Seasons),
		"years", fmt.Sprintf("%d-%d", p.opts.YearStart, p.opts.YearEnd),
		"interval", p.opts.RunInterval,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	_, err := p.RunOnce(ctx)
	if p.opts.RunInterval <= 0 {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := domain.Clock().NewTicker(p.opts.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			// Errors are already logged and counted by RunOnce.
			_, _ = p.RunOnce(ctx)
		}
	}
}

// RunOnce builds both series, fits trends, summarizes the seasonal change and
// classifies the first valid seasonal Secchi raster.
func (p *Pipeline) RunOnce(ctx context.Context) (*Summary, error) {
	start := time.Now()
	s, err := p.analyze(ctx)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.RunsCompleted.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			p.logger.Error("analysis run failed", "error", err)
		}
		return nil, err
	}

	p.metrics.RunsCompleted.WithLabelValues("success").Inc()
	p.metrics.LastRunTime.Set(float64(s.GeneratedAt.Unix()))
	p.mu.Lock()
	p.latest = s
	p.mu.Unlock()
	p.ready.Store(true)

	p.logger.Info("analysis run complete",
		"run_id", s.RunID,
		"seasonal_ok", countOK(s.Seasonal),
		"annual_ok", countOK(s.Annual),
		"trends", len(s.Trends),
		"duration", time.Since(start),
	)

	if p.exporter != nil {
		p.exporter.Submit(ctx, s)
	}
	return s, nil
}

func (p *Pipeline) analyze(ctx context.Context) (*Summary, error) {
	s := &Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: domain.Now(),
		Lake:        describeLake(p.lake, p.opts.AreaToleranceM),
	}

	seasonal, err := p.builder.BuildSeasonal(ctx, p.opts.Seasons)
	if err != nil {
		return nil, fmt.Errorf("seasonal series: %w", err)
	}
	annual, err := p.builder.BuildAnnual(ctx, p.opts.YearStart, p.opts.YearEnd)
	if err != nil {
		return nil, fmt.Errorf("annual series: %w", err)
	}
	s.Seasonal, s.Annual = seasonal, annual

	trends, skipped := trend.FitRecords(annual, TrendMetrics...)
	for metric, err := range skipped {
		p.logger.Warn("trend skipped", "metric", metric, "error", err)
	}
	s.Trends = trends

	s.SecchiChange = SeasonalChangeOf(seasonal, domain.MetricSecchiDepth)

	cls, err := classifyFirstValid(seasonal)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	s.Classification = cls
	return s, nil
}

func describeLake(lake *spatial.Domain, tol float64) LakeInfo {
	b := lake.Bound()
	return LakeInfo{
		Name:            lake.Name(),
		AreaKm2:         lake.Area(tol).SquareKilometers(),
		BoundingBoxKm2:  lake.BoundingBoxArea(tol).SquareKilometers(),
		ToleranceMeters: tol,
		BoundingBox:     [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	}
}

// classifyFirstValid bins the first seasonal Secchi raster into clarity classes.
// It returns nil when no season produced a raster.
func classifyFirstValid(seasonal []domain.PeriodRecord) (*Classification, error) {
	for _, rec := range seasonal {
		if !rec.OK() || rec.Raster == nil {
			continue
		}
		classified, err := classify.Classify(*rec.Raster, index.SecchiDepth, classify.WaterClarityClasses)
		if err != nil {
			return nil, err
		}
		hist, err := classify.Histogram(classified, classify.WaterClarityClasses)
		if err != nil {
			return nil, err
		}
		return &Classification{Season: rec.PeriodID, Histogram: hist, Raster: classified}, nil
	}
	return nil, nil
}

func countOK(records []domain.PeriodRecord) int {
	n := 0
	for _, r := range records {
		if r.OK() {
			n++
		}
	}
	return n
}
