// Package series builds the seasonal and annual period records: select scenes,
// composite, clip, derive indices and reduce them over the lake.
package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/composite"
	"github.com/couchcryptid/lake-water-quality/internal/dataset"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/index"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/couchcryptid/lake-water-quality/internal/zonal"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// SequenceSelector returns the ordered scenes of one period.
type SequenceSelector interface {
	SelectSequence(ctx context.Context, datasetID string, start, end time.Time, bound orb.Bound) (domain.RasterSequence, error)
}

// IndexComputer derives a named index raster from a reflectance composite.
type IndexComputer interface {
	Compute(name string, raster domain.Raster, season string) (domain.Raster, error)
}

// ZonalSummarizer reduces a band over a geometry.
type ZonalSummarizer interface {
	Summarize(ctx context.Context, r domain.Raster, band string, g orb.Geometry, req zonal.Request) (zonal.Summary, error)
}

// Settings controls sampling and concurrency.
type Settings struct {
	SeasonalScaleM    float64
	LakeScaleM        float64
	PixelBudgetFine   float64
	PixelBudgetCoarse float64
	BufferM           float64
	Workers           int
	PeriodTimeout     time.Duration
}

// Builder runs periods concurrently and returns records in input order.
type Builder struct {
	selector SequenceSelector
	indices  IndexComputer
	reducer  ZonalSummarizer
	lake     *spatial.Domain
	settings Settings
	logger   *slog.Logger
	metrics  *observability.Metrics
	onPeriod func(domain.PeriodRecord)
}

// NewBuilder wires the period stages. The lake domain is shared read-only.
func NewBuilder(sel SequenceSelector, idx IndexComputer, red ZonalSummarizer, lake *spatial.Domain, s Settings, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	if s.Workers < 1 {
		s.Workers = 1
	}
	return &Builder{
		selector: sel,
		indices:  idx,
		reducer:  red,
		lake:     lake,
		settings: s,
		logger:   logger,
		metrics:  metrics,
		onPeriod: func(domain.PeriodRecord) {},
	}
}

// OnPeriod registers a callback invoked as each period finishes, in completion order.
// It must be safe for concurrent use.
func (b *Builder) OnPeriod(fn func(domain.PeriodRecord)) {
	if fn != nil {
		b.onPeriod = fn
	}
}

// period is one unit of work: a window plus the metrics derived for it.
type period struct {
	record domain.PeriodRecord
	derive func(ctx context.Context, clipped domain.Raster, rec *domain.PeriodRecord) error
}

// BuildSeasonal produces one record per season, in the order given.
func (b *Builder) BuildSeasonal(ctx context.Context, seasons []domain.SeasonDef) ([]domain.PeriodRecord, error) {
	periods := make([]period, len(seasons))
	for i, s := range seasons {
		start, end := dataset.MonthRange(s.Year, s.Month)
		periods[i] = period{
			record: domain.PeriodRecord{
				PeriodID:  s.ID,
				Label:     s.Label,
				Kind:      domain.KindSeason,
				Year:      s.Year,
				Season:    s.ID,
				Start:     start,
				End:       end,
				DatasetID: dataset.IDFor(s.Year),
			},
			derive: b.deriveSeasonal,
		}
	}
	return b.build(ctx, periods)
}

// BuildAnnual produces one record per calendar year in [from, to].
func (b *Builder) BuildAnnual(ctx context.Context, from, to int) ([]domain.PeriodRecord, error) {
	if to < from {
		return nil, fmt.Errorf("annual range %d..%d is empty", from, to)
	}
	periods := make([]period, 0, to-from+1)
	for year := from; year <= to; year++ {
		start, end := dataset.YearRange(year)
		periods = append(periods, period{
			record: domain.PeriodRecord{
				PeriodID:  strconv.Itoa(year),
				Label:     strconv.Itoa(year),
				Kind:      domain.KindYear,
				Year:      year,
				Start:     start,
				End:       end,
				DatasetID: dataset.IDFor(year),
			},
			derive: b.deriveAnnual,
		})
	}
	return b.build(ctx, periods)
}

func (b *Builder) build(ctx context.Context, periods []period) ([]domain.PeriodRecord, error) {
	out := make([]domain.PeriodRecord, len(periods))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.settings.Workers)
	for i, p := range periods {
		g.Go(func() error {
			rec := b.runPeriod(gctx, p)
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = rec
			b.onPeriod(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// runPeriod never fails: errors become gap records. The caller checks the
// parent context to tell cancellation apart from a failed period.
func (b *Builder) runPeriod(ctx context.Context, p period) domain.PeriodRecord {
	start := time.Now()
	rec := p.record
	rec.Status = domain.StatusOK

	if b.settings.PeriodTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.settings.PeriodTimeout)
		defer cancel()
	}

	err := b.process(ctx, p, &rec)
	switch {
	case errors.Is(err, domain.ErrEmptyRasterSequence):
		rec.MarkGap(domain.StatusNoData, err)
		b.logger.Info("no imagery for period", "period", rec.PeriodID, "dataset", rec.DatasetID)
	case err != nil:
		rec.MarkGap(domain.StatusFailed, err)
		b.logger.Warn("period failed", "period", rec.PeriodID, "dataset", rec.DatasetID, "error", err)
	default:
		b.logger.Info("period processed",
			"period", rec.PeriodID,
			"dataset", rec.DatasetID,
			"images", rec.ImageCount,
			"metrics", len(rec.Metrics),
		)
	}

	b.metrics.PeriodsProcessed.WithLabelValues(string(rec.Kind), string(rec.Status)).Inc()
	b.metrics.PeriodDuration.WithLabelValues(string(rec.Kind)).Observe(time.Since(start).Seconds())
	return rec
}

func (b *Builder) process(ctx context.Context, p period, rec *domain.PeriodRecord) error {
	seq, err := b.selector.SelectSequence(ctx, rec.DatasetID, rec.Start, rec.End, b.lake.BufferBound(b.settings.BufferM))
	if err != nil {
		return err
	}
	rec.ImageCount = seq.Size()
	if seq.Size() == 0 {
		return fmt.Errorf("%s %s: %w", rec.DatasetID, rec.PeriodID, domain.ErrEmptyRasterSequence)
	}

	scaled := domain.RasterSequence{DatasetID: seq.DatasetID, Start: seq.Start, End: seq.End}
	for _, r := range seq.Rasters {
		pre, err := composite.Preprocess(r)
		if err != nil {
			return err
		}
		scaled.Rasters = append(scaled.Rasters, pre)
	}

	median, err := composite.Composite(scaled)
	if err != nil {
		return err
	}
	b.metrics.ImagesComposited.Add(float64(seq.Size()))

	clipped, err := composite.Clip(median, b.lake.Geometry())
	if err != nil {
		return err
	}
	clipped = clipped.WithTimestamp(rec.Start).WithProperties(map[string]string{"period": rec.PeriodID})

	return p.derive(ctx, clipped, rec)
}

func (b *Builder) fine() zonal.Request {
	return zonal.Request{Statistic: zonal.Mean, ScaleMeters: b.settings.SeasonalScaleM, PixelBudget: b.settings.PixelBudgetFine}
}

func (b *Builder) coarse() zonal.Request {
	return zonal.Request{Statistic: zonal.Mean, ScaleMeters: b.settings.LakeScaleM, PixelBudget: b.settings.PixelBudgetCoarse, BestEffort: true}
}

// deriveSeasonal computes lake-wide NIR and Secchi means at the coarse scale
// and turbidity spatial statistics at the fine scale. The Secchi raster is
// kept on the record.
func (b *Builder) deriveSeasonal(ctx context.Context, clipped domain.Raster, rec *domain.PeriodRecord) error {
	geom := b.lake.Geometry()

	secchi, err := b.indices.Compute(index.SecchiDepth, clipped, rec.Season)
	if err != nil {
		return err
	}
	turbidity, err := b.indices.Compute(index.Turbidity, clipped, rec.Season)
	if err != nil {
		return err
	}

	nir, err := b.reducer.Summarize(ctx, clipped, composite.NIR, geom, b.coarse())
	if err != nil {
		return fmt.Errorf("reduce nir: %w", err)
	}
	depth, err := b.reducer.Summarize(ctx, secchi, index.SecchiDepth, geom, b.coarse())
	if err != nil {
		return fmt.Errorf("reduce secchi depth: %w", err)
	}
	turb, err := b.reducer.Summarize(ctx, turbidity, index.Turbidity, geom, b.fine())
	if err != nil {
		return fmt.Errorf("reduce turbidity: %w", err)
	}

	rec.SetMetric(domain.MetricNIR, nir.Mean)
	rec.SetMetric(domain.MetricSecchiDepth, depth.Mean)
	rec.SetMetric(domain.MetricTurbidityMean, turb.Mean)
	rec.SetMetric(domain.MetricTurbidityStd, turb.StdDev)
	rec.SetMetric(domain.MetricTurbidityCV, turb.CV)
	rec.Raster = &secchi
	return nil
}

// deriveAnnual computes red and NIR reflectance, turbidity and water index
// means at the fine scale.
func (b *Builder) deriveAnnual(ctx context.Context, clipped domain.Raster, rec *domain.PeriodRecord) error {
	geom := b.lake.Geometry()

	for _, band := range []string{composite.Red, composite.NIR} {
		s, err := b.reducer.Summarize(ctx, clipped, band, geom, b.fine())
		if err != nil {
			return fmt.Errorf("reduce %s: %w", band, err)
		}
		rec.SetMetric(band, s.Mean)
	}

	for _, name := range []string{index.Turbidity, index.WaterIndex} {
		derived, err := b.indices.Compute(name, clipped, "")
		if err != nil {
			return err
		}
		s, err := b.reducer.Summarize(ctx, derived, name, geom, b.fine())
		if err != nil {
			return fmt.Errorf("reduce %s: %w", name, err)
		}
		rec.SetMetric(name, s.Mean)
	}
	return nil
}
