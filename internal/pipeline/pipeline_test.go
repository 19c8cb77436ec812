package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/classify"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/index"
	"github.com/couchcryptid/lake-water-quality/internal/observability"
	"github.com/couchcryptid/lake-water-quality/internal/pipeline"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockBuilder struct {
	seasonal []domain.PeriodRecord
	annual   []domain.PeriodRecord
	err      error
	calls    atomic.Int64
}

func (m *mockBuilder) BuildSeasonal(_ context.Context, _ []domain.SeasonDef) ([]domain.PeriodRecord, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.seasonal, nil
}

func (m *mockBuilder) BuildAnnual(_ context.Context, _, _ int) ([]domain.PeriodRecord, error) {
	return m.annual, nil
}

type mockExporter struct {
	mu        sync.Mutex
	summaries []*pipeline.Summary
}

func (m *mockExporter) Submit(_ context.Context, s *pipeline.Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
}

type mockRecordSink struct {
	mu    sync.Mutex
	err   error
	names []string
	runID string
}

func (m *mockRecordSink) Name() string { return "records" }

func (m *mockRecordSink) ExportRecords(_ context.Context, name, runID string, _ []domain.PeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	m.runID = runID
	return m.err
}

type mockRasterSink struct {
	mu    sync.Mutex
	names []string
}

func (m *mockRasterSink) Name() string { return "rasters" }

func (m *mockRasterSink) ExportRaster(_ context.Context, name string, _ domain.Raster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return nil
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLake(t *testing.T) *spatial.Domain {
	t.Helper()
	d, err := spatial.New("Tana", orb.Polygon{{{37.0, 11.6}, {37.6, 11.6}, {37.6, 12.3}, {37.0, 12.3}, {37.0, 11.6}}})
	require.NoError(t, err)
	return d
}

func ptr(v float64) *float64 { return &v }

func seasonRecord(t *testing.T, id string, secchi *float64, pixels []float64) domain.PeriodRecord {
	t.Helper()
	rec := domain.PeriodRecord{PeriodID: id, Kind: domain.KindSeason, Status: domain.StatusOK}
	if secchi == nil {
		rec.MarkGap(domain.StatusNoData, domain.ErrEmptyRasterSequence)
		return rec
	}
	rec.SetMetric(domain.MetricSecchiDepth, secchi)
	if pixels != nil {
		r, err := domain.NewRaster(id, len(pixels), 1, domain.NewGeoTransform(37.0, 12.0, 0.01), time.Time{},
			domain.Band{Name: index.SecchiDepth, Data: pixels})
		require.NoError(t, err)
		rec.Raster = &r
	}
	return rec
}

func annualRecords() []domain.PeriodRecord {
	var out []domain.PeriodRecord
	for year := 2008; year <= 2012; year++ {
		rec := domain.PeriodRecord{PeriodID: strconv.Itoa(year), Kind: domain.KindYear, Year: year, Status: domain.StatusOK}
		if year == 2010 {
			rec.MarkGap(domain.StatusNoData, domain.ErrEmptyRasterSequence)
		} else {
			rec.SetMetric(domain.MetricRed, ptr(0.05+0.001*float64(year-2008)))
		}
		out = append(out, rec)
	}
	return out
}

func newTestBuilder(t *testing.T) *mockBuilder {
	return &mockBuilder{
		seasonal: []domain.PeriodRecord{
			seasonRecord(t, "aug2016", ptr(0.234), []float64{0.1, 0.5, 0.7, math.NaN()}),
			seasonRecord(t, "dec2016", nil, nil),
			seasonRecord(t, "mar2017", ptr(0.889), []float64{1.0}),
		},
		annual: annualRecords(),
	}
}

// --- tests ---

func TestPipeline_RunOnce_Summary(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	defer domain.SetClock(nil)

	exp := &mockExporter{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(newTestBuilder(t), testLake(t), pipeline.Options{YearStart: 2008, YearEnd: 2012, AreaToleranceM: 100}, exp, discardLogger(), metrics)

	require.Error(t, p.CheckReadiness(context.Background()))

	s, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, fc.Now(), s.GeneratedAt)
	assert.Equal(t, "Tana", s.Lake.Name)
	assert.Greater(t, s.Lake.AreaKm2, 0.0)
	assert.InDelta(t, s.Lake.AreaKm2, s.Lake.BoundingBoxKm2, 1e-6, "a rectangle is its own bounding box")
	assert.Equal(t, [4]float64{37.0, 11.6, 37.6, 12.3}, s.Lake.BoundingBox)

	require.Len(t, s.Trends, 1, "only red has enough annual points")
	assert.Equal(t, domain.MetricRed, s.Trends[0].Metric)
	assert.InDelta(t, 0.001, s.Trends[0].Slope, 1e-12)
	assert.InDelta(t, 0.01, s.Trends[0].DecadeTrend, 1e-12)
	assert.Equal(t, 4, s.Trends[0].Points)

	require.NotNil(t, s.SecchiChange)
	assert.Equal(t, "aug2016", s.SecchiChange.From)
	assert.Equal(t, "mar2017", s.SecchiChange.To)
	assert.InDelta(t, 0.655, s.SecchiChange.Absolute, 1e-9)
	require.NotNil(t, s.SecchiChange.Percent)
	assert.InDelta(t, 0.655/0.234*100, *s.SecchiChange.Percent, 1e-9)

	require.NotNil(t, s.Classification)
	assert.Equal(t, "aug2016", s.Classification.Season)
	want := []classify.ClassCount{
		{ClassID: 1, Label: "Very turbid", Pixels: 1},
		{ClassID: 2, Label: "Turbid", Pixels: 1},
		{ClassID: 3, Label: "Moderate", Pixels: 1},
		{ClassID: 4, Label: "Clear", Pixels: 0},
		{ClassID: 5, Label: "Very clear", Pixels: 0},
	}
	if diff := cmp.Diff(want, s.Classification.Histogram); diff != "" {
		t.Errorf("histogram mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Same(t, s, p.Latest())
	require.Len(t, exp.summaries, 1)
	assert.Same(t, s, exp.summaries[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCompleted.WithLabelValues("success")))
	assert.Equal(t, float64(fc.Now().Unix()), testutil.ToFloat64(metrics.LastRunTime))
}

func TestPipeline_RunOnce_BuilderError(t *testing.T) {
	b := newTestBuilder(t)
	b.err = errors.New("catalog offline")
	exp := &mockExporter{}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(b, testLake(t), pipeline.Options{}, exp, discardLogger(), metrics)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog offline")
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Nil(t, p.Latest())
	assert.Empty(t, exp.summaries)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsCompleted.WithLabelValues("error")))
}

func TestPipeline_RunOnce_NoValidSeasons(t *testing.T) {
	b := &mockBuilder{
		seasonal: []domain.PeriodRecord{seasonRecord(t, "aug2016", nil, nil)},
		annual:   annualRecords(),
	}
	p := pipeline.New(b, testLake(t), pipeline.Options{}, nil, discardLogger(), observability.NewMetricsForTesting())

	s, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s.SecchiChange)
	assert.Nil(t, s.Classification)
}

func TestPipeline_Run_OnceReturnsError(t *testing.T) {
	b := newTestBuilder(t)
	b.err = errors.New("boom")
	p := pipeline.New(b, testLake(t), pipeline.Options{}, nil, discardLogger(), observability.NewMetricsForTesting())

	err := p.Run(context.Background())
	require.Error(t, err)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	b := newTestBuilder(t)
	b.err = context.Canceled
	p := pipeline.New(b, testLake(t), pipeline.Options{}, nil, discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
}

func TestPipeline_Run_Scheduled(t *testing.T) {
	fc := clockwork.NewFakeClock()
	domain.SetClock(fc)
	defer domain.SetClock(nil)

	b := newTestBuilder(t)
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(b, testLake(t), pipeline.Options{RunInterval: time.Hour}, nil, discardLogger(), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return b.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning))

	fc.Advance(time.Hour)
	require.Eventually(t, func() bool { return b.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestSeasonalChangeOf(t *testing.T) {
	tests := []struct {
		name     string
		records  []domain.PeriodRecord
		wantNil  bool
		from, to string
		abs      float64
		pctNil   bool
	}{
		{
			name:    "single valid season",
			records: []domain.PeriodRecord{seasonRecord(t, "a", ptr(1), nil), seasonRecord(t, "b", nil, nil)},
			wantNil: true,
		},
		{
			name:    "gaps skipped at both ends",
			records: []domain.PeriodRecord{seasonRecord(t, "a", nil, nil), seasonRecord(t, "b", ptr(2), nil), seasonRecord(t, "c", ptr(3), nil), seasonRecord(t, "d", nil, nil)},
			from:    "b", to: "c", abs: 1,
		},
		{
			name:    "zero baseline has no percent",
			records: []domain.PeriodRecord{seasonRecord(t, "a", ptr(0), nil), seasonRecord(t, "b", ptr(0.5), nil)},
			from:    "a", to: "b", abs: 0.5, pctNil: true,
		},
		{name: "empty", wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := pipeline.SeasonalChangeOf(tt.records, domain.MetricSecchiDepth)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.from, c.From)
			assert.Equal(t, tt.to, c.To)
			assert.InDelta(t, tt.abs, c.Absolute, 1e-12)
			assert.Equal(t, tt.pctNil, c.Percent == nil)

			rec := c.Record()
			assert.Equal(t, domain.KindChange, rec.Kind)
			assert.InDelta(t, tt.abs, *rec.Metric(domain.MetricSecchiAbsolute), 1e-12)
			assert.Equal(t, tt.pctNil, rec.Metric(domain.MetricSecchiPercent) == nil)
		})
	}
}

func TestDispatcher_Submit(t *testing.T) {
	b := newTestBuilder(t)
	p := pipeline.New(b, testLake(t), pipeline.Options{}, nil, discardLogger(), observability.NewMetricsForTesting())
	s, err := p.RunOnce(context.Background())
	require.NoError(t, err)

	recSink := &mockRecordSink{}
	rasterSink := &mockRasterSink{}
	metrics := observability.NewMetricsForTesting()
	d := pipeline.NewDispatcher(2, []pipeline.RecordSink{recSink}, []pipeline.RasterSink{rasterSink}, discardLogger(), metrics)

	d.Submit(context.Background(), s)
	d.Close()

	sort.Strings(recSink.names)
	assert.Equal(t, []string{"lake_tana_annual_2008_2012", "lake_tana_seasonal", "lake_tana_secchi_change"}, recSink.names)
	assert.Equal(t, s.RunID, recSink.runID)

	sort.Strings(rasterSink.names)
	assert.Equal(t, []string{"lake_tana_clarity_classes_aug2016", "lake_tana_secchi_aug2016", "lake_tana_secchi_mar2017"}, rasterSink.names)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ExportsSubmitted.WithLabelValues("records")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ExportsSubmitted.WithLabelValues("rasters")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ExportErrors.WithLabelValues("records")))
}

func TestDispatcher_SinkErrorsAreCounted(t *testing.T) {
	s := &pipeline.Summary{
		RunID:    "run-1",
		Lake:     pipeline.LakeInfo{Name: "Tana"},
		Seasonal: []domain.PeriodRecord{seasonRecord(t, "aug2016", ptr(0.2), nil)},
	}
	recSink := &mockRecordSink{err: errors.New("disk full")}
	metrics := observability.NewMetricsForTesting()
	d := pipeline.NewDispatcher(1, []pipeline.RecordSink{recSink}, nil, discardLogger(), metrics)

	d.Submit(context.Background(), s)
	d.Close()

	assert.Equal(t, []string{"lake_tana_seasonal"}, recSink.names)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExportErrors.WithLabelValues("records")))
}

func TestDispatcher_SubmitAfterCloseIsDropped(t *testing.T) {
	s := &pipeline.Summary{
		RunID:    "run-1",
		Lake:     pipeline.LakeInfo{Name: "Tana"},
		Seasonal: []domain.PeriodRecord{seasonRecord(t, "aug2016", ptr(0.2), nil)},
	}
	recSink := &mockRecordSink{}
	metrics := observability.NewMetricsForTesting()
	d := pipeline.NewDispatcher(1, []pipeline.RecordSink{recSink}, nil, discardLogger(), metrics)
	d.Close()

	assert.NotPanics(t, func() { d.Submit(context.Background(), s) })
	assert.NotPanics(t, d.Close)
	assert.Empty(t, recSink.names)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ExportsSubmitted.WithLabelValues("records")))
}
