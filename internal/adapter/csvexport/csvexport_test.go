package csvexport_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/lake-water-quality/internal/adapter/csvexport"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records() []domain.PeriodRecord {
	ok := domain.PeriodRecord{
		PeriodID: "2016", Label: "2016", Kind: domain.KindYear, Year: 2016,
		DatasetID: "MODIS/006/MOD09Q1", ImageCount: 46, Status: domain.StatusOK,
	}
	red, turb := 0.0712, 15.66052
	ok.SetMetric(domain.MetricTurbidity, &turb)
	ok.SetMetric(domain.MetricRed, &red)

	gap := domain.PeriodRecord{PeriodID: "2017", Label: "2017", Kind: domain.KindYear, Year: 2017, DatasetID: "MODIS/006/MOD09Q1"}
	gap.MarkGap(domain.StatusNoData, domain.ErrEmptyRasterSequence)
	return []domain.PeriodRecord{ok, gap}
}

func TestRows(t *testing.T) {
	rows := csvexport.Rows("run-1", records())
	require.Len(t, rows, 3)

	assert.Equal(t, "red", rows[0].Metric, "metrics are sorted")
	assert.Equal(t, "0.0712", rows[0].Value)
	assert.Equal(t, "turbidity", rows[1].Metric)
	assert.Equal(t, 46, rows[1].ImageCount)

	assert.Equal(t, "2017", rows[2].PeriodID)
	assert.Equal(t, "no_data", rows[2].Status)
	assert.Empty(t, rows[2].Metric)
	assert.NotEmpty(t, rows[2].Reason)
	_, ok := rows[2].Float()
	assert.False(t, ok)
}

func TestSink_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := csvexport.NewSink(dir)
	require.NoError(t, err)
	assert.Equal(t, "csv", sink.Name())

	require.NoError(t, sink.ExportRecords(context.Background(), "lake_tana_annual_2016_2017", "run-1", records()))

	rows, err := csvexport.ReadRows(sink.Path("lake_tana_annual_2016_2017"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "run-1", rows[0].RunID)
	v, ok := rows[1].Float()
	require.True(t, ok)
	assert.InDelta(t, 15.66052, v, 1e-12)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed")
}

func TestSink_CancelledContext(t *testing.T) {
	sink, err := csvexport.NewSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sink.ExportRecords(ctx, "x", "r", records()), context.Canceled)
}

func TestReadRows_MissingFile(t *testing.T) {
	_, err := csvexport.ReadRows(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
