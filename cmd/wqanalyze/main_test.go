package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestCLILogger_ProgressModeKeepsErrors(t *testing.T) {
	var stderr bytes.Buffer
	logger := cliLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), false, &stderr)

	logger.Info("period complete", "period", "aug2016")
	logger.Error("export failed", "sink", "csv", "name", "lake_tana_seasonal")

	out := stderr.String()
	assert.NotContains(t, out, "period complete")
	assert.Contains(t, out, "export failed")
	assert.Contains(t, out, "lake_tana_seasonal")
}

func TestCLILogger_QuietUsesBase(t *testing.T) {
	var stderr bytes.Buffer
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, base, cliLogger(base, true, &stderr))
}

func TestPrintReport(t *testing.T) {
	depth := 0.234
	rec := domain.PeriodRecord{PeriodID: "aug2016", Kind: domain.KindSeason, Status: domain.StatusOK, ImageCount: 3}
	rec.SetMetric(domain.MetricSecchiDepth, &depth)
	s := &pipeline.Summary{
		RunID:    "run-1",
		Lake:     pipeline.LakeInfo{Name: "Tana"},
		Seasonal: []domain.PeriodRecord{rec, {PeriodID: "dec2016", Kind: domain.KindSeason, Status: domain.StatusNoData}},
	}

	var buf strings.Builder
	printReport(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "Lake Tana")
	assert.Contains(t, out, "secchi_depth=0.2340")
	assert.Contains(t, out, "dec2016    no_data")
}
