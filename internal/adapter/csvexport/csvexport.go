// Package csvexport writes period records as long-format CSV tables.
package csvexport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/gocarina/gocsv"
)

// Row is one metric of one period. Gap periods produce a single row with an
// empty metric, and None metrics are never written.
type Row struct {
	RunID      string `csv:"run_id"`
	PeriodID   string `csv:"period_id"`
	Label      string `csv:"label"`
	Kind       string `csv:"kind"`
	Year       int    `csv:"year"`
	Season     string `csv:"season"`
	DatasetID  string `csv:"dataset_id"`
	ImageCount int    `csv:"image_count"`
	Status     string `csv:"status"`
	Reason     string `csv:"reason"`
	Metric     string `csv:"metric"`
	Value      string `csv:"value"`
}

// Float parses Value. It returns false for gap rows.
func (r Row) Float() (float64, bool) {
	if r.Metric == "" || r.Value == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(r.Value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Rows flattens records in order, metrics sorted by name.
func Rows(runID string, records []domain.PeriodRecord) []Row {
	var rows []Row
	for _, rec := range records {
		base := Row{
			RunID:      runID,
			PeriodID:   rec.PeriodID,
			Label:      rec.Label,
			Kind:       string(rec.Kind),
			Year:       rec.Year,
			Season:     rec.Season,
			DatasetID:  rec.DatasetID,
			ImageCount: rec.ImageCount,
			Status:     string(rec.Status),
			Reason:     rec.Reason,
		}
		names := rec.MetricNames()
		if len(names) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, name := range names {
			row := base
			row.Metric = name
			row.Value = strconv.FormatFloat(rec.Metrics[name], 'g', -1, 64)
			rows = append(rows, row)
		}
	}
	return rows
}

// Sink writes <dir>/<name>.csv. It implements pipeline.RecordSink.
type Sink struct {
	dir string
}

// NewSink creates the output directory if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "csv" }

// Path returns the file a table name is written to.
func (s *Sink) Path(name string) string { return filepath.Join(s.dir, name+".csv") }

// ExportRecords replaces the table file. The file is written to a temporary
// name first so readers never see a partial table.
func (s *Sink) ExportRecords(ctx context.Context, name, runID string, records []domain.PeriodRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := Rows(runID, records)

	tmp, err := os.CreateTemp(s.dir, name+".*.csv.tmp")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if err := gocsv.MarshalFile(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), s.Path(name))
}

// ReadRows loads a table written by Sink.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}
