package pipeline

import (
	"time"

	"github.com/couchcryptid/lake-water-quality/internal/classify"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
)

// Summary is the outcome of one analysis run.
type Summary struct {
	RunID          string                `json:"run_id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Lake           LakeInfo              `json:"lake"`
	Seasonal       []domain.PeriodRecord `json:"seasonal"`
	Annual         []domain.PeriodRecord `json:"annual"`
	Trends         []domain.TrendResult  `json:"trends"`
	SecchiChange   *SeasonalChange       `json:"secchi_change,omitempty"`
	Classification *Classification       `json:"classification,omitempty"`
}

// LakeInfo describes the study area. BoundingBox is west, south, east, north.
type LakeInfo struct {
	Name            string     `json:"name"`
	AreaKm2         float64    `json:"area_km2"`
	BoundingBoxKm2  float64    `json:"bounding_box_km2"`
	ToleranceMeters float64    `json:"tolerance_m"`
	BoundingBox     [4]float64 `json:"bounding_box"`
}

// SeasonalChange compares a metric between the first and last valid seasons.
// Percent is nil when the first value is zero.
type SeasonalChange struct {
	Metric   string   `json:"metric"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	FromVal  float64  `json:"from_value"`
	ToVal    float64  `json:"to_value"`
	Absolute float64  `json:"absolute"`
	Percent  *float64 `json:"percent,omitempty"`
}

// Record renders the change as a period record so record sinks can export it
// next to the series.
func (c SeasonalChange) Record() domain.PeriodRecord {
	rec := domain.PeriodRecord{
		PeriodID: c.From + ".." + c.To,
		Label:    c.Metric + " change",
		Kind:     domain.KindChange,
		Status:   domain.StatusOK,
	}
	abs := c.Absolute
	rec.SetMetric(domain.MetricSecchiAbsolute, &abs)
	rec.SetMetric(domain.MetricSecchiPercent, c.Percent)
	return rec
}

// Classification is the clarity class breakdown of one seasonal raster.
type Classification struct {
	Season    string                `json:"season"`
	Histogram []classify.ClassCount `json:"histogram"`
	Raster    domain.Raster         `json:"-"`
}

// SeasonalChangeOf returns the change in metric between the first and last
// seasons where it is not None, or nil when fewer than two seasons have it.
func SeasonalChangeOf(seasonal []domain.PeriodRecord, metric string) *SeasonalChange {
	var first, last *domain.PeriodRecord
	for i := range seasonal {
		if seasonal[i].Metric(metric) == nil {
			continue
		}
		if first == nil {
			first = &seasonal[i]
		}
		last = &seasonal[i]
	}
	if first == nil || first == last {
		return nil
	}

	from, to := *first.Metric(metric), *last.Metric(metric)
	c := &SeasonalChange{
		Metric:   metric,
		From:     first.PeriodID,
		To:       last.PeriodID,
		FromVal:  from,
		ToVal:    to,
		Absolute: to - from,
	}
	if from != 0 {
		pct := (to - from) / from * 100
		c.Percent = &pct
	}
	return c
}
