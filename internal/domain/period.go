package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// PeriodKind distinguishes seasonal campaigns from calendar years.
type PeriodKind string

const (
	KindSeason PeriodKind = "season"
	KindYear   PeriodKind = "year"
	KindChange PeriodKind = "change"
)

// PeriodStatus records whether a period produced metrics.
type PeriodStatus string

const (
	StatusOK     PeriodStatus = "ok"
	StatusNoData PeriodStatus = "no_data"
	StatusFailed PeriodStatus = "failed"
)

// Metric names emitted by the series builders.
const (
	MetricRed            = "red"
	MetricNIR            = "nir"
	MetricTurbidity      = "turbidity"
	MetricWaterIndex     = "water_index"
	MetricSecchiDepth    = "secchi_depth"
	MetricTurbidityMean  = "turbidity_mean"
	MetricTurbidityStd   = "turbidity_std"
	MetricTurbidityCV    = "turbidity_cv"
	MetricSecchiAbsolute = "secchi_change_m"
	MetricSecchiPercent  = "secchi_change_pct"
)

// SeasonDef names one seasonal campaign: a calendar month with its own calibration.
type SeasonDef struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// String returns the campaign id.
func (s SeasonDef) String() string { return s.ID }

// PeriodRecord is the outcome of processing one period. A metric absent from
// Metrics is "None": the period had no valid pixel for it.
type PeriodRecord struct {
	PeriodID   string             `json:"period_id"`
	Label      string             `json:"label"`
	Kind       PeriodKind         `json:"kind"`
	Year       int                `json:"year"`
	Season     string             `json:"season,omitempty"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
	DatasetID  string             `json:"dataset_id"`
	ImageCount int                `json:"image_count"`
	Status     PeriodStatus       `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Metrics    map[string]float64 `json:"metrics"`

	// Raster is the derived index raster kept for downstream classification and export.
	Raster *Raster `json:"-"`
}

// Metric returns the named metric, or nil when it is None.
func (p PeriodRecord) Metric(name string) *float64 {
	v, ok := p.Metrics[name]
	if !ok {
		return nil
	}
	return &v
}

// SetMetric stores v under name; a nil v leaves the metric as None.
func (p *PeriodRecord) SetMetric(name string, v *float64) {
	if v == nil {
		return
	}
	if p.Metrics == nil {
		p.Metrics = map[string]float64{}
	}
	p.Metrics[name] = *v
}

// MetricNames returns the populated metric names in sorted order.
func (p PeriodRecord) MetricNames() []string {
	return slices.Sorted(maps.Keys(p.Metrics))
}

// OK reports whether the period produced metrics.
func (p PeriodRecord) OK() bool { return p.Status == StatusOK }

// MarkGap converts the record into a gap with the given status and reason.
func (p *PeriodRecord) MarkGap(status PeriodStatus, reason error) {
	p.Status = status
	p.Metrics = nil
	p.Raster = nil
	if reason != nil {
		p.Reason = reason.Error()
	}
}

// TrendResult is the OLS fit of a metric against time.
type TrendResult struct {
	Metric      string  `json:"metric"`
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	DecadeTrend float64 `json:"decade_trend"`
	RSquared    float64 `json:"r_squared"`
	Points      int     `json:"points"`
}

// String formats the trend the way reports print it.
func (t TrendResult) String() string {
	return fmt.Sprintf("%s: %+.4f per year (%+.4f per decade, R²=%.2f, n=%d)",
		t.Metric, t.Slope, t.DecadeTrend, t.RSquared, t.Points)
}
