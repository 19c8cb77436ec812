// Package classify discretizes a continuous raster into ordered classes.
package classify

import (
	"fmt"
	"math"
	"strconv"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
)

// Rule assigns ClassID to values in [Threshold, next rule's Threshold).
// The last rule is open-ended.
type Rule struct {
	Threshold float64 `json:"threshold"`
	ClassID   int     `json:"class_id"`
	Label     string  `json:"label"`
}

// Boundaries is an ordered rule list. The first rule also captures every value
// below its own threshold.
type Boundaries []Rule

// WaterClarityClasses buckets Secchi depth in metres.
var WaterClarityClasses = Boundaries{
	{Threshold: math.Inf(-1), ClassID: 1, Label: "Very turbid"},
	{Threshold: 0.3, ClassID: 2, Label: "Turbid"},
	{Threshold: 0.6, ClassID: 3, Label: "Moderate"},
	{Threshold: 0.9, ClassID: 4, Label: "Clear"},
	{Threshold: 1.2, ClassID: 5, Label: "Very clear"},
}

// Validate checks that thresholds and class ids are strictly increasing.
func (b Boundaries) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("no rules: %w", domain.ErrInvalidBoundaries)
	}
	for i := 1; i < len(b); i++ {
		if !(b[i].Threshold > b[i-1].Threshold) {
			return fmt.Errorf("threshold %v after %v: %w", b[i].Threshold, b[i-1].Threshold, domain.ErrInvalidBoundaries)
		}
		if b[i].ClassID <= b[i-1].ClassID {
			return fmt.Errorf("class %d after %d: %w", b[i].ClassID, b[i-1].ClassID, domain.ErrInvalidBoundaries)
		}
	}
	return nil
}

// ClassOf returns the class for v, or NaN when v is NaN. Rules are tested in
// ascending order and the first matching interval wins.
func (b Boundaries) ClassOf(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	for i, rule := range b {
		upper := math.Inf(1)
		if i+1 < len(b) {
			upper = b[i+1].Threshold
		}
		if (i == 0 || v >= rule.Threshold) && v < upper {
			return float64(rule.ClassID)
		}
	}
	return float64(b[len(b)-1].ClassID)
}

// Label returns the label of a class id.
func (b Boundaries) Label(classID int) string {
	for _, r := range b {
		if r.ClassID == classID {
			return r.Label
		}
	}
	return ""
}

// Classify maps band of r through the rules in one pass. The result has a
// single "class" band; no-data stays NaN.
func Classify(r domain.Raster, band string, rules Boundaries) (domain.Raster, error) {
	if err := rules.Validate(); err != nil {
		return domain.Raster{}, err
	}
	data, err := r.Band(band)
	if err != nil {
		return domain.Raster{}, fmt.Errorf("classify: %w", err)
	}
	for i, v := range data {
		data[i] = rules.ClassOf(v)
	}
	out, err := r.WithBands("class", domain.Band{Name: "class", Data: data})
	if err != nil {
		return domain.Raster{}, err
	}
	return out.WithProperties(map[string]string{
		"classified_band": band,
		"classes":         strconv.Itoa(len(rules)),
	}), nil
}

// ClassCount is the number of pixels in one class.
type ClassCount struct {
	ClassID int    `json:"class_id"`
	Label   string `json:"label"`
	Pixels  int    `json:"pixels"`
}

// Histogram counts the pixels of each class in a classified raster, in rule order.
func Histogram(classified domain.Raster, rules Boundaries) ([]ClassCount, error) {
	data, err := classified.Band("class")
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(rules))
	for _, v := range data {
		if !math.IsNaN(v) {
			counts[int(v)]++
		}
	}
	out := make([]ClassCount, len(rules))
	for i, r := range rules {
		out[i] = ClassCount{ClassID: r.ClassID, Label: r.Label, Pixels: counts[r.ClassID]}
	}
	return out, nil
}
