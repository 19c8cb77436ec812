// Package trend fits ordinary least-squares lines to annual metric series.
package trend

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Point is one observation. A nil Y is None and is excluded from the fit.
type Point struct {
	X float64
	Y *float64
}

// Fit regresses Y on X. Points are sorted by X before fitting, so input order
// does not matter. At least two distinct X values with a valid Y are required.
func Fit(metric string, points []Point) (domain.TrendResult, error) {
	valid := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Y != nil {
			valid = append(valid, p)
		}
	}
	slices.SortStableFunc(valid, func(a, b Point) int { return cmp.Compare(a.X, b.X) })

	xs := make([]float64, len(valid))
	ys := make([]float64, len(valid))
	for i, p := range valid {
		xs[i], ys[i] = p.X, *p.Y
	}
	if distinct(xs) < 2 {
		return domain.TrendResult{}, fmt.Errorf("trend %s: %d valid points: %w", metric, len(valid), domain.ErrInsufficientData)
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return domain.TrendResult{
		Metric:      metric,
		Slope:       slope,
		Intercept:   intercept,
		DecadeTrend: slope * 10,
		RSquared:    rSquared(xs, ys, intercept, slope),
		Points:      len(valid),
	}, nil
}

// rSquared is the coefficient of determination. A series with no variance is
// fitted exactly by a flat line, so it scores 1 instead of NaN.
func rSquared(xs, ys []float64, intercept, slope float64) float64 {
	if !slices.ContainsFunc(ys, func(y float64) bool { return y != ys[0] }) {
		return 1
	}
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)
	if math.IsNaN(r2) {
		return 0
	}
	return r2
}

func distinct(sorted []float64) int {
	n := 0
	for i, x := range sorted {
		if i == 0 || x != sorted[i-1] {
			n++
		}
	}
	return n
}

// PointsFromRecords maps period records to (year, metric) points. Gaps and
// records missing the metric contribute a None point.
func PointsFromRecords(records []domain.PeriodRecord, metric string) []Point {
	points := make([]Point, 0, len(records))
	for _, r := range records {
		p := Point{X: float64(r.Year)}
		if r.OK() {
			p.Y = r.Metric(metric)
		}
		points = append(points, p)
	}
	return points
}

// FitRecords fits every metric in turn and skips those without enough data.
// The skipped metrics are returned alongside the results.
func FitRecords(records []domain.PeriodRecord, metrics ...string) ([]domain.TrendResult, map[string]error) {
	var out []domain.TrendResult
	skipped := map[string]error{}
	for _, m := range metrics {
		res, err := Fit(m, PointsFromRecords(records, m))
		if err != nil {
			skipped[m] = err
			continue
		}
		out = append(out, res)
	}
	return out, skipped
}
