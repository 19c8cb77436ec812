// Package zonal reduces a raster band over a polygon at a chosen sampling scale.
package zonal

import (
	"context"
	"fmt"
	"math"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/stat"
)

// Statistic selects the reducer.
type Statistic string

const (
	Mean   Statistic = "mean"
	StdDev Statistic = "std"
	CV     Statistic = "cv"
)

const metersPerDegree = 111319.49

// Request describes one reduction.
type Request struct {
	Statistic   Statistic
	ScaleMeters float64
	PixelBudget float64
	BestEffort  bool
}

// Summary carries mean, population standard deviation and coefficient of
// variation (percent) of one band. A nil field is None.
type Summary struct {
	Mean        *float64
	StdDev      *float64
	CV          *float64
	Samples     int
	ScaleMeters float64
}

// ScaleObserver is told when a best-effort reduction coarsens its scale.
type ScaleObserver func(requested, effective float64)

// Reducer samples rasters inside a geometry. It holds no per-call state and is
// safe for concurrent use.
type Reducer struct {
	onCoarsen ScaleObserver
}

// NewReducer creates a Reducer. onCoarsen may be nil.
func NewReducer(onCoarsen ScaleObserver) *Reducer {
	if onCoarsen == nil {
		onCoarsen = func(float64, float64) {}
	}
	return &Reducer{onCoarsen: onCoarsen}
}

// Reduce computes one statistic of band over g. A nil result means no valid
// pixel fell inside g. CV fails with ErrDivisionByZero when the mean is zero.
func (z *Reducer) Reduce(ctx context.Context, r domain.Raster, band string, g orb.Geometry, req Request) (*float64, error) {
	s, err := z.Summarize(ctx, r, band, g, req)
	if err != nil {
		return nil, err
	}
	switch req.Statistic {
	case Mean, "":
		return s.Mean, nil
	case StdDev:
		return s.StdDev, nil
	case CV:
		if s.Mean != nil && s.CV == nil {
			return nil, fmt.Errorf("cv of %s: %w", band, domain.ErrDivisionByZero)
		}
		return s.CV, nil
	default:
		return nil, fmt.Errorf("unsupported statistic %q", req.Statistic)
	}
}

// Summarize computes mean, standard deviation and CV in a single sampling pass.
// A zero mean leaves CV nil without failing.
func (z *Reducer) Summarize(ctx context.Context, r domain.Raster, band string, g orb.Geometry, req Request) (Summary, error) {
	scale, err := z.effectiveScale(g, req)
	if err != nil {
		return Summary{}, err
	}
	values, err := r.Band(band)
	if err != nil {
		return Summary{}, err
	}

	samples, err := sample(ctx, r, values, g, scale)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Samples: len(samples), ScaleMeters: scale}
	if len(samples) == 0 {
		return out, nil
	}
	mean, std := stat.PopMeanStdDev(samples, nil)
	out.Mean, out.StdDev = &mean, &std
	if cv, err := CoefficientOfVariation(mean, std); err == nil {
		out.CV = &cv
	}
	return out, nil
}

// CoefficientOfVariation returns std/mean*100.
func CoefficientOfVariation(mean, std float64) (float64, error) {
	if mean == 0 {
		return 0, domain.ErrDivisionByZero
	}
	return std / mean * 100, nil
}

// EstimatePixels returns the number of scale-metre cells covering g.
func EstimatePixels(g orb.Geometry, scaleMeters float64) float64 {
	return geo.Area(g) / (scaleMeters * scaleMeters)
}

func (z *Reducer) effectiveScale(g orb.Geometry, req Request) (float64, error) {
	if req.ScaleMeters <= 0 {
		return 0, fmt.Errorf("invalid scale %v", req.ScaleMeters)
	}
	if req.PixelBudget <= 0 {
		return req.ScaleMeters, nil
	}
	pixels := EstimatePixels(g, req.ScaleMeters)
	if pixels <= req.PixelBudget {
		return req.ScaleMeters, nil
	}
	if !req.BestEffort {
		return 0, fmt.Errorf("%.0f pixels at %.0f m over budget %.0f: %w",
			pixels, req.ScaleMeters, req.PixelBudget, domain.ErrPixelBudgetExceeded)
	}
	scale := math.Sqrt(geo.Area(g) / req.PixelBudget)
	z.onCoarsen(req.ScaleMeters, scale)
	return scale, nil
}

// sample reads the raster at the centre of every scale-metre cell inside g.
// Cells are spaced in degrees using the latitude of the geometry centre.
func sample(ctx context.Context, r domain.Raster, values []float64, g orb.Geometry, scaleMeters float64) ([]float64, error) {
	b := g.Bound()
	dy := scaleMeters / metersPerDegree
	dx := dy / math.Max(math.Cos(b.Center()[1]*math.Pi/180), 1e-6)

	var out []float64
	for y := b.Max[1] - dy/2; y > b.Min[1]; y -= dy {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := b.Min[0] + dx/2; x < b.Max[0]; x += dx {
			p := orb.Point{x, y}
			if !spatial.Contains(g, p) {
				continue
			}
			col, row, ok := r.PixelAt(p)
			if !ok {
				continue
			}
			if v := values[row*r.Width()+col]; !math.IsNaN(v) {
				out = append(out, v)
			}
		}
	}
	return out, nil
}
