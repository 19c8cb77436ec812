// Package composite turns a scene sequence into one clipped reflectance raster.
package composite

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/lake-water-quality/internal/dataset"
	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/paulmach/orb"
)

const (
	// ReflectanceScale converts stored integer reflectance to unitless reflectance.
	ReflectanceScale = 0.0001

	// FillValue marks missing observations in MOD09Q1.
	FillValue = -28672

	Red = "red"
	NIR = "nir"
)

// Preprocess keeps the red and NIR bands, renames them and scales them to
// reflectance. Fill values become NaN. Timestamp and properties are preserved.
func Preprocess(r domain.Raster) (domain.Raster, error) {
	red, err := scaledBand(r, dataset.RedBand)
	if err != nil {
		return domain.Raster{}, err
	}
	nir, err := scaledBand(r, dataset.NIRBand)
	if err != nil {
		return domain.Raster{}, err
	}
	return r.WithBands(r.Name(), domain.Band{Name: Red, Data: red}, domain.Band{Name: NIR, Data: nir})
}

func scaledBand(r domain.Raster, name string) ([]float64, error) {
	data, err := r.Band(name)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	for i, v := range data {
		if v == FillValue {
			data[i] = math.NaN()
			continue
		}
		data[i] = v * ReflectanceScale
	}
	return data, nil
}

// Composite reduces a sequence to its per-pixel, per-band median. NaN samples
// are ignored; a pixel with no valid sample stays NaN. All rasters must share
// the grid and band layout of the first one.
func Composite(seq domain.RasterSequence) (domain.Raster, error) {
	if seq.Size() == 0 {
		return domain.Raster{}, fmt.Errorf("composite %s: %w", seq.DatasetID, domain.ErrEmptyRasterSequence)
	}
	first := seq.Rasters[0]
	for i, r := range seq.Rasters[1:] {
		if !r.SameGrid(first) {
			return domain.Raster{}, fmt.Errorf("composite %s: scene %d: %w", seq.DatasetID, i+1, domain.ErrGridMismatch)
		}
	}

	names := first.BandNames()
	out := make([]domain.Band, 0, len(names))
	for _, name := range names {
		planes := make([][]float64, len(seq.Rasters))
		for i, r := range seq.Rasters {
			data, err := r.Band(name)
			if err != nil {
				return domain.Raster{}, fmt.Errorf("composite %s: scene %d: %w", seq.DatasetID, i, err)
			}
			planes[i] = data
		}
		out = append(out, domain.Band{Name: name, Data: medianPlanes(planes)})
	}

	r, err := first.WithBands("composite", out...)
	if err != nil {
		return domain.Raster{}, err
	}
	return r.WithProperties(map[string]string{
		"dataset":     seq.DatasetID,
		"image_count": fmt.Sprint(seq.Size()),
		"reducer":     "median",
	}), nil
}

func medianPlanes(planes [][]float64) []float64 {
	n := len(planes[0])
	out := make([]float64, n)
	buf := make([]float64, 0, len(planes))
	for px := range n {
		buf = buf[:0]
		for _, p := range planes {
			if v := p[px]; !math.IsNaN(v) {
				buf = append(buf, v)
			}
		}
		out[px] = Median(buf)
	}
	return out
}

// Median returns the median of values, averaging the middle pair for even
// counts. It sorts values in place. An empty slice yields NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Clip masks every pixel whose centre lies outside g.
func Clip(r domain.Raster, g orb.Geometry) (domain.Raster, error) {
	gb := g.Bound()
	inside := make([]bool, r.Width()*r.Height())
	for row := range r.Height() {
		for col := range r.Width() {
			c := r.PixelCenter(col, row)
			inside[row*r.Width()+col] = gb.Contains(c) && spatial.Contains(g, c)
		}
	}

	names := r.BandNames()
	bands := make([]domain.Band, 0, len(names))
	for _, name := range names {
		data, err := r.Band(name)
		if err != nil {
			return domain.Raster{}, err
		}
		for i, in := range inside {
			if !in {
				data[i] = math.NaN()
			}
		}
		bands = append(bands, domain.Band{Name: name, Data: data})
	}
	return r.WithBands(r.Name(), bands...)
}
