package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/paulmach/orb"
)

// GeoTransform maps pixel (col, row) to EPSG:4326 coordinates using the GDAL
// convention: {originX, pixelWidth, rowRotation, originY, colRotation, pixelHeight}.
// pixelHeight is negative for north-up grids. Rotation terms are expected to be zero.
type GeoTransform [6]float64

// NewGeoTransform returns a north-up transform anchored at the top-left corner.
func NewGeoTransform(west, north, pixelDeg float64) GeoTransform {
	return GeoTransform{west, pixelDeg, 0, north, 0, -pixelDeg}
}

// PixelSize returns the absolute pixel width and height in degrees.
func (g GeoTransform) PixelSize() (float64, float64) {
	return math.Abs(g[1]), math.Abs(g[5])
}

// Band is a named plane of samples in row-major order.
type Band struct {
	Name string
	Data []float64
}

// Raster is an immutable georeferenced grid with one or more co-registered bands.
// NaN marks no-data. Every transformation returns a new Raster; accessors return copies.
type Raster struct {
	name       string
	width      int
	height     int
	transform  GeoTransform
	bandNames  []string
	bands      map[string][]float64
	timestamp  time.Time
	properties map[string]string
}

// NewRaster validates the band sizes and returns a Raster that owns copies of the data.
func NewRaster(name string, width, height int, transform GeoTransform, timestamp time.Time, bands ...Band) (Raster, error) {
	if width <= 0 || height <= 0 {
		return Raster{}, fmt.Errorf("raster %q: invalid size %dx%d", name, width, height)
	}
	if len(bands) == 0 {
		return Raster{}, fmt.Errorf("raster %q: %w", name, ErrMissingBand)
	}
	r := Raster{
		name:       name,
		width:      width,
		height:     height,
		transform:  transform,
		bands:      make(map[string][]float64, len(bands)),
		timestamp:  timestamp,
		properties: map[string]string{},
	}
	for _, b := range bands {
		if len(b.Data) != width*height {
			return Raster{}, fmt.Errorf("raster %q band %q: got %d samples, want %d", name, b.Name, len(b.Data), width*height)
		}
		if _, dup := r.bands[b.Name]; dup {
			return Raster{}, fmt.Errorf("raster %q: duplicate band %q", name, b.Name)
		}
		r.bandNames = append(r.bandNames, b.Name)
		r.bands[b.Name] = slices.Clone(b.Data)
	}
	return r, nil
}

func (r Raster) Name() string               { return r.name }
func (r Raster) Width() int                 { return r.width }
func (r Raster) Height() int                { return r.height }
func (r Raster) GeoTransform() GeoTransform { return r.transform }
func (r Raster) Timestamp() time.Time       { return r.timestamp }
func (r Raster) BandNames() []string        { return slices.Clone(r.bandNames) }

// IsZero reports whether r is the zero Raster.
func (r Raster) IsZero() bool { return r.bands == nil }

// Band returns a copy of the named band.
func (r Raster) Band(name string) ([]float64, error) {
	data, ok := r.bands[name]
	if !ok {
		return nil, fmt.Errorf("raster %q band %q: %w", r.name, name, ErrMissingBand)
	}
	return slices.Clone(data), nil
}

// HasBand reports whether the raster carries the named band.
func (r Raster) HasBand(name string) bool {
	_, ok := r.bands[name]
	return ok
}

// Property returns a provenance property.
func (r Raster) Property(key string) (string, bool) {
	v, ok := r.properties[key]
	return v, ok
}

// Properties returns a copy of all provenance properties.
func (r Raster) Properties() map[string]string {
	return maps.Clone(r.properties)
}

// WithBands returns a raster on the same grid carrying only the given bands.
// Timestamp and properties are preserved.
func (r Raster) WithBands(name string, bands ...Band) (Raster, error) {
	out, err := NewRaster(name, r.width, r.height, r.transform, r.timestamp, bands...)
	if err != nil {
		return Raster{}, err
	}
	out.properties = maps.Clone(r.properties)
	return out, nil
}

// WithProperties returns a copy of r with props merged over its properties.
func (r Raster) WithProperties(props map[string]string) Raster {
	out := r
	out.properties = maps.Clone(r.properties)
	if out.properties == nil {
		out.properties = map[string]string{}
	}
	maps.Copy(out.properties, props)
	return out
}

// WithTimestamp returns a copy of r stamped with t.
func (r Raster) WithTimestamp(t time.Time) Raster {
	out := r
	out.timestamp = t
	return out
}

// SameGrid reports whether both rasters share size and geotransform.
func (r Raster) SameGrid(o Raster) bool {
	return r.width == o.width && r.height == o.height && r.transform == o.transform
}

// Bound returns the footprint of the grid.
func (r Raster) Bound() orb.Bound {
	g := r.transform
	x0, y0 := g[0], g[3]
	x1 := g[0] + float64(r.width)*g[1]
	y1 := g[3] + float64(r.height)*g[5]
	return orb.Bound{
		Min: orb.Point{math.Min(x0, x1), math.Min(y0, y1)},
		Max: orb.Point{math.Max(x0, x1), math.Max(y0, y1)},
	}
}

// PixelCenter returns the coordinate at the centre of pixel (col, row).
func (r Raster) PixelCenter(col, row int) orb.Point {
	g := r.transform
	return orb.Point{
		g[0] + (float64(col)+0.5)*g[1],
		g[3] + (float64(row)+0.5)*g[5],
	}
}

// PixelAt returns the pixel containing p, or ok=false when p falls outside the grid.
func (r Raster) PixelAt(p orb.Point) (col, row int, ok bool) {
	g := r.transform
	col = int(math.Floor((p[0] - g[0]) / g[1]))
	row = int(math.Floor((p[1] - g[3]) / g[5]))
	if col < 0 || col >= r.width || row < 0 || row >= r.height {
		return 0, 0, false
	}
	return col, row, true
}

// RasterSequence is a time-ordered set of rasters drawn from one dataset.
type RasterSequence struct {
	DatasetID string
	Start     time.Time
	End       time.Time
	Rasters   []Raster
}

// Size returns the number of rasters in the sequence.
func (s RasterSequence) Size() int { return len(s.Rasters) }
