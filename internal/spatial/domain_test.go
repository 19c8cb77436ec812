package spatial_test

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/couchcryptid/lake-water-quality/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type stubSource struct {
	fc  *geojson.FeatureCollection
	err error
}

func (s stubSource) LoadBoundary(context.Context) (*geojson.FeatureCollection, error) {
	return s.fc, s.err
}

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func feature(name string, g orb.Geometry) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["Name"] = name
	return f
}

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

// --- tests ---

func TestLoad_FiltersByName(t *testing.T) {
	src := stubSource{fc: collection(
		feature("Tana", square(37.0, 11.6, 0.5)),
		feature("Ziway", square(38.7, 7.9, 0.2)),
		feature("Tana", orb.Point{37.3, 12.0}),
	)}

	d, err := spatial.Load(context.Background(), src, "Tana")
	require.NoError(t, err)
	assert.Equal(t, "Tana", d.Name())
	assert.IsType(t, orb.Polygon{}, d.Geometry())
	assert.True(t, d.Contains(orb.Point{37.25, 11.85}))
	assert.False(t, d.Contains(orb.Point{38.8, 8.0}))
}

func TestLoad_MergesMultiplePolygons(t *testing.T) {
	src := stubSource{fc: collection(
		feature("Tana", square(37.0, 11.6, 0.2)),
		feature("Tana", square(37.5, 11.6, 0.2)),
	)}

	d, err := spatial.Load(context.Background(), src, "Tana")
	require.NoError(t, err)
	mp, ok := d.Geometry().(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)
	assert.True(t, d.Contains(orb.Point{37.6, 11.7}))
	assert.False(t, d.Contains(orb.Point{37.3, 11.7}))
}

func TestLoad_EmptyNameKeepsAll(t *testing.T) {
	src := stubSource{fc: collection(feature("a", square(0, 0, 1)), feature("b", square(2, 0, 1)))}
	d, err := spatial.Load(context.Background(), src, "")
	require.NoError(t, err)
	assert.IsType(t, orb.MultiPolygon{}, d.Geometry())
}

func TestLoad_NotFound(t *testing.T) {
	src := stubSource{fc: collection(feature("Ziway", square(38.7, 7.9, 0.2)))}
	_, err := spatial.Load(context.Background(), src, "Tana")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBoundaryNotFound))
}

func TestLoad_SourceError(t *testing.T) {
	src := stubSource{err: errors.New("disk on fire")}
	_, err := spatial.Load(context.Background(), src, "Tana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestDomain_Area(t *testing.T) {
	d, err := spatial.New("equator", square(0, 0, 1))
	require.NoError(t, err)

	a := d.Area(100)
	assert.InEpsilon(t, 12391.0, a.SquareKilometers(), 0.01)
	assert.Equal(t, 100.0, a.ToleranceMeters)

	bbox := d.BoundingBoxArea(100)
	assert.InEpsilon(t, a.SquareMeters, bbox.SquareMeters, 1e-9)
}

func TestDomain_AreaDoesNotMutateBoundary(t *testing.T) {
	// A nearly collinear vertex is removed by simplification.
	p := orb.Polygon{{{0, 0}, {0.5, 0.00001}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	d, err := spatial.New("lake", p)
	require.NoError(t, err)

	_ = d.Area(1000)
	g := d.Geometry().(orb.Polygon)
	assert.Len(t, g[0], 6)
}

func TestDomain_BufferIsSuperset(t *testing.T) {
	d, err := spatial.New("lake", square(37.0, 11.6, 0.5))
	require.NoError(t, err)

	buf := d.Buffer(1000).Bound()
	assert.True(t, buf.Contains(d.Bound().Min))
	assert.True(t, buf.Contains(d.Bound().Max))
	assert.Less(t, buf.Min[0], 37.0)
	assert.Greater(t, buf.Max[1], 12.1)
	assert.Equal(t, buf, d.BufferBound(1000))
}

func TestNew_RejectsNonPolygon(t *testing.T) {
	_, err := spatial.New("pt", orb.Point{1, 2})
	assert.True(t, errors.Is(err, domain.ErrBoundaryNotFound))
}

func TestContains_Bound(t *testing.T) {
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	assert.True(t, spatial.Contains(b, orb.Point{0.5, 0.5}))
	assert.False(t, spatial.Contains(b, orb.Point{1.5, 0.5}))
}
