// Package spatial holds the lake boundary and the geodesic measurements taken on it.
package spatial

import (
	"context"
	"fmt"

	"github.com/couchcryptid/lake-water-quality/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// metersPerDegree approximates one degree of arc at the equator. Used only to
// turn a simplification tolerance into degrees.
const metersPerDegree = 111319.49

// NameProperty is the feature property matched against the boundary name filter.
const NameProperty = "Name"

// BoundarySource yields the feature collection the lake boundary is selected from.
type BoundarySource interface {
	LoadBoundary(ctx context.Context) (*geojson.FeatureCollection, error)
}

// Area is a geodesic area together with the simplification tolerance it was computed at.
type Area struct {
	SquareMeters    float64 `json:"square_meters"`
	ToleranceMeters float64 `json:"tolerance_meters"`
}

// SquareKilometers converts the area to km².
func (a Area) SquareKilometers() float64 { return a.SquareMeters / 1e6 }

// Domain is the study area: a polygon or multipolygon in EPSG:4326.
// It is read-only after construction and safe for concurrent use.
type Domain struct {
	name     string
	geometry orb.Geometry
	bound    orb.Bound
}

// Load fetches the boundary collection and keeps the polygonal features whose
// Name property equals name. An empty name keeps every polygonal feature.
func Load(ctx context.Context, src BoundarySource, name string) (*Domain, error) {
	fc, err := src.LoadBoundary(ctx)
	if err != nil {
		return nil, fmt.Errorf("load boundary: %w", err)
	}

	var polys orb.MultiPolygon
	for _, f := range fc.Features {
		if v, _ := f.Properties[NameProperty].(string); name != "" && v != name {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("boundary %q: %w", name, domain.ErrBoundaryNotFound)
	}
	if len(polys) == 1 {
		return New(name, polys[0])
	}
	return New(name, polys)
}

// New wraps a polygon or multipolygon as a Domain. The geometry is cloned.
func New(name string, g orb.Geometry) (*Domain, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("boundary %q: unsupported geometry %s: %w", name, g.GeoJSONType(), domain.ErrBoundaryNotFound)
	}
	g = orb.Clone(g)
	return &Domain{name: name, geometry: g, bound: g.Bound()}, nil
}

// Name returns the boundary name the domain was selected by.
func (d *Domain) Name() string { return d.name }

// Geometry returns a copy of the boundary geometry.
func (d *Domain) Geometry() orb.Geometry { return orb.Clone(d.geometry) }

// Bound returns the envelope of the boundary.
func (d *Domain) Bound() orb.Bound { return d.bound }

// Contains reports whether p lies inside the boundary.
func (d *Domain) Contains(p orb.Point) bool { return Contains(d.geometry, p) }

// Area returns the geodesic area after Douglas-Peucker simplification at toleranceMeters.
func (d *Domain) Area(toleranceMeters float64) Area {
	return Area{SquareMeters: simplifiedArea(d.geometry, toleranceMeters), ToleranceMeters: toleranceMeters}
}

// BoundingBox returns the envelope of the boundary as a polygon.
func (d *Domain) BoundingBox() orb.Polygon { return d.bound.ToPolygon() }

// BoundingBoxArea returns the geodesic area of the envelope.
func (d *Domain) BoundingBoxArea(toleranceMeters float64) Area {
	return Area{SquareMeters: simplifiedArea(d.BoundingBox(), toleranceMeters), ToleranceMeters: toleranceMeters}
}

// Buffer returns the envelope padded by distanceMeters on every side. The
// result is a superset of the true geodesic buffer and serves as a spatial
// filter bound only.
func (d *Domain) Buffer(distanceMeters float64) orb.Polygon {
	return geo.BoundPad(d.bound, distanceMeters).ToPolygon()
}

// BufferBound is Buffer as an orb.Bound.
func (d *Domain) BufferBound(distanceMeters float64) orb.Bound {
	return geo.BoundPad(d.bound, distanceMeters)
}

// Contains reports whether p lies inside a polygon or multipolygon.
// Other geometry types fall back to their envelope.
func Contains(g orb.Geometry, p orb.Point) bool {
	switch g := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	default:
		return g.Bound().Contains(p)
	}
}

func simplifiedArea(g orb.Geometry, toleranceMeters float64) float64 {
	if toleranceMeters > 0 {
		g = simplify.DouglasPeucker(toleranceMeters / metersPerDegree).Simplify(orb.Clone(g))
	}
	return geo.Area(g)
}
