package feature

import (
	"github.com/paulmach/orb"
)

// ArcString is a curve made of circular arcs. Every arc passes through three
// consecutive control points and shares its end point with the next arc's
// start, so a valid ArcString has 2n+1 points for n arcs.
type ArcString []orb.Point

// Bound returns the bound of the control points. The true arc may bulge past
// it; linearized geometries get exact bounds.
func (a ArcString) Bound() orb.Bound {
	return orb.MultiPoint(a).Bound()
}

// Geometry is a geometry value stored in a feature property.
//
// Coordinates follow the orb convention: [x, y] which is [lon, lat] for
// geographic reference systems.
type Geometry struct {
	// ID is the geometry identifier. Feature and geometry identifiers share one
	// namespace within a store.
	ID string

	// CRS names the coordinate reference system, e.g. "EPSG:4326".
	CRS string

	// Value holds the linear geometry.
	Value orb.Geometry

	// Curve holds curved segments that still need linearization. Nil for
	// purely linear geometries.
	Curve ArcString
}

func (*Geometry) node() {}

// Identifier returns the geometry identifier.
func (g *Geometry) Identifier() string { return g.ID }

// Envelope returns the 2D envelope of the geometry, or false for an empty
// geometry.
func (g *Geometry) Envelope() (Envelope, bool) {
	var (
		env Envelope
		ok  bool
	)
	if g.Value != nil && pointCount(g.Value) > 0 {
		env, ok = EnvelopeFromBound(g.Value.Bound()), true
	}
	if len(g.Curve) > 0 {
		env, ok = unionAll(env, ok, EnvelopeFromBound(g.Curve.Bound()), true)
	}
	return env, ok
}

// Dimension returns the topological dimension: 0 for points, 1 for curves and
// 2 for surfaces. Empty geometries report -1.
func (g *Geometry) Dimension() int {
	if len(g.Curve) > 0 {
		if g.Value != nil && g.Value.Dimensions() > 1 {
			return g.Value.Dimensions()
		}
		return 1
	}
	if g.Value == nil {
		return -1
	}
	return g.Value.Dimensions()
}

// IsSurface reports whether the geometry is a polygon or multipolygon.
func (g *Geometry) IsSurface() bool {
	switch g.Value.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// IsCurved reports whether the geometry has curved segments.
func (g *Geometry) IsCurved() bool {
	return len(g.Curve) > 0
}

// pointCount returns the number of vertices in a geometry.
func pointCount(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.Ring:
		return len(v)
	case orb.MultiLineString:
		n := 0
		for _, ls := range v {
			n += len(ls)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += pointCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range v {
			n += pointCount(c)
		}
		return n
	case orb.Bound:
		return 2
	}
	return 0
}
