package feature

import (
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned 2D bounding box.
//
// Coordinates are expressed in whatever reference system the owning geometry
// uses. For stored features this is the store's canonical system when one is
// configured.
type Envelope struct {
	MinX float64 // Western edge (or minimum easting)
	MinY float64 // Southern edge (or minimum northing)
	MaxX float64 // Eastern edge
	MaxY float64 // Northern edge
}

// EnvelopeFromBound converts an orb bound to an Envelope.
func EnvelopeFromBound(b orb.Bound) Envelope {
	return Envelope{
		MinX: b.Min[0],
		MinY: b.Min[1],
		MaxX: b.Max[0],
		MaxY: b.Max[1],
	}
}

// Bound converts the envelope back to an orb bound.
func (e Envelope) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{e.MinX, e.MinY},
		Max: orb.Point{e.MaxX, e.MaxY},
	}
}

// Valid reports whether the envelope has finite coordinates and min <= max on
// both axes. Point envelopes (zero width and height) are valid.
func (e Envelope) Valid() bool {
	for _, v := range []float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.MinX <= e.MaxX && e.MinY <= e.MaxY
}

// Contains returns true if the point (x, y) is within the envelope.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.MinX && x <= e.MaxX &&
		y >= e.MinY && y <= e.MaxY
}

// Intersects returns true if the given envelope intersects with this envelope.
//
// Touching edges count as an intersection.
func (e Envelope) Intersects(other Envelope) bool {
	return !(other.MaxX < e.MinX ||
		other.MinX > e.MaxX ||
		other.MaxY < e.MinY ||
		other.MinY > e.MaxY)
}

// Union returns the smallest envelope containing both envelopes.
func (e Envelope) Union(other Envelope) Envelope {
	return Envelope{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// Expand returns a new Envelope expanded by the given margin in all directions.
func (e Envelope) Expand(margin float64) Envelope {
	return Envelope{
		MinX: e.MinX - margin,
		MinY: e.MinY - margin,
		MaxX: e.MaxX + margin,
		MaxY: e.MaxY + margin,
	}
}

// Width returns the extent along the x axis.
func (e Envelope) Width() float64 { return e.MaxX - e.MinX }

// Height returns the extent along the y axis.
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// unionAll folds optional envelopes, skipping absent ones.
func unionAll(acc Envelope, ok bool, next Envelope, nextOK bool) (Envelope, bool) {
	switch {
	case !nextOK:
		return acc, ok
	case !ok:
		return next, true
	default:
		return acc.Union(next), true
	}
}
