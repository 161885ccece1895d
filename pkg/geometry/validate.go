package geometry

import (
	"fmt"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/paulmach/orb"
)

// ValidateCoordinate validates a single geographic coordinate pair
func ValidateCoordinate(lat, lon float64) error {
	if lat < -90.0 || lat > 90.0 {
		return &ErrInvalidCoordinate{Lat: lat, Lon: lon}
	}
	if lon < -180.0 || lon > 180.0 {
		return &ErrInvalidCoordinate{Lat: lat, Lon: lon}
	}
	return nil
}

// ValidateGeometry checks the coordinates of g against the bounds of its
// reference system. Only geographic systems have bounds; projected
// coordinates are accepted as-is.
func ValidateGeometry(g *feature.Geometry, crs CRS) error {
	if g == nil {
		return &ErrInvalidGeometry{Reason: "geometry is nil"}
	}
	if !crs.Geographic {
		return nil
	}

	i := 0
	check := func(p orb.Point) error {
		n := i
		i++
		if err := ValidateCoordinate(p[1], p[0]); err != nil {
			return &ErrInvalidGeometry{
				ID:     g.ID,
				Reason: fmt.Sprintf("coordinate %d invalid: %v", n, err),
			}
		}
		return nil
	}

	if g.Value != nil {
		if err := eachPoint(g.Value, check); err != nil {
			return err
		}
	}
	for _, p := range g.Curve {
		if err := check(p); err != nil {
			return err
		}
	}
	return nil
}

// eachPoint calls fn for every vertex of g, stopping at the first error.
func eachPoint(g orb.Geometry, fn func(orb.Point) error) error {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.MultiPoint:
		return eachOf(v, fn)
	case orb.LineString:
		return eachOf(v, fn)
	case orb.Ring:
		return eachOf(v, fn)
	case orb.MultiLineString:
		for _, ls := range v {
			if err := eachOf(ls, fn); err != nil {
				return err
			}
		}
	case orb.Polygon:
		for _, r := range v {
			if err := eachOf(r, fn); err != nil {
				return err
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if err := eachPoint(p, fn); err != nil {
				return err
			}
		}
	case orb.Collection:
		for _, c := range v {
			if err := eachPoint(c, fn); err != nil {
				return err
			}
		}
	case orb.Bound:
		if err := fn(v.Min); err != nil {
			return err
		}
		return fn(v.Max)
	}
	return nil
}

func eachOf[T ~[]orb.Point](points T, fn func(orb.Point) error) error {
	for _, p := range points {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}
