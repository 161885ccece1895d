package geometry

import (
	"fmt"
	"math"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/paulmach/orb"
)

// DefaultLinearizationPoints is the number of points generated per arc when
// no criterion is configured.
const DefaultLinearizationPoints = 20

// Linearizer converts curved segments into polylines.
type Linearizer interface {
	// Linearize replaces g.Curve with straight segments appended to g.Value,
	// generating the given number of points per arc.
	Linearize(g *feature.Geometry, points int) error
}

// ArcLinearizer linearizes circular arcs under a fixed point-count criterion.
type ArcLinearizer struct{}

// collinearEpsilon below which three arc points are treated as a straight line.
const collinearEpsilon = 1e-9

// Linearize converts every arc of g.Curve into points interpolated along the
// circle through its three control points.
func (ArcLinearizer) Linearize(g *feature.Geometry, points int) error {
	if len(g.Curve) == 0 {
		return nil
	}
	if points < 3 {
		points = 3
	}
	if len(g.Curve) < 3 || len(g.Curve)%2 == 0 {
		return &ErrInvalidGeometry{
			ID:     g.ID,
			Reason: fmt.Sprintf("arc string needs 2n+1 control points, got %d", len(g.Curve)),
		}
	}

	var line orb.LineString
	switch v := g.Value.(type) {
	case nil:
	case orb.LineString:
		line = append(line, v...)
	default:
		return &ErrInvalidGeometry{
			ID:     g.ID,
			Reason: fmt.Sprintf("curve segments cannot extend a %s", v.GeoJSONType()),
		}
	}

	for i := 0; i+2 < len(g.Curve); i += 2 {
		seg := interpolateArc(g.Curve[i], g.Curve[i+1], g.Curve[i+2], points)
		if len(line) > 0 && line[len(line)-1] == seg[0] {
			seg = seg[1:]
		}
		line = append(line, seg...)
	}

	g.Value = line
	g.Curve = nil
	return nil
}

// interpolateArc returns n points on the arc from p0 through p1 to p2,
// including both end points.
func interpolateArc(p0, p1, p2 orb.Point, n int) []orb.Point {
	center, ok := circleCenter(p0, p1, p2)
	if !ok {
		return []orb.Point{p0, p1, p2}
	}

	radius := math.Hypot(p0[0]-center[0], p0[1]-center[1])
	a0 := math.Atan2(p0[1]-center[1], p0[0]-center[0])
	a2 := math.Atan2(p2[1]-center[1], p2[0]-center[0])

	var sweep float64
	if isCounterClockwise(p0, p1, p2) {
		sweep = normalizeAngle(a2 - a0)
	} else {
		sweep = -normalizeAngle(a0 - a2)
	}

	result := make([]orb.Point, n)
	result[0] = p0
	for i := 1; i < n-1; i++ {
		a := a0 + sweep*float64(i)/float64(n-1)
		result[i] = orb.Point{
			center[0] + radius*math.Cos(a),
			center[1] + radius*math.Sin(a),
		}
	}
	result[n-1] = p2
	return result
}

// circleCenter returns the center of the circle through three points, or
// false if they are collinear.
func circleCenter(a, b, c orb.Point) (orb.Point, bool) {
	d := 2 * (a[0]*(b[1]-c[1]) + b[0]*(c[1]-a[1]) + c[0]*(a[1]-b[1]))
	if math.Abs(d) < collinearEpsilon {
		return orb.Point{}, false
	}
	a2 := a[0]*a[0] + a[1]*a[1]
	b2 := b[0]*b[0] + b[1]*b[1]
	c2 := c[0]*c[0] + c[1]*c[1]
	return orb.Point{
		(a2*(b[1]-c[1]) + b2*(c[1]-a[1]) + c2*(a[1]-b[1])) / d,
		(a2*(c[0]-b[0]) + b2*(a[0]-c[0]) + c2*(b[0]-a[0])) / d,
	}, true
}

func isCounterClockwise(a, b, c orb.Point) bool {
	return (b[0]-a[0])*(c[1]-a[1])-(b[1]-a[1])*(c[0]-a[0]) > 0
}

// normalizeAngle maps an angle into (0, 2π].
func normalizeAngle(a float64) float64 {
	for a <= 0 {
		a += 2 * math.Pi
	}
	for a > 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
