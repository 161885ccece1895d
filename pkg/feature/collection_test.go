package feature

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testType = &FeatureType{
	Name: "Buoy",
	Properties: []PropertyDecl{
		{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: KindSimple},
		{Name: "position", MinOccurs: 0, MaxOccurs: 1, Kind: KindGeometry, Geometry: GeometryPoint},
	},
}

func pointFeature(id string, x, y float64) *Feature {
	return NewFeature(id, testType,
		Property{Name: "name", Value: id},
		Property{Name: "position", Value: &Geometry{Value: orb.Point{x, y}}},
	)
}

func TestCollectionEnvelope(t *testing.T) {
	c := NewCollection(testType, pointFeature("a", 0, 0), pointFeature("b", 2, 3))
	env, ok := c.Envelope()
	require.True(t, ok)
	assert.Equal(t, Envelope{MinX: 0, MinY: 0, MaxX: 2, MaxY: 3}, env)

	c.Add(pointFeature("c", -1, 5))
	env, ok = c.Envelope()
	require.True(t, ok)
	assert.Equal(t, Envelope{MinX: -1, MinY: 0, MaxX: 2, MaxY: 5}, env)

	last := c.Features()[2]
	require.True(t, c.Remove(last))
	env, ok = c.Envelope()
	require.True(t, ok)
	assert.Equal(t, Envelope{MinX: 0, MinY: 0, MaxX: 2, MaxY: 3}, env)

	first := c.Features()[0]
	require.True(t, c.Replace(first, pointFeature("a", 1, 1)))
	env, ok = c.Envelope()
	require.True(t, ok)
	assert.Equal(t, Envelope{MinX: 1, MinY: 1, MaxX: 2, MaxY: 3}, env)

	empty := NewCollection(testType, NewFeature("x", testType, Property{Name: "name", Value: "x"}))
	_, ok = empty.Envelope()
	assert.False(t, ok)
}

func TestCollectionCloneIsolation(t *testing.T) {
	a, b := pointFeature("a", 0, 0), pointFeature("b", 1, 1)
	orig := NewCollection(testType, a, b)
	clone := orig.Clone()

	clone.Remove(a)
	clone.Add(pointFeature("c", 2, 2))
	b2 := b.Clone()
	clone.Replace(b, b2)

	assert.Equal(t, []*Feature{a, b}, orig.Features())
	assert.Equal(t, 2, clone.Len())
	got, ok := clone.Get("b")
	require.True(t, ok)
	assert.Same(t, b2, got)
}

func TestCollectionRemoveAll(t *testing.T) {
	a, b, c := pointFeature("a", 0, 0), pointFeature("b", 1, 1), pointFeature("c", 2, 2)
	coll := NewCollection(testType, a, b, c)

	n := coll.RemoveAll(map[*Feature]struct{}{a: {}, c: {}})
	assert.Equal(t, 2, n)
	assert.Equal(t, []*Feature{b}, coll.Features())
}

func TestFeatureCloneAndEnvelope(t *testing.T) {
	f := pointFeature("a", 1, 2)
	f.ResetEnvelope()

	clone := f.Clone()
	clone.Props[1] = Property{Name: "position", Value: &Geometry{Value: orb.Point{5, 5}}}

	env, _ := f.Envelope()
	assert.Equal(t, Envelope{MinX: 1, MinY: 2, MaxX: 1, MaxY: 2}, env)

	env, _ = clone.Envelope()
	assert.Equal(t, Envelope{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}, env)

	// Cached until reset.
	clone.ResetEnvelope()
	clone.Props[1] = Property{Name: "position", Value: &Geometry{Value: orb.Point{7, 7}}}
	env, _ = clone.Envelope()
	assert.Equal(t, Envelope{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}, env)
	assert.Equal(t, map[string]int{"name": 1, "position": 1}, clone.Count())
}

func TestGeometryDimension(t *testing.T) {
	tests := []struct {
		name    string
		geom    *Geometry
		dim     int
		surface bool
	}{
		{"point", &Geometry{Value: orb.Point{0, 0}}, 0, false},
		{"line", &Geometry{Value: orb.LineString{{0, 0}, {1, 1}}}, 1, false},
		{"polygon", &Geometry{Value: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, 2, true},
		{"arc", &Geometry{Curve: ArcString{{0, 0}, {1, 1}, {2, 0}}}, 1, false},
		{"empty", &Geometry{}, -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.dim, tt.geom.Dimension())
			assert.Equal(t, tt.surface, tt.geom.IsSurface())
		})
	}
}

func TestPropertyDeclAllows(t *testing.T) {
	d := PropertyDecl{Name: "p", MinOccurs: 1, MaxOccurs: 2}
	assert.False(t, d.Allows(0))
	assert.True(t, d.Allows(2))
	assert.False(t, d.Allows(3))

	unbounded := PropertyDecl{Name: "q", MaxOccurs: Unbounded}
	assert.True(t, unbounded.Allows(100))
}
