package featurestore

import (
	"testing"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/beetlebugorg/featurestore/pkg/lock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func propNames(f *feature.Feature) []string {
	names := make([]string, len(f.Props))
	for i, p := range f.Props {
		names[i] = p.Name
	}
	return names
}

func propValues(f *feature.Feature, name string) []any {
	var values []any
	for _, p := range f.Properties(name) {
		values = append(values, p.Value)
	}
	return values
}

func withColors(id string, colors ...string) *feature.Feature {
	f := buoyAt(id, id, 0, 0)
	// Colors are declared between name and position.
	props := []feature.Property{f.Props[0]}
	for _, c := range colors {
		props = append(props, feature.Property{Name: "color", Value: c})
	}
	f.Props = append(props, f.Props[1])
	return f
}

func stored(t *testing.T, s *Store, id string) *feature.Feature {
	t.Helper()
	f, ok := s.GetObjectByID(id).(*feature.Feature)
	require.True(t, ok, "feature %s not stored", id)
	return f
}

func TestUpdateActions(t *testing.T) {
	tests := []struct {
		name   string
		colors []string
		change PropertyReplacement
		want   []any
		order  []string
	}{
		{
			name:   "replace",
			colors: []string{"red", "green"},
			change: PropertyReplacement{Name: "color", Value: "white", HasValue: true, Index: 1},
			want:   []any{"red", "white"},
		},
		{
			name:   "unspecified with value replaces first",
			colors: []string{"red"},
			change: PropertyReplacement{Name: "color", Value: "white", HasValue: true},
			want:   []any{"white"},
		},
		{
			name:   "unspecified without value removes",
			colors: []string{"red", "green"},
			change: PropertyReplacement{Name: "color"},
			want:   nil,
			order:  []string{"name", "position"},
		},
		{
			name:   "remove",
			colors: []string{"red", "green"},
			change: PropertyReplacement{Name: "color", Action: Remove},
			want:   nil,
		},
		{
			name:   "insert before",
			colors: []string{"red"},
			change: PropertyReplacement{Name: "color", Value: "green", HasValue: true, Action: InsertBefore},
			want:   []any{"green", "red"},
		},
		{
			name:   "insert after",
			colors: []string{"red"},
			change: PropertyReplacement{Name: "color", Value: "green", HasValue: true, Action: InsertAfter},
			want:   []any{"red", "green"},
			order:  []string{"name", "color", "color", "position"},
		},
		{
			name:   "insert into empty goes to declaration position",
			change: PropertyReplacement{Name: "color", Value: "green", HasValue: true, Action: InsertAfter},
			want:   []any{"green"},
			order:  []string{"name", "color", "position"},
		},
		{
			name:   "replace at end appends",
			colors: []string{"red"},
			change: PropertyReplacement{Name: "color", Value: "green", HasValue: true, Action: Replace, Index: 1},
			want:   []any{"red", "green"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			insertCommitted(t, s, UseExisting, withColors("a", tt.colors...))

			tx := acquire(t, s)
			ids, err := tx.PerformUpdate("Buoy", []PropertyReplacement{tt.change}, nil, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a"}, ids)
			require.NoError(t, tx.Commit())

			f := stored(t, s, "a")
			assert.Equal(t, tt.want, propValues(f, "color"))
			if tt.order != nil {
				assert.Equal(t, tt.order, propNames(f))
			}
		})
	}
}

func TestUpdateDeclarationOrder(t *testing.T) {
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting, buoyAt("a", "Alpha", 0, 0))

	tx := acquire(t, s)
	_, err := tx.PerformUpdate("Buoy", []PropertyReplacement{
		{Name: "depth", Value: 12.5, HasValue: true},
		{Name: "color", Value: "red", HasValue: true, Action: InsertBefore},
	}, filter.NewIDFilter("a"), "")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, []string{"name", "color", "depth", "position"}, propNames(stored(t, s, "a")))
}

func TestUpdateFailures(t *testing.T) {
	line := &feature.Geometry{CRS: "EPSG:4326", Value: orb.LineString{{0, 0}, {1, 1}}}

	tests := []struct {
		name    string
		typ     string
		changes []PropertyReplacement
	}{
		{"undeclared property", "Buoy", []PropertyReplacement{{Name: "height", Value: 3, HasValue: true}}},
		{"too many", "Buoy", []PropertyReplacement{{Name: "color", Value: "white", HasValue: true, Action: InsertAfter}}},
		{"mandatory removed", "Buoy", []PropertyReplacement{{Name: "name", Action: Remove}}},
		{"index out of range", "Buoy", []PropertyReplacement{{Name: "color", Value: "white", HasValue: true, Index: 3}}},
		{"dimension mismatch", "Buoy", []PropertyReplacement{{Name: "position", Value: line, HasValue: true}}},
		{"wrong kind", "Buoy", []PropertyReplacement{{Name: "depth", Value: line, HasValue: true}}},
		{"surface required", "Area", []PropertyReplacement{{Name: "extent", Value: line, HasValue: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			insertCommitted(t, s, UseExisting,
				withColors("a", "red", "green"),
				feature.NewFeature("area", areaType, feature.Property{Name: "name", Value: "Harbor"}))
			before := stored(t, s, "a")
			beforeArea := stored(t, s, "area")

			tx := acquire(t, s)
			ids, err := tx.PerformUpdate(tt.typ, tt.changes, nil, "")
			var validation *ErrValidation
			require.ErrorAs(t, err, &validation)
			assert.Empty(t, ids)
			require.NoError(t, tx.Commit())

			assert.Same(t, before, stored(t, s, "a"))
			assert.Same(t, beforeArea, stored(t, s, "area"))
			assert.Equal(t, []any{"red", "green"}, propValues(before, "color"))
		})
	}
}

func TestUpdateUnknownType(t *testing.T) {
	s := newTestStore(t)
	tx := acquire(t, s)
	_, err := tx.PerformUpdate("Nope", nil, nil, "")
	var unknown *ErrUnknownFeatureType
	assert.ErrorAs(t, err, &unknown)
}

func TestUpdateStopsAtFirstFailure(t *testing.T) {
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting, withColors("a"), withColors("b", "red", "green"), withColors("c"))

	tx := acquire(t, s)
	ids, err := tx.PerformUpdate("Buoy", []PropertyReplacement{
		{Name: "color", Value: "white", HasValue: true, Action: InsertAfter},
	}, nil, "")
	var validation *ErrValidation
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "b", validation.FeatureID)
	assert.Equal(t, []string{"a"}, ids)
	require.NoError(t, tx.Commit())

	assert.Equal(t, []any{"white"}, propValues(stored(t, s, "a"), "color"))
	assert.Equal(t, []any{"red", "green"}, propValues(stored(t, s, "b"), "color"))
	assert.Empty(t, propValues(stored(t, s, "c"), "color"))
}

func TestUpdateCopyOnWrite(t *testing.T) {
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting, buoyAt("a", "Alpha", 0, 0))
	published := stored(t, s, "a")
	oldPosition := published.Geometries()[0]

	tx := acquire(t, s)
	_, err := tx.PerformUpdate("Buoy", []PropertyReplacement{
		{Name: "name", Value: "Alpha II", HasValue: true},
		{Name: "position", Value: &feature.Geometry{CRS: "EPSG:4326", Value: orb.Point{5, 5}}, HasValue: true},
	}, nil, "")
	require.NoError(t, err)

	// Readers keep seeing the published version until commit.
	assert.Same(t, published, stored(t, s, "a"))
	require.NoError(t, tx.Commit())

	name, _ := published.Value("name")
	assert.Equal(t, "Alpha", name)
	assert.Equal(t, orb.Point{0, 0}, oldPosition.Value)

	updated := stored(t, s, "a")
	assert.NotSame(t, published, updated)
	name, _ = updated.Value("name")
	assert.Equal(t, "Alpha II", name)

	// The replaced geometry left the lookup table and the index.
	assert.Nil(t, s.GetObjectByID(oldPosition.ID))
	newPosition := updated.Geometries()[0]
	assert.Same(t, newPosition, s.GetObjectByID(newPosition.ID))

	env, ok := s.Envelope("Buoy")
	require.True(t, ok)
	assert.Equal(t, feature.Envelope{MinX: 5, MinY: 5, MaxX: 5, MaxY: 5}, env)
}

func TestUpdateSharedGeometryValue(t *testing.T) {
	s := newTestStore(t, func(o *Options) { o.StorageCRS = "EPSG:3857" })
	insertCommitted(t, s, UseExisting, buoyAt("a", "Alpha", 0, 0), buoyAt("b", "Bravo", 1, 1))

	value := &feature.Geometry{ID: "shared", CRS: "EPSG:4326", Value: orb.Point{10, 10}}
	tx := acquire(t, s)
	ids, err := tx.PerformUpdate("Buoy", []PropertyReplacement{
		{Name: "position", Value: value, HasValue: true},
	}, nil, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	require.NoError(t, tx.Commit())

	ga := stored(t, s, "a").Geometries()[0]
	gb := stored(t, s, "b").Geometries()[0]
	assert.NotSame(t, ga, gb)
	assert.NotEqual(t, ga.ID, gb.ID)
	assert.NotEqual(t, "shared", ga.ID)
	assert.Equal(t, "EPSG:3857", ga.CRS)

	// The caller's value was copied, not normalized in place.
	assert.Equal(t, "EPSG:4326", value.CRS)
	assert.Equal(t, orb.Point{10, 10}, value.Value)
}

func TestUpdateInlineFeature(t *testing.T) {
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting,
		feature.NewFeature("x", areaType, feature.Property{Name: "name", Value: "X"}),
		feature.NewFeature("y", areaType, feature.Property{Name: "name", Value: "Y"}))

	part := func() *feature.Feature {
		return feature.NewFeature("", nil, feature.Property{Name: "label", Value: "pier"})
	}

	tx := acquire(t, s)
	_, err := tx.PerformUpdate("Area", []PropertyReplacement{
		{Name: "part", Value: part(), HasValue: true, Action: InsertAfter},
	}, nil, "")
	var validation *ErrValidation
	require.ErrorAs(t, err, &validation)

	child := part()
	ids, err := tx.PerformUpdate("Area", []PropertyReplacement{
		{Name: "part", Value: child, HasValue: true, Action: InsertAfter},
	}, filter.Equal("name", "X"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)
	require.NoError(t, tx.Commit())

	require.NotEmpty(t, child.ID)
	assert.Same(t, child, s.GetObjectByID(child.ID))

	// A stored feature must be linked by reference, not inlined again.
	tx = acquire(t, s)
	_, err = tx.PerformUpdate("Area", []PropertyReplacement{
		{Name: "part", Value: child, HasValue: true, Action: InsertAfter},
	}, filter.NewIDFilter("y"), "")
	assert.ErrorAs(t, err, &validation)

	ids, err = tx.PerformUpdate("Area", []PropertyReplacement{
		{Name: "part", Value: &feature.Reference{Href: "#" + child.ID}, HasValue: true, Action: InsertAfter},
	}, filter.NewIDFilter("y"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, ids)
}

func TestUpdateLocked(t *testing.T) {
	locks := lock.NewMemoryManager(nil)
	s := newTestStore(t, func(o *Options) { o.LockManager = locks })
	insertCommitted(t, s, UseExisting, buoyAt("a", "Alpha", 0, 0), buoyAt("b", "Bravo", 1, 1))
	_, err := locks.Acquire("L1", time.Hour, "b")
	require.NoError(t, err)

	change := []PropertyReplacement{{Name: "name", Value: "renamed", HasValue: true}}

	tx := acquire(t, s)
	ids, err := tx.PerformUpdate("Buoy", change, nil, "")
	assert.ErrorIs(t, err, ErrMissingLockID)
	assert.Empty(t, ids)

	ids, err = tx.PerformUpdate("Buoy", change, nil, "L1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	require.NoError(t, tx.Commit())

	// Updates keep locks in place.
	assert.Equal(t, []string{"b"}, locks.Locked("L1"))
}
