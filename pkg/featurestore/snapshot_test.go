package featurestore

import (
	"context"
	"testing"

	"github.com/beetlebugorg/featurestore/internal/index"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *snapshot {
	return newSnapshot(testSchema, geometry.NewNormalizer(""), index.DefaultMinChildren, index.DefaultMaxChildren)
}

func TestSnapshotWorkingCopyIsolation(t *testing.T) {
	base := testSnapshot()
	w := base.working()

	a := buoyAt("a", "Alpha", 0, 0)
	a.Geometries()[0].ID = "ga"
	require.NoError(t, w.addFeatures([]*feature.Feature{a}))

	assert.Equal(t, 0, base.collections["Buoy"].Len())
	assert.Empty(t, base.lookup)
	assert.Equal(t, 0, base.indexes["Buoy"].Len())
	assert.Same(t, base.collections["T"], w.collections["T"], "untouched types stay shared")

	require.NoError(t, w.rebuildIndexes())
	assert.Same(t, a, w.get("a"))
	assert.NotNil(t, w.get("ga"))
	assert.Nil(t, w.ownedTypes)

	// A second generation leaves the first intact.
	w2 := w.working()
	assert.Equal(t, []*feature.Feature{a}, w2.removeFeatures([]*feature.Feature{a}))
	require.NoError(t, w2.rebuildIndexes())

	assert.False(t, w2.exists("a"))
	assert.False(t, w2.exists("ga"))
	assert.True(t, w.exists("a"))
	assert.Equal(t, []*feature.Feature{a}, w.indexes["Buoy"].Query(feature.Envelope{MaxX: 1, MaxY: 1}))
	env, ok := w.envelope("Buoy")
	assert.True(t, ok)
	assert.Equal(t, feature.Envelope{}, env)
	_, ok = w2.envelope("Buoy")
	assert.False(t, ok)
}

func TestSnapshotAddFeaturesIsAtomic(t *testing.T) {
	w := testSnapshot().working()
	ok := buoyAt("a", "Alpha", 0, 0)
	dup := buoyAt("a", "Again", 1, 1)

	err := w.addFeatures([]*feature.Feature{ok, dup})
	var dupErr *ErrDuplicateID
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, 0, w.collections["Buoy"].Len())
	assert.False(t, w.exists("a"))

	err = w.addFeatures([]*feature.Feature{feature.NewFeature("x", &feature.FeatureType{Name: "Nope"})})
	var unknown *ErrUnknownFeatureType
	assert.ErrorAs(t, err, &unknown)
}

func TestSnapshotRebuildRejectsDuplicates(t *testing.T) {
	w := testSnapshot().working()
	coll, _, err := w.mutable("T")
	require.NoError(t, err)
	coll.Add(feature.NewFeature("same", tType), feature.NewFeature("same", tType))

	err = w.rebuildIndexes()
	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "same", dup.ID)
}

func TestCommitFailsOnUntransformableEnvelope(t *testing.T) {
	reg := geometry.DefaultRegistry()
	reg.Register(geometry.CRS{Name: "EPSG:25832", EPSG: 25832})
	s := newTestStore(t, func(o *Options) { o.CRSRegistry = reg })
	insertCommitted(t, s, UseExisting, buoyAt("a", "Alpha", 0, 0))

	tx := acquire(t, s)
	stray := feature.NewFeature("stray", buoyType,
		feature.Property{Name: "name", Value: "Stray"},
		feature.Property{Name: "position", Value: &feature.Geometry{CRS: "EPSG:25832", Value: orb.Point{500000, 5000000}}},
	)
	coll, _, err := tx.working.mutable("Buoy")
	require.NoError(t, err)
	coll.Add(stray)

	err = tx.Commit()
	var crsErr *ErrCRS
	require.ErrorAs(t, err, &crsErr)
	var noPath *geometry.ErrNoTransformation
	assert.ErrorAs(t, err, &noPath)

	// The transaction stays usable and the published snapshot is unchanged.
	assert.Equal(t, Active, tx.State())
	require.NoError(t, tx.Rollback())
	assert.Nil(t, s.GetObjectByID("stray"))

	hits, err := s.QueryHits(context.Background(), typeQuery("Buoy"))
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}
