// Package index provides the per-type spatial index of the feature store.
package index

import (
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/dhconnelly/rtreego"
)

// Default R-tree branching factors.
const (
	DefaultMinChildren = 25
	DefaultMaxChildren = 50
)

// epsilon is the minimum edge length of an indexed rectangle. R-tree
// rectangles need non-zero dimensions, so points and axis-aligned lines are
// widened by it.
const epsilon = 0.0001

// Entry is one (envelope, feature) pair for bulk loading.
type Entry struct {
	Envelope feature.Envelope
	Feature  *feature.Feature
}

// indexedFeature wraps a feature for R-tree storage.
type indexedFeature struct {
	feature *feature.Feature
	env     feature.Envelope
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return rect(f.env)
}

// Index is an R-tree over feature envelopes.
//
// Entries reference features without owning them. An Index is not safe for
// concurrent mutation; once published it is only read.
type Index struct {
	min, max int
	rtree    *rtreego.Rtree
	entries  map[*feature.Feature]*indexedFeature
}

// New creates an empty index with the given node branching. Non-positive
// values use the defaults.
func New(minChildren, maxChildren int) *Index {
	if minChildren <= 0 {
		minChildren = DefaultMinChildren
	}
	if maxChildren <= minChildren {
		maxChildren = max(DefaultMaxChildren, 2*minChildren)
	}
	return &Index{
		min:     minChildren,
		max:     maxChildren,
		rtree:   rtreego.NewTree(2, minChildren, maxChildren),
		entries: make(map[*feature.Feature]*indexedFeature),
	}
}

// BulkLoad replaces the index contents with the given entries, building a
// balanced tree in one pass.
func (idx *Index) BulkLoad(entries []Entry) {
	objs := make([]rtreego.Spatial, 0, len(entries))
	idx.entries = make(map[*feature.Feature]*indexedFeature, len(entries))
	for _, e := range entries {
		if _, dup := idx.entries[e.Feature]; dup {
			continue
		}
		wrapped := &indexedFeature{feature: e.Feature, env: e.Envelope}
		idx.entries[e.Feature] = wrapped
		objs = append(objs, wrapped)
	}
	idx.rtree = rtreego.NewTree(2, idx.min, idx.max, objs...)
}

// Insert adds a single entry. Inserting a feature already present replaces
// its envelope.
func (idx *Index) Insert(env feature.Envelope, f *feature.Feature) {
	idx.Remove(f)
	wrapped := &indexedFeature{feature: f, env: env}
	idx.entries[f] = wrapped
	idx.rtree.Insert(wrapped)
}

// Remove deletes the feature's entry and reports whether it was present.
// Nodes are not rebalanced.
func (idx *Index) Remove(f *feature.Feature) bool {
	wrapped, ok := idx.entries[f]
	if !ok {
		return false
	}
	delete(idx.entries, f)
	return idx.rtree.Delete(wrapped)
}

// Contains reports whether the feature has an entry.
func (idx *Index) Contains(f *feature.Feature) bool {
	_, ok := idx.entries[f]
	return ok
}

// Envelope returns the stored envelope of a feature.
func (idx *Index) Envelope(f *feature.Feature) (feature.Envelope, bool) {
	e, ok := idx.entries[f]
	if !ok {
		return feature.Envelope{}, false
	}
	return e.env, true
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Query returns the features whose stored envelope intersects env. Touching
// boundaries count as intersecting.
func (idx *Index) Query(env feature.Envelope) []*feature.Feature {
	if len(idx.entries) == 0 || !env.Valid() {
		return nil
	}

	// rtreego treats shared edges as disjoint; widen the search and filter
	// exactly afterwards.
	spatials := idx.rtree.SearchIntersect(rect(env.Expand(epsilon)))

	result := make([]*feature.Feature, 0, len(spatials))
	for _, spatial := range spatials {
		indexed := spatial.(*indexedFeature)
		if indexed.env.Intersects(env) {
			result = append(result, indexed.feature)
		}
	}
	return result
}

// Clone returns an index with the same entries sharing no mutable state with
// idx. The tree is rebuilt by bulk load.
func (idx *Index) Clone() *Index {
	c := &Index{min: idx.min, max: idx.max}
	entries := make([]Entry, 0, len(idx.entries))
	for f, e := range idx.entries {
		entries = append(entries, Entry{Envelope: e.env, Feature: f})
	}
	c.BulkLoad(entries)
	return c
}

func rect(env feature.Envelope) rtreego.Rect {
	point := rtreego.Point{env.MinX, env.MinY}

	width := env.MaxX - env.MinX
	height := env.MaxY - env.MinY
	if width < epsilon {
		width = epsilon
	}
	if height < epsilon {
		height = epsilon
	}

	r, _ := rtreego.NewRect(point, []float64{width, height})
	return r
}
