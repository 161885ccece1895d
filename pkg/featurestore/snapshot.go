package featurestore

import (
	"fmt"
	"maps"

	"github.com/beetlebugorg/featurestore/internal/index"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
	"golang.org/x/sync/errgroup"
)

// snapshot holds the stored features: one collection and one spatial index
// per feature type plus the identifier lookup table shared by features and
// geometries.
//
// A published snapshot is never mutated. A working snapshot starts out
// sharing every collection, index and the lookup table with its base and
// copies each one on first mutation.
type snapshot struct {
	schema feature.Schema
	norm   *geometry.Normalizer

	collections map[string]*feature.Collection
	indexes     map[string]*index.Index
	envelopes   map[string]feature.Envelope // Aggregate envelope per type, set by rebuildIndexes
	lookup      map[string]feature.Node

	minChildren, maxChildren int

	// Copy-on-write bookkeeping of working snapshots.
	ownedTypes  map[string]bool
	ownedLookup bool
	fresh       map[*feature.Feature]struct{} // Features created by this working snapshot
}

// newSnapshot creates an empty, published snapshot with a collection and
// index for every type of the schema.
func newSnapshot(schema feature.Schema, norm *geometry.Normalizer, minChildren, maxChildren int) *snapshot {
	s := &snapshot{
		schema:      schema,
		norm:        norm,
		collections: make(map[string]*feature.Collection),
		indexes:     make(map[string]*index.Index),
		envelopes:   make(map[string]feature.Envelope),
		lookup:      make(map[string]feature.Node),
		minChildren: minChildren,
		maxChildren: maxChildren,
	}
	for _, ft := range schema.FeatureTypes() {
		s.collections[ft.Name] = feature.NewCollection(ft)
		s.indexes[ft.Name] = index.New(minChildren, maxChildren)
	}
	return s
}

// working returns a mutable working copy sharing all state with s.
func (s *snapshot) working() *snapshot {
	return &snapshot{
		schema:      s.schema,
		norm:        s.norm,
		collections: maps.Clone(s.collections),
		indexes:     maps.Clone(s.indexes),
		envelopes:   maps.Clone(s.envelopes),
		lookup:      s.lookup,
		minChildren: s.minChildren,
		maxChildren: s.maxChildren,
		ownedTypes:  make(map[string]bool),
		fresh:       make(map[*feature.Feature]struct{}),
	}
}

// mutable returns the working copy's own collection and index for a type,
// copying them from the base on first use.
func (s *snapshot) mutable(typeName string) (*feature.Collection, *index.Index, error) {
	coll, ok := s.collections[typeName]
	if !ok {
		return nil, nil, &ErrUnknownFeatureType{Name: typeName}
	}
	if !s.ownedTypes[typeName] {
		coll = coll.Clone()
		s.collections[typeName] = coll
		s.indexes[typeName] = s.indexes[typeName].Clone()
		s.ownedTypes[typeName] = true
	}
	return coll, s.indexes[typeName], nil
}

// mutableLookup returns the working copy's own lookup table.
func (s *snapshot) mutableLookup() map[string]feature.Node {
	if !s.ownedLookup {
		s.lookup = maps.Clone(s.lookup)
		s.ownedLookup = true
	}
	return s.lookup
}

// collection returns the collection of a type.
func (s *snapshot) collection(typeName string) (*feature.Collection, error) {
	coll, ok := s.collections[typeName]
	if !ok {
		return nil, &ErrUnknownFeatureType{Name: typeName}
	}
	return coll, nil
}

// exists reports whether an identifier is taken.
func (s *snapshot) exists(id string) bool {
	_, ok := s.lookup[id]
	return ok
}

// get returns the object with the given identifier.
func (s *snapshot) get(id string) feature.Node {
	return s.lookup[id]
}

// envelope returns the aggregate envelope of a type.
func (s *snapshot) envelope(typeName string) (feature.Envelope, bool) {
	env, ok := s.envelopes[typeName]
	return env, ok
}

// addFeatures appends top-level features to their type collections, registers
// every reachable identifier and inserts an index entry for each feature with
// an envelope. Nothing is added if any feature fails.
func (s *snapshot) addFeatures(features []*feature.Feature) error {
	type pending struct {
		f     *feature.Feature
		env   feature.Envelope
		envOK bool
	}
	batch := make([]pending, 0, len(features))
	seen := make(map[string]struct{})
	for _, f := range features {
		if _, err := s.collection(f.TypeName()); err != nil {
			return err
		}
		for _, id := range reachableIDs(f) {
			if _, dup := seen[id]; dup || s.exists(id) {
				return &ErrDuplicateID{ID: id}
			}
			seen[id] = struct{}{}
		}
		env, ok, err := s.norm.FeatureEnvelope(f)
		if err != nil {
			return wrapCRS(err)
		}
		batch = append(batch, pending{f: f, env: env, envOK: ok})
	}

	lookup := s.mutableLookup()
	for _, p := range batch {
		coll, idx, _ := s.mutable(p.f.TypeName())
		coll.Add(p.f)
		if p.envOK {
			idx.Insert(p.env, p.f)
		}
		register(lookup, p.f)
		s.fresh[p.f] = struct{}{}
	}
	return nil
}

// removeFeatures removes the given top-level features from their collections,
// indexes and the lookup table. Features that are not members are ignored.
// Returns the removed features.
func (s *snapshot) removeFeatures(features []*feature.Feature) []*feature.Feature {
	byType := make(map[string]map[*feature.Feature]struct{})
	for _, f := range features {
		set, ok := byType[f.TypeName()]
		if !ok {
			set = make(map[*feature.Feature]struct{})
			byType[f.TypeName()] = set
		}
		set[f] = struct{}{}
	}

	var removed []*feature.Feature
	for typeName, set := range byType {
		coll, err := s.collection(typeName)
		if err != nil {
			continue
		}
		members := make(map[*feature.Feature]struct{}, len(set))
		for _, m := range coll.Features() {
			if _, ok := set[m]; ok {
				members[m] = struct{}{}
			}
		}
		if len(members) == 0 {
			continue
		}

		coll, idx, _ := s.mutable(typeName)
		coll.RemoveAll(members)
		lookup := s.mutableLookup()
		for _, f := range features {
			if _, ok := members[f]; !ok {
				continue
			}
			idx.Remove(f)
			unregister(lookup, f)
			delete(s.fresh, f)
			removed = append(removed, f)
			delete(members, f)
		}
	}
	return removed
}

// replaceFeature swaps old for replacement at the same collection position.
// replacement must be of the same type and not yet registered.
func (s *snapshot) replaceFeature(old, replacement *feature.Feature) error {
	env, envOK, err := s.norm.FeatureEnvelope(replacement)
	if err != nil {
		return wrapCRS(err)
	}

	coll, idx, err := s.mutable(old.TypeName())
	if err != nil {
		return err
	}
	if !coll.Replace(old, replacement) {
		return fmt.Errorf("feature %s is not stored", old.ID)
	}

	lookup := s.mutableLookup()
	unregister(lookup, old)
	register(lookup, replacement)

	idx.Remove(old)
	if envOK {
		idx.Insert(env, replacement)
	}
	delete(s.fresh, old)
	s.fresh[replacement] = struct{}{}
	return nil
}

// rebuildIndexes prepares a working snapshot for publication: it caches the
// envelopes of features created by this snapshot, recomputes every aggregate
// envelope, bulk loads every spatial index and rebuilds the lookup table.
func (s *snapshot) rebuildIndexes() error {
	for f := range s.fresh {
		f.ResetEnvelope()
	}

	type built struct {
		idx   *index.Index
		env   feature.Envelope
		envOK bool
	}
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	results := make([]built, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			coll := s.collections[name]
			prev := s.indexes[name]

			var (
				entries []index.Entry
				agg     feature.Envelope
				aggOK   bool
			)
			for _, f := range coll.Features() {
				env, ok := prev.Envelope(f)
				if !ok {
					var err error
					env, ok, err = s.norm.FeatureEnvelope(f)
					if err != nil {
						return wrapCRS(fmt.Errorf("feature %s: %w", f.ID, err))
					}
				}
				if !ok {
					continue
				}
				entries = append(entries, index.Entry{Envelope: env, Feature: f})
				if aggOK {
					agg = agg.Union(env)
				} else {
					agg, aggOK = env, true
				}
			}

			idx := index.New(s.minChildren, s.maxChildren)
			idx.BulkLoad(entries)
			results[i] = built{idx: idx, env: agg, envOK: aggOK}
			return nil
		})
	}

	lookup := make(map[string]feature.Node, len(s.lookup))
	var lookupErr error
	for _, name := range names {
		for _, f := range s.collections[name].Features() {
			if lookupErr == nil {
				lookupErr = registerUnique(lookup, f)
			}
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if lookupErr != nil {
		return lookupErr
	}

	for i, name := range names {
		s.indexes[name] = results[i].idx
		if results[i].envOK {
			s.envelopes[name] = results[i].env
		} else {
			delete(s.envelopes, name)
		}
	}
	s.lookup = lookup
	s.ownedTypes = nil
	s.ownedLookup = false
	s.fresh = nil
	return nil
}

// counts returns the number of features per type.
func (s *snapshot) counts() map[string]int {
	result := make(map[string]int, len(s.collections))
	for name, coll := range s.collections {
		result[name] = coll.Len()
	}
	return result
}

// reachableIDs returns the identifiers of f and every locally owned feature
// and geometry reachable from it.
func reachableIDs(f *feature.Feature) []string {
	var ids []string
	_ = feature.Walk(f, func(n feature.Node) (bool, error) {
		if id := nodeID(n); id != "" {
			ids = append(ids, id)
		}
		return true, nil
	})
	return ids
}

func register(lookup map[string]feature.Node, f *feature.Feature) {
	_ = feature.Walk(f, func(n feature.Node) (bool, error) {
		if id := nodeID(n); id != "" {
			lookup[id] = n
		}
		return true, nil
	})
}

func registerUnique(lookup map[string]feature.Node, f *feature.Feature) error {
	return feature.Walk(f, func(n feature.Node) (bool, error) {
		id := nodeID(n)
		if id == "" {
			return true, nil
		}
		if _, dup := lookup[id]; dup {
			return false, &ErrDuplicateID{ID: id}
		}
		lookup[id] = n
		return true, nil
	})
}

func unregister(lookup map[string]feature.Node, f *feature.Feature) {
	_ = feature.Walk(f, func(n feature.Node) (bool, error) {
		if id := nodeID(n); id != "" && lookup[id] == n {
			delete(lookup, id)
		}
		return true, nil
	})
}

func nodeID(n feature.Node) string {
	switch v := n.(type) {
	case *feature.Feature:
		return v.ID
	case *feature.Geometry:
		return v.ID
	}
	return ""
}
