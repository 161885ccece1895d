package featurestore

import (
	"context"
	"strings"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/filter"
)

// Query is a read request against one feature type.
//
// Example:
//
//	stream, err := store.Query(ctx, featurestore.Query{
//	    TypeNames:   []string{"Buoy"},
//	    BBox:        &feature.Envelope{MinX: -71.1, MinY: 42.3, MaxX: -70.9, MaxY: 42.4},
//	    Filter:      filter.Less("depth", 10.0),
//	    SortBy:      []filter.SortProperty{{Name: "name"}},
//	    MaxFeatures: 50,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stream.Close()
//	for f, ok := stream.Next(); ok; f, ok = stream.Next() {
//	    fmt.Println(f.ID)
//	}
type Query struct {
	// TypeNames selects the feature type. Exactly one name is supported; with
	// none, Filter must be a *filter.IDFilter resolved through the lookup
	// table.
	TypeNames []string

	// Filter selects among the candidates. Its bounding boxes are resolved
	// the same way as BBox.
	Filter filter.Filter

	// BBox pre-filters candidates through the spatial index. BBoxCRS names its
	// reference system; empty means the store's envelope system.
	BBox    *feature.Envelope
	BBoxCRS string

	SortBy      []filter.SortProperty
	MaxFeatures int // Ignored when <= 0
}

// FeatureStream is a forward-only, single-pass sequence of features.
type FeatureStream struct {
	ctx    context.Context
	next   func() (*feature.Feature, bool, error)
	err    error
	closed bool
}

func newStream(ctx context.Context, next func() (*feature.Feature, bool, error)) *FeatureStream {
	return &FeatureStream{ctx: ctx, next: next}
}

// sliceStream streams features already selected.
func sliceStream(ctx context.Context, features []*feature.Feature) *FeatureStream {
	i := 0
	return newStream(ctx, func() (*feature.Feature, bool, error) {
		if i >= len(features) {
			return nil, false, nil
		}
		i++
		return features[i-1], true, nil
	})
}

// Next returns the next feature. It returns false when the stream is
// exhausted, closed or failed; Err distinguishes failure.
func (s *FeatureStream) Next() (*feature.Feature, bool) {
	if s.closed || s.err != nil {
		return nil, false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return nil, false
	}
	f, ok, err := s.next()
	if err != nil {
		s.err = err
		return nil, false
	}
	if !ok {
		s.closed = true
	}
	return f, ok
}

// Err returns the error that ended the stream, if any.
func (s *FeatureStream) Err() error {
	return s.err
}

// Close releases the stream. Further calls to Next return false.
func (s *FeatureStream) Close() error {
	s.closed = true
	s.next = nil
	return nil
}

// Collect drains the stream into a slice and closes it.
func (s *FeatureStream) Collect() ([]*feature.Feature, error) {
	var result []*feature.Feature
	for {
		f, ok := s.Next()
		if !ok {
			break
		}
		result = append(result, f)
	}
	err := s.Err()
	_ = s.Close()
	return result, err
}

// concatStreams chains streams in order.
func concatStreams(ctx context.Context, streams []func() (*FeatureStream, error)) *FeatureStream {
	var current *FeatureStream
	return newStream(ctx, func() (*feature.Feature, bool, error) {
		for {
			if current == nil {
				if len(streams) == 0 {
					return nil, false, nil
				}
				var err error
				current, err = streams[0]()
				streams = streams[1:]
				if err != nil {
					return nil, false, err
				}
			}
			if f, ok := current.Next(); ok {
				return f, true, nil
			}
			if err := current.Err(); err != nil {
				return nil, false, err
			}
			current = nil
		}
	})
}

// query evaluates q against the snapshot.
func (s *snapshot) query(ctx context.Context, q Query, ev filter.Evaluator) (*FeatureStream, error) {
	switch len(q.TypeNames) {
	case 0:
		ids, ok := q.Filter.(*filter.IDFilter)
		if !ok {
			return nil, &ErrUnsupportedQuery{Reason: "queries without a type name need an identifier filter"}
		}
		return sliceStream(ctx, s.resolveIDs(ids.IDs, q.MaxFeatures)), nil
	case 1:
	default:
		return nil, &ErrUnsupportedQuery{
			Reason: "joins over multiple feature types (" + strings.Join(q.TypeNames, ", ") + ")",
		}
	}

	coll, err := s.collection(q.TypeNames[0])
	if err != nil {
		return nil, err
	}

	flt := filter.Bind(q.Filter, s.norm)
	candidates := coll.Features()
	if q.BBox != nil {
		env, err := s.norm.ResolveEnvelope(*q.BBox, q.BBoxCRS)
		if err != nil {
			return nil, wrapCRS(err)
		}
		candidates = s.indexes[q.TypeNames[0]].Query(env)
	}

	if len(q.SortBy) > 0 {
		selected, err := ev.Select(candidates, flt)
		if err != nil {
			return nil, err
		}
		filter.Sort(selected, q.SortBy)
		if q.MaxFeatures > 0 && len(selected) > q.MaxFeatures {
			selected = selected[:q.MaxFeatures]
		}
		return sliceStream(ctx, selected), nil
	}

	i, returned := 0, 0
	return newStream(ctx, func() (*feature.Feature, bool, error) {
		for i < len(candidates) {
			if q.MaxFeatures > 0 && returned >= q.MaxFeatures {
				return nil, false, nil
			}
			f := candidates[i]
			i++
			ok, err := ev.Matches(f, flt)
			if err != nil {
				return nil, false, err
			}
			if ok {
				returned++
				return f, true, nil
			}
		}
		return nil, false, nil
	}), nil
}

// hits counts the features matched by q.
func (s *snapshot) hits(ctx context.Context, q Query, ev filter.Evaluator) (int, error) {
	if len(q.TypeNames) == 1 && q.Filter == nil && q.BBox == nil {
		coll, err := s.collection(q.TypeNames[0])
		if err != nil {
			return 0, err
		}
		if q.MaxFeatures > 0 {
			return min(coll.Len(), q.MaxFeatures), nil
		}
		return coll.Len(), nil
	}

	stream, err := s.query(ctx, q, ev)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	n := 0
	for {
		if _, ok := stream.Next(); !ok {
			break
		}
		n++
	}
	return n, stream.Err()
}

// resolveIDs returns the stored features with the given identifiers in
// request order, skipping unknown ids and geometries.
func (s *snapshot) resolveIDs(ids []string, limit int) []*feature.Feature {
	var result []*feature.Feature
	seen := make(map[*feature.Feature]struct{}, len(ids))
	for _, id := range ids {
		if limit > 0 && len(result) >= limit {
			break
		}
		f, ok := s.lookup[id].(*feature.Feature)
		if !ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	return result
}
