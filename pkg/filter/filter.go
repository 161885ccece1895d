// Package filter provides the predicates used to select features: identifier
// sets, property comparisons, bounding boxes and their logical combinations.
package filter

import (
	"fmt"

	"github.com/beetlebugorg/featurestore/pkg/feature"
)

// Filter decides whether a feature is selected.
type Filter interface {
	Evaluate(f *feature.Feature) (bool, error)
}

// ErrInvalidFilter indicates a filter that cannot be applied to a feature
type ErrInvalidFilter struct {
	Property string
	Reason   string
}

func (e *ErrInvalidFilter) Error() string {
	return fmt.Sprintf("invalid filter on property %q: %s", e.Property, e.Reason)
}

// IDFilter selects features by identifier.
type IDFilter struct {
	IDs []string
}

// NewIDFilter creates an identifier filter.
func NewIDFilter(ids ...string) *IDFilter {
	return &IDFilter{IDs: ids}
}

// Evaluate reports whether f's identifier is in the set.
func (i *IDFilter) Evaluate(f *feature.Feature) (bool, error) {
	for _, id := range i.IDs {
		if id == f.ID {
			return true, nil
		}
	}
	return false, nil
}

// EnvelopeResolver brings an envelope declared in a reference system into
// the system envelopes are compared in. An empty crs means the envelope is
// already expressed in it.
type EnvelopeResolver interface {
	ResolveEnvelope(env feature.Envelope, crs string) (feature.Envelope, error)
}

// BBox selects features whose envelope intersects Envelope. With an empty
// Property the envelope of all the feature's geometries is used.
//
// An unbound BBox compares stored coordinates as they are and ignores CRS.
// Bind attaches a resolver, after which the box (declared in CRS) and every
// geometry envelope (declared in its geometry's CRS) are resolved before the
// comparison.
type BBox struct {
	Property string
	Envelope feature.Envelope
	CRS      string

	resolver EnvelopeResolver
}

// Evaluate tests the feature (or property) envelope against the box.
func (b *BBox) Evaluate(f *feature.Feature) (bool, error) {
	box, err := b.resolve(b.Envelope, b.CRS)
	if err != nil {
		return false, err
	}

	geometries := f.Geometries()
	if b.Property != "" {
		geometries = geometries[:0:0]
		for _, p := range f.Properties(b.Property) {
			g, ok := p.Value.(*feature.Geometry)
			if !ok {
				return false, &ErrInvalidFilter{Property: b.Property, Reason: "not a geometry property"}
			}
			if g != nil {
				geometries = append(geometries, g)
			}
		}
	}

	var (
		env   feature.Envelope
		envOK bool
	)
	for _, g := range geometries {
		genv, ok := g.Envelope()
		if !ok {
			continue
		}
		if genv, err = b.resolve(genv, g.CRS); err != nil {
			return false, err
		}
		if b.Property != "" && genv.Intersects(box) {
			return true, nil
		}
		if envOK {
			env = env.Union(genv)
		} else {
			env, envOK = genv, true
		}
	}
	return b.Property == "" && envOK && env.Intersects(box), nil
}

func (b *BBox) resolve(env feature.Envelope, crs string) (feature.Envelope, error) {
	if b.resolver == nil {
		return env, nil
	}
	resolved, err := b.resolver.ResolveEnvelope(env, crs)
	if err != nil {
		return feature.Envelope{}, fmt.Errorf("bbox filter: %w", err)
	}
	return resolved, nil
}

// Bind returns flt with every BBox, including those nested in logical
// operators, bound to r. flt itself is not modified.
//
// Example:
//
//	flt := filter.Bind(filter.And(
//	    filter.Equal("color", "red"),
//	    &filter.BBox{CRS: "EPSG:3857", Envelope: viewport},
//	), normalizer)
func Bind(flt Filter, r EnvelopeResolver) Filter {
	switch v := flt.(type) {
	case *BBox:
		bound := *v
		bound.resolver = r
		return &bound
	case and:
		return and(bindAll(v, r))
	case or:
		return or(bindAll(v, r))
	case not:
		return not{Bind(v.Filter, r)}
	}
	return flt
}

func bindAll(filters []Filter, r EnvelopeResolver) []Filter {
	bound := make([]Filter, len(filters))
	for i, flt := range filters {
		bound[i] = Bind(flt, r)
	}
	return bound
}

type and []Filter

// And selects features matched by every operand.
func And(filters ...Filter) Filter { return and(filters) }

func (a and) Evaluate(f *feature.Feature) (bool, error) {
	for _, flt := range a {
		ok, err := flt.Evaluate(f)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type or []Filter

// Or selects features matched by at least one operand.
func Or(filters ...Filter) Filter { return or(filters) }

func (o or) Evaluate(f *feature.Feature) (bool, error) {
	for _, flt := range o {
		ok, err := flt.Evaluate(f)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type not struct{ Filter }

// Not inverts a filter.
func Not(flt Filter) Filter { return not{flt} }

func (n not) Evaluate(f *feature.Feature) (bool, error) {
	ok, err := n.Filter.Evaluate(f)
	return !ok && err == nil, err
}
