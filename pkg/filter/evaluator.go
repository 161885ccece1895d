package filter

import (
	"slices"

	"github.com/beetlebugorg/featurestore/pkg/feature"
)

// Evaluator applies filters to features and collections.
type Evaluator interface {
	// Matches reports whether f is selected by flt. A nil filter selects
	// everything.
	Matches(f *feature.Feature, flt Filter) (bool, error)

	// Select returns the features selected by flt, preserving order.
	Select(features []*feature.Feature, flt Filter) ([]*feature.Feature, error)
}

// DefaultEvaluator evaluates filters directly against feature properties.
type DefaultEvaluator struct{}

// Matches reports whether f is selected by flt.
func (DefaultEvaluator) Matches(f *feature.Feature, flt Filter) (bool, error) {
	if flt == nil {
		return true, nil
	}
	return flt.Evaluate(f)
}

// Select returns the features selected by flt.
func (e DefaultEvaluator) Select(features []*feature.Feature, flt Filter) ([]*feature.Feature, error) {
	if flt == nil {
		return slices.Clone(features), nil
	}
	var result []*feature.Feature
	for _, f := range features {
		ok, err := e.Matches(f, flt)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, f)
		}
	}
	return result, nil
}

// SortProperty is one sort criterion.
type SortProperty struct {
	Name       string
	Descending bool
}

// Sort orders features in place by the given criteria. The first value of
// each property is used; features lacking the property sort last regardless
// of direction. The sort is stable.
func Sort(features []*feature.Feature, by []SortProperty) {
	if len(by) == 0 {
		return
	}
	slices.SortStableFunc(features, func(a, b *feature.Feature) int {
		for _, s := range by {
			va, okA := a.Value(s.Name)
			vb, okB := b.Value(s.Name)
			switch {
			case !okA && !okB:
				continue
			case !okA:
				return 1
			case !okB:
				return -1
			}
			cmp, ok := Compare(va, vb)
			if !ok || cmp == 0 {
				continue
			}
			if s.Descending {
				return -cmp
			}
			return cmp
		}
		return 0
	})
}
