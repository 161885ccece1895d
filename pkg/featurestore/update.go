package featurestore

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/beetlebugorg/featurestore/internal/idgen"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

// UpdateAction is the way a property replacement changes a property list.
type UpdateAction int

const (
	// Unspecified means Replace when a value is supplied and Remove otherwise.
	Unspecified UpdateAction = iota

	// Replace overwrites the Index-th property with the name.
	Replace

	// Remove removes every property with the name.
	Remove

	// InsertBefore inserts a property before the Index-th property with the name.
	InsertBefore

	// InsertAfter inserts a property after the Index-th property with the name.
	InsertAfter
)

// String returns the string representation of the action.
func (a UpdateAction) String() string {
	switch a {
	case Unspecified:
		return "unspecified"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	case InsertBefore:
		return "insert_before"
	case InsertAfter:
		return "insert_after"
	default:
		return "unknown"
	}
}

// PropertyReplacement is one change requested by an update.
type PropertyReplacement struct {
	Name     string
	Value    any
	HasValue bool
	Action   UpdateAction
	Index    int // Position among the properties with the same name
}

func (r PropertyReplacement) action() UpdateAction {
	if r.Action != Unspecified {
		return r.Action
	}
	if r.HasValue {
		return Replace
	}
	return Remove
}

// PerformUpdate applies the replacements, in order, to every feature of the
// type matched by flt and returns the identifiers of the updated features.
//
// All candidates are checked against the lock manager first. Candidates are
// then updated one by one: each is copied, changed and validated against its
// type. The first failing candidate stops the update and is left untouched;
// the identifiers updated so far are returned along with the error and those
// features stay updated.
//
// Example:
//
//	ids, err := tx.PerformUpdate("Buoy", []featurestore.PropertyReplacement{
//	    {Name: "color", Value: "red", HasValue: true},
//	    {Name: "depth", Action: featurestore.Remove},
//	}, filter.Equal("name", "Boston Light"), "")
func (tx *Transaction) PerformUpdate(typeName string, replacements []PropertyReplacement, flt filter.Filter, lockID string) ([]string, error) {
	if err := tx.begin(); err != nil {
		return nil, err
	}

	ft, ok := tx.store.schema.FeatureType(typeName)
	if !ok {
		return nil, &ErrUnknownFeatureType{Name: typeName}
	}
	for _, r := range replacements {
		if _, ok := ft.Decl(r.Name); !ok {
			return nil, &ErrValidation{Property: r.Name, Reason: "not declared by type " + ft.Name}
		}
	}

	candidates, err := tx.candidates(typeName, flt)
	if err != nil {
		return nil, err
	}
	if err := tx.authorize(featureIDs(candidates), lockID); err != nil {
		return nil, err
	}

	var updated []string
	for _, f := range candidates {
		if err := tx.updateFeature(f, replacements, len(candidates) > 1); err != nil {
			tx.logger().WithFields(logrus.Fields{
				"feature": f.ID,
				"updated": len(updated),
			}).WithError(err).Debug("Update stopped")
			return updated, err
		}
		updated = append(updated, f.ID)
	}

	tx.logger().WithFields(logrus.Fields{
		"type":  typeName,
		"count": len(updated),
	}).Debug("Updated features")
	return updated, nil
}

// updateFeature applies the replacements to a copy of f and swaps the copy
// in on success.
func (tx *Transaction) updateFeature(f *feature.Feature, replacements []PropertyReplacement, shared bool) error {
	values := make([]any, len(replacements))
	var roots []feature.Node
	for i, r := range replacements {
		v, err := tx.prepareValue(f.ID, r, shared)
		if err != nil {
			return err
		}
		values[i] = v
		if n, ok := v.(feature.Node); ok {
			roots = append(roots, n)
		}
	}

	updated := f.Clone()
	for i, r := range replacements {
		if err := applyReplacement(updated, r, values[i]); err != nil {
			return err
		}
	}
	if err := validateFeature(updated); err != nil {
		return err
	}

	if err := tx.store.norm.NormalizeAll(roots...); err != nil {
		return classifyGeometryErr(err)
	}
	assigner := idgen.NewAssigner(ReplaceDuplicate, tx.working.exists)
	if err := assigner.AssignAll(roots...); err != nil {
		return err
	}
	return tx.working.replaceFeature(f, updated)
}

// prepareValue returns the value to store for one candidate. Geometries are
// always copied so that neither the caller's value nor a stored geometry is
// normalized in place; inline content carrying identifiers can only be
// applied to a single feature.
func (tx *Transaction) prepareValue(fid string, r PropertyReplacement, shared bool) (any, error) {
	switch v := r.Value.(type) {
	case *feature.Geometry:
		if v == nil {
			return nil, nil
		}
		g := &feature.Geometry{ID: v.ID, CRS: v.CRS, Curve: slices.Clone(v.Curve)}
		if v.Value != nil {
			g.Value = orb.Clone(v.Value)
		}
		if shared {
			g.ID = ""
		}
		return g, nil
	case *feature.Feature, *feature.Element:
		features, geometries := feature.FeaturesAndGeometries(v.(feature.Node))
		if shared && len(features)+len(geometries) > 0 {
			return nil, &ErrValidation{
				FeatureID: fid,
				Property:  r.Name,
				Reason:    "inline feature content cannot be applied to more than one feature",
			}
		}
		for _, inner := range features {
			if inner.ID != "" && tx.working.get(inner.ID) == feature.Node(inner) {
				return nil, &ErrValidation{
					FeatureID: fid,
					Property:  r.Name,
					Reason:    "feature " + inner.ID + " is already stored; use a reference",
				}
			}
		}
	}
	return r.Value, nil
}

// applyReplacement changes f's property list in place.
func applyReplacement(f *feature.Feature, r PropertyReplacement, value any) error {
	var positions []int
	for i, p := range f.Props {
		if p.Name == r.Name {
			positions = append(positions, i)
		}
	}
	prop := feature.Property{Name: r.Name, Value: value}
	outOfRange := &ErrValidation{
		FeatureID: f.ID,
		Property:  r.Name,
		Reason:    "no property at index " + strconv.Itoa(r.Index),
	}

	switch r.action() {
	case Remove:
		f.Props = slices.DeleteFunc(f.Props, func(p feature.Property) bool {
			return p.Name == r.Name
		})

	case Replace:
		switch {
		case r.Index >= 0 && r.Index < len(positions):
			pos := positions[r.Index]
			if err := checkDimension(f.ID, r.Name, f.Props[pos].Value, value); err != nil {
				return err
			}
			f.Props[pos] = prop
		case r.Index == len(positions):
			f.Props = slices.Insert(f.Props, declPosition(f, r.Name), prop)
		default:
			return outOfRange
		}

	case InsertBefore, InsertAfter:
		switch {
		case len(positions) == 0 && r.Index == 0:
			f.Props = slices.Insert(f.Props, declPosition(f, r.Name), prop)
		case r.Index >= 0 && r.Index < len(positions):
			pos := positions[r.Index]
			if r.action() == InsertAfter {
				pos++
			}
			f.Props = slices.Insert(f.Props, pos, prop)
		default:
			return outOfRange
		}

	default:
		return &ErrValidation{FeatureID: f.ID, Property: r.Name, Reason: "unknown update action " + r.Action.String()}
	}
	return nil
}

// checkDimension requires a replacing geometry to have the dimension of the
// geometry it replaces.
func checkDimension(fid, name string, old, replacement any) error {
	og, ok := old.(*feature.Geometry)
	if !ok || og == nil {
		return nil
	}
	ng, ok := replacement.(*feature.Geometry)
	if !ok || ng == nil {
		return nil
	}
	if od, nd := og.Dimension(), ng.Dimension(); od >= 0 && od != nd {
		return &ErrValidation{
			FeatureID: fid,
			Property:  name,
			Reason:    fmt.Sprintf("replacement geometry has dimension %d, replaced geometry has %d", nd, od),
		}
	}
	return nil
}

// declPosition returns where a new property with the given name belongs: after
// every property declared at or before it.
func declPosition(f *feature.Feature, name string) int {
	order := make(map[string]int, len(f.Type.Properties))
	for i, d := range f.Type.Properties {
		order[d.Name] = i
	}
	target := order[name]
	for i, p := range f.Props {
		if order[p.Name] > target {
			return i
		}
	}
	return len(f.Props)
}

// validateFeature checks f's properties against its type: every property is
// declared, each declaration's occurrence lies within [MinOccurs, MaxOccurs]
// and values match the declared kind and geometry requirement.
func validateFeature(f *feature.Feature) error {
	ft := f.Type
	counts := f.Count()
	for name := range counts {
		if _, ok := ft.Decl(name); !ok {
			return &ErrValidation{FeatureID: f.ID, Property: name, Reason: "not declared by type " + ft.Name}
		}
	}
	for _, d := range ft.Properties {
		if n := counts[d.Name]; !d.Allows(n) {
			return &ErrValidation{
				FeatureID: f.ID,
				Property:  d.Name,
				Reason:    fmt.Sprintf("occurs %d times, allowed %s", n, occurrence(d)),
			}
		}
	}
	for _, p := range f.Props {
		d, _ := ft.Decl(p.Name)
		if reason := checkValue(d, p.Value); reason != "" {
			return &ErrValidation{FeatureID: f.ID, Property: p.Name, Reason: reason}
		}
	}
	return nil
}

func occurrence(d feature.PropertyDecl) string {
	if d.MaxOccurs == feature.Unbounded {
		return fmt.Sprintf("[%d, unbounded]", d.MinOccurs)
	}
	return fmt.Sprintf("[%d, %d]", d.MinOccurs, d.MaxOccurs)
}

// checkValue returns why v does not fit the declaration, or "".
func checkValue(d feature.PropertyDecl, v any) string {
	if v == nil {
		return ""
	}
	switch d.Kind {
	case feature.KindSimple:
		if _, ok := v.(feature.Node); ok {
			return fmt.Sprintf("%s property holds %T", d.Kind, v)
		}
	case feature.KindGeometry:
		g, ok := v.(*feature.Geometry)
		if !ok {
			return fmt.Sprintf("%s property holds %T", d.Kind, v)
		}
		return checkGeometry(d.Geometry, g)
	case feature.KindFeature:
		switch v.(type) {
		case *feature.Feature, *feature.Reference:
		default:
			return fmt.Sprintf("%s property holds %T", d.Kind, v)
		}
	}
	return ""
}

func checkGeometry(req feature.GeometryRequirement, g *feature.Geometry) string {
	if g == nil {
		return ""
	}
	switch req {
	case feature.GeometryPoint:
		if g.Dimension() != 0 {
			return "point geometry required"
		}
	case feature.GeometryCurve:
		if g.Dimension() != 1 {
			return "curve geometry required"
		}
	case feature.GeometrySurface:
		if !g.IsSurface() {
			return "surface geometry required"
		}
	}
	return ""
}
