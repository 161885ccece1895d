// Package feature defines the feature model held by the feature store:
// feature types and their property declarations, features, geometries,
// references and generic content, plus a cycle-safe graph walker.
package feature

// Node is one vertex of a feature graph: *Feature, *Geometry, *Reference or
// *Element.
type Node interface {
	node()
}

// Feature is a geographic entity: an identifier, a type and an ordered list
// of property values.
//
// Features held by a published snapshot are never mutated. Transactions clone
// a feature before changing it.
type Feature struct {
	ID    string
	Type  *FeatureType
	Props []Property

	env       Envelope
	envOK     bool
	envCached bool
}

func (*Feature) node() {}

// Property is a named property value. Several properties may share a name
// when the declaration allows repetition.
//
// Value is a primitive scalar, *Geometry, *Feature (inline), *Reference or
// *Element.
type Property struct {
	Name  string
	Value any
}

// Reference points at a feature owned elsewhere (xlink:href style). The
// walker never descends into the target.
type Reference struct {
	Href   string
	Target *Feature // Resolved target, if known
}

func (*Reference) node() {}

// Element is generic structured content.
type Element struct {
	Name     string
	Attrs    map[string]string
	Children []any // Scalars, *Element, *Geometry, *Feature or *Reference
}

func (*Element) node() {}

// NewFeature creates a feature of the given type.
func NewFeature(id string, ft *FeatureType, props ...Property) *Feature {
	return &Feature{ID: id, Type: ft, Props: props}
}

// Identifier returns the feature identifier.
func (f *Feature) Identifier() string { return f.ID }

// TypeName returns the name of the feature's type, or "" if untyped.
func (f *Feature) TypeName() string {
	if f.Type == nil {
		return ""
	}
	return f.Type.Name
}

// Properties returns all properties with the given name, in order.
func (f *Feature) Properties(name string) []Property {
	var result []Property
	for _, p := range f.Props {
		if p.Name == name {
			result = append(result, p)
		}
	}
	return result
}

// Value returns the first value of the named property.
func (f *Feature) Value(name string) (any, bool) {
	for _, p := range f.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Geometries returns the geometry-valued properties in order.
func (f *Feature) Geometries() []*Geometry {
	var result []*Geometry
	for _, p := range f.Props {
		if g, ok := p.Value.(*Geometry); ok && g != nil {
			result = append(result, g)
		}
	}
	return result
}

// Envelope returns the envelope of the feature's geometry properties, or
// false if it has none.
//
// The result is cached by ResetEnvelope. Features that were never reset
// compute the envelope on every call.
func (f *Feature) Envelope() (Envelope, bool) {
	if f.envCached {
		return f.env, f.envOK
	}
	return f.calcEnvelope()
}

// ResetEnvelope recomputes and caches the envelope. It must only be called
// while the feature is not visible to concurrent readers.
func (f *Feature) ResetEnvelope() {
	f.env, f.envOK = f.calcEnvelope()
	f.envCached = true
}

func (f *Feature) calcEnvelope() (Envelope, bool) {
	var (
		env Envelope
		ok  bool
	)
	for _, g := range f.Geometries() {
		genv, gok := g.Envelope()
		env, ok = unionAll(env, ok, genv, gok)
	}
	return env, ok
}

// Clone returns a copy of the feature with its own property slice. Property
// values are shared. The copy starts without a cached envelope.
func (f *Feature) Clone() *Feature {
	props := make([]Property, len(f.Props))
	copy(props, f.Props)
	return &Feature{
		ID:    f.ID,
		Type:  f.Type,
		Props: props,
	}
}

// Count returns how often each property name occurs.
func (f *Feature) Count() map[string]int {
	counts := make(map[string]int, len(f.Props))
	for _, p := range f.Props {
		counts[p.Name]++
	}
	return counts
}
