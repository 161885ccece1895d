package feature

import "sort"

// Unbounded marks a property declaration without an upper occurrence limit.
const Unbounded = -1

// ValueKind is the category of value a property declaration accepts.
type ValueKind int

const (
	// KindSimple accepts primitive scalars (strings, numbers, booleans, times).
	KindSimple ValueKind = iota

	// KindGeometry accepts *Geometry values.
	KindGeometry

	// KindFeature accepts nested features, inline (*Feature) or by reference (*Reference).
	KindFeature

	// KindCustom accepts generic structured content (*Element).
	KindCustom
)

// String returns the string representation of the value kind.
func (k ValueKind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindGeometry:
		return "geometry"
	case KindFeature:
		return "feature"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// GeometryRequirement restricts the geometry a KindGeometry declaration accepts.
type GeometryRequirement int

const (
	// GeometryAny accepts any geometry.
	GeometryAny GeometryRequirement = iota

	// GeometryPoint declares point-like (0-dimensional) content.
	GeometryPoint

	// GeometryCurve declares curve-like (1-dimensional) content.
	GeometryCurve

	// GeometrySurface requires a surface (polygon or multipolygon).
	GeometrySurface
)

// String returns the string representation of the geometry requirement.
func (g GeometryRequirement) String() string {
	switch g {
	case GeometryPoint:
		return "point"
	case GeometryCurve:
		return "curve"
	case GeometrySurface:
		return "surface"
	default:
		return "any"
	}
}

// PropertyDecl declares one property of a feature type.
type PropertyDecl struct {
	Name      string
	MinOccurs int
	MaxOccurs int // Unbounded (-1) for no limit
	Kind      ValueKind
	Geometry  GeometryRequirement // Only meaningful for KindGeometry
}

// Allows reports whether n occurrences satisfy the declaration's cardinality.
func (d PropertyDecl) Allows(n int) bool {
	if n < d.MinOccurs {
		return false
	}
	return d.MaxOccurs == Unbounded || n <= d.MaxOccurs
}

// FeatureType is a named schema shared by all features of the type.
//
// Feature types are immutable once handed to a store.
type FeatureType struct {
	Name       string
	Properties []PropertyDecl
}

// Decl returns the declaration with the given name.
func (ft *FeatureType) Decl(name string) (PropertyDecl, bool) {
	for _, d := range ft.Properties {
		if d.Name == name {
			return d, true
		}
	}
	return PropertyDecl{}, false
}

// GeometryDecls returns the declarations of geometry-valued properties in
// declaration order.
func (ft *FeatureType) GeometryDecls() []PropertyDecl {
	var decls []PropertyDecl
	for _, d := range ft.Properties {
		if d.Kind == KindGeometry {
			decls = append(decls, d)
		}
	}
	return decls
}

// Schema provides the feature types known to an application.
type Schema interface {
	// FeatureTypes returns all feature types, sorted by name.
	FeatureTypes() []*FeatureType

	// FeatureType returns the type with the given name.
	FeatureType(name string) (*FeatureType, bool)
}

// AppSchema is a static, map-backed Schema.
type AppSchema struct {
	types map[string]*FeatureType
}

// NewSchema creates a schema from the given feature types. Later types with a
// duplicate name replace earlier ones.
func NewSchema(types ...*FeatureType) *AppSchema {
	s := &AppSchema{types: make(map[string]*FeatureType, len(types))}
	for _, ft := range types {
		s.types[ft.Name] = ft
	}
	return s
}

// FeatureTypes returns all feature types, sorted by name.
func (s *AppSchema) FeatureTypes() []*FeatureType {
	result := make([]*FeatureType, 0, len(s.types))
	for _, ft := range s.types {
		result = append(result, ft)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// FeatureType returns the type with the given name.
func (s *AppSchema) FeatureType(name string) (*FeatureType, bool) {
	ft, ok := s.types[name]
	return ft, ok
}
