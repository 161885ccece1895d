// Package loader converts GeoJSON documents into feature collections ready
// for a bulk insert.
package loader

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/paulmach/orb/geojson"
)

// Options configures how GeoJSON features are mapped onto the schema.
type Options struct {
	// TypeProperty is the GeoJSON property naming each feature's type.
	// Default: "featureType"
	TypeProperty string

	// DefaultType is used for features without a TypeProperty.
	DefaultType string

	// CRS is assigned to every geometry. GeoJSON (RFC 7946) is always WGS84.
	// Default: "EPSG:4326"
	CRS string

	// Strict fails on properties the feature type does not declare and on
	// geometries of types without a geometry property. Otherwise they are
	// dropped.
	Strict bool
}

// DefaultOptions returns loader options with defaults.
func DefaultOptions() Options {
	return Options{
		TypeProperty: "featureType",
		CRS:          "EPSG:4326",
	}
}

// ErrUnmapped indicates a GeoJSON feature that cannot be mapped onto the schema
type ErrUnmapped struct {
	Index  int // Position in the feature collection
	Reason string
}

func (e *ErrUnmapped) Error() string {
	return fmt.Sprintf("geojson feature %d: %s", e.Index, e.Reason)
}

// Loader maps GeoJSON features onto the types of a schema.
//
// Properties are matched to declarations by name and emitted in declaration
// order; array values of simple properties become repeated properties. The
// geometry is stored under the type's first geometry declaration.
type Loader struct {
	schema feature.Schema
	opts   Options
}

// New creates a loader for the schema.
func New(schema feature.Schema, opts Options) *Loader {
	def := DefaultOptions()
	if opts.TypeProperty == "" {
		opts.TypeProperty = def.TypeProperty
	}
	if opts.CRS == "" {
		opts.CRS = def.CRS
	}
	return &Loader{schema: schema, opts: opts}
}

// ReadFile loads a GeoJSON FeatureCollection file.
func (l *Loader) ReadFile(path string) (*feature.Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geojson: %w", err)
	}
	defer f.Close()

	fc, err := l.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

// Read loads a GeoJSON FeatureCollection.
func (l *Loader) Read(r io.Reader) (*feature.Collection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	gfc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return l.Convert(gfc)
}

// Convert maps every feature of a decoded collection. The result may mix
// feature types.
func (l *Loader) Convert(gfc *geojson.FeatureCollection) (*feature.Collection, error) {
	result := feature.NewCollection(nil)
	for i, gf := range gfc.Features {
		f, err := l.convert(i, gf)
		if err != nil {
			return nil, err
		}
		result.Add(f)
	}
	return result, nil
}

func (l *Loader) convert(i int, gf *geojson.Feature) (*feature.Feature, error) {
	typeName := l.opts.DefaultType
	if v, ok := gf.Properties[l.opts.TypeProperty].(string); ok {
		typeName = v
	}
	if typeName == "" {
		return nil, &ErrUnmapped{Index: i, Reason: "no feature type"}
	}
	ft, ok := l.schema.FeatureType(typeName)
	if !ok {
		return nil, &ErrUnmapped{Index: i, Reason: fmt.Sprintf("unknown feature type %q", typeName)}
	}

	if l.opts.Strict {
		for name := range gf.Properties {
			if _, declared := ft.Decl(name); !declared && name != l.opts.TypeProperty {
				return nil, &ErrUnmapped{Index: i, Reason: fmt.Sprintf("property %s not declared by %s", name, ft.Name)}
			}
		}
	}

	f := feature.NewFeature(featureID(gf.ID), ft)
	geometryDone := false
	for _, d := range ft.Properties {
		if d.Kind == feature.KindGeometry {
			if !geometryDone && gf.Geometry != nil {
				f.Props = append(f.Props, feature.Property{
					Name:  d.Name,
					Value: &feature.Geometry{CRS: l.opts.CRS, Value: gf.Geometry},
				})
			}
			geometryDone = true
			continue
		}

		v, ok := gf.Properties[d.Name]
		if !ok || v == nil {
			continue
		}
		if values, isList := v.([]any); isList && d.Kind == feature.KindSimple {
			for _, item := range values {
				f.Props = append(f.Props, feature.Property{Name: d.Name, Value: item})
			}
			continue
		}
		if d.Kind != feature.KindSimple {
			return nil, &ErrUnmapped{Index: i, Reason: fmt.Sprintf("property %s of kind %s cannot be read from geojson", d.Name, d.Kind)}
		}
		f.Props = append(f.Props, feature.Property{Name: d.Name, Value: v})
	}

	if !geometryDone && gf.Geometry != nil && l.opts.Strict {
		return nil, &ErrUnmapped{Index: i, Reason: fmt.Sprintf("type %s has no geometry property", ft.Name)}
	}
	return f, nil
}

// featureID converts a GeoJSON id (string or number) to a feature id.
func featureID(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
