package geometry

import (
	"fmt"

	"github.com/beetlebugorg/featurestore/pkg/feature"
)

// Normalizer prepares incoming geometries for storage.
//
// With a storage CRS every geometry is linearized and reprojected into it.
// Without one, geometries keep their coordinates but must declare a
// resolvable reference system.
type Normalizer struct {
	StorageCRS  string
	Points      int // Points per linearized arc
	Registry    *Registry
	Transformer Transformer
	Linearizer  Linearizer
}

// NewNormalizer creates a normalizer with default collaborators.
func NewNormalizer(storageCRS string) *Normalizer {
	registry := DefaultRegistry()
	return &Normalizer{
		StorageCRS:  storageCRS,
		Points:      DefaultLinearizationPoints,
		Registry:    registry,
		Transformer: NewTransformer(registry),
		Linearizer:  ArcLinearizer{},
	}
}

// Normalize normalizes a single geometry in place.
func (n *Normalizer) Normalize(g *feature.Geometry) error {
	if n.StorageCRS == "" {
		crs, err := n.Registry.Resolve(g.CRS)
		if err != nil {
			return err
		}
		return ValidateGeometry(g, crs)
	}

	if err := n.Linearizer.Linearize(g, n.Points); err != nil {
		return err
	}
	if err := n.Transformer.Transform(g, n.StorageCRS); err != nil {
		return err
	}
	crs, err := n.Registry.Resolve(g.CRS)
	if err != nil {
		return err
	}
	return ValidateGeometry(g, crs)
}

// NormalizeAll normalizes every geometry reachable from the given roots.
func (n *Normalizer) NormalizeAll(roots ...feature.Node) error {
	for _, root := range roots {
		_, geometries := feature.FeaturesAndGeometries(root)
		for _, g := range geometries {
			if err := n.Normalize(g); err != nil {
				return fmt.Errorf("normalize geometry %q: %w", g.ID, err)
			}
		}
	}
	return nil
}

// EnvelopeCRS returns the system stored envelopes are expressed in: the
// storage CRS, or WGS84 when there is none.
func (n *Normalizer) EnvelopeCRS() string {
	if n.StorageCRS != "" {
		return n.StorageCRS
	}
	return WGS84.Name
}

// ResolveEnvelope brings an envelope declared in crs into EnvelopeCRS. An
// empty crs means the envelope already is in that system.
func (n *Normalizer) ResolveEnvelope(env feature.Envelope, crs string) (feature.Envelope, error) {
	if crs == "" || crs == n.EnvelopeCRS() {
		return env, nil
	}
	return n.Transformer.TransformEnvelope(env, crs, n.EnvelopeCRS())
}

// FeatureEnvelope returns the union of f's geometry envelopes in EnvelopeCRS,
// or false if f has no non-empty geometry.
func (n *Normalizer) FeatureEnvelope(f *feature.Feature) (feature.Envelope, bool, error) {
	var (
		env feature.Envelope
		ok  bool
	)
	for _, g := range f.Geometries() {
		genv, gok := g.Envelope()
		if !gok {
			continue
		}
		genv, err := n.ResolveEnvelope(genv, g.CRS)
		if err != nil {
			return feature.Envelope{}, false, err
		}
		if ok {
			env = env.Union(genv)
		} else {
			env, ok = genv, true
		}
	}
	return env, ok, nil
}
