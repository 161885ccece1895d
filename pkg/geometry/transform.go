package geometry

import (
	"math"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Transformer reprojects geometries between reference systems.
type Transformer interface {
	// Transform reprojects g in place into the target system and updates
	// g.CRS. Fails with *ErrUnknownCRS if either system is unknown and with
	// *ErrNoTransformation if no projection path exists.
	Transform(g *feature.Geometry, target string) error

	// TransformEnvelope reprojects an envelope by projecting its corners.
	TransformEnvelope(env feature.Envelope, from, to string) (feature.Envelope, error)
}

// ProjectionTransformer is a Transformer built from orb projections.
//
// Out of the box it converts between WGS84 (EPSG:4326) and spherical Web
// Mercator (EPSG:3857) using orb/project. More pairs can be added with
// AddProjection.
type ProjectionTransformer struct {
	registry    *Registry
	projections map[[2]int]orb.Projection
}

// NewTransformer creates a transformer resolving names through the registry.
func NewTransformer(registry *Registry) *ProjectionTransformer {
	if registry == nil {
		registry = DefaultRegistry()
	}
	t := &ProjectionTransformer{
		registry:    registry,
		projections: make(map[[2]int]orb.Projection),
	}
	t.AddProjection(WGS84.EPSG, WebMercator.EPSG, project.WGS84.ToMercator)
	t.AddProjection(WebMercator.EPSG, WGS84.EPSG, project.Mercator.ToWGS84)
	return t
}

// AddProjection registers a one-way projection between two EPSG codes.
func (t *ProjectionTransformer) AddProjection(from, to int, proj orb.Projection) {
	t.projections[[2]int{from, to}] = proj
}

// Transform reprojects g in place into the target system.
func (t *ProjectionTransformer) Transform(g *feature.Geometry, target string) error {
	proj, dst, err := t.projection(g.CRS, target)
	if err != nil {
		return err
	}
	if proj != nil {
		if g.Value != nil {
			// orb/project rewrites coordinates in place; the input may be
			// shared with a published snapshot.
			g.Value = project.Geometry(orb.Clone(g.Value), proj)
		}
		if len(g.Curve) > 0 {
			curve := make(feature.ArcString, len(g.Curve))
			for i, p := range g.Curve {
				curve[i] = proj(p)
			}
			g.Curve = curve
		}
	}
	g.CRS = dst.Name
	return nil
}

// TransformEnvelope reprojects an envelope by projecting its four corners and
// taking their bound.
func (t *ProjectionTransformer) TransformEnvelope(env feature.Envelope, from, to string) (feature.Envelope, error) {
	proj, _, err := t.projection(from, to)
	if err != nil {
		return feature.Envelope{}, err
	}
	if proj == nil {
		return env, nil
	}

	corners := []orb.Point{
		{env.MinX, env.MinY},
		{env.MinX, env.MaxY},
		{env.MaxX, env.MinY},
		{env.MaxX, env.MaxY},
	}
	out := feature.Envelope{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, c := range corners {
		p := proj(c)
		out.MinX = math.Min(out.MinX, p[0])
		out.MinY = math.Min(out.MinY, p[1])
		out.MaxX = math.Max(out.MaxX, p[0])
		out.MaxY = math.Max(out.MaxY, p[1])
	}
	return out, nil
}

// projection returns the projection between two systems; nil when they are
// the same system.
func (t *ProjectionTransformer) projection(from, to string) (orb.Projection, CRS, error) {
	src, err := t.registry.Resolve(from)
	if err != nil {
		return nil, CRS{}, err
	}
	dst, err := t.registry.Resolve(to)
	if err != nil {
		return nil, CRS{}, err
	}
	if src.EPSG == dst.EPSG {
		return nil, dst, nil
	}
	proj, ok := t.projections[[2]int{src.EPSG, dst.EPSG}]
	if !ok {
		return nil, CRS{}, &ErrNoTransformation{From: src.Name, To: dst.Name}
	}
	return proj, dst, nil
}
