package feature

import "errors"

// SkipAll stops a walk without reporting an error.
var SkipAll = errors.New("skip everything and stop the walk")

// WalkFunc is called for every node reached by Walk. Returning descend=false
// skips the node's children. Returning SkipAll ends the walk cleanly; any
// other error aborts it and is returned by Walk.
type WalkFunc func(n Node) (descend bool, err error)

// Walk traverses a feature graph depth-first, calling fn for every feature,
// geometry, reference and element reached through property values.
//
// Every node is visited at most once, so cyclic graphs built from inline
// features terminate. References are reported to fn but never entered: the
// referenced feature belongs to whatever owns it.
func Walk(root Node, fn WalkFunc) error {
	w := &walker{fn: fn, visited: make(map[Node]struct{})}
	err := w.visit(root)
	if errors.Is(err, SkipAll) {
		return nil
	}
	return err
}

type walker struct {
	fn      WalkFunc
	visited map[Node]struct{}
}

func (w *walker) visit(n Node) error {
	if isNilNode(n) {
		return nil
	}
	if _, seen := w.visited[n]; seen {
		return nil
	}
	w.visited[n] = struct{}{}

	descend, err := w.fn(n)
	if err != nil || !descend {
		return err
	}

	switch v := n.(type) {
	case *Feature:
		for _, p := range v.Props {
			if err := w.visitValue(p.Value); err != nil {
				return err
			}
		}
	case *Element:
		for _, child := range v.Children {
			if err := w.visitValue(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) visitValue(v any) error {
	if n, ok := v.(Node); ok {
		return w.visit(n)
	}
	return nil
}

func isNilNode(n Node) bool {
	switch v := n.(type) {
	case nil:
		return true
	case *Feature:
		return v == nil
	case *Geometry:
		return v == nil
	case *Reference:
		return v == nil
	case *Element:
		return v == nil
	}
	return false
}

// FeaturesAndGeometries collects every feature and geometry reachable from
// root (root included), in visit order.
func FeaturesAndGeometries(root Node) ([]*Feature, []*Geometry) {
	var (
		features   []*Feature
		geometries []*Geometry
	)
	_ = Walk(root, func(n Node) (bool, error) {
		switch v := n.(type) {
		case *Feature:
			features = append(features, v)
		case *Geometry:
			geometries = append(geometries, v)
		}
		return true, nil
	})
	return features, geometries
}
