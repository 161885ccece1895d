// Package idgen assigns identifiers to inserted features and geometries.
package idgen

import (
	"fmt"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/google/uuid"
)

// Identifier prefixes by object kind.
const (
	FeaturePrefix  = "FEATURE_"
	GeometryPrefix = "GEOMETRY_"
)

// Mode controls how supplied identifiers are treated.
type Mode int

const (
	// GenerateNew always mints a new identifier.
	GenerateNew Mode = iota

	// UseExisting keeps the supplied identifier, minting one only if absent.
	UseExisting

	// ReplaceDuplicate keeps the supplied identifier unless it is absent or
	// already taken, in which case a new one is minted.
	ReplaceDuplicate
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case GenerateNew:
		return "generate_new"
	case UseExisting:
		return "use_existing"
	case ReplaceDuplicate:
		return "replace_duplicate"
	default:
		return "unknown"
	}
}

// ParseMode parses the string form of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "generate_new", "GenerateNew", "GENERATE_NEW":
		return GenerateNew, nil
	case "use_existing", "UseExisting", "USE_EXISTING":
		return UseExisting, nil
	case "replace_duplicate", "ReplaceDuplicate", "REPLACE_DUPLICATE":
		return ReplaceDuplicate, nil
	}
	return 0, fmt.Errorf("unknown id generation mode %q", s)
}

// ErrDuplicateID indicates an identifier already present in the store or in
// the same batch
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate identifier %q", e.ID)
}

// Assigner assigns identifiers within one batch.
//
// Exists reports whether an identifier is already taken in the target
// snapshot. Identifiers assigned by the same Assigner are tracked so that a
// batch cannot collide with itself.
type Assigner struct {
	Mode   Mode
	Exists func(id string) bool

	assigned map[string]struct{}
	newID    func() string
}

// NewAssigner creates an assigner for one batch.
func NewAssigner(mode Mode, exists func(id string) bool) *Assigner {
	if exists == nil {
		exists = func(string) bool { return false }
	}
	return &Assigner{
		Mode:     mode,
		Exists:   exists,
		assigned: make(map[string]struct{}),
		newID:    uuid.NewString,
	}
}

// Assign resolves the identifier for one object. current is the supplied
// identifier ("" if absent).
func (a *Assigner) Assign(prefix, current string) (string, error) {
	id := current
	switch a.Mode {
	case GenerateNew:
		id = a.mint(prefix)
	case UseExisting:
		if id == "" {
			id = a.mint(prefix)
		}
	case ReplaceDuplicate:
		if id == "" || a.taken(id) {
			id = a.mint(prefix)
		}
	default:
		return "", fmt.Errorf("unknown id generation mode %d", a.Mode)
	}

	if a.taken(id) {
		return "", &ErrDuplicateID{ID: id}
	}
	a.assigned[id] = struct{}{}
	return id, nil
}

// AssignAll assigns identifiers to every feature and geometry reachable from
// the given roots, in walk order.
func (a *Assigner) AssignAll(roots ...feature.Node) error {
	for _, root := range roots {
		err := feature.Walk(root, func(n feature.Node) (bool, error) {
			var err error
			switch v := n.(type) {
			case *feature.Feature:
				v.ID, err = a.Assign(FeaturePrefix, v.ID)
			case *feature.Geometry:
				v.ID, err = a.Assign(GeometryPrefix, v.ID)
			}
			return err == nil, err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Assigner) taken(id string) bool {
	if _, ok := a.assigned[id]; ok {
		return true
	}
	return a.Exists(id)
}

func (a *Assigner) mint(prefix string) string {
	for {
		id := prefix + a.newID()
		if !a.taken(id) {
			return id
		}
	}
}
