package geometry

import (
	"fmt"
)

// ErrInvalidCoordinate indicates a geographic coordinate out of valid bounds
type ErrInvalidCoordinate struct {
	Lat, Lon float64
}

func (e *ErrInvalidCoordinate) Error() string {
	return fmt.Sprintf("invalid coordinate: lat=%f lon=%f (lat must be ±90, lon must be ±180)",
		e.Lat, e.Lon)
}

// ErrInvalidGeometry indicates a geometry that cannot be normalized
type ErrInvalidGeometry struct {
	ID     string
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid geometry %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// ErrUnknownCRS indicates a reference system name the registry cannot resolve
type ErrUnknownCRS struct {
	Name string
}

func (e *ErrUnknownCRS) Error() string {
	if e.Name == "" {
		return "unknown coordinate reference system: no CRS declared"
	}
	return fmt.Sprintf("unknown coordinate reference system: %q", e.Name)
}

// ErrNoTransformation indicates there is no projection path between two systems
type ErrNoTransformation struct {
	From, To string
}

func (e *ErrNoTransformation) Error() string {
	return fmt.Sprintf("no transformation from %s to %s", e.From, e.To)
}
