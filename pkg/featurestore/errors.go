package featurestore

import (
	"errors"
	"fmt"

	"github.com/beetlebugorg/featurestore/internal/idgen"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
)

var (
	// ErrTransactionClosed is returned by operations on a committed or rolled
	// back transaction.
	ErrTransactionClosed = errors.New("transaction already terminated")

	// ErrLeaseExpired is wrapped by *ErrNotOwner when the transaction's lease
	// ran out and was reclaimed by another acquirer.
	ErrLeaseExpired = errors.New("transaction lease expired")

	// ErrMissingLockID and ErrWrongLockID classify *ErrLocked with errors.Is.
	ErrMissingLockID = errors.New("feature is locked and no lock id was supplied")
	ErrWrongLockID   = errors.New("feature is locked under a different lock id")
)

// ErrDuplicateID indicates an insert that would introduce an identifier
// already present in the store.
type ErrDuplicateID = idgen.ErrDuplicateID

// ErrUnsupportedQuery indicates a query shape the store cannot answer
type ErrUnsupportedQuery struct {
	Reason string
}

func (e *ErrUnsupportedQuery) Error() string {
	return fmt.Sprintf("unsupported query: %s", e.Reason)
}

// ErrUnknownFeatureType indicates a type name missing from the schema
type ErrUnknownFeatureType struct {
	Name string
}

func (e *ErrUnknownFeatureType) Error() string {
	return fmt.Sprintf("unknown feature type %q", e.Name)
}

// ErrValidation indicates a feature violating its type declaration
type ErrValidation struct {
	FeatureID string
	Property  string
	Reason    string
}

func (e *ErrValidation) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("feature %s: property %s: %s", e.FeatureID, e.Property, e.Reason)
	}
	return fmt.Sprintf("feature %s: %s", e.FeatureID, e.Reason)
}

// ErrLocked indicates a delete or update of a feature the caller's lock id
// does not cover.
type ErrLocked struct {
	FeatureID string
	LockID    string // Empty when no lock id was supplied
}

func (e *ErrLocked) Error() string {
	if e.MissingLockID() {
		return fmt.Sprintf("feature %s is locked, but no lock id was provided", e.FeatureID)
	}
	return fmt.Sprintf("feature %s cannot be modified under lock id %s", e.FeatureID, e.LockID)
}

// MissingLockID reports whether the caller supplied no lock id at all.
func (e *ErrLocked) MissingLockID() bool {
	return e.LockID == ""
}

// Is matches ErrMissingLockID or ErrWrongLockID.
func (e *ErrLocked) Is(target error) bool {
	switch target {
	case ErrMissingLockID:
		return e.MissingLockID()
	case ErrWrongLockID:
		return !e.MissingLockID()
	}
	return false
}

// ErrCRS indicates an unknown reference system or undefined projection
// encountered while normalizing geometries or building envelopes.
type ErrCRS struct {
	Err error
}

func (e *ErrCRS) Error() string {
	return fmt.Sprintf("crs: %v", e.Err)
}

func (e *ErrCRS) Unwrap() error {
	return e.Err
}

// ErrNotOwner indicates a transaction that is no longer the store's active
// transaction.
type ErrNotOwner struct {
	Err error // ErrLeaseExpired if the lease was reclaimed
}

func (e *ErrNotOwner) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction is not the active transaction: %v", e.Err)
	}
	return "transaction is not the active transaction"
}

func (e *ErrNotOwner) Unwrap() error {
	return e.Err
}

// wrapCRS classifies reference system failures as *ErrCRS.
func wrapCRS(err error) error {
	var (
		unknown *geometry.ErrUnknownCRS
		noPath  *geometry.ErrNoTransformation
	)
	if errors.As(err, &unknown) || errors.As(err, &noPath) {
		return &ErrCRS{Err: err}
	}
	return err
}
