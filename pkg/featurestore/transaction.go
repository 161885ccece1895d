package featurestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/beetlebugorg/featurestore/internal/idgen"
	"github.com/beetlebugorg/featurestore/internal/metrics"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
	"github.com/sirupsen/logrus"
)

// IDGenMode controls identifier assignment on insert.
type IDGenMode = idgen.Mode

// Identifier generation modes.
const (
	GenerateNew      = idgen.GenerateNew
	UseExisting      = idgen.UseExisting
	ReplaceDuplicate = idgen.ReplaceDuplicate
)

// State is the lifecycle state of a transaction.
type State int

const (
	Active State = iota
	Committed
	RolledBack
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Transaction is the single writer of a Store. It mutates a private working
// snapshot that becomes visible to readers only on Commit.
//
// A Transaction must be used by one goroutine at a time. Every operation
// renews its lease.
//
// Example:
//
//	tx, err := store.AcquireTransaction(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tx.PerformInsert(fc, featurestore.GenerateNew)
//	if err != nil {
//	    tx.Rollback()
//	    log.Fatal(err)
//	}
//	if err := tx.Commit(); err != nil {
//	    tx.Rollback()
//	    log.Fatal(err)
//	}
//	fmt.Printf("Inserted %d features\n", len(ids))
type Transaction struct {
	id      uint64
	store   *Store
	working *snapshot
	state   State

	// Guarded by store.mu.
	deadline  time.Time
	reclaimed bool
}

// State returns the lifecycle state.
func (tx *Transaction) State() State {
	return tx.state
}

// Renew extends the transaction's lease.
func (tx *Transaction) Renew() error {
	return tx.begin()
}

// begin checks the transaction may run an operation and renews its lease.
func (tx *Transaction) begin() error {
	if tx.state != Active {
		return ErrTransactionClosed
	}
	return tx.store.renew(tx)
}

func (tx *Transaction) logger() *logrus.Entry {
	return tx.store.log.WithField("transaction", tx.id)
}

// PerformInsert adds the members of fc to the store and returns their
// identifiers in input order.
//
// Geometries are normalized into the storage CRS first; identifiers of every
// feature and geometry are then assigned according to mode. Any validation,
// CRS or identifier failure aborts the whole insert. Features and geometries
// that are already stored, at any depth, fail with *ErrDuplicateID.
func (tx *Transaction) PerformInsert(fc *feature.Collection, mode IDGenMode) ([]string, error) {
	if err := tx.begin(); err != nil {
		return nil, err
	}

	features := fc.Features()
	roots := make([]feature.Node, len(features))
	for i, f := range features {
		if err := tx.bindType(f); err != nil {
			return nil, err
		}
		if id, ok := tx.storedNode(f); ok {
			return nil, &ErrDuplicateID{ID: id}
		}
		if err := validateFeature(f); err != nil {
			return nil, err
		}
		roots[i] = f
	}

	if err := tx.store.norm.NormalizeAll(roots...); err != nil {
		return nil, classifyGeometryErr(err)
	}

	assigner := idgen.NewAssigner(mode, tx.working.exists)
	if err := assigner.AssignAll(roots...); err != nil {
		return nil, err
	}

	if err := tx.working.addFeatures(features); err != nil {
		return nil, err
	}

	ids := make([]string, len(features))
	for i, f := range features {
		ids[i] = f.ID
	}
	tx.logger().WithFields(logrus.Fields{
		"count": len(ids),
		"mode":  mode.String(),
	}).Debug("Inserted features")
	return ids, nil
}

// PerformDelete removes every feature of the type matched by flt (all of them
// when flt is nil) and returns the number removed.
//
// All candidates are checked against the lock manager before anything is
// removed; a single locked candidate fails the whole delete with *ErrLocked.
func (tx *Transaction) PerformDelete(typeName string, flt filter.Filter, lockID string) (int, error) {
	if err := tx.begin(); err != nil {
		return 0, err
	}

	candidates, err := tx.candidates(typeName, flt)
	if err != nil {
		return 0, err
	}
	if err := tx.authorize(featureIDs(candidates), lockID); err != nil {
		return 0, err
	}

	removed := tx.removeAndRelease(candidates)
	tx.logger().WithFields(logrus.Fields{
		"type":  typeName,
		"count": removed,
	}).Debug("Deleted features")
	return removed, nil
}

// PerformDeleteByID removes the stored top-level features with the given
// identifiers and returns the number actually removed. Unknown identifiers
// are ignored.
func (tx *Transaction) PerformDeleteByID(ids []string, lockID string) (int, error) {
	if err := tx.begin(); err != nil {
		return 0, err
	}
	if err := tx.authorize(ids, lockID); err != nil {
		return 0, err
	}

	var targets []*feature.Feature
	for _, id := range ids {
		if f, ok := tx.working.get(id).(*feature.Feature); ok {
			targets = append(targets, f)
		}
	}

	removed := tx.removeAndRelease(targets)
	tx.logger().WithFields(logrus.Fields{
		"requested": len(ids),
		"count":     removed,
	}).Debug("Deleted features by id")
	return removed, nil
}

// PerformReplace deletes the features matched by flt and inserts f in their
// place, returning f's identifier. An *filter.IDFilter deletes by identifier
// across all types; any other filter applies to f's type. A nil filter
// replaces the stored feature with f's identifier.
func (tx *Transaction) PerformReplace(f *feature.Feature, flt filter.Filter, lockID string, mode IDGenMode) (string, error) {
	if flt == nil {
		if f.ID == "" {
			return "", &ErrUnsupportedQuery{Reason: "replace without filter needs a feature identifier"}
		}
		flt = filter.NewIDFilter(f.ID)
	}
	if ids, ok := flt.(*filter.IDFilter); ok {
		if _, err := tx.PerformDeleteByID(ids.IDs, lockID); err != nil {
			return "", err
		}
	} else if _, err := tx.PerformDelete(f.TypeName(), flt, lockID); err != nil {
		return "", err
	}

	ids, err := tx.PerformInsert(feature.NewCollection(f.Type, f), mode)
	if err != nil {
		return "", err
	}
	if len(ids) != 1 {
		return "", fmt.Errorf("replace inserted %d features, expected exactly one", len(ids))
	}
	return ids[0], nil
}

// Commit rebuilds the working snapshot's indexes and publishes it. If the
// rebuild fails the transaction stays active and may be rolled back.
func (tx *Transaction) Commit() error {
	if err := tx.begin(); err != nil {
		return err
	}

	start := time.Now()
	if err := tx.working.rebuildIndexes(); err != nil {
		return fmt.Errorf("rebuild indexes: %w", err)
	}
	if err := tx.store.release(tx, tx.working); err != nil {
		return err
	}
	tx.state = Committed

	metrics.ObserveSince(tx.store.metrics.CommitDurationMs, start)
	tx.store.metrics.TransactionsCommitted.Inc()
	tx.store.published(tx.working)
	tx.logger().WithFields(logrus.Fields{
		"objects":  len(tx.working.lookup),
		"duration": time.Since(start),
	}).Debug("Transaction committed")
	return nil
}

// Rollback discards the working snapshot and releases the store.
func (tx *Transaction) Rollback() error {
	if tx.state != Active {
		return ErrTransactionClosed
	}
	err := tx.store.release(tx, nil)
	var notOwner *ErrNotOwner
	if err != nil && !errors.As(err, &notOwner) {
		return err
	}
	tx.state = RolledBack
	tx.working = nil
	if err != nil {
		return err
	}

	tx.store.metrics.TransactionsRolledBack.Inc()
	tx.logger().Debug("Transaction rolled back")
	return nil
}

// storedNode returns the identifier of the first feature or geometry
// reachable from root that the working or the published snapshot already
// holds. Such objects are shared with readers and must not be normalized or
// renamed; stored geometries are reused by copying them, stored features by
// reference.
func (tx *Transaction) storedNode(root *feature.Feature) (string, bool) {
	published := tx.store.current.Load()
	var found string
	_ = feature.Walk(root, func(n feature.Node) (bool, error) {
		id := nodeID(n)
		if id == "" {
			return true, nil
		}
		if tx.working.get(id) == n || published.get(id) == n {
			found = id
			return false, feature.SkipAll
		}
		return true, nil
	})
	return found, found != ""
}

// bindType resolves f's type against the schema.
func (tx *Transaction) bindType(f *feature.Feature) error {
	ft, ok := tx.store.schema.FeatureType(f.TypeName())
	if !ok {
		return &ErrUnknownFeatureType{Name: f.TypeName()}
	}
	f.Type = ft
	return nil
}

// candidates returns the features of a type selected by flt.
func (tx *Transaction) candidates(typeName string, flt filter.Filter) ([]*feature.Feature, error) {
	coll, err := tx.working.collection(typeName)
	if err != nil {
		return nil, err
	}
	return tx.store.opts.Evaluator.Select(coll.Features(), filter.Bind(flt, tx.store.norm))
}

// authorize checks every identifier against the lock manager before any
// mutation.
func (tx *Transaction) authorize(ids []string, lockID string) error {
	locks := tx.store.opts.LockManager
	for _, id := range ids {
		if !locks.IsFeatureModifiable(id, lockID) {
			return &ErrLocked{FeatureID: id, LockID: lockID}
		}
	}
	return nil
}

// removeAndRelease removes features from the working snapshot and releases
// their locks.
func (tx *Transaction) removeAndRelease(features []*feature.Feature) int {
	removed := tx.working.removeFeatures(features)
	for _, f := range removed {
		tx.store.opts.LockManager.Release(f.ID)
	}
	return len(removed)
}

func featureIDs(features []*feature.Feature) []string {
	ids := make([]string, len(features))
	for i, f := range features {
		ids[i] = f.ID
	}
	return ids
}

// classifyGeometryErr maps normalization failures onto store error kinds.
func classifyGeometryErr(err error) error {
	var invalid *geometry.ErrInvalidGeometry
	if errors.As(err, &invalid) {
		return &ErrValidation{FeatureID: invalid.ID, Reason: err.Error()}
	}
	return wrapCRS(err)
}
