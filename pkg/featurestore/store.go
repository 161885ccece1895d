// Package featurestore is an in-memory, transactional, spatially indexed
// feature store.
//
// A Store holds one published snapshot of all features. Readers query the
// published snapshot without locking. Writers acquire the single Transaction,
// mutate a private working copy and publish it atomically on Commit.
//
// Example:
//
//	store, err := featurestore.New(schema, featurestore.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tx, err := store.AcquireTransaction(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tx.PerformInsert(buoys, featurestore.GenerateNew)
//	if err != nil {
//	    tx.Rollback()
//	    log.Fatal(err)
//	}
//	if err := tx.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
//	stream, _ := store.Query(ctx, featurestore.Query{
//	    TypeNames: []string{"Buoy"},
//	    BBox:      &feature.Envelope{MinX: -71.1, MinY: 42.3, MaxX: -70.9, MaxY: 42.4},
//	})
//	defer stream.Close()
package featurestore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beetlebugorg/featurestore/internal/metrics"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
	"github.com/sirupsen/logrus"
)

// Store is the feature store facade. It is safe for concurrent use.
type Store struct {
	schema  feature.Schema
	opts    Options
	log     *logrus.Logger
	metrics *metrics.Metrics
	norm    *geometry.Normalizer

	current atomic.Pointer[snapshot]

	mu       sync.Mutex
	active   *Transaction
	released chan struct{} // Closed when the active transaction is released
	seq      uint64
}

// Stats describes the published snapshot.
type Stats struct {
	Features          map[string]int // Per feature type
	Objects           int            // Identified features and geometries
	ActiveTransaction bool
}

// New creates an empty store for the schema.
func New(schema feature.Schema, opts Options) (*Store, error) {
	if schema == nil {
		return nil, errors.New("featurestore: schema is required")
	}
	opts = opts.withDefaults()
	if opts.StorageCRS != "" {
		if _, err := opts.CRSRegistry.Resolve(opts.StorageCRS); err != nil {
			return nil, &ErrCRS{Err: err}
		}
	}

	s := &Store{
		schema:  schema,
		opts:    opts,
		log:     opts.Logger,
		metrics: metrics.New(opts.Registerer),
		norm:    opts.normalizer(),
	}
	s.current.Store(newSnapshot(schema, s.norm, opts.IndexMinChildren, opts.IndexMaxChildren))

	for _, ft := range schema.FeatureTypes() {
		s.metrics.Features.WithLabelValues(ft.Name).Set(0)
	}
	return s, nil
}

// Schema returns the application schema.
func (s *Store) Schema() feature.Schema {
	return s.schema
}

// AcquireTransaction blocks until no other transaction is active and returns
// a new transaction over a working copy of the published snapshot.
//
// While waiting, the active transaction's lease is re-checked every
// AcquirePollInterval. A lease that expired is reclaimed: the stale
// transaction loses ownership and its changes are discarded. The wait also
// ends when ctx is done.
func (s *Store) AcquireTransaction(ctx context.Context) (*Transaction, error) {
	start := time.Now()
	for {
		s.mu.Lock()
		if s.active != nil && !s.opts.Clock().Before(s.active.deadline) {
			s.reclaimLocked()
		}
		if s.active == nil {
			tx := s.beginLocked()
			s.mu.Unlock()

			metrics.ObserveSince(s.metrics.AcquireWaitMs, start)
			s.metrics.TransactionsAcquired.Inc()
			s.log.WithFields(logrus.Fields{
				"transaction": tx.id,
				"wait":        time.Since(start),
			}).Debug("Transaction acquired")
			return tx, nil
		}
		released := s.released
		s.mu.Unlock()

		timer := time.NewTimer(s.opts.AcquirePollInterval)
		select {
		case <-released:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
		timer.Stop()
	}
}

// beginLocked installs a new active transaction. Callers must hold s.mu.
func (s *Store) beginLocked() *Transaction {
	s.seq++
	tx := &Transaction{
		id:       s.seq,
		store:    s,
		working:  s.current.Load().working(),
		state:    Active,
		deadline: s.opts.Clock().Add(s.opts.LeaseTimeout),
	}
	s.active = tx
	s.released = make(chan struct{})
	return tx
}

// reclaimLocked forcibly clears an active transaction whose lease expired.
// Callers must hold s.mu.
func (s *Store) reclaimLocked() {
	stale := s.active
	stale.reclaimed = true
	s.active = nil
	close(s.released)

	s.metrics.LeasesReclaimed.Inc()
	s.log.WithFields(logrus.Fields{
		"transaction": stale.id,
		"deadline":    stale.deadline,
	}).Warn("Reclaiming transaction with expired lease")
}

// renew extends tx's lease if it is still the active transaction.
func (s *Store) renew(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ownerLocked(tx); err != nil {
		return err
	}
	tx.deadline = s.opts.Clock().Add(s.opts.LeaseTimeout)
	return nil
}

// release ends tx, publishing snap if it is non-nil.
func (s *Store) release(tx *Transaction, snap *snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ownerLocked(tx); err != nil {
		return err
	}
	if snap != nil {
		s.current.Store(snap)
	}
	s.active = nil
	close(s.released)
	return nil
}

// ownerLocked verifies tx is the active transaction. Callers must hold s.mu.
func (s *Store) ownerLocked(tx *Transaction) error {
	if s.active == tx {
		return nil
	}
	if tx.reclaimed {
		return &ErrNotOwner{Err: ErrLeaseExpired}
	}
	return &ErrNotOwner{}
}

// Query evaluates q against the published snapshot. It never observes the
// changes of an uncommitted transaction and never blocks on one.
func (s *Store) Query(ctx context.Context, q Query) (*FeatureStream, error) {
	s.countQuery(q)
	return s.current.Load().query(ctx, q, s.opts.Evaluator)
}

// QueryAll evaluates the queries in order against one snapshot and
// concatenates their results.
func (s *Store) QueryAll(ctx context.Context, qs ...Query) (*FeatureStream, error) {
	snap := s.current.Load()
	streams := make([]func() (*FeatureStream, error), len(qs))
	for i, q := range qs {
		s.countQuery(q)
		streams[i] = func() (*FeatureStream, error) {
			return snap.query(ctx, q, s.opts.Evaluator)
		}
	}
	return concatStreams(ctx, streams), nil
}

// QueryHits returns the number of features q would return.
func (s *Store) QueryHits(ctx context.Context, q Query) (int, error) {
	s.countQuery(q)
	return s.current.Load().hits(ctx, q, s.opts.Evaluator)
}

// QueryHitsAll returns the hit count of every query, evaluated against one
// snapshot.
func (s *Store) QueryHitsAll(ctx context.Context, qs ...Query) ([]int, error) {
	snap := s.current.Load()
	result := make([]int, len(qs))
	for i, q := range qs {
		s.countQuery(q)
		n, err := snap.hits(ctx, q, s.opts.Evaluator)
		if err != nil {
			return nil, err
		}
		result[i] = n
	}
	return result, nil
}

// GetObjectByID returns the stored feature or geometry with the given
// identifier, or nil.
func (s *Store) GetObjectByID(id string) feature.Node {
	return s.current.Load().get(id)
}

// Envelope returns the aggregate envelope of a feature type, or false if the
// type has no features with geometry. The envelope is expressed in the
// storage CRS, or WGS84 when none is configured.
func (s *Store) Envelope(typeName string) (feature.Envelope, bool) {
	return s.current.Load().envelope(typeName)
}

// Stats describes the published snapshot.
func (s *Store) Stats() Stats {
	snap := s.current.Load()

	s.mu.Lock()
	active := s.active != nil
	s.mu.Unlock()

	return Stats{
		Features:          snap.counts(),
		Objects:           len(snap.lookup),
		ActiveTransaction: active,
	}
}

func (s *Store) countQuery(q Query) {
	name := "_ids"
	if len(q.TypeNames) > 0 {
		name = q.TypeNames[0]
	}
	if _, ok := s.schema.FeatureType(name); !ok && name != "_ids" {
		name = "_unknown"
	}
	s.metrics.QueriesTotal.WithLabelValues(name).Inc()
}

// published updates the metrics after snap became current.
func (s *Store) published(snap *snapshot) {
	for name, n := range snap.counts() {
		s.metrics.Features.WithLabelValues(name).Set(float64(n))
	}
}
