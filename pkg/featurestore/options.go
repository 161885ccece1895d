package featurestore

import (
	"time"

	"github.com/beetlebugorg/featurestore/internal/index"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/beetlebugorg/featurestore/pkg/geometry"
	"github.com/beetlebugorg/featurestore/pkg/lock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options configures a Store.
type Options struct {
	// StorageCRS is the canonical reference system. When set, inserted
	// geometries are linearized and reprojected into it. When empty,
	// geometries keep their coordinates but must declare a resolvable system.
	StorageCRS string

	// LinearizationPoints is the number of points generated per arc.
	LinearizationPoints int

	// LeaseTimeout bounds how long a transaction may go without an operation
	// or Renew before a waiting acquirer may reclaim it.
	LeaseTimeout time.Duration

	// AcquirePollInterval is how often a blocked AcquireTransaction re-checks
	// the active lease without an explicit wakeup.
	AcquirePollInterval time.Duration

	// R-tree branching of the per-type spatial indexes.
	IndexMinChildren int
	IndexMaxChildren int

	Logger      *logrus.Logger        // Defaults to logrus.New()
	Registerer  prometheus.Registerer // Nil leaves metrics unregistered
	LockManager lock.Manager          // Defaults to lock.NoLocks
	Evaluator   filter.Evaluator      // Defaults to filter.DefaultEvaluator
	Transformer geometry.Transformer  // Defaults to an orb projection transformer
	Linearizer  geometry.Linearizer   // Defaults to geometry.ArcLinearizer
	CRSRegistry *geometry.Registry    // Defaults to geometry.DefaultRegistry()
	Clock       func() time.Time      // Defaults to time.Now
}

// DefaultOptions returns default options.
func DefaultOptions() Options {
	return Options{
		StorageCRS:          "",
		LinearizationPoints: geometry.DefaultLinearizationPoints,
		LeaseTimeout:        30 * time.Second,
		AcquirePollInterval: 2 * time.Second,
		IndexMinChildren:    index.DefaultMinChildren,
		IndexMaxChildren:    index.DefaultMaxChildren,
	}
}

// withDefaults fills every unset field.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.LinearizationPoints <= 0 {
		o.LinearizationPoints = def.LinearizationPoints
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = def.LeaseTimeout
	}
	if o.AcquirePollInterval <= 0 {
		o.AcquirePollInterval = def.AcquirePollInterval
	}
	if o.IndexMinChildren <= 0 {
		o.IndexMinChildren = def.IndexMinChildren
	}
	if o.IndexMaxChildren <= o.IndexMinChildren {
		o.IndexMaxChildren = max(def.IndexMaxChildren, 2*o.IndexMinChildren)
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.LockManager == nil {
		o.LockManager = lock.NoLocks{}
	}
	if o.Evaluator == nil {
		o.Evaluator = filter.DefaultEvaluator{}
	}
	if o.CRSRegistry == nil {
		o.CRSRegistry = geometry.DefaultRegistry()
	}
	if o.Transformer == nil {
		o.Transformer = geometry.NewTransformer(o.CRSRegistry)
	}
	if o.Linearizer == nil {
		o.Linearizer = geometry.ArcLinearizer{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// normalizer builds the geometry normalizer for the options.
func (o Options) normalizer() *geometry.Normalizer {
	return &geometry.Normalizer{
		StorageCRS:  o.StorageCRS,
		Points:      o.LinearizationPoints,
		Registry:    o.CRSRegistry,
		Transformer: o.Transformer,
		Linearizer:  o.Linearizer,
	}
}
