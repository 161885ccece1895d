package featurestore

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/filter"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	buoyType = &feature.FeatureType{
		Name: "Buoy",
		Properties: []feature.PropertyDecl{
			{Name: "name", MinOccurs: 1, MaxOccurs: 1, Kind: feature.KindSimple},
			{Name: "color", MinOccurs: 0, MaxOccurs: 2, Kind: feature.KindSimple},
			{Name: "depth", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindSimple},
			{Name: "position", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometryPoint},
		},
	}
	areaType = &feature.FeatureType{
		Name: "Area",
		Properties: []feature.PropertyDecl{
			{Name: "name", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindSimple},
			{Name: "extent", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindGeometry, Geometry: feature.GeometrySurface},
			{Name: "track", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindGeometry},
			{Name: "part", MinOccurs: 0, MaxOccurs: feature.Unbounded, Kind: feature.KindFeature},
		},
	}
	tType = &feature.FeatureType{
		Name: "T",
		Properties: []feature.PropertyDecl{
			{Name: "label", MinOccurs: 0, MaxOccurs: 1, Kind: feature.KindSimple},
		},
	}
	testSchema = feature.NewSchema(buoyType, areaType, tType)
)

// fakeClock is a manually advanced clock safe for concurrent use.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore(t *testing.T, mutate ...func(*Options)) *Store {
	t.Helper()
	opts := DefaultOptions()
	opts.Logger = quietLogger()
	opts.AcquirePollInterval = 5 * time.Millisecond
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(testSchema, opts)
	require.NoError(t, err)
	return s
}

func buoyAt(id, name string, x, y float64) *feature.Feature {
	return feature.NewFeature(id, buoyType,
		feature.Property{Name: "name", Value: name},
		feature.Property{Name: "position", Value: &feature.Geometry{CRS: "EPSG:4326", Value: orb.Point{x, y}}},
	)
}

// insertCommitted inserts features in their own transaction and commits.
func insertCommitted(t *testing.T, s *Store, mode IDGenMode, features ...*feature.Feature) []string {
	t.Helper()
	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	ids, err := tx.PerformInsert(feature.NewCollection(nil, features...), mode)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return ids
}

func typeQuery(name string) Query {
	return Query{TypeNames: []string{name}}
}

func collectIDs(t *testing.T, stream *FeatureStream) []string {
	t.Helper()
	features, err := stream.Collect()
	require.NoError(t, err)
	return featureIDs(features)
}

func TestNew(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.Error(t, err)

	opts := DefaultOptions()
	opts.StorageCRS = "EPSG:1234"
	_, err = New(testSchema, opts)
	var crsErr *ErrCRS
	assert.ErrorAs(t, err, &crsErr)

	s := newTestStore(t)
	assert.Equal(t, testSchema, s.Schema())
	stats := s.Stats()
	assert.Equal(t, map[string]int{"Buoy": 0, "Area": 0, "T": 0}, stats.Features)
	assert.False(t, stats.ActiveTransaction)
}

// TestConcreteScenario walks an empty store through insert, lookup, count
// and delete.
func TestConcreteScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids := insertCommitted(t, s, UseExisting,
		feature.NewFeature("A", tType),
		feature.NewFeature("B", tType),
		feature.NewFeature("", tType),
	)
	require.Len(t, ids, 3)
	assert.Equal(t, "A", ids[0])
	assert.Equal(t, "B", ids[1])
	assert.Regexp(t, "^FEATURE_", ids[2])

	a, ok := s.GetObjectByID("A").(*feature.Feature)
	require.True(t, ok)
	assert.Equal(t, "A", a.ID)

	hits, err := s.QueryHits(ctx, typeQuery("T"))
	require.NoError(t, err)
	assert.Equal(t, 3, hits)

	tx, err := s.AcquireTransaction(ctx)
	require.NoError(t, err)
	n, err := tx.PerformDeleteByID([]string{"A"}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, tx.Commit())

	hits, err = s.QueryHits(ctx, typeQuery("T"))
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
	assert.Nil(t, s.GetObjectByID("A"))
}

func TestRoundTripGenerateNew(t *testing.T) {
	s := newTestStore(t)

	const n = 25
	features := make([]*feature.Feature, n)
	for i := range features {
		features[i] = buoyAt("supplied", "buoy", float64(i), float64(i))
	}
	ids := insertCommitted(t, s, GenerateNew, features...)

	unique := make(map[string]bool)
	for _, id := range ids {
		assert.NotEqual(t, "supplied", id)
		unique[id] = true
	}
	assert.Len(t, unique, n)

	stream, err := s.Query(context.Background(), typeQuery("Buoy"))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, collectIDs(t, stream))

	// Geometries received identifiers too and resolve through the lookup.
	for _, f := range features {
		g := f.Geometries()[0]
		assert.Regexp(t, "^GEOMETRY_", g.ID)
		assert.Same(t, g, s.GetObjectByID(g.ID))
	}
	assert.Equal(t, 2*n, s.Stats().Objects)
}

func TestMutualExclusion(t *testing.T) {
	s := newTestStore(t)

	const workers = 8
	var (
		active    atomic.Int32
		maxActive atomic.Int32
		wg        sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.AcquireTransaction(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			now := active.Add(1)
			for {
				prev := maxActive.Load()
				if now <= prev || maxActive.CompareAndSwap(prev, now) {
					break
				}
			}
			_, err = tx.PerformInsert(feature.NewCollection(nil, feature.NewFeature("", tType)), GenerateNew)
			assert.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			assert.NoError(t, tx.Commit())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	hits, err := s.QueryHits(context.Background(), typeQuery("T"))
	require.NoError(t, err)
	assert.Equal(t, workers, hits)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Stats().ActiveTransaction)

	acquired := make(chan *Transaction)
	go func() {
		next, err := s.AcquireTransaction(context.Background())
		assert.NoError(t, err)
		acquired <- next
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired while the first is active")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, tx.Rollback())

	select {
	case next := <-acquired:
		assert.Equal(t, Active, next.State())
		require.NoError(t, next.Rollback())
	case <-time.After(time.Second):
		t.Fatal("second transaction not acquired after rollback")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = s.AcquireTransaction(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestLeaseReclaim covers the lease that replaces thread-liveness detection:
// an owner that stops renewing loses the transaction once its lease expires,
// rather than when its goroutine dies.
func TestLeaseReclaim(t *testing.T) {
	clock := newFakeClock()
	reg := prometheus.NewRegistry()
	s := newTestStore(t, func(o *Options) {
		o.Clock = clock.Now
		o.LeaseTimeout = time.Minute
		o.Registerer = reg
	})

	stale, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	_, err = stale.PerformInsert(feature.NewCollection(nil, feature.NewFeature("STALE", tType)), UseExisting)
	require.NoError(t, err)

	acquired := make(chan *Transaction)
	go func() {
		tx, err := s.AcquireTransaction(context.Background())
		assert.NoError(t, err)
		acquired <- tx
	}()

	select {
	case <-acquired:
		t.Fatal("lease reclaimed before it expired")
	case <-time.After(30 * time.Millisecond):
	}

	clock.Advance(time.Minute)

	var next *Transaction
	select {
	case next = <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expired lease was not reclaimed")
	}

	err = stale.Commit()
	var notOwner *ErrNotOwner
	require.ErrorAs(t, err, &notOwner)
	assert.ErrorIs(t, err, ErrLeaseExpired)

	_, err = stale.PerformDeleteByID([]string{"x"}, "")
	assert.ErrorIs(t, err, ErrLeaseExpired)

	require.NoError(t, next.Commit())
	assert.Nil(t, s.GetObjectByID("STALE"), "reclaimed work must not be published")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.LeasesReclaimed))

	err = stale.Rollback()
	assert.ErrorIs(t, err, ErrLeaseExpired)
	assert.Equal(t, RolledBack, stale.State())
}

func TestRenewExtendsLease(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, func(o *Options) {
		o.Clock = clock.Now
		o.LeaseTimeout = time.Minute
	})

	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)

	clock.Advance(40 * time.Second)
	require.NoError(t, tx.Renew())
	clock.Advance(40 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = s.AcquireTransaction(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit())
}

func TestTransactionClosed(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, Committed, tx.State())

	_, err = tx.PerformInsert(feature.NewCollection(nil), UseExisting)
	assert.ErrorIs(t, err, ErrTransactionClosed)
	_, err = tx.PerformDelete("T", nil, "")
	assert.ErrorIs(t, err, ErrTransactionClosed)
	_, err = tx.PerformUpdate("T", nil, nil, "")
	assert.ErrorIs(t, err, ErrTransactionClosed)
	assert.ErrorIs(t, tx.Commit(), ErrTransactionClosed)
	assert.ErrorIs(t, tx.Rollback(), ErrTransactionClosed)
	assert.ErrorIs(t, tx.Renew(), ErrTransactionClosed)

	rb, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, rb.Rollback())
	assert.Equal(t, RolledBack, rb.State())
	assert.ErrorIs(t, rb.Commit(), ErrTransactionClosed)
}

func TestSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting, buoyAt("keep", "Keep", 0, 0), buoyAt("gone", "Gone", 1, 1))

	tx, err := s.AcquireTransaction(ctx)
	require.NoError(t, err)
	_, err = tx.PerformInsert(feature.NewCollection(nil, buoyAt("new", "New", 2, 2)), UseExisting)
	require.NoError(t, err)
	_, err = tx.PerformDeleteByID([]string{"gone"}, "")
	require.NoError(t, err)
	_, err = tx.PerformUpdate("Buoy", []PropertyReplacement{{Name: "name", Value: "Kept", HasValue: true}},
		filter.NewIDFilter("keep"), "")
	require.NoError(t, err)

	// Readers still see the published snapshot.
	stream, err := s.Query(ctx, typeQuery("Buoy"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep", "gone"}, collectIDs(t, stream))
	assert.Nil(t, s.GetObjectByID("new"))
	keep := s.GetObjectByID("keep").(*feature.Feature)
	name, _ := keep.Value("name")
	assert.Equal(t, "Keep", name)

	hits, err := s.QueryHits(ctx, Query{
		TypeNames: []string{"Buoy"},
		BBox:      &feature.Envelope{MinX: 1.5, MinY: 1.5, MaxX: 3, MaxY: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, hits)

	require.NoError(t, tx.Commit())

	stream, err = s.Query(ctx, typeQuery("Buoy"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"keep", "new"}, collectIDs(t, stream))
	updated := s.GetObjectByID("keep").(*feature.Feature)
	name, _ = updated.Value("name")
	assert.Equal(t, "Kept", name)

	// The feature object published before the commit was never mutated.
	name, _ = keep.Value("name")
	assert.Equal(t, "Keep", name)
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	insertCommitted(t, s, UseExisting, buoyAt("seed", "Seed", 0, 0))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				stream, err := s.Query(ctx, Query{
					TypeNames: []string{"Buoy"},
					BBox:      &feature.Envelope{MinX: -1, MinY: -1, MaxX: 100, MaxY: 100},
				})
				if !assert.NoError(t, err) {
					return
				}
				features, err := stream.Collect()
				assert.NoError(t, err)
				assert.NotEmpty(t, features)
			}
		}()
	}

	for i := 0; i < 20; i++ {
		tx, err := s.AcquireTransaction(ctx)
		require.NoError(t, err)
		_, err = tx.PerformInsert(feature.NewCollection(nil, buoyAt("", "b", float64(i), float64(i))), GenerateNew)
		require.NoError(t, err)
		_, err = tx.PerformUpdate("Buoy", []PropertyReplacement{{Name: "depth", Value: i, HasValue: true}}, nil, "")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}
	close(stop)
	wg.Wait()

	hits, err := s.QueryHits(ctx, typeQuery("Buoy"))
	require.NoError(t, err)
	assert.Equal(t, 21, hits)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, func(o *Options) { o.Registerer = reg })

	insertCommitted(t, s, GenerateNew, buoyAt("", "a", 0, 0), buoyAt("", "b", 1, 1))
	tx, err := s.AcquireTransaction(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	_, err = s.QueryHits(context.Background(), typeQuery("Buoy"))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.TransactionsAcquired))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.TransactionsCommitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.TransactionsRolledBack))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.Features.WithLabelValues("Buoy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.QueriesTotal.WithLabelValues("Buoy")))
}

func TestEnvelope(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Envelope("Buoy")
	assert.False(t, ok)

	insertCommitted(t, s, GenerateNew, buoyAt("", "a", -2, 1), buoyAt("", "b", 3, 4))
	env, ok := s.Envelope("Buoy")
	require.True(t, ok)
	assert.Equal(t, feature.Envelope{MinX: -2, MinY: 1, MaxX: 3, MaxY: 4}, env)

	_, ok = s.Envelope("Nope")
	assert.False(t, ok)
}

func sortedIDs(features []*feature.Feature) []string {
	ids := featureIDs(features)
	sort.Strings(ids)
	return ids
}
