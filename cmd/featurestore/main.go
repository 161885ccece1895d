// Command featurestore loads GeoJSON files into an in-memory feature store in
// a single transaction and reports what was stored.
//
// Usage:
//
//	featurestore -config store.yaml [-bbox minx,miny,maxx,maxy] [-metrics :9090] file.geojson...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/beetlebugorg/featurestore/internal/config"
	"github.com/beetlebugorg/featurestore/internal/idgen"
	"github.com/beetlebugorg/featurestore/internal/loader"
	"github.com/beetlebugorg/featurestore/internal/metrics"
	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "featurestore.yaml", "Path to the YAML configuration")
	envFile := flag.String("env", ".env", "Optional .env file with FEATURESTORE_* overrides")
	modeName := flag.String("mode", "use_existing", "Identifier mode: generate_new, use_existing or replace_duplicate")
	bbox := flag.String("bbox", "", "Report hits inside minx,miny,maxx,maxy")
	bboxCRS := flag.String("bbox-crs", "", "Reference system of -bbox (default: the store's)")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address after loading")
	flag.Parse()

	log := logrus.New()
	if err := run(log, options{
		configPath:  *configPath,
		envFile:     *envFile,
		mode:        *modeName,
		bbox:        *bbox,
		bboxCRS:     *bboxCRS,
		metricsAddr: *metricsAddr,
		files:       flag.Args(),
	}); err != nil {
		log.WithError(err).Fatal("featurestore failed")
	}
}

type options struct {
	configPath  string
	envFile     string
	mode        string
	bbox        string
	bboxCRS     string
	metricsAddr string
	files       []string
}

func run(log *logrus.Logger, o options) error {
	if err := config.LoadEnv(o.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log.SetLevel(level)

	mode, err := idgen.ParseMode(o.mode)
	if err != nil {
		return err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	opts.Logger = log
	opts.Registerer = reg

	store, err := featurestore.New(schema, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := load(ctx, log, store, loader.New(schema, loader.DefaultOptions()), o.files, mode); err != nil {
		return err
	}
	report(store)

	if o.bbox != "" {
		env, err := parseBBox(o.bbox)
		if err != nil {
			return err
		}
		if err := reportHits(ctx, store, env, o.bboxCRS); err != nil {
			return err
		}
	}

	addr := o.metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr == "" {
		return nil
	}
	return serveMetrics(ctx, log, addr, reg)
}

// load inserts every file in one transaction.
func load(ctx context.Context, log *logrus.Logger, store *featurestore.Store, ld *loader.Loader, files []string, mode featurestore.IDGenMode) error {
	if len(files) == 0 {
		log.Warn("No GeoJSON files given, store stays empty")
		return nil
	}

	tx, err := store.AcquireTransaction(ctx)
	if err != nil {
		return err
	}
	for _, path := range files {
		fc, err := ld.ReadFile(path)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		ids, err := tx.PerformInsert(fc, mode)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", path, err)
		}
		log.WithFields(logrus.Fields{
			"file":     path,
			"features": len(ids),
		}).Info("Loaded file")
	}
	return tx.Commit()
}

func report(store *featurestore.Store) {
	stats := store.Stats()
	fmt.Printf("=== Stored Features ===\n")
	for _, ft := range store.Schema().FeatureTypes() {
		line := fmt.Sprintf("%-20s: %d", ft.Name, stats.Features[ft.Name])
		if env, ok := store.Envelope(ft.Name); ok {
			line += fmt.Sprintf("  [%.6f, %.6f, %.6f, %.6f]", env.MinX, env.MinY, env.MaxX, env.MaxY)
		}
		fmt.Println(line)
	}
	fmt.Printf("Objects: %d\n", stats.Objects)
}

func reportHits(ctx context.Context, store *featurestore.Store, env feature.Envelope, crs string) error {
	types := store.Schema().FeatureTypes()
	queries := make([]featurestore.Query, len(types))
	for i, ft := range types {
		queries[i] = featurestore.Query{TypeNames: []string{ft.Name}, BBox: &env, BBoxCRS: crs}
	}
	hits, err := store.QueryHitsAll(ctx, queries...)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Hits in %s ===\n", formatBBox(env))
	for i, ft := range types {
		fmt.Printf("%-20s: %d\n", ft.Name, hits[i])
	}
	return nil
}

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) (feature.Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return feature.Envelope{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return feature.Envelope{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	env := feature.Envelope{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}
	if !env.Valid() {
		return feature.Envelope{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return env, nil
}

func formatBBox(env feature.Envelope) string {
	return fmt.Sprintf("%g,%g,%g,%g", env.MinX, env.MinY, env.MaxX, env.MaxY)
}

func serveMetrics(ctx context.Context, log *logrus.Logger, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
