// Package config reads the feature store configuration: store options and
// the application schema from a YAML file, overridden by FEATURESTORE_*
// environment variables (optionally loaded from .env files).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beetlebugorg/featurestore/pkg/feature"
	"github.com/beetlebugorg/featurestore/pkg/featurestore"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEATURESTORE_"

// Config is the file representation of a store configuration.
type Config struct {
	StorageCRS          string `yaml:"storageCRS"`
	LinearizationPoints int    `yaml:"linearizationPoints"`
	LeaseTimeout        string `yaml:"leaseTimeout"`        // Go duration, e.g. "30s"
	AcquirePollInterval string `yaml:"acquirePollInterval"` // Go duration
	IndexMinChildren    int    `yaml:"indexMinChildren"`
	IndexMaxChildren    int    `yaml:"indexMaxChildren"`
	LogLevel            string `yaml:"logLevel"`
	MetricsAddr         string `yaml:"metricsAddr"`

	FeatureTypes []FeatureType `yaml:"featureTypes"`
}

// FeatureType declares one feature type of the application schema.
type FeatureType struct {
	Name       string     `yaml:"name"`
	Properties []Property `yaml:"properties"`
}

// Property declares one property of a feature type.
type Property struct {
	Name      string `yaml:"name"`
	MinOccurs int    `yaml:"minOccurs"`
	MaxOccurs *int   `yaml:"maxOccurs"` // Defaults to 1; -1 is unbounded
	Kind      string `yaml:"kind"`      // simple (default), geometry, feature, custom
	Geometry  string `yaml:"geometry"`  // any (default), point, curve, surface
}

// Load reads and parses a configuration file and applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields with FEATURESTORE_* variables looked up through
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v := getenv(EnvPrefix + name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("STORAGE_CRS", &c.StorageCRS)
	str("LEASE_TIMEOUT", &c.LeaseTimeout)
	str("ACQUIRE_POLL_INTERVAL", &c.AcquirePollInterval)
	str("LOG_LEVEL", &c.LogLevel)
	str("METRICS_ADDR", &c.MetricsAddr)
	if err := num("LINEARIZATION_POINTS", &c.LinearizationPoints); err != nil {
		return err
	}
	if err := num("INDEX_MIN_CHILDREN", &c.IndexMinChildren); err != nil {
		return err
	}
	return num("INDEX_MAX_CHILDREN", &c.IndexMaxChildren)
}

// Options converts the configuration into store options, starting from
// featurestore.DefaultOptions. Collaborators (logger, registerer, lock
// manager) are left for the caller.
func (c *Config) Options() (featurestore.Options, error) {
	opts := featurestore.DefaultOptions()
	opts.StorageCRS = c.StorageCRS
	if c.LinearizationPoints > 0 {
		opts.LinearizationPoints = c.LinearizationPoints
	}
	if c.IndexMinChildren > 0 {
		opts.IndexMinChildren = c.IndexMinChildren
	}
	if c.IndexMaxChildren > 0 {
		opts.IndexMaxChildren = c.IndexMaxChildren
	}

	var err error
	if opts.LeaseTimeout, err = duration("leaseTimeout", c.LeaseTimeout, opts.LeaseTimeout); err != nil {
		return opts, err
	}
	if opts.AcquirePollInterval, err = duration("acquirePollInterval", c.AcquirePollInterval, opts.AcquirePollInterval); err != nil {
		return opts, err
	}
	return opts, nil
}

func duration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", field, value)
	}
	return d, nil
}

// Level returns the configured log level, info by default.
func (c *Config) Level() (logrus.Level, error) {
	if c.LogLevel == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(c.LogLevel)
}

// Schema builds the application schema from the declared feature types.
func (c *Config) Schema() (*feature.AppSchema, error) {
	if len(c.FeatureTypes) == 0 {
		return nil, fmt.Errorf("no feature types declared")
	}

	seen := make(map[string]struct{}, len(c.FeatureTypes))
	types := make([]*feature.FeatureType, 0, len(c.FeatureTypes))
	for _, ftc := range c.FeatureTypes {
		if ftc.Name == "" {
			return nil, fmt.Errorf("feature type without name")
		}
		if _, dup := seen[ftc.Name]; dup {
			return nil, fmt.Errorf("feature type %s declared twice", ftc.Name)
		}
		seen[ftc.Name] = struct{}{}

		ft := &feature.FeatureType{Name: ftc.Name}
		props := make(map[string]struct{}, len(ftc.Properties))
		for _, pc := range ftc.Properties {
			if _, dup := props[pc.Name]; dup {
				return nil, fmt.Errorf("feature type %s: property %s declared twice", ftc.Name, pc.Name)
			}
			props[pc.Name] = struct{}{}

			decl, err := pc.decl()
			if err != nil {
				return nil, fmt.Errorf("feature type %s: property %s: %w", ftc.Name, pc.Name, err)
			}
			ft.Properties = append(ft.Properties, decl)
		}
		types = append(types, ft)
	}
	return feature.NewSchema(types...), nil
}

func (p Property) decl() (feature.PropertyDecl, error) {
	d := feature.PropertyDecl{Name: p.Name, MinOccurs: p.MinOccurs, MaxOccurs: 1}
	if p.Name == "" {
		return d, fmt.Errorf("missing name")
	}
	if p.MaxOccurs != nil {
		d.MaxOccurs = *p.MaxOccurs
	}
	if d.MinOccurs < 0 || (d.MaxOccurs != feature.Unbounded && d.MaxOccurs < d.MinOccurs) {
		return d, fmt.Errorf("invalid occurrence [%d, %d]", d.MinOccurs, d.MaxOccurs)
	}

	switch strings.ToLower(p.Kind) {
	case "", "simple":
		d.Kind = feature.KindSimple
	case "geometry":
		d.Kind = feature.KindGeometry
	case "feature":
		d.Kind = feature.KindFeature
	case "custom":
		d.Kind = feature.KindCustom
	default:
		return d, fmt.Errorf("unknown kind %q", p.Kind)
	}

	switch strings.ToLower(p.Geometry) {
	case "", "any":
		d.Geometry = feature.GeometryAny
	case "point":
		d.Geometry = feature.GeometryPoint
	case "curve":
		d.Geometry = feature.GeometryCurve
	case "surface":
		d.Geometry = feature.GeometrySurface
	default:
		return d, fmt.Errorf("unknown geometry requirement %q", p.Geometry)
	}
	if d.Geometry != feature.GeometryAny && d.Kind != feature.KindGeometry {
		return d, fmt.Errorf("geometry requirement on %s property", d.Kind)
	}
	return d, nil
}
