// Package geometry normalizes geometries before they enter the feature store:
// it resolves coordinate reference systems, linearizes curves and reprojects
// into the store's canonical system.
package geometry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// CRS describes a coordinate reference system known to a Registry.
type CRS struct {
	// Name is the canonical name, e.g. "EPSG:4326".
	Name string

	// EPSG is the EPSG code.
	EPSG int

	// Geographic is true for lon/lat systems, whose coordinates are range
	// checked.
	Geographic bool
}

// Well-known systems registered by DefaultRegistry.
var (
	WGS84 = CRS{Name: "EPSG:4326", EPSG: 4326, Geographic: true}

	WebMercator = CRS{Name: "EPSG:3857", EPSG: 3857}
)

// Registry resolves CRS names and aliases.
//
// Names are matched case-insensitively. EPSG codes in URN and URL form
// ("urn:ogc:def:crs:EPSG::4326", "http://www.opengis.net/def/crs/EPSG/0/4326")
// resolve to the registered code.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]CRS
	byCode map[int]CRS
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]CRS),
		byCode: make(map[int]CRS),
	}
}

// DefaultRegistry returns a registry with WGS84 and Web Mercator.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(WGS84, "CRS:84", "WGS84", "OGC:CRS84")
	r.Register(WebMercator, "EPSG:900913", "EPSG:3785")
	return r
}

// Register adds a system and optional aliases.
func (r *Registry) Register(crs CRS, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[normalizeName(crs.Name)] = crs
	for _, alias := range aliases {
		r.byName[normalizeName(alias)] = crs
	}
	if crs.EPSG != 0 {
		r.byCode[crs.EPSG] = crs
	}
}

// Resolve returns the system with the given name.
func (r *Registry) Resolve(name string) (CRS, error) {
	if strings.TrimSpace(name) == "" {
		return CRS{}, &ErrUnknownCRS{Name: name}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if crs, ok := r.byName[normalizeName(name)]; ok {
		return crs, nil
	}
	if code, ok := epsgCode(name); ok {
		if crs, ok := r.byCode[code]; ok {
			return crs, nil
		}
	}
	return CRS{}, &ErrUnknownCRS{Name: name}
}

// Same reports whether two names resolve to the same system.
func (r *Registry) Same(a, b string) (bool, error) {
	ca, err := r.Resolve(a)
	if err != nil {
		return false, err
	}
	cb, err := r.Resolve(b)
	if err != nil {
		return false, err
	}
	return ca.Name == cb.Name, nil
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// epsgCode extracts the trailing EPSG code from the common name forms:
//
//	EPSG:4326
//	urn:ogc:def:crs:EPSG::4326
//	urn:ogc:def:crs:EPSG:6.6:4326
//	http://www.opengis.net/def/crs/EPSG/0/4326
//	http://www.opengis.net/gml/srs/epsg.xml#4326
func epsgCode(name string) (int, bool) {
	upper := normalizeName(name)
	if !strings.Contains(upper, "EPSG") {
		return 0, false
	}
	i := strings.LastIndexAny(upper, ":/#")
	if i < 0 || i == len(upper)-1 {
		return 0, false
	}
	code, err := strconv.Atoi(upper[i+1:])
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

// String returns the canonical name.
func (c CRS) String() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}
