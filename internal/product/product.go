// Package product implements the per-product stages of the snow data
// pipeline. Each product resolves its remote payloads, normalizes them into
// clipped rasters in the output reference system and derives the unit
// converted outputs. Summaries and cleanup are shared and live in pipeline.
package product

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
	"github.com/robert-malhotra/shread/pkg/geojson"
)

// Product names.
const (
	SNODAS  = "snodas"
	SRPT    = "srpt"
	MODSCAG = "modscag"
	MODDRFS = "moddrfs"
	MODIS   = "modis"
	SWANN   = "swann"
	NDFD    = "ndfd"
)

// Names lists every product in canonical order.
var Names = []string{SNODAS, SRPT, MODSCAG, MODDRFS, MODIS, SWANN, NDFD}

// Product is one snow data source.
type Product interface {
	Descriptor() Descriptor
	// Jobs expands the run dates into independent units of work.
	Jobs(dates []time.Time) []Job
	// Fetch retrieves the raw payloads of a job into its working directory.
	Fetch(ctx context.Context, env *Env, job Job) error
	// Normalize unpacks, reprojects and clips the raw payloads.
	Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error)
	// Derive applies unit conversions and derived variables and writes the
	// final outputs.
	Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error)
}

// ConversionKey selects a conversion by variable and unit system.
type ConversionKey struct {
	Variable   string
	UnitSystem string
}

// Descriptor is the declarative part of a product.
type Descriptor struct {
	Name string
	// Source is written to the provenance Source column.
	Source    string
	Variables []string
	NoData    float64
	// Ceiling, when non-nil, marks values strictly above it as nodata.
	Ceiling     *float64
	Conversions map[ConversionKey]raster.Conversion
	// Concurrent products run their per-date jobs through the worker pool.
	Concurrent bool
	// Forecast products carry init and valid times.
	Forecast bool
}

// Conversion returns the conversion for variable in unitSystem, or Identity
// when none is declared.
func (d Descriptor) Conversion(variable, unitSystem string) raster.Conversion {
	if c, ok := d.Conversions[ConversionKey{variable, unitSystem}]; ok {
		return c
	}
	return raster.Identity
}

// Job is one (product, date[, key]) unit of work.
type Job struct {
	Product string
	Date    time.Time
	// Key is a tile id, forecast parameter or empty.
	Key string
}

// ID names the job's working directory: YYYYMMDD[_key].
func (j Job) ID() string {
	id := j.Date.Format("20060102")
	if j.Key != "" {
		id += "_" + j.Key
	}
	return id
}

func (j Job) String() string {
	return j.Product + "/" + j.ID()
}

// Layer is a normalized or derived artifact.
type Layer struct {
	Variable string
	// Path is a GeoTIFF; empty for point layers.
	Path string
	Date time.Time
	// InitTime and ValidTime are set for forecasts.
	InitTime  time.Time
	ValidTime time.Time
	// Points holds point observations in the output reference system.
	Points *geojson.FeatureCollection
}

// IsForecast reports whether the layer carries forecast times.
func (l Layer) IsForecast() bool {
	return !l.InitTime.IsZero()
}

// Stamp returns the date token used in output names: YYYYMMDD, plus HH for
// forecasts.
func (l Layer) Stamp() string {
	if l.IsForecast() {
		return l.ValidTime.UTC().Format("2006010215")
	}
	return l.Date.Format("20060102")
}

// OutputName builds <product>_<variable>_<stamp>_<basin>_<units>.
func OutputName(product string, l Layer, basin, units string) string {
	return strings.Join([]string{product, l.Variable, l.Stamp(), basin, units}, "_")
}

// Registry constructs every product from the run configuration.
func Registry(cfg *config.RunConfig, opts ...Option) map[string]Product {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return map[string]Product{
		SNODAS:  &Snodas{},
		SRPT:    &SRPTProduct{},
		MODSCAG: NewMODSCAG(),
		MODDRFS: NewMODDRFS(),
		MODIS:   &MODISProduct{},
		SWANN:   &SWANNProduct{Clock: o.clock},
		NDFD:    &NDFDProduct{Params: cfg.NDFD.Params, Clock: o.clock},
	}
}

// ParseNames splits a comma separated product list, keeping order and
// dropping duplicates. Unknown names are an error.
func ParseNames(list string) ([]string, error) {
	known := make(map[string]bool, len(Names))
	for _, n := range Names {
		known[n] = true
	}
	var out []string
	seen := make(map[string]bool)
	var unknown []string
	for _, raw := range strings.Split(list, ",") {
		n := strings.ToLower(strings.TrimSpace(raw))
		if n == "" {
			continue
		}
		if !known[n] {
			unknown = append(unknown, n)
			continue
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown products %s, must be a subset of: %s",
			strings.Join(unknown, ", "), strings.Join(Names, ", "))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no products given")
	}
	return out, nil
}

func perDate(name string, dates []time.Time) []Job {
	jobs := make([]Job, 0, len(dates))
	for _, d := range dates {
		jobs = append(jobs, Job{Product: name, Date: d})
	}
	return jobs
}

func ceiling(v float64) *float64 {
	return &v
}
