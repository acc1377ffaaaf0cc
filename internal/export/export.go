// Package export writes zonal summary tables as CSV and GeoJSON, tagging every
// row with the provenance of the raster or report it summarizes.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/robert-malhotra/shread/pkg/geojson"
)

// DateLayout is the provenance timestamp format.
const DateLayout = "2006-01-02 15:04"

// Provenance columns.
const (
	ColSource    = "Source"
	ColType      = "Type"
	ColDate      = "Date"
	ColDateInit  = "Date_Init"
	ColDateValid = "Date_Valid"
)

// StatColumns are the measure columns of raster summaries.
var StatColumns = []string{"min", "max", "median", "mean"}

// Provenance identifies what a table summarizes.
type Provenance struct {
	Source string
	// Type is the summarized variable.
	Type string
	Date time.Time
	// InitTime and ValidTime are set for forecasts.
	InitTime  time.Time
	ValidTime time.Time
}

// IsForecast reports whether the forecast columns are written.
func (p Provenance) IsForecast() bool {
	return !p.InitTime.IsZero()
}

// Columns returns the provenance column names in output order.
func (p Provenance) Columns() []string {
	cols := []string{ColSource, ColType, ColDate}
	if p.IsForecast() {
		cols = append(cols, ColDateInit, ColDateValid)
	}
	return cols
}

// Values returns the provenance values keyed by column.
func (p Provenance) Values() map[string]string {
	v := map[string]string{
		ColSource: p.Source,
		ColType:   p.Type,
		ColDate:   p.Date.UTC().Format(DateLayout),
	}
	if p.IsForecast() {
		v[ColDateInit] = p.InitTime.UTC().Format(DateLayout)
		v[ColDateValid] = p.ValidTime.UTC().Format(DateLayout)
	}
	return v
}

// Record is one summarized feature.
type Record struct {
	Geometry *geojson.Geometry
	// Attributes are the feature's own properties.
	Attributes map[string]any
	// Measures are keyed by the table's Measures columns.
	Measures map[string]any
}

// Table is a set of records sharing provenance and measure columns.
type Table struct {
	Provenance Provenance
	Measures   []string
	Records    []Record
}

// Columns returns the header: sorted attribute names, then the measure
// columns, then provenance. Attributes shadowed by a measure or provenance
// column are dropped.
func (t *Table) Columns() []string {
	reserved := make(map[string]bool)
	for _, c := range t.Measures {
		reserved[c] = true
	}
	prov := t.Provenance.Columns()
	for _, c := range prov {
		reserved[c] = true
	}

	seen := make(map[string]bool)
	var attrs []string
	for _, r := range t.Records {
		for k := range r.Attributes {
			if !seen[k] && !reserved[k] {
				seen[k] = true
				attrs = append(attrs, k)
			}
		}
	}
	sort.Strings(attrs)

	cols := make([]string, 0, len(attrs)+len(t.Measures)+len(prov))
	cols = append(cols, attrs...)
	cols = append(cols, t.Measures...)
	return append(cols, prov...)
}

// properties merges a record's attributes, measures and the provenance.
func (t *Table) properties(r Record) map[string]any {
	props := make(map[string]any, len(r.Attributes)+len(r.Measures)+5)
	for k, v := range r.Attributes {
		props[k] = v
	}
	for _, c := range t.Measures {
		props[c] = r.Measures[c]
	}
	for k, v := range t.Provenance.Values() {
		props[k] = v
	}
	return props
}

// WriteCSV writes t to path with a header row.
func WriteCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	cols := t.Columns()
	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(cols))
	for _, r := range t.Records {
		props := t.properties(r)
		for i, c := range cols {
			row[i] = formatValue(props[c])
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// WriteGeoJSON writes t to path as a feature collection.
func WriteGeoJSON(path string, t *Table) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range t.Records {
		fc.Features = append(fc.Features, geojson.NewFeature(r.Geometry, t.properties(r)))
	}
	if err := geojson.WriteFile(path, fc); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
