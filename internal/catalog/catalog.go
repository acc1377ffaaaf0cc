// Package catalog describes output rasters as STAC items so downstream tools
// can discover them without parsing file names.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/shread/pkg/geojson"
)

// Version is the STAC version written to every item.
const Version = "1.0.0"

// Dir is the catalog subdirectory of the output directory.
const Dir = "stac"

const geotiffType = "image/tiff; application=geotiff"

// Raster describes one output GeoTIFF.
type Raster struct {
	Path     string
	Product  string
	Variable string
	Source   string
	Basin    string
	Units    string
	EPSG     int
	Date     time.Time
	// InitTime and ValidTime are set for forecasts.
	InitTime  time.Time
	ValidTime time.Time
	// BBox is the geographic basin extent.
	BBox []float64
}

// ItemID is the raster file name without its extension.
func (r Raster) ItemID() string {
	base := filepath.Base(r.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewItem builds the STAC item of r. The data asset href is relative to the
// item document.
func NewItem(r Raster) (*stac.Item, error) {
	if r.Path == "" {
		return nil, fmt.Errorf("raster has no path")
	}
	item := &stac.Item{
		Version:    Version,
		Id:         r.ItemID(),
		Collection: r.Product,
		Properties: make(map[string]any),
		Assets:     make(map[string]*stac.Asset),
		Links:      make([]*stac.Link, 0),
	}

	if len(r.BBox) == 4 {
		geom, err := geojson.NewPolygonFromBBox(r.BBox)
		if err != nil {
			return nil, fmt.Errorf("failed to build footprint: %w", err)
		}
		item.Geometry = geom
		item.Bbox = r.BBox
	}

	when := r.Date
	if !r.ValidTime.IsZero() {
		when = r.ValidTime
		item.Properties["forecast:reference_datetime"] = r.InitTime.UTC().Format(time.RFC3339)
	}
	item.Properties["datetime"] = when.UTC().Format(time.RFC3339)
	item.Properties["shread:variable"] = r.Variable
	item.Properties["shread:units"] = r.Units
	item.Properties["shread:basin"] = r.Basin
	if r.EPSG != 0 {
		item.Properties["proj:epsg"] = r.EPSG
	}
	if r.Source != "" {
		item.Properties["providers"] = []map[string]any{
			{"name": r.Source, "roles": []string{"producer"}},
		}
	}

	item.Assets["data"] = &stac.Asset{
		Href:  "../" + filepath.Base(r.Path),
		Title: r.Product + " " + r.Variable,
		Type:  geotiffType,
		Roles: []string{"data"},
	}
	item.Links = append(item.Links, &stac.Link{
		Rel:  "self",
		Href: "./" + item.Id + ".json",
		Type: "application/geo+json",
	})
	return item, nil
}

// Write stores item under <outputDir>/stac/<id>.json and returns the path.
func Write(outputDir string, item *stac.Item) (string, error) {
	dir := filepath.Join(outputDir, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create catalog directory: %w", err)
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode item %s: %w", item.Id, err)
	}
	path := filepath.Join(dir, item.Id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
