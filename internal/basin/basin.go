// Package basin loads the configured drainage basin geometry and derives the
// geographic extent and MODIS tiles that drive product downloads.
package basin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
	"github.com/robert-malhotra/shread/internal/tiles"
	"github.com/robert-malhotra/shread/pkg/geojson"
)

const geographicEPSG = 4326

// Basin is the resolved spatial context for a run.
type Basin struct {
	Name string

	// PolyPath is a GeoJSON copy of the basin polygons in the output SRS,
	// used as the clip cutline.
	PolyPath string
	Polygons *geojson.FeatureCollection

	// Points is nil unless point output was requested.
	PointsPath string
	Points     *geojson.FeatureCollection

	// BBox is [lon_min, lat_min, lon_max, lat_max] in EPSG:4326.
	BBox []float64
	// Tiles are the MODIS sinusoidal tiles intersecting BBox.
	Tiles []string
}

// Resolve converts the basin vector files into the output SRS under
// <work>/basin and computes the geographic bbox and tile set.
func Resolve(cfg *config.RunConfig, engine raster.Engine) (*Basin, error) {
	dir := filepath.Join(cfg.WorkDir, "basin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create basin directory: %w", err)
	}

	b := &Basin{Name: cfg.BasinName}

	var err error
	b.PolyPath = filepath.Join(dir, cfg.BasinName+"_poly.geojson")
	b.Polygons, err = load(engine, cfg.BasinPolyPath, b.PolyPath, cfg.OutputEPSG)
	if err != nil {
		return nil, fmt.Errorf("basin polygons: %w", err)
	}
	for i, f := range b.Polygons.Features {
		if f.Geometry == nil || (f.Geometry.Type != "Polygon" && f.Geometry.Type != "MultiPolygon") {
			return nil, fmt.Errorf("basin polygons: feature %d is not a polygon", i)
		}
	}

	if cfg.Wants(config.OutputPoints) {
		b.PointsPath = filepath.Join(dir, cfg.BasinName+"_points.geojson")
		b.Points, err = load(engine, cfg.BasinPointsPath, b.PointsPath, cfg.OutputEPSG)
		if err != nil {
			return nil, fmt.Errorf("basin points: %w", err)
		}
	}

	geo := b.Polygons
	if cfg.OutputEPSG != geographicEPSG {
		geo, err = load(engine, cfg.BasinPolyPath, filepath.Join(dir, cfg.BasinName+"_poly_4326.geojson"), geographicEPSG)
		if err != nil {
			return nil, fmt.Errorf("basin polygons in EPSG:4326: %w", err)
		}
	}
	b.BBox, err = geo.BBox()
	if err != nil {
		return nil, fmt.Errorf("basin bbox: %w", err)
	}
	b.Tiles = tiles.Find(b.BBox)

	return b, nil
}

func load(engine raster.Engine, src, dst string, epsg int) (*geojson.FeatureCollection, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, err
	}
	// left over from an earlier run
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale %s: %w", dst, err)
	}
	if err := engine.VectorToGeoJSON(src, dst, epsg); err != nil {
		return nil, err
	}
	fc, err := geojson.ReadFile(dst)
	if err != nil {
		return nil, err
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("%s has no features", src)
	}
	return fc, nil
}
