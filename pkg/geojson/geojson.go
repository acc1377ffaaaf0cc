// Package geojson provides the GeoJSON geometry and feature types used for
// basin boundaries, station points and summary exports.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature is a GeoJSON feature with free-form properties.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewFeatureCollection returns an empty collection ready for appends.
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: make([]*Feature, 0)}
}

// NewFeature wraps a geometry with a copy of props.
func NewFeature(g *Geometry, props map[string]any) *Feature {
	p := make(map[string]any, len(props))
	for k, v := range props {
		p[k] = v
	}
	return &Feature{Type: "Feature", Geometry: g, Properties: p}
}

// NewPoint creates a Point geometry.
func NewPoint(lon, lat float64) *Geometry {
	coords, _ := json.Marshal([]float64{lon, lat})
	return &Geometry{Type: "Point", Coordinates: coords}
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != "Point" {
		return nil, fmt.Errorf("geometry is not a Point, got %s", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// Polygons returns Polygon and MultiPolygon geometries uniformly as a list
// of polygons, each a list of rings.
func (g *Geometry) Polygons() ([][][][]float64, error) {
	switch g.Type {
	case "Polygon":
		p, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return [][][][]float64{p}, nil
	case "MultiPolygon":
		return g.MultiPolygon()
	default:
		return nil, fmt.Errorf("geometry is not polygonal, got %s", g.Type)
	}
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

type bounds struct {
	minLon, minLat, maxLon, maxLat float64
}

func newBounds() *bounds {
	return &bounds{
		minLon: math.Inf(1), minLat: math.Inf(1),
		maxLon: math.Inf(-1), maxLat: math.Inf(-1),
	}
}

func (b *bounds) extend(point []float64) {
	if len(point) < 2 {
		return
	}
	b.minLon = math.Min(b.minLon, point[0])
	b.maxLon = math.Max(b.maxLon, point[0])
	b.minLat = math.Min(b.minLat, point[1])
	b.maxLat = math.Max(b.maxLat, point[1])
}

func (b *bounds) empty() bool {
	return math.IsInf(b.minLon, 0) || math.IsInf(b.minLat, 0)
}

func (b *bounds) slice() []float64 {
	return []float64{b.minLon, b.minLat, b.maxLon, b.maxLat}
}

// ComputeBBox computes the bounding box of a geometry.
// Returns [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	b := newBounds()
	switch g.Type {
	case "Point":
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		return []float64{coords[0], coords[1], coords[0], coords[1]}, nil

	case "Polygon", "MultiPolygon":
		polys, err := g.Polygons()
		if err != nil {
			return nil, err
		}
		for _, polygon := range polys {
			for _, ring := range polygon {
				for _, point := range ring {
					b.extend(point)
				}
			}
		}

	default:
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	if b.empty() {
		return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	return b.slice(), nil
}

// BBox returns the union bounding box of every feature in the collection.
func (fc *FeatureCollection) BBox() ([]float64, error) {
	if fc == nil || len(fc.Features) == 0 {
		return nil, fmt.Errorf("feature collection is empty")
	}
	b := newBounds()
	for i, f := range fc.Features {
		fb, err := ComputeBBox(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		b.extend(fb[:2])
		b.extend(fb[2:])
	}
	return b.slice(), nil
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]
	coords := [][][]float64{
		{
			{west, south},
			{east, south},
			{east, north},
			{west, north},
			{west, south},
		},
	}

	coordsJSON, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}

	return &Geometry{
		Type:        "Polygon",
		Coordinates: coordsJSON,
	}, nil
}

// Contains reports whether (x, y) lies inside a Polygon or MultiPolygon,
// honoring holes. Points exactly on an edge may fall on either side.
func (g *Geometry) Contains(x, y float64) (bool, error) {
	polys, err := g.Polygons()
	if err != nil {
		return false, err
	}
	for _, rings := range polys {
		if len(rings) == 0 || !ringContains(rings[0], x, y) {
			continue
		}
		inHole := false
		for _, hole := range rings[1:] {
			if ringContains(hole, x, y) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true, nil
		}
	}
	return false, nil
}

// ringContains is the even-odd ray casting test.
func ringContains(ring [][]float64, x, y float64) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			continue
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// ReadFile decodes a FeatureCollection from a GeoJSON file.
func ReadFile(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%s: expected FeatureCollection, got %q", path, fc.Type)
	}
	return &fc, nil
}

// WriteFile encodes the collection to path, replacing any existing file.
func WriteFile(path string, fc *FeatureCollection) error {
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
