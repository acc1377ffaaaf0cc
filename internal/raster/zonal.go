package raster

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/shread/pkg/geojson"
)

// Stats summarizes the valid pixels under one geometry.
type Stats struct {
	Min    float64
	Max    float64
	Median float64
	Mean   float64
	Count  int
}

// Valid reports whether any pixel contributed.
func (s Stats) Valid() bool {
	return s.Count > 0
}

// Map returns the statistics keyed by the column names used in exports.
func (s Stats) Map() map[string]any {
	if !s.Valid() {
		return map[string]any{"min": nil, "max": nil, "median": nil, "mean": nil, "count": 0}
	}
	return map[string]any{
		"min":    s.Min,
		"max":    s.Max,
		"median": s.Median,
		"mean":   s.Mean,
		"count":  s.Count,
	}
}

func summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sort.Float64s(values)
	n := len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	median := values[n/2]
	if n%2 == 0 {
		median = (values[n/2-1] + values[n/2]) / 2
	}
	return Stats{
		Min:    values[0],
		Max:    values[n-1],
		Median: median,
		Mean:   sum / float64(n),
		Count:  n,
	}
}

// ZonalStats computes statistics for the valid pixels whose centers fall
// inside a Polygon/MultiPolygon, or for the pixel containing a Point.
// Geometry coordinates must be in the grid's spatial reference.
func ZonalStats(g *Grid, geom *geojson.Geometry) (Stats, error) {
	if geom == nil {
		return Stats{}, fmt.Errorf("geometry is nil")
	}
	if geom.Type == "Point" {
		p, err := geom.Point()
		if err != nil {
			return Stats{}, err
		}
		return pointStats(g, p[0], p[1]), nil
	}

	bbox, err := geom.BBox()
	if err != nil {
		return Stats{}, err
	}
	c0, r0, c1, r1 := g.Window(bbox)

	var values []float64
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			v := g.At(col, row)
			if g.IsNoData(v) {
				continue
			}
			x, y := g.PixelCenter(col, row)
			inside, err := geom.Contains(x, y)
			if err != nil {
				return Stats{}, err
			}
			if inside {
				values = append(values, v)
			}
		}
	}
	return summarize(values), nil
}

func pointStats(g *Grid, x, y float64) Stats {
	col, row, ok := g.Locate(x, y)
	if !ok {
		return Stats{}
	}
	v := g.At(col, row)
	if g.IsNoData(v) {
		return Stats{}
	}
	return summarize([]float64{v})
}

// Mask returns a copy of g where every pixel whose center lies outside geom
// is set to nodata.
func Mask(g *Grid, geom *geojson.Geometry) (*Grid, error) {
	out := NewGrid(g.Width, g.Height, g.GeoTransform, g.Projection, g.NoData)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.PixelCenter(col, row)
			inside, err := geom.Contains(x, y)
			if err != nil {
				return nil, err
			}
			if inside {
				out.Set(col, row, g.At(col, row))
			}
		}
	}
	return out, nil
}
