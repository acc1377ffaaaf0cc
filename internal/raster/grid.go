// Package raster holds the in-memory grid model and the per-pixel arithmetic
// applied after normalization: unit conversion, ceiling remaps, derived
// ratios and zonal statistics. File formats and reprojection live behind
// Engine.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when two grids must be co-registered but are not.
var ErrShapeMismatch = errors.New("grids are not co-registered")

// Grid is a single-band raster. GeoTransform follows the GDAL convention:
// x = gt[0] + col*gt[1] + row*gt[2], y = gt[3] + col*gt[4] + row*gt[5].
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	Projection   string
	NoData       float64
	Data         []float64
}

// NewGrid allocates a grid filled with nodata.
func NewGrid(width, height int, gt [6]float64, projection string, nodata float64) *Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = nodata
	}
	return &Grid{
		Width:        width,
		Height:       height,
		GeoTransform: gt,
		Projection:   projection,
		NoData:       nodata,
		Data:         data,
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = append([]float64(nil), g.Data...)
	return &c
}

// IsNoData reports whether v is the nodata sentinel or NaN.
func (g *Grid) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == g.NoData
}

// At returns the value at (col, row).
func (g *Grid) At(col, row int) float64 {
	return g.Data[row*g.Width+col]
}

// Set stores v at (col, row).
func (g *Grid) Set(col, row int, v float64) {
	g.Data[row*g.Width+col] = v
}

// PixelCenter returns the georeferenced center of (col, row).
func (g *Grid) PixelCenter(col, row int) (x, y float64) {
	gt := g.GeoTransform
	c, r := float64(col)+0.5, float64(row)+0.5
	return gt[0] + c*gt[1] + r*gt[2], gt[3] + c*gt[4] + r*gt[5]
}

// Locate returns the pixel containing (x, y) for north-up grids.
func (g *Grid) Locate(x, y float64) (col, row int, ok bool) {
	gt := g.GeoTransform
	if gt[1] == 0 || gt[5] == 0 {
		return 0, 0, false
	}
	col = int(math.Floor((x - gt[0]) / gt[1]))
	row = int(math.Floor((y - gt[3]) / gt[5]))
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return 0, 0, false
	}
	return col, row, true
}

// Window returns the pixel range [c0,c1]x[r0,r1] covering bbox
// [minx, miny, maxx, maxy], clamped to the grid.
func (g *Grid) Window(bbox []float64) (c0, r0, c1, r1 int) {
	gt := g.GeoTransform
	colOf := func(x float64) int { return int(math.Floor((x - gt[0]) / gt[1])) }
	rowOf := func(y float64) int { return int(math.Floor((y - gt[3]) / gt[5])) }

	c0, c1 = colOf(bbox[0]), colOf(bbox[2])
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	r0, r1 = rowOf(bbox[3]), rowOf(bbox[1])
	if r0 > r1 {
		r0, r1 = r1, r0
	}
	return clamp(c0, 0, g.Width-1), clamp(r0, 0, g.Height-1),
		clamp(c1, 0, g.Width-1), clamp(r1, 0, g.Height-1)
}

// SameShape reports whether o shares dimensions and georeferencing with g.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.GeoTransform == o.GeoTransform
}

// Validate checks that the data buffer matches the dimensions.
func (g *Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("invalid grid dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("grid data has %d values, want %d", len(g.Data), g.Width*g.Height)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
