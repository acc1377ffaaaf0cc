// Package rastertest provides an in-memory raster.Engine for tests.
package rastertest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/robert-malhotra/shread/internal/raster"
)

// Engine keeps grids in memory keyed by path and touches a placeholder file
// for every dataset it writes, so callers that glob the filesystem see them.
type Engine struct {
	mu sync.Mutex

	// Grids maps a dataset path to its first band.
	Grids map[string]*raster.Grid
	// Default is used for inputs that have no registered grid.
	Default *raster.Grid
	// Metadata maps path -> band -> key -> value.
	Metadata map[string]map[int]map[string]string
	// Bands overrides the band count of a path.
	Bands map[string]int
	// Calls records every operation as "op dst".
	Calls []string
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		Grids:    make(map[string]*raster.Grid),
		Metadata: make(map[string]map[int]map[string]string),
		Bands:    make(map[string]int),
	}
}

var _ raster.Engine = (*Engine)(nil)

// Put registers g under path and touches the file.
func (e *Engine) Put(path string, g *raster.Grid) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Grids[path] = g.Clone()
	return touch(path)
}

// SetBandMetadata registers a metadata item for a band.
func (e *Engine) SetBandMetadata(path string, band int, key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Metadata[path] == nil {
		e.Metadata[path] = make(map[int]map[string]string)
	}
	if e.Metadata[path][band] == nil {
		e.Metadata[path][band] = make(map[string]string)
	}
	e.Metadata[path][band][key] = value
}

// Called reports how many recorded calls match op.
func (e *Engine) Called(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.Calls {
		if len(c) >= len(op) && c[:len(op)] == op {
			n++
		}
	}
	return n
}

func (e *Engine) lookup(path string) (*raster.Grid, error) {
	if g, ok := e.Grids[path]; ok {
		return g, nil
	}
	if e.Default != nil {
		return e.Default, nil
	}
	return nil, fmt.Errorf("rastertest: no grid registered for %s", path)
}

func (e *Engine) Translate(src, dst string, opts raster.TranslateOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "translate "+dst)
	g, err := e.lookup(src)
	if err != nil {
		return err
	}
	out := g.Clone()
	if opts.NoData != nil {
		out.NoData = *opts.NoData
	}
	if opts.SRS != "" {
		out.Projection = opts.SRS
	}
	e.Grids[dst] = out
	return touch(dst)
}

func (e *Engine) Warp(srcs []string, dst string, opts raster.WarpOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "warp "+dst)
	if len(srcs) == 0 {
		return fmt.Errorf("rastertest: warp %s: no sources", dst)
	}
	g, err := e.lookup(srcs[0])
	if err != nil {
		return err
	}
	out := g.Clone()
	for i, v := range out.Data {
		if g.IsNoData(v) || (opts.SrcNoData != nil && v == *opts.SrcNoData) {
			out.Data[i] = opts.DstNoData
		}
	}
	out.NoData = opts.DstNoData
	if opts.DstSRS != "" {
		out.Projection = opts.DstSRS
	}
	e.Grids[dst] = out
	return touch(dst)
}

func (e *Engine) Read(path string) (*raster.Grid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "read "+path)
	g, ok := e.Grids[path]
	if !ok {
		return nil, fmt.Errorf("rastertest: %s: %w", path, os.ErrNotExist)
	}
	return g.Clone(), nil
}

func (e *Engine) Write(path string, g *raster.Grid) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, "write "+path)
	if err := g.Validate(); err != nil {
		return err
	}
	e.Grids[path] = g.Clone()
	return touch(path)
}

func (e *Engine) BandCount(path string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n, ok := e.Bands[path]; ok {
		return n, nil
	}
	if _, err := e.lookup(path); err != nil {
		return 0, err
	}
	return 1, nil
}

func (e *Engine) BandMetadata(path string, band int, key string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Metadata[path][band][key], nil
}

// VectorToGeoJSON copies src verbatim; tests supply GeoJSON already in the
// target reference system. Like GDAL's GeoJSON driver it refuses to replace
// an existing dst.
func (e *Engine) VectorToGeoJSON(src, dst string, epsg int) error {
	e.mu.Lock()
	e.Calls = append(e.Calls, fmt.Sprintf("vector %s %d", dst, epsg))
	e.mu.Unlock()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
