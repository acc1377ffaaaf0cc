// Package gdal implements raster.Engine on top of GDAL via godal.
package gdal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/robert-malhotra/shread/internal/raster"
)

var registerOnce sync.Once

// Engine is a raster.Engine backed by GDAL.
type Engine struct {
	logger *slog.Logger
}

// New registers the GDAL drivers and returns an Engine.
func New() *Engine {
	registerOnce.Do(godal.RegisterAll)
	return &Engine{logger: slog.Default()}
}

// WithLogger sets a custom logger for the engine.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

var _ raster.Engine = (*Engine)(nil)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Translate converts src into a GeoTIFF.
func (e *Engine) Translate(src, dst string, opts raster.TranslateOptions) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer ds.Close()

	switches := []string{"-of", "GTiff"}
	if opts.SRS != "" {
		switches = append(switches, "-a_srs", opts.SRS)
	}
	if opts.NoData != nil {
		switches = append(switches, "-a_nodata", formatFloat(*opts.NoData))
	}
	for _, b := range opts.Bands {
		switches = append(switches, "-b", strconv.Itoa(b))
	}

	e.logger.Debug("gdal translate", "src", src, "dst", dst, "switches", switches)
	out, err := ds.Translate(dst, switches, godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("translate %s: %w", src, err)
	}
	return out.Close()
}

// Warp reprojects, mosaics and optionally clips srcs into a GeoTIFF.
func (e *Engine) Warp(srcs []string, dst string, opts raster.WarpOptions) error {
	if len(srcs) == 0 {
		return fmt.Errorf("warp %s: no source datasets", dst)
	}
	datasets := make([]*godal.Dataset, 0, len(srcs))
	defer func() {
		for _, ds := range datasets {
			ds.Close()
		}
	}()
	for _, src := range srcs {
		ds, err := godal.Open(src)
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		datasets = append(datasets, ds)
	}

	switches := []string{"-of", "GTiff", "-overwrite", "-dstnodata", formatFloat(opts.DstNoData)}
	if opts.DstSRS != "" {
		switches = append(switches, "-t_srs", opts.DstSRS)
	}
	if opts.SrcSRS != "" {
		switches = append(switches, "-s_srs", opts.SrcSRS)
	}
	if opts.SrcNoData != nil {
		switches = append(switches, "-srcnodata", formatFloat(*opts.SrcNoData))
	}
	if opts.Cutline != "" {
		switches = append(switches, "-cutline", opts.Cutline)
		if opts.CropToCutline {
			switches = append(switches, "-crop_to_cutline")
		}
	}

	e.logger.Debug("gdal warp", "srcs", srcs, "dst", dst, "switches", switches)
	out, err := godal.Warp(dst, datasets, switches, godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("warp to %s: %w", dst, err)
	}
	return out.Close()
}

// Read loads band 1 of path as float64 values.
func (e *Engine) Read(path string) (*raster.Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%s has no raster bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform of %s: %w", path, err)
	}

	nodata, ok := bands[0].NoData()
	if !ok {
		nodata = -9999
	}
	g := &raster.Grid{
		Width:        st.SizeX,
		Height:       st.SizeY,
		GeoTransform: gt,
		Projection:   ds.Projection(),
		NoData:       nodata,
		Data:         make([]float64, st.SizeX*st.SizeY),
	}
	if err := bands[0].Read(0, 0, g.Data, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return g, nil
}

// Write stores g as a single-band float64 GeoTIFF.
func (e *Engine) Write(path string, g *raster.Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, g.Width, g.Height,
		godal.CreationOption("COMPRESS=DEFLATE", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ds.SetGeoTransform(g.GeoTransform); err != nil {
		ds.Close()
		return fmt.Errorf("set geotransform on %s: %w", path, err)
	}
	if g.Projection != "" {
		if err := ds.SetProjection(g.Projection); err != nil {
			ds.Close()
			return fmt.Errorf("set projection on %s: %w", path, err)
		}
	}
	band := ds.Bands()[0]
	if err := band.SetNoData(g.NoData); err != nil {
		ds.Close()
		return fmt.Errorf("set nodata on %s: %w", path, err)
	}
	if err := band.Write(0, 0, g.Data, g.Width, g.Height); err != nil {
		ds.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return ds.Close()
}

// BandCount returns the number of raster bands.
func (e *Engine) BandCount(path string) (int, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	return ds.Structure().NBands, nil
}

// BandMetadata returns a metadata item of a 1-based band.
func (e *Engine) BandMetadata(path string, band int, key string) (string, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer ds.Close()
	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return "", fmt.Errorf("%s: band %d out of range (1-%d)", path, band, len(bands))
	}
	return bands[band-1].Metadata(key), nil
}

// VectorToGeoJSON reprojects a vector dataset into a GeoJSON file.
func (e *Engine) VectorToGeoJSON(src, dst string, epsg int) error {
	ds, err := godal.Open(src, godal.VectorOnly())
	if err != nil {
		return fmt.Errorf("open vector %s: %w", src, err)
	}
	defer ds.Close()

	switches := []string{"-f", "GeoJSON", "-t_srs", fmt.Sprintf("EPSG:%d", epsg)}
	if epsg == 4326 {
		// keep lon/lat axis order regardless of the EPSG authority definition
		switches = append(switches, "-lco", "RFC7946=YES")
	}
	// the GeoJSON driver does not overwrite existing files
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	out, err := ds.VectorTranslate(dst, switches)
	if err != nil {
		return fmt.Errorf("vector translate %s: %w", src, err)
	}
	return out.Close()
}
