package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/shread/internal/catalog"
	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/export"
	"github.com/robert-malhotra/shread/internal/product"
	"github.com/robert-malhotra/shread/internal/raster"
	"github.com/robert-malhotra/shread/pkg/geojson"
)

// summarize writes zonal tables and catalog items for the derived layers and
// returns the written paths. Individual write failures are logged and
// counted; only unreadable rasters fail the stage.
func (p *Pipeline) summarize(ctx context.Context, logger *slog.Logger, desc product.Descriptor, layers []product.Layer) ([]string, error) {
	cfg := p.env.Config
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	var written []string
	for _, l := range layers {
		prov := provenance(desc, l)
		base := product.OutputName(desc.Name, l, p.env.Basin.Name, cfg.UnitSystem)

		if l.Points != nil {
			written = append(written, p.writeTables(ctx, logger, base+"_"+config.OutputPoints, pointTable(prov, l))...)
			continue
		}

		g, err := p.env.Engine.Read(l.Path)
		if err != nil {
			return written, fmt.Errorf("read %s: %w", filepath.Base(l.Path), err)
		}
		for _, outputType := range cfg.OutputTypes {
			fc := p.features(outputType)
			if fc == nil {
				continue
			}
			tbl, err := zonalTable(prov, g, fc)
			if err != nil {
				return written, fmt.Errorf("zonal statistics for %s: %w", base, err)
			}
			written = append(written, p.writeTables(ctx, logger, base+"_"+outputType, tbl)...)
		}

		if path, ok := p.writeItem(ctx, logger, desc, l); ok {
			written = append(written, path)
		}
	}
	return written, nil
}

func provenance(desc product.Descriptor, l product.Layer) export.Provenance {
	return export.Provenance{
		Source:    desc.Source,
		Type:      l.Variable,
		Date:      l.Date,
		InitTime:  l.InitTime,
		ValidTime: l.ValidTime,
	}
}

func (p *Pipeline) features(outputType string) *geojson.FeatureCollection {
	switch outputType {
	case config.OutputPoly:
		return p.env.Basin.Polygons
	case config.OutputPoints:
		return p.env.Basin.Points
	default:
		return nil
	}
}

func zonalTable(prov export.Provenance, g *raster.Grid, fc *geojson.FeatureCollection) (*export.Table, error) {
	tbl := &export.Table{Provenance: prov, Measures: export.StatColumns}
	for _, f := range fc.Features {
		stats, err := raster.ZonalStats(g, f.Geometry)
		if err != nil {
			return nil, err
		}
		tbl.Records = append(tbl.Records, export.Record{
			Geometry:   f.Geometry,
			Attributes: f.Properties,
			Measures:   stats.Map(),
		})
	}
	return tbl, nil
}

// pointTable turns point observations into a table whose single measure is
// the layer variable.
func pointTable(prov export.Provenance, l product.Layer) *export.Table {
	tbl := &export.Table{Provenance: prov, Measures: []string{l.Variable}}
	for _, f := range l.Points.Features {
		attrs := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			if k != l.Variable {
				attrs[k] = v
			}
		}
		tbl.Records = append(tbl.Records, export.Record{
			Geometry:   f.Geometry,
			Attributes: attrs,
			Measures:   map[string]any{l.Variable: f.Properties[l.Variable]},
		})
	}
	return tbl
}

func (p *Pipeline) writeTables(ctx context.Context, logger *slog.Logger, base string, tbl *export.Table) []string {
	var written []string
	for _, format := range p.env.Config.OutputFormats {
		var (
			path string
			err  error
		)
		switch format {
		case config.FormatCSV:
			path = filepath.Join(p.env.Config.OutputDir, base+".csv")
			err = export.WriteCSV(path, tbl)
		case config.FormatGeoJSON:
			path = filepath.Join(p.env.Config.OutputDir, base+".geojson")
			err = export.WriteGeoJSON(path, tbl)
		default:
			continue
		}
		if !p.recordWrite(ctx, logger, format, path, err) {
			continue
		}
		written = append(written, path)
	}
	return written
}

func (p *Pipeline) writeItem(ctx context.Context, logger *slog.Logger, desc product.Descriptor, l product.Layer) (string, bool) {
	cfg := p.env.Config
	item, err := catalog.NewItem(catalog.Raster{
		Path:      l.Path,
		Product:   desc.Name,
		Variable:  l.Variable,
		Source:    desc.Source,
		Basin:     p.env.Basin.Name,
		Units:     cfg.UnitSystem,
		EPSG:      cfg.OutputEPSG,
		Date:      l.Date,
		InitTime:  l.InitTime,
		ValidTime: l.ValidTime,
		BBox:      p.env.Basin.BBox,
	})
	var path string
	if err == nil {
		path, err = catalog.Write(cfg.OutputDir, item)
	}
	if path == "" {
		path = filepath.Join(cfg.OutputDir, catalog.Dir, strings.TrimSuffix(filepath.Base(l.Path), ".tif")+".json")
	}
	return path, p.recordWrite(ctx, logger, "stac", path, err)
}

// recordWrite logs and counts one artifact write and reports whether it
// succeeded.
func (p *Pipeline) recordWrite(ctx context.Context, logger *slog.Logger, format, path string, err error) bool {
	if err != nil {
		logger.ErrorContext(ctx, "failed to write artifact",
			slog.String("format", format),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if p.metrics != nil {
			p.metrics.ArtifactWriteErrors.WithLabelValues(format).Inc()
		}
		return false
	}
	if p.metrics != nil {
		p.metrics.ArtifactsWritten.WithLabelValues(format).Inc()
	}
	return true
}
