package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/shread/internal/raster"
)

// ErrNoInput is returned when a stage finds nothing to work on. The job fails
// rather than continuing with stale files.
var ErrNoInput = errors.New("no input files")

func noInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoInput, fmt.Sprintf(format, args...))
}

// remoteURL joins a configured host and path elements. Hosts without a
// scheme default to https.
func remoteURL(host string, elems ...string) string {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	parts := []string{strings.TrimSuffix(host, "/")}
	for _, e := range elems {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// clip warps srcs into the output reference system, mosaicking them and
// cutting to the basin polygon with the product nodata. Values above the
// product ceiling are then remapped to nodata.
func clip(ctx context.Context, env *Env, desc Descriptor, srcs []string, dst, srcSRS string, srcNoData *float64) error {
	if len(srcs) == 0 {
		return noInput("nothing to reproject into %s", filepath.Base(dst))
	}
	err := env.Engine.Warp(srcs, dst, raster.WarpOptions{
		DstSRS:        env.Config.SRS(),
		SrcSRS:        srcSRS,
		SrcNoData:     srcNoData,
		DstNoData:     desc.NoData,
		Cutline:       env.Basin.PolyPath,
		CropToCutline: true,
	})
	if err != nil {
		return fmt.Errorf("reproject and clip %s: %w", filepath.Base(dst), err)
	}
	if desc.Ceiling == nil {
		return nil
	}

	g, err := env.Engine.Read(dst)
	if err != nil {
		return err
	}
	g.NoData = desc.NoData
	if err := env.Engine.Write(dst, g.RemapAbove(*desc.Ceiling)); err != nil {
		return fmt.Errorf("remap ceiling on %s: %w", filepath.Base(dst), err)
	}
	env.logger().DebugContext(ctx, "remapped values above ceiling",
		slog.String("path", dst),
		slog.Float64("ceiling", *desc.Ceiling),
	)
	return nil
}

// deriveLayers converts every raster layer to the configured unit system and
// writes it to the output directory under its final name, with the run's
// configured nodata value.
func deriveLayers(ctx context.Context, env *Env, desc Descriptor, layers []Layer) ([]Layer, error) {
	if len(layers) == 0 {
		return nil, noInput("no normalized rasters for %s", desc.Name)
	}
	if err := os.MkdirAll(env.Config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	out := make([]Layer, 0, len(layers))
	for _, l := range layers {
		if l.Path == "" {
			out = append(out, l)
			continue
		}
		d, err := convertLayer(env, desc, l)
		if err != nil {
			return nil, err
		}
		env.logger().DebugContext(ctx, "derived layer",
			slog.String("variable", l.Variable),
			slog.String("path", d.Path),
		)
		out = append(out, d)
	}
	return out, nil
}

func convertLayer(env *Env, desc Descriptor, l Layer) (Layer, error) {
	g, err := env.Engine.Read(l.Path)
	if err != nil {
		return Layer{}, err
	}
	g = g.Convert(desc.Conversion(l.Variable, env.Config.UnitSystem)).WithNoData(env.Config.NoData)

	d := l
	d.Path = env.OutputPath(desc.Name, l, ".tif")
	if err := env.Engine.Write(d.Path, g); err != nil {
		return Layer{}, fmt.Errorf("write %s: %w", filepath.Base(d.Path), err)
	}
	return d, nil
}

// glob returns files in dir matching pattern, failing with ErrNoInput when
// there are none.
func glob(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, noInput("no files matching %s in %s", pattern, dir)
	}
	return matches, nil
}
