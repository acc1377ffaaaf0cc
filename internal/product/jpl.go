package product

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/robert-malhotra/shread/internal/raster"
)

// JPLProduct is a MODIS-derived snow product served per sinusoidal tile by
// the JPL snow server behind digest authentication.
type JPLProduct struct {
	desc Descriptor
	// dir is the product directory on the server.
	dir string
	// files maps a variable to the file suffix of its tile GeoTIFF.
	files map[string]string
	// order fixes the variable processing order.
	order []string
	// vegetationCorrect derives snow_fraction_vc from snow and vegetation.
	vegetationCorrect bool
}

// NewMODSCAG returns the MODIS Snow Covered-Area and Grain size product.
func NewMODSCAG() *JPLProduct {
	return &JPLProduct{
		desc: Descriptor{
			Name:       MODSCAG,
			Source:     "JPL",
			Variables:  []string{"snow_fraction", "vegetation_fraction", "snow_fraction_vc"},
			NoData:     250,
			Ceiling:    ceiling(100),
			Concurrent: true,
		},
		dir: "modscag-historic",
		files: map[string]string{
			"snow_fraction":       "snow_fraction",
			"vegetation_fraction": "vegetation_fraction",
		},
		order:             []string{"snow_fraction", "vegetation_fraction"},
		vegetationCorrect: true,
	}
}

// NewMODDRFS returns the MODIS Dust Radiative Forcing in Snow product.
func NewMODDRFS() *JPLProduct {
	return &JPLProduct{
		desc: Descriptor{
			Name:       MODDRFS,
			Source:     "JPL",
			Variables:  []string{"forcing", "grainsize"},
			NoData:     2500,
			Ceiling:    ceiling(2500),
			Concurrent: true,
		},
		dir: "moddrfs-historic",
		files: map[string]string{
			"forcing":   "forcing",
			"grainsize": "drfs.grnsize",
		},
		order: []string{"forcing", "grainsize"},
	}
}

func (p *JPLProduct) Descriptor() Descriptor {
	return p.desc
}

func (p *JPLProduct) Jobs(dates []time.Time) []Job {
	return perDate(p.desc.Name, dates)
}

func (p *JPLProduct) tileName(date time.Time, tile, variable string) string {
	return fmt.Sprintf("MOD09GA.A%s%03d.%s.006.NRT.%s.tif",
		date.Format("2006"), date.YearDay(), tile, p.files[variable])
}

// TileURL returns <host>/<dir>/<YYYY>/<DOY>/MOD09GA.A<YYYY><DOY>.<tile>.006.NRT.<suffix>.tif.
func (p *JPLProduct) TileURL(host string, date time.Time, tile, variable string) string {
	return remoteURL(host, p.dir, date.Format("2006"), fmt.Sprintf("%03d", date.YearDay()),
		p.tileName(date, tile, variable))
}

func (p *JPLProduct) Fetch(ctx context.Context, env *Env, job Job) error {
	if len(env.Basin.Tiles) == 0 {
		return noInput("basin %s intersects no MODIS tiles", env.Basin.Name)
	}
	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	for _, tile := range env.Basin.Tiles {
		for _, v := range p.order {
			url := p.TileURL(env.Config.JPL.Host, job.Date, tile, v)
			if err := env.Retrieve(ctx, env.JPL, p.desc.Name, url, filepath.Join(dir, p.tileName(job.Date, tile, v))); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *JPLProduct) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	dir := env.JobDir(job)
	var layers []Layer
	for _, v := range p.order {
		tiles, err := glob(dir, "*.NRT."+p.files[v]+".tif")
		if err != nil {
			return nil, err
		}
		clipped := filepath.Join(dir, fmt.Sprintf("%s_%s_clip.tif", p.desc.Name, v))
		if err := clip(ctx, env, p.desc, tiles, clipped, "", nil); err != nil {
			return nil, err
		}
		layers = append(layers, Layer{Variable: v, Path: clipped, Date: job.Date})
	}
	return layers, nil
}

func (p *JPLProduct) Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error) {
	out, err := deriveLayers(ctx, env, p.desc, layers)
	if err != nil {
		return nil, err
	}
	if !p.vegetationCorrect {
		return out, nil
	}

	var snow, veg *Layer
	for i := range layers {
		switch layers[i].Variable {
		case "snow_fraction":
			snow = &layers[i]
		case "vegetation_fraction":
			veg = &layers[i]
		}
	}
	if snow == nil || veg == nil {
		return nil, noInput("vegetation correction needs snow and vegetation fraction for %s", job.ID())
	}
	sg, err := env.Engine.Read(snow.Path)
	if err != nil {
		return nil, err
	}
	vg, err := env.Engine.Read(veg.Path)
	if err != nil {
		return nil, err
	}
	vc, err := raster.VegetationCorrect(sg, vg)
	if err != nil {
		return nil, fmt.Errorf("vegetation correction: %w", err)
	}

	l := Layer{Variable: "snow_fraction_vc", Date: job.Date}
	l.Path = env.OutputPath(p.desc.Name, l, ".tif")
	if err := env.Engine.Write(l.Path, vc.WithNoData(env.Config.NoData)); err != nil {
		return nil, fmt.Errorf("write %s: %w", filepath.Base(l.Path), err)
	}
	return append(out, l), nil
}
