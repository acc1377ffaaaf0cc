package product

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
)

// swannVariables maps variables to NetCDF variable names.
var swannVariables = []struct {
	name   string
	netcdf string
}{
	{"swe", "SWE"},
	{"snowdepth", "DEPTH"},
}

// SWANNProduct is the University of Arizona 4 km SWE and snow depth. Past
// water years come from one archive file per year; the current water year
// comes from daily real-time files.
type SWANNProduct struct {
	Clock clockwork.Clock
}

func (p *SWANNProduct) Descriptor() Descriptor {
	return Descriptor{
		Name:      SWANN,
		Source:    "UA",
		Variables: []string{"swe", "snowdepth"},
		NoData:    -9999,
		Conversions: map[ConversionKey]raster.Conversion{
			{"swe", config.English}:       raster.MillimetersToInches,
			{"snowdepth", config.English}: raster.MillimetersToInches,
		},
	}
}

func (p *SWANNProduct) Jobs(dates []time.Time) []Job {
	return perDate(SWANN, dates)
}

// WaterYear returns the water year of t; October starts the next year.
func WaterYear(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}

// waterYearDay is the 1-based day of t within its water year.
func waterYearDay(t time.Time) int {
	start := time.Date(WaterYear(t)-1, time.October, 1, 0, 0, 0, 0, time.UTC)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(day.Sub(start).Hours()/24) + 1
}

// swannSource describes the payload holding one date.
type swannSource struct {
	url  string
	file string
	band int
}

func (p *SWANNProduct) source(cfg config.SWANNConfig, date time.Time) swannSource {
	wy := WaterYear(date)
	if wy >= WaterYear(clockOrReal(p.Clock).Now()) {
		file := fmt.Sprintf("UA_SWE_Depth_4km_v1_%s_early.nc", date.Format("20060102"))
		return swannSource{
			url:  remoteURL(cfg.Host, cfg.RealtimePath, fmt.Sprintf("WY%d", wy), file),
			file: file,
			band: 1,
		}
	}
	file := fmt.Sprintf("UA_SWE_Depth_WY%d.nc", wy)
	return swannSource{
		url:  remoteURL(cfg.Host, cfg.ArchivePath, file),
		file: file,
		band: waterYearDay(date),
	}
}

func (p *SWANNProduct) Fetch(ctx context.Context, env *Env, job Job) error {
	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	src := p.source(env.Config.SWANN, job.Date)
	return env.Retrieve(ctx, env.Fetch, SWANN, src.url, filepath.Join(dir, src.file))
}

func (p *SWANNProduct) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	desc := p.Descriptor()
	dir := env.JobDir(job)
	src := p.source(env.Config.SWANN, job.Date)
	nc := filepath.Join(dir, src.file)
	if _, err := glob(dir, src.file); err != nil {
		return nil, err
	}

	var layers []Layer
	for _, v := range swannVariables {
		raw := filepath.Join(dir, fmt.Sprintf("%s_%s_raw.tif", SWANN, v.name))
		err := env.Engine.Translate(fmt.Sprintf(`NETCDF:"%s":%s`, nc, v.netcdf), raw, raster.TranslateOptions{
			SRS:    "EPSG:4326",
			NoData: raster.Float(desc.NoData),
			Bands:  []int{src.band},
		})
		if err != nil {
			return nil, fmt.Errorf("extract %s band %d: %w", v.netcdf, src.band, err)
		}
		clipped := filepath.Join(dir, fmt.Sprintf("%s_%s_clip.tif", SWANN, v.name))
		if err := clip(ctx, env, desc, []string{raw}, clipped, "", raster.Float(desc.NoData)); err != nil {
			return nil, err
		}
		layers = append(layers, Layer{Variable: v.name, Path: clipped, Date: job.Date})
	}
	return layers, nil
}

func (p *SWANNProduct) Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error) {
	return deriveLayers(ctx, env, p.Descriptor(), layers)
}
