package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/fetch"
	"github.com/robert-malhotra/shread/internal/raster"
)

// ndfdPeriods are the forecast bundles published per parameter.
var ndfdPeriods = []string{"VP.001-003", "VP.004-007"}

// NDFDProduct is the National Digital Forecast Database. Forecasts are
// real-time, so each run imports the current bundles once per parameter
// regardless of the requested dates.
type NDFDProduct struct {
	Params []string
	Clock  clockwork.Clock
}

func (p *NDFDProduct) Descriptor() Descriptor {
	return Descriptor{
		Name:      NDFD,
		Source:    "NOAA NWS",
		Variables: []string{"maxt", "mint", "temp", "qpf", "snow", "pop12", "sky", "wspd"},
		NoData:    -9999,
		Forecast:  true,
		Conversions: map[ConversionKey]raster.Conversion{
			{"maxt", config.English}: raster.CelsiusToFahrenheit,
			{"mint", config.English}: raster.CelsiusToFahrenheit,
			{"temp", config.English}: raster.CelsiusToFahrenheit,
			{"qpf", config.English}:  raster.MillimetersToInches,
			{"snow", config.English}: raster.MetersToInches,
			{"wspd", config.English}: raster.MetersPerSecToMPH,
		},
	}
}

// Jobs returns one job per parameter for the run date.
func (p *NDFDProduct) Jobs(dates []time.Time) []Job {
	if len(dates) == 0 {
		return nil
	}
	now := clockOrReal(p.Clock).Now().UTC()
	run := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	jobs := make([]Job, 0, len(p.Params))
	for _, param := range p.Params {
		jobs = append(jobs, Job{Product: NDFD, Date: run, Key: param})
	}
	return jobs
}

// ndfdFile names a bundle after its run date. Bundle names upstream carry no
// date, and archived copies must not be restored for a later run.
func ndfdFile(run time.Time, period, param string) string {
	return run.Format("20060102") + "_" + period + "_ds." + param + ".bin"
}

// NDFDURL returns <host>/<path>/<period>/ds.<param>.bin.
func NDFDURL(cfg config.NDFDConfig, period, param string) string {
	return remoteURL(cfg.Host, cfg.Path, period, "ds."+param+".bin")
}

func (p *NDFDProduct) Fetch(ctx context.Context, env *Env, job Job) error {
	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	fetched := 0
	for i, period := range ndfdPeriods {
		err := env.Retrieve(ctx, env.Fetch, NDFD, NDFDURL(env.Config.NDFD, period, job.Key),
			filepath.Join(dir, ndfdFile(job.Date, period, job.Key)))
		if err != nil {
			// extended periods are not published for every parameter
			if i > 0 && fetch.IsNotFound(err) {
				env.logger().InfoContext(ctx, "no extended forecast bundle",
					slog.String("param", job.Key),
					slog.String("period", period),
				)
				continue
			}
			return err
		}
		fetched++
	}
	if fetched == 0 {
		return noInput("no forecast bundles for %s", job.Key)
	}
	return nil
}

// ParseGribTime reads the epoch seconds that lead GDAL's GRIB time metadata,
// e.g. "  1580515200 sec UTC".
func ParseGribTime(s string) (time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, errors.New("empty GRIB time")
	}
	sec, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid GRIB time %q: %w", s, err)
	}
	return time.Unix(sec, 0).UTC(), nil
}

type ndfdBand struct {
	path  string
	band  int
	init  time.Time
	valid time.Time
}

func (p *NDFDProduct) bands(env *Env, dir string, job Job) ([]ndfdBand, error) {
	files, err := glob(dir, job.Date.Format("20060102")+"_VP.*_ds."+job.Key+".bin")
	if err != nil {
		return nil, err
	}
	seen := make(map[time.Time]bool)
	var out []ndfdBand
	for _, f := range files {
		n, err := env.Engine.BandCount(f)
		if err != nil {
			return nil, err
		}
		for b := 1; b <= n; b++ {
			ref, err := env.Engine.BandMetadata(f, b, "GRIB_REF_TIME")
			if err != nil {
				return nil, err
			}
			val, err := env.Engine.BandMetadata(f, b, "GRIB_VALID_TIME")
			if err != nil {
				return nil, err
			}
			init, err := ParseGribTime(ref)
			if err != nil {
				return nil, fmt.Errorf("%s band %d: %w", filepath.Base(f), b, err)
			}
			valid, err := ParseGribTime(val)
			if err != nil {
				return nil, fmt.Errorf("%s band %d: %w", filepath.Base(f), b, err)
			}
			if seen[valid] {
				continue
			}
			seen[valid] = true
			out = append(out, ndfdBand{path: f, band: b, init: init, valid: valid})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].valid.Before(out[j].valid) })
	return out, nil
}

func (p *NDFDProduct) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	desc := p.Descriptor()
	dir := env.JobDir(job)
	bands, err := p.bands(env, dir, job)
	if err != nil {
		return nil, err
	}
	if len(bands) == 0 {
		return nil, noInput("no forecast bands for %s", job.Key)
	}

	layers := make([]Layer, 0, len(bands))
	for _, b := range bands {
		stamp := b.valid.Format("2006010215")
		raw := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_raw.tif", NDFD, job.Key, stamp))
		if err := env.Engine.Translate(b.path, raw, raster.TranslateOptions{
			NoData: raster.Float(desc.NoData),
			Bands:  []int{b.band},
		}); err != nil {
			return nil, fmt.Errorf("extract %s band %d: %w", filepath.Base(b.path), b.band, err)
		}
		clipped := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_clip.tif", NDFD, job.Key, stamp))
		if err := clip(ctx, env, desc, []string{raw}, clipped, "", raster.Float(desc.NoData)); err != nil {
			return nil, err
		}
		layers = append(layers, Layer{
			Variable:  job.Key,
			Path:      clipped,
			Date:      b.valid,
			InitTime:  b.init,
			ValidTime: b.valid,
		})
	}
	return layers, nil
}

func (p *NDFDProduct) Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error) {
	return deriveLayers(ctx, env, p.Descriptor(), layers)
}
