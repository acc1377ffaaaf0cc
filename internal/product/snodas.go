package product

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
)

// SNODAS grid geometry. The daily tarballs hold headerless big-endian int16
// grids; the header is supplied here.
var snodasHeader = raster.EHdr{
	Rows:      3351,
	Cols:      6935,
	Bits:      16,
	BigEndian: true,
	Signed:    true,
	ULXMap:    -124.729166666662,
	ULYMap:    52.8708333333312,
	XDim:      0.00833333333333333,
	YDim:      0.00833333333333333,
	NoData:    -9999,
}

// snodasCodes maps the product code embedded in member names to variables.
var snodasCodes = map[string]string{
	"1034": "swe",
	"1036": "snowdepth",
}

// Snodas is the NOHRSC Snow Data Assimilation System daily product.
type Snodas struct{}

func (p *Snodas) Descriptor() Descriptor {
	return Descriptor{
		Name:      SNODAS,
		Source:    "NSIDC",
		Variables: []string{"swe", "snowdepth"},
		NoData:    -9999,
		Conversions: map[ConversionKey]raster.Conversion{
			{"swe", config.English}:       raster.MillimetersToInches,
			{"snowdepth", config.English}: raster.MillimetersToInches,
		},
	}
}

func (p *Snodas) Jobs(dates []time.Time) []Job {
	return perDate(SNODAS, dates)
}

func snodasTarName(date time.Time) string {
	return "SNODAS_" + date.Format("20060102") + ".tar"
}

// SnodasURL returns <host>/<path>/<YYYY>/<MM>_<Mon>/SNODAS_<YYYYMMDD>.tar.
func SnodasURL(cfg config.HostConfig, date time.Time) string {
	return remoteURL(cfg.Host, cfg.Path, date.Format("2006"), date.Format("01_Jan"), snodasTarName(date))
}

func (p *Snodas) Fetch(ctx context.Context, env *Env, job Job) error {
	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	return env.Retrieve(ctx, env.Fetch, SNODAS, SnodasURL(env.Config.SNODAS, job.Date),
		filepath.Join(dir, snodasTarName(job.Date)))
}

// snodasVariable returns the variable of a gzipped grid member, or "".
func snodasVariable(name string) string {
	if !strings.HasSuffix(name, ".dat.gz") {
		return ""
	}
	for code, v := range snodasCodes {
		if strings.Contains(name, "ssmv1"+code) {
			return v
		}
	}
	return ""
}

func (p *Snodas) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	desc := p.Descriptor()
	dir := env.JobDir(job)

	members, err := untar(filepath.Join(dir, snodasTarName(job.Date)), dir, func(name string) bool {
		return snodasVariable(name) != ""
	})
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, noInput("no swe or snow depth grids in %s", snodasTarName(job.Date))
	}

	var layers []Layer
	for _, gz := range members {
		variable := snodasVariable(filepath.Base(gz))
		dat, err := gunzip(gz)
		if err != nil {
			return nil, err
		}
		bil := strings.TrimSuffix(dat, ".dat") + ".bil"
		if err := os.Rename(dat, bil); err != nil {
			return nil, err
		}
		if _, err := snodasHeader.WriteFor(bil); err != nil {
			return nil, err
		}

		raw := filepath.Join(dir, fmt.Sprintf("%s_%s_raw.tif", SNODAS, variable))
		if err := env.Engine.Translate(bil, raw, raster.TranslateOptions{
			SRS:    "EPSG:4326",
			NoData: raster.Float(desc.NoData),
		}); err != nil {
			return nil, fmt.Errorf("translate %s: %w", filepath.Base(bil), err)
		}

		clipped := filepath.Join(dir, fmt.Sprintf("%s_%s_clip.tif", SNODAS, variable))
		if err := clip(ctx, env, desc, []string{raw}, clipped, "", raster.Float(desc.NoData)); err != nil {
			return nil, err
		}
		layers = append(layers, Layer{Variable: variable, Path: clipped, Date: job.Date})
	}
	return layers, nil
}

func (p *Snodas) Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error) {
	return deriveLayers(ctx, env, p.Descriptor(), layers)
}
