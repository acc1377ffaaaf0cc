package product

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robert-malhotra/shread/internal/cmr"
)

// MOD10A1 collection searched in CMR.
const (
	modisShortName = "MOD10A1"
	modisVersion   = "61"
	modisSubdata   = "MOD_Grid_Snow_500m:NDSI_Snow_Cover"
)

// MODISProduct is the MOD10A1 daily NDSI snow cover, discovered through CMR
// and downloaded through Earthdata Login.
type MODISProduct struct{}

func (p *MODISProduct) Descriptor() Descriptor {
	return Descriptor{
		Name:      MODIS,
		Source:    "NSIDC DAAC",
		Variables: []string{"ndsi_snow_cover"},
		NoData:    250,
		Ceiling:   ceiling(100),
	}
}

func (p *MODISProduct) Jobs(dates []time.Time) []Job {
	return perDate(MODIS, dates)
}

// Query returns the granule search for one day over the basin.
func (p *MODISProduct) Query(date time.Time, bbox []float64) cmr.GranuleQuery {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return cmr.GranuleQuery{
		ShortName:      modisShortName,
		Version:        modisVersion,
		Start:          start,
		End:            start.Add(24*time.Hour - time.Second),
		BoundingBox:    bbox,
		FilenameFilter: ".hdf",
		StartWithin:    true,
	}
}

// onTiles keeps links whose granule names one of tiles.
func onTiles(links, tiles []string) []string {
	var out []string
	for _, l := range links {
		name := cmr.FileName(l)
		for _, t := range tiles {
			if strings.Contains(name, "."+t+".") {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func (p *MODISProduct) Fetch(ctx context.Context, env *Env, job Job) error {
	if env.CMR == nil {
		return fmt.Errorf("no CMR client configured")
	}
	links, err := env.CMR.Granules(ctx, p.Query(job.Date, env.Basin.BBox))
	if err != nil {
		return err
	}
	links = onTiles(links, env.Basin.Tiles)
	if len(links) == 0 {
		return noInput("no %s granules for %s over basin %s", modisShortName, job.Date.Format("2006-01-02"), env.Basin.Name)
	}

	dir, err := env.ensureDir(job)
	if err != nil {
		return err
	}
	for _, link := range links {
		if err := env.Retrieve(ctx, env.Earthdata, MODIS, link, filepath.Join(dir, cmr.FileName(link))); err != nil {
			return err
		}
	}
	return nil
}

func (p *MODISProduct) Normalize(ctx context.Context, env *Env, job Job) ([]Layer, error) {
	desc := p.Descriptor()
	dir := env.JobDir(job)
	granules, err := glob(dir, "*.hdf")
	if err != nil {
		return nil, err
	}

	srcs := make([]string, len(granules))
	for i, g := range granules {
		srcs[i] = fmt.Sprintf(`HDF4_EOS:EOS_GRID:"%s":%s`, g, modisSubdata)
	}
	variable := desc.Variables[0]
	clipped := filepath.Join(dir, fmt.Sprintf("%s_%s_clip.tif", MODIS, variable))
	if err := clip(ctx, env, desc, srcs, clipped, "", nil); err != nil {
		return nil, err
	}
	return []Layer{{Variable: variable, Path: clipped, Date: job.Date}}, nil
}

func (p *MODISProduct) Derive(ctx context.Context, env *Env, job Job, layers []Layer) ([]Layer, error) {
	return deriveLayers(ctx, env, p.Descriptor(), layers)
}
