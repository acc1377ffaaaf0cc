package product

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/raster"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseNames(t *testing.T) {
	names, err := ParseNames(" MODSCAG,snodas,modscag ,, ndfd")
	require.NoError(t, err)
	assert.Equal(t, []string{MODSCAG, SNODAS, NDFD}, names)

	_, err = ParseNames("snodas,viirs,goes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goes, viirs")

	_, err = ParseNames(" , ")
	assert.Error(t, err)
}

func TestRegistryCoversAllNames(t *testing.T) {
	reg := Registry(&config.RunConfig{})
	for _, n := range Names {
		p, ok := reg[n]
		require.True(t, ok, n)
		assert.Equal(t, n, p.Descriptor().Name)
	}
}

func TestJobID(t *testing.T) {
	j := Job{Product: MODSCAG, Date: date(2020, 2, 1)}
	assert.Equal(t, "20200201", j.ID())
	j.Key = "maxt"
	assert.Equal(t, "20200201_maxt", j.ID())
	assert.Equal(t, "modscag/20200201_maxt", j.String())
}

func TestOutputName(t *testing.T) {
	l := Layer{Variable: "swe", Date: date(2020, 2, 1)}
	assert.Equal(t, "snodas_swe_20200201_animas_metric", OutputName(SNODAS, l, "animas", config.Metric))

	f := Layer{
		Variable:  "maxt",
		Date:      date(2020, 2, 2),
		InitTime:  time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC),
		ValidTime: time.Date(2020, 2, 2, 6, 0, 0, 0, time.UTC),
	}
	assert.True(t, f.IsForecast())
	assert.Equal(t, "ndfd_maxt_2020020206_animas_english", OutputName(NDFD, f, "animas", config.English))
}

func TestDescriptorConversion(t *testing.T) {
	d := (&Snodas{}).Descriptor()
	assert.Equal(t, raster.MillimetersToInches, d.Conversion("swe", config.English))
	assert.True(t, d.Conversion("swe", config.Metric).IsIdentity())
	assert.True(t, d.Conversion("unknown", config.English).IsIdentity())
}

func TestSnodasURL(t *testing.T) {
	cfg := config.HostConfig{Host: "sidads.colorado.edu", Path: "/DATASETS/NOAA/G02158/masked/"}
	assert.Equal(t,
		"https://sidads.colorado.edu/DATASETS/NOAA/G02158/masked/2020/02_Feb/SNODAS_20200201.tar",
		SnodasURL(cfg, date(2020, 2, 1)))
}

func TestSnodasVariable(t *testing.T) {
	assert.Equal(t, "swe", snodasVariable("us_ssmv11034tS__T0001TTNATS2020020105HP001.dat.gz"))
	assert.Equal(t, "snowdepth", snodasVariable("us_ssmv11036tS__T0001TTNATS2020020105HP001.dat.gz"))
	assert.Equal(t, "", snodasVariable("us_ssmv11034tS__T0001TTNATS2020020105HP001.txt.gz"))
	assert.Equal(t, "", snodasVariable("us_ssmv01025SlL00T0024TTNATS2020020105DP001.dat.gz"))
}

func TestJPLTileURL(t *testing.T) {
	p := NewMODDRFS()
	assert.Equal(t,
		"https://snow-data.jpl.test/moddrfs-historic/2020/032/MOD09GA.A2020032.h09v05.006.NRT.drfs.grnsize.tif",
		p.TileURL("snow-data.jpl.test", date(2020, 2, 1), "h09v05", "grainsize"))
}

func TestModisQuery(t *testing.T) {
	q := (&MODISProduct{}).Query(time.Date(2020, 2, 1, 15, 0, 0, 0, time.UTC), []float64{-108, 37, -107, 38})
	assert.Equal(t, "MOD10A1", q.ShortName)
	assert.Equal(t, date(2020, 2, 1), q.Start)
	assert.Equal(t, time.Date(2020, 2, 1, 23, 59, 59, 0, time.UTC), q.End)
	assert.Equal(t, ".hdf", q.FilenameFilter)
	assert.True(t, q.StartWithin)

	links := []string{
		"https://n5eil01u.test/MOD10A1.A2020032.h08v05.061.2020034.hdf",
		"https://n5eil01u.test/MOD10A1.A2020032.h10v05.061.2020034.hdf",
	}
	assert.Equal(t, links[:1], onTiles(links, []string{"h08v05", "h09v05"}))
}

func TestWaterYear(t *testing.T) {
	assert.Equal(t, 2020, WaterYear(date(2019, 10, 1)))
	assert.Equal(t, 2019, WaterYear(date(2019, 9, 30)))
	assert.Equal(t, 1, waterYearDay(date(2019, 10, 1)))
	assert.Equal(t, 124, waterYearDay(date(2020, 2, 1)))
}
