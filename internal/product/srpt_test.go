package product

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/shread/internal/config"
)

const reportsKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
  <Folder>
    <Placemark>
      <name>Molas Lake</name>
      <ExtendedData>
        <Data name="Station_Id"><value>CO-SJ-12</value></Data>
        <Data name="Snow Depth"><value>24.5</value></Data>
        <Data name="SWE"><value>6.1</value></Data>
        <Data name="Elevation"><value>10500</value></Data>
      </ExtendedData>
      <Point><coordinates>2.5,7.5,0</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>Trace</name>
      <ExtendedData>
        <SchemaData schemaUrl="#reports">
          <SimpleData name="station_id">CO-LP-3</SimpleData>
          <SimpleData name="snowdepth">T</SimpleData>
          <SimpleData name="elev">7000</SimpleData>
        </SchemaData>
      </ExtendedData>
      <Point><coordinates>5,5</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>Outside</name>
      <ExtendedData>
        <Data name="snowdepth"><value>3</value></Data>
      </ExtendedData>
      <Point><coordinates>20,20</coordinates></Point>
    </Placemark>
    <Placemark>
      <name>No point</name>
    </Placemark>
  </Folder>
</Document>
</kml>`

func TestParseReports(t *testing.T) {
	fc, err := ParseReports(strings.NewReader(reportsKML))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	first := fc.Features[0].Properties
	assert.Equal(t, "CO-SJ-12", first["station_id"])
	assert.Equal(t, "Molas Lake", first["name"])
	assert.Equal(t, 24.5, first["snowdepth"])
	assert.Equal(t, 6.1, first["swe"])
	assert.Equal(t, 10500.0, first["elevation"])

	trace := fc.Features[1].Properties
	assert.Equal(t, "CO-LP-3", trace["station_id"])
	assert.NotContains(t, trace, "snowdepth")
	assert.Equal(t, 7000.0, trace["elevation"])

	pt, err := fc.Features[2].Geometry.Point()
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 20}, pt)
}

func writeKMZ(t *testing.T, path, kml string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("snow_reports.kml")
	require.NoError(t, err)
	_, err = w.Write([]byte(kml))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestSRPTNormalizeAndDerive(t *testing.T) {
	env, _ := newTestEnv(t, config.Metric)
	p := &SRPTProduct{}
	job := p.Jobs([]time.Time{date(2020, 2, 1)})[0]
	dir, err := env.ensureDir(job)
	require.NoError(t, err)
	writeKMZ(t, filepath.Join(dir, srptName(job.Date)), reportsKML)

	layers, err := p.Normalize(context.Background(), env, job)
	require.NoError(t, err)
	vars := make([]string, len(layers))
	for i, l := range layers {
		vars[i] = l.Variable
		assert.Empty(t, l.Path)
	}
	assert.Equal(t, []string{"snowdepth", "swe", "elevation"}, vars)
	require.Len(t, layers[0].Points.Features, 1, "reports outside the basin or without a value are dropped")
	require.Len(t, layers[2].Points.Features, 2)

	out, err := p.Derive(context.Background(), env, job, layers)
	require.NoError(t, err)
	depth := out[0].Points.Features[0].Properties
	assert.InDelta(t, 622.3, depth["snowdepth"], 1e-9)
	assert.NotContains(t, depth, "swe")
	assert.NotContains(t, depth, "elevation")
	assert.Equal(t, "CO-SJ-12", depth["station_id"])

	elev := out[2].Points.Features[0].Properties
	assert.InDelta(t, 3200.4, elev["elevation"], 1e-9)

	// normalized inputs are untouched
	assert.Equal(t, 24.5, layers[0].Points.Features[0].Properties["snowdepth"])
}

func TestSRPTNormalizeNothingInBasin(t *testing.T) {
	env, _ := newTestEnv(t, config.Metric)
	p := &SRPTProduct{}
	job := Job{Product: SRPT, Date: date(2020, 2, 1)}
	dir, err := env.ensureDir(job)
	require.NoError(t, err)
	kml := strings.Replace(reportsKML, "2.5,7.5,0", "-50,-50", 1)
	kml = strings.Replace(kml, "<coordinates>5,5</coordinates>", "<coordinates>-5,-5</coordinates>", 1)
	writeKMZ(t, filepath.Join(dir, srptName(job.Date)), kml)

	_, err = p.Normalize(context.Background(), env, job)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestSRPTURL(t *testing.T) {
	cfg := config.HostConfig{Host: "https://www.nohrsc.noaa.gov", Path: "nsa/reports"}
	assert.Equal(t, "https://www.nohrsc.noaa.gov/nsa/reports/snow_reports_20200201.kmz", SRPTURL(cfg, date(2020, 2, 1)))
}
