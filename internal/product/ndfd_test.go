package product

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/shread/internal/archive"
	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/fetch"
)

func TestNDFDJobs(t *testing.T) {
	p := &NDFDProduct{
		Params: []string{"maxt", "qpf"},
		Clock:  clockwork.NewFakeClockAt(time.Date(2020, 2, 1, 17, 30, 0, 0, time.UTC)),
	}
	jobs := p.Jobs([]time.Time{date(2019, 1, 1), date(2019, 1, 2)})
	require.Len(t, jobs, 2)
	assert.Equal(t, "20200201_maxt", jobs[0].ID())
	assert.Equal(t, "20200201_qpf", jobs[1].ID())
	assert.Empty(t, p.Jobs(nil))
}

func TestParseGribTime(t *testing.T) {
	got, err := ParseGribTime("  1580558400 sec UTC")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC), got)

	_, err = ParseGribTime("")
	assert.Error(t, err)
	_, err = ParseGribTime("soon")
	assert.Error(t, err)
}

func TestNDFDNormalizeAndDerive(t *testing.T) {
	env, engine := newTestEnv(t, config.English)
	p := &NDFDProduct{Params: []string{"maxt"}, Clock: clockwork.NewFakeClockAt(date(2020, 2, 1))}
	job := p.Jobs([]time.Time{date(2020, 2, 1)})[0]
	dir, err := env.ensureDir(job)
	require.NoError(t, err)

	short := filepath.Join(dir, ndfdFile(job.Date, "VP.001-003", "maxt"))
	long := filepath.Join(dir, ndfdFile(job.Date, "VP.004-007", "maxt"))
	require.NoError(t, engine.Put(short, smallGrid(0, 10, -9999, -40)))
	require.NoError(t, engine.Put(long, smallGrid(0, 10, -9999, -40)))
	engine.Bands[short] = 2
	engine.Bands[long] = 1
	init := "1580558400 sec UTC"
	engine.SetBandMetadata(short, 1, "GRIB_REF_TIME", init)
	engine.SetBandMetadata(short, 1, "GRIB_VALID_TIME", "1580601600 sec UTC")
	engine.SetBandMetadata(short, 2, "GRIB_REF_TIME", init)
	engine.SetBandMetadata(short, 2, "GRIB_VALID_TIME", "1580688000 sec UTC")
	// overlaps the first bundle
	engine.SetBandMetadata(long, 1, "GRIB_REF_TIME", init)
	engine.SetBandMetadata(long, 1, "GRIB_VALID_TIME", "1580688000 sec UTC")

	layers, err := p.Normalize(context.Background(), env, job)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC), layers[0].ValidTime)
	assert.Equal(t, time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC), layers[0].InitTime)
	assert.Equal(t, time.Date(2020, 2, 3, 0, 0, 0, 0, time.UTC), layers[1].ValidTime)

	out, err := p.Derive(context.Background(), env, job, layers)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ndfd_maxt_2020020200_animas_english.tif", filepath.Base(out[0].Path))

	g, err := engine.Read(out[0].Path)
	require.NoError(t, err)
	assert.InDelta(t, 32, g.Data[0], 1e-9)
	assert.InDelta(t, 50, g.Data[1], 1e-9)
	assert.Equal(t, -9999.0, g.Data[2])
	assert.InDelta(t, -40, g.Data[3], 1e-9)
}

func TestNDFDNormalizeWithoutBundles(t *testing.T) {
	env, _ := newTestEnv(t, config.Metric)
	p := &NDFDProduct{Params: []string{"qpf"}}
	_, err := p.Normalize(context.Background(), env, Job{Product: NDFD, Date: date(2020, 2, 1), Key: "qpf"})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestNDFDFetchDownloadsEachRun(t *testing.T) {
	var hits atomic.Int32
	var body atomic.Value
	body.Store("day1")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	env, _ := newTestEnv(t, config.Metric)
	env.Config.NDFD.Host = srv.URL
	env.Fetch = fetch.New(srv.Client())
	env.Archive = archive.NewLocal(t.TempDir())

	clock := clockwork.NewFakeClockAt(time.Date(2020, 2, 1, 6, 0, 0, 0, time.UTC))
	p := &NDFDProduct{Params: []string{"maxt"}, Clock: clock}
	ctx := context.Background()

	fetchRun := func() string {
		t.Helper()
		job := p.Jobs([]time.Time{clock.Now()})[0]
		require.NoError(t, p.Fetch(ctx, env, job))
		data, err := os.ReadFile(filepath.Join(env.JobDir(job), ndfdFile(job.Date, "VP.001-003", "maxt")))
		require.NoError(t, err)
		require.NoError(t, os.RemoveAll(env.JobDir(job)))
		return string(data)
	}

	assert.Equal(t, "day1", fetchRun())
	assert.Equal(t, int32(2), hits.Load())

	clock.Advance(24 * time.Hour)
	body.Store("day2")
	assert.Equal(t, "day2", fetchRun(), "next run must not restore the previous forecast")
	assert.Equal(t, int32(4), hits.Load())

	// the same run date is still served from the archive
	clock.Advance(time.Hour)
	body.Store("day2-late")
	assert.Equal(t, "day2", fetchRun())
	assert.Equal(t, int32(4), hits.Load())
}
