package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shread.ini")
	require.NoError(t, os.WriteFile(path, []byte("[paths]\n"), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	cfg := writeConfig(t)

	t.Run("expands dates", func(t *testing.T) {
		req, err := options{
			configPath: cfg,
			start:      "20200101",
			end:        "20200103",
			interval:   "day",
			products:   "snodas, srpt",
			overwrite:  true,
		}.validate()
		require.NoError(t, err)
		assert.Equal(t, []string{"snodas", "srpt"}, req.products)
		assert.True(t, req.overwrite)
		require.Len(t, req.dates, 3)
		assert.Equal(t, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC), req.dates[2])
	})

	t.Run("end defaults to start", func(t *testing.T) {
		req, err := options{configPath: cfg, start: "20200215", interval: "week", products: "ndfd"}.validate()
		require.NoError(t, err)
		assert.Equal(t, []time.Time{time.Date(2020, 2, 15, 0, 0, 0, 0, time.UTC)}, req.dates)
	})

	t.Run("reports every problem", func(t *testing.T) {
		_, err := options{
			configPath: filepath.Join(t.TempDir(), "missing.ini"),
			start:      "2020-01-01",
			interval:   "day",
			products:   "snodas,bogus",
		}.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file")
		assert.Contains(t, err.Error(), "start")
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := options{configPath: cfg, start: "20200105", end: "20200101", interval: "day", products: "snodas"}.validate()
		assert.Error(t, err)
	})

	t.Run("bad interval", func(t *testing.T) {
		_, err := options{configPath: cfg, start: "20200101", interval: "fortnight", products: "snodas"}.validate()
		assert.Error(t, err)
	})
}

func TestRootCmdRequiresFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"-s", "20200101"})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
	assert.Contains(t, err.Error(), "products")
}

func TestRootCmdFlagDefaults(t *testing.T) {
	cmd := newRootCmd()
	f := cmd.Flags()
	interval, err := f.GetString("time")
	require.NoError(t, err)
	assert.Equal(t, "day", interval)
	overwrite, err := f.GetBool("overwrite")
	require.NoError(t, err)
	assert.False(t, overwrite)
	assert.Equal(t, "i", f.Lookup("config").Shorthand)
	assert.Equal(t, "p", f.Lookup("products").Shorthand)
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
