package product

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/robert-malhotra/shread/internal/archive"
	"github.com/robert-malhotra/shread/internal/basin"
	"github.com/robert-malhotra/shread/internal/cmr"
	"github.com/robert-malhotra/shread/internal/config"
	"github.com/robert-malhotra/shread/internal/fetch"
	"github.com/robert-malhotra/shread/internal/raster"
)

type options struct {
	clock clockwork.Clock
}

// Option customizes product construction.
type Option func(*options)

// WithClock sets the time source used to pick real-time payloads.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}

// Env carries the shared, read-only dependencies of a run.
type Env struct {
	Config *config.RunConfig
	Basin  *basin.Basin
	Engine raster.Engine

	// Fetch handles anonymous HTTP(S) and FTP downloads.
	Fetch *fetch.Client
	// JPL handles digest-authenticated downloads.
	JPL *fetch.Client
	// Earthdata follows Earthdata Login redirects.
	Earthdata *fetch.Client
	CMR       *cmr.Client

	// Archive is nil when archiving is disabled.
	Archive archive.Store

	Overwrite bool
	Logger    *slog.Logger
}

// JobDir returns <work>/<product>/<job-id>.
func (e *Env) JobDir(job Job) string {
	return filepath.Join(e.Config.WorkDir, job.Product, job.ID())
}

// OutputPath returns the path of a derived artifact in the output directory.
func (e *Env) OutputPath(product string, l Layer, suffix string) string {
	return filepath.Join(e.Config.OutputDir, OutputName(product, l, e.Basin.Name, e.Config.UnitSystem)+suffix)
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Retrieve makes url available at dst: an existing dst is kept unless
// overwrite is set, otherwise the archive is tried before the network. Fresh
// downloads are archived.
func (e *Env) Retrieve(ctx context.Context, client *fetch.Client, product, url, dst string) error {
	if !e.Overwrite && fetch.Exists(dst) {
		return nil
	}
	name := filepath.Base(dst)
	if e.Archive != nil && !e.Overwrite {
		ok, err := e.Archive.Restore(ctx, product, name, dst)
		if err != nil {
			e.logger().WarnContext(ctx, "archive restore failed",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			return nil
		}
	}

	if client == nil {
		return fmt.Errorf("no client configured to download %s", url)
	}
	downloaded, err := client.Get(ctx, url, dst, e.Overwrite)
	if err != nil {
		return err
	}
	if downloaded && e.Archive != nil {
		if err := e.Archive.Save(ctx, product, dst); err != nil {
			e.logger().WarnContext(ctx, "archive save failed",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ensureDir creates the job directory.
func (e *Env) ensureDir(job Job) (string, error) {
	dir := e.JobDir(job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	return dir, nil
}
