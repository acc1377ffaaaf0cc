package batch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/shread/internal/pipeline"
	"github.com/robert-malhotra/shread/internal/product"
)

// JobRunner runs a single job to completion.
type JobRunner interface {
	Run(ctx context.Context, prod product.Product, job product.Job) pipeline.Result
}

// Runner dispatches the jobs of each requested product. Products whose
// descriptor is Concurrent run through a bounded worker pool; the rest run
// one job at a time.
type Runner struct {
	products map[string]product.Product
	jobs     JobRunner
	workers  int
	logger   *slog.Logger
}

// NewRunner creates a Runner. workers below one is treated as one.
func NewRunner(products map[string]product.Product, jobs JobRunner, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		products: products,
		jobs:     jobs,
		workers:  workers,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Run processes names in order over dates, recording every result in report.
// Failed jobs never stop their siblings; cancellation stops dispatching new
// jobs.
func (r *Runner) Run(ctx context.Context, names []string, dates []time.Time, report *Report) {
	for _, name := range names {
		prod, ok := r.products[name]
		if !ok {
			r.logger.ErrorContext(ctx, "unknown product", slog.String("product", name))
			continue
		}
		if ctx.Err() != nil {
			r.logger.WarnContext(ctx, "run cancelled", slog.String("product", name))
			return
		}

		jobs := prod.Jobs(dates)
		desc := prod.Descriptor()
		r.logger.InfoContext(ctx, "starting product",
			slog.String("product", name),
			slog.Int("jobs", len(jobs)),
			slog.Bool("concurrent", desc.Concurrent),
		)
		if desc.Concurrent {
			r.runPool(ctx, prod, jobs, report)
		} else {
			r.runSequential(ctx, prod, jobs, report)
		}
	}
}

func (r *Runner) runSequential(ctx context.Context, prod product.Product, jobs []product.Job, report *Report) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		report.Add(r.jobs.Run(ctx, prod, job))
	}
}

func (r *Runner) runPool(ctx context.Context, prod product.Product, jobs []product.Job, report *Report) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report.Add(r.jobs.Run(gctx, prod, job))
			return nil
		})
	}
	_ = g.Wait()
}
