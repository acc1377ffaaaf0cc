// Package pipeline drives one product job through fetch, normalize, derive,
// summarize and cleanup, recording where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robert-malhotra/shread/internal/observability"
	"github.com/robert-malhotra/shread/internal/product"
)

// Stage is the last state a job reached.
type Stage string

const (
	StagePending    Stage = "PENDING"
	StageFetched    Stage = "FETCHED"
	StageNormalized Stage = "NORMALIZED"
	StageDerived    Stage = "DERIVED"
	StageSummarized Stage = "SUMMARIZED"
	StageCleaned    Stage = "CLEANED"
)

// ErrNoInput is returned when a stage finds nothing to work on.
var ErrNoInput = product.ErrNoInput

// Result is the outcome of one job.
type Result struct {
	Job product.Job
	// Stage is the last state reached. A failed job stops before cleanup
	// completes the state machine, but its working directory is still removed.
	Stage Stage
	Err   error
	// Outputs are the artifacts written to the output directory.
	Outputs  []string
	Duration time.Duration
}

// OK reports whether the job ran to completion.
func (r Result) OK() bool {
	return r.Err == nil
}

// Pipeline runs jobs against a shared environment.
type Pipeline struct {
	env     *product.Env
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Pipeline. metrics may be nil.
func New(env *product.Env, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		env:     env,
		metrics: metrics,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// Run executes every stage of job. Failures stop the remaining stages except
// cleanup; they are reported in the Result rather than returned.
func (p *Pipeline) Run(ctx context.Context, prod product.Product, job product.Job) Result {
	start := time.Now()
	name := prod.Descriptor().Name
	logger := p.logger.With(
		slog.String("product", name),
		slog.String("date", job.Date.Format("2006-01-02")),
	)
	if job.Key != "" {
		logger = logger.With(slog.String("key", job.Key))
	}
	if p.metrics != nil {
		p.metrics.JobsRunning.Inc()
		defer p.metrics.JobsRunning.Dec()
	}

	res := Result{Job: job, Stage: StagePending}
	res.Err = p.execute(ctx, logger, prod, job, &res)

	if err := p.cleanup(job); err != nil {
		logger.WarnContext(ctx, "cleanup failed", slog.String("error", err.Error()))
		if res.Err == nil {
			res.Err = fmt.Errorf("cleanup: %w", err)
		}
	} else if res.Err == nil {
		res.Stage = StageCleaned
	}
	res.Duration = time.Since(start)

	outcome := "ok"
	if res.Err != nil {
		outcome = "failed"
		attrs := []any{
			slog.String("stage", string(res.Stage)),
			slog.String("error", res.Err.Error()),
		}
		attrs = append(attrs, slog.Bool("no_input", errors.Is(res.Err, ErrNoInput)))
		logger.ErrorContext(ctx, "job failed", attrs...)
		if p.metrics != nil {
			p.metrics.StageFailures.WithLabelValues(name, string(res.Stage)).Inc()
		}
	} else {
		logger.InfoContext(ctx, "job complete",
			slog.Int("outputs", len(res.Outputs)),
			slog.Duration("duration", res.Duration),
		)
	}
	if p.metrics != nil {
		p.metrics.JobsTotal.WithLabelValues(name, outcome).Inc()
	}
	return res
}

func (p *Pipeline) execute(ctx context.Context, logger *slog.Logger, prod product.Product, job product.Job, res *Result) error {
	if err := p.timed(ctx, prod, "fetch", func() error {
		return prod.Fetch(ctx, p.env, job)
	}); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	res.Stage = StageFetched
	logger.DebugContext(ctx, "fetched")

	var normalized []product.Layer
	if err := p.timed(ctx, prod, "normalize", func() (err error) {
		normalized, err = prod.Normalize(ctx, p.env, job)
		return err
	}); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	res.Stage = StageNormalized
	logger.DebugContext(ctx, "normalized", slog.Int("layers", len(normalized)))

	var derived []product.Layer
	if err := p.timed(ctx, prod, "derive", func() (err error) {
		derived, err = prod.Derive(ctx, p.env, job, normalized)
		return err
	}); err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	res.Stage = StageDerived
	for _, l := range derived {
		if l.Path != "" {
			res.Outputs = append(res.Outputs, l.Path)
		}
	}

	if err := p.timed(ctx, prod, "summarize", func() error {
		written, err := p.summarize(ctx, logger, prod.Descriptor(), derived)
		res.Outputs = append(res.Outputs, written...)
		return err
	}); err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	res.Stage = StageSummarized
	return nil
}

func (p *Pipeline) timed(ctx context.Context, prod product.Product, stage string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(prod.Descriptor().Name, stage).Observe(time.Since(start).Seconds())
	}
	return err
}

// cleanup removes the job's working directory.
func (p *Pipeline) cleanup(job product.Job) error {
	return os.RemoveAll(p.env.JobDir(job))
}
