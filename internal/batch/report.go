package batch

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robert-malhotra/shread/internal/pipeline"
)

// Report collects job results. It is safe for concurrent use.
type Report struct {
	RunID   string
	Started time.Time

	mu       sync.Mutex
	results  []pipeline.Result
	finished time.Time
}

// NewReport returns an empty report.
func NewReport(runID string, started time.Time) *Report {
	return &Report{RunID: runID, Started: started}
}

// Add records one job result.
func (r *Report) Add(res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Finish marks the run complete.
func (r *Report) Finish(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = t
}

// Results returns a copy of the recorded results.
func (r *Report) Results() []pipeline.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Result(nil), r.results...)
}

// ProductSummary counts job outcomes for one product.
type ProductSummary struct {
	Product string `json:"product"`
	OK      int    `json:"ok"`
	Failed  int    `json:"failed"`
}

// Failure describes one failed job.
type Failure struct {
	Job   string `json:"job"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Snapshot is a point-in-time view of a report.
type Snapshot struct {
	RunID    string           `json:"run_id"`
	Started  time.Time        `json:"started"`
	Finished *time.Time       `json:"finished,omitempty"`
	Products []ProductSummary `json:"products"`
	Failures []Failure        `json:"failures"`
}

// Snapshot summarizes the results recorded so far, ordering products by name.
func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RunID:    r.RunID,
		Started:  r.Started,
		Products: make([]ProductSummary, 0),
		Failures: make([]Failure, 0),
	}
	if !r.finished.IsZero() {
		f := r.finished
		s.Finished = &f
	}

	byProduct := make(map[string]*ProductSummary)
	for _, res := range r.results {
		ps, ok := byProduct[res.Job.Product]
		if !ok {
			ps = &ProductSummary{Product: res.Job.Product}
			byProduct[res.Job.Product] = ps
		}
		if res.OK() {
			ps.OK++
			continue
		}
		ps.Failed++
		s.Failures = append(s.Failures, Failure{
			Job:   res.Job.String(),
			Stage: string(res.Stage),
			Error: res.Err.Error(),
		})
	}
	for _, ps := range byProduct {
		s.Products = append(s.Products, *ps)
	}
	sort.Slice(s.Products, func(i, j int) bool { return s.Products[i].Product < s.Products[j].Product })
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Job < s.Failures[j].Job })
	return s
}

// Failed returns the number of failed jobs.
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Snapshot().Products {
		n += p.Failed
	}
	return n
}

// Log writes the run summary.
func (r *Report) Log(logger *slog.Logger) {
	s := r.Snapshot()
	for _, p := range s.Products {
		logger.Info("product summary",
			slog.String("product", p.Product),
			slog.Int("ok", p.OK),
			slog.Int("failed", p.Failed),
		)
	}
	for _, f := range s.Failures {
		logger.Warn("job failure",
			slog.String("job", f.Job),
			slog.String("stage", f.Stage),
			slog.String("error", f.Error),
		)
	}
}
