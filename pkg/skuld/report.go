package skuld

import "time"

// Report is the top-level accounting of one run: per-template aggregate
// counts plus the information needed to reproduce the run.
type Report struct {
	RunID string

	// Seed is the global seed per-scenario seeds were derived from;
	// recorded so a randomized order can be replayed
	Seed int64

	StartedAt time.Time
	EndedAt   time.Time

	Total       int
	Passed      int
	Failed      int
	Skipped     int
	Interrupted int

	// StoppedEarly is set when the interrupter halted scheduling
	// before the queue was exhausted
	StoppedEarly bool

	results []*AggregatedResult
	summary []string
}

func NewReport(runID string, seed int64) *Report {
	return &Report{
		RunID: runID,
		Seed:  seed,
	}
}

// Add folds one finalized aggregated result into the report.
func (r *Report) Add(result *AggregatedResult) {
	r.results = append(r.results, result)

	r.Total++
	switch result.Status() {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	case StatusInterrupted:
		r.Interrupted++
	}

	for _, member := range result.Results {
		started, ended := member.StartedAt(), member.EndedAt()
		if !started.IsZero() && (r.StartedAt.IsZero() || started.Before(r.StartedAt)) {
			r.StartedAt = started
		}
		if ended.After(r.EndedAt) {
			r.EndedAt = ended
		}
	}
}

func (r *Report) Results() []*AggregatedResult {
	results := make([]*AggregatedResult, len(r.results))
	copy(results, r.results)
	return results
}

func (r *Report) Elapsed() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// AddSummary appends a free-form line reporters may display after the
// run, such as a seed preamble or a re-run hint.
func (r *Report) AddSummary(line string) {
	r.summary = append(r.summary, line)
}

func (r *Report) Summary() []string {
	summary := make([]string, len(r.summary))
	copy(summary, r.summary)
	return summary
}

// Merge folds another report into this one. Used to combine reports
// produced by disjoint partitions of one scenario set.
func (r *Report) Merge(other *Report) {
	for _, result := range other.results {
		r.Add(result)
	}

	seen := make(map[string]bool, len(r.summary))
	for _, line := range r.summary {
		seen[line] = true
	}
	for _, line := range other.summary {
		if !seen[line] {
			r.summary = append(r.summary, line)
			seen[line] = true
		}
	}

	r.StoppedEarly = r.StoppedEarly || other.StoppedEarly
}

// ExitCode maps the report to a process exit code: zero only when no
// template failed and the run was not interrupted before completion.
func (r *Report) ExitCode() int {
	switch {
	case r.Failed > 0:
		return 1
	case r.StoppedEarly || r.Interrupted > 0:
		return 2
	}
	return 0
}
