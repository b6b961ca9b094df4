// Package health fans out dependency probes and aggregates the results.
package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 3 * time.Second

// Check probes one dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Result reports the outcome of a single check.
type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report aggregates all check results.
type Report struct {
	Status string   `json:"status"`
	Checks []Result `json:"checks"`
}

// Checker runs a fixed set of dependency checks in parallel.
type Checker struct {
	checks []Check
}

func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Run probes every dependency concurrently with a per-check timeout and
// reports the aggregate. A single failing dependency degrades the whole
// report but never aborts the remaining probes.
func (c *Checker) Run(ctx context.Context) Report {
	results := make([]Result, len(c.checks))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, check := range c.checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			res := Result{Name: check.Name, Status: "ok"}
			if err := check.Probe(probeCtx); err != nil {
				res.Status = "unhealthy"
				res.Error = err.Error()
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	report := Report{Status: "ok", Checks: results}
	for _, res := range results {
		if res.Status != "ok" {
			report.Status = "unhealthy"
			break
		}
	}
	return report
}
