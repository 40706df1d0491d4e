// Package watch re-runs the analysis on an interval and reports how the
// recommendation set changed between iterations, so drift shows up as
// new findings instead of a wall of repeated output.
package watch

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kubefit/kubefit/internal/report"
)

// Config holds watch mode configuration.
type Config struct {
	Interval      time.Duration
	MaxIterations int
	AlertNewOnly  bool
}

// FindingDiff is the change in findings between two iterations. Findings
// are identified by their stable sort keys.
type FindingDiff struct {
	New      []string
	Resolved []string
	Ongoing  []string
}

// AnalyzeFunc produces one report. The loop calls it every interval.
type AnalyzeFunc func(ctx context.Context) (report.Report, error)

// Run executes the watch loop until the context is cancelled or
// MaxIterations is reached. Analysis failures are reported and the loop
// continues; a transient Prometheus outage should not end a watch.
func Run(ctx context.Context, analyze AnalyzeFunc, cfg Config, w io.Writer) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var prev map[string]bool
	iteration := 0
	for {
		iteration++
		timestamp := time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
		fmt.Fprintf(w, "\n[%s] Iteration %d", timestamp, iteration)
		if cfg.MaxIterations > 0 {
			fmt.Fprintf(w, "/%d", cfg.MaxIterations)
		}
		fmt.Fprintln(w)

		rep, err := analyze(ctx)
		if err != nil {
			fmt.Fprintf(w, "analysis error: %v\n", err)
		} else {
			curr := findingKeys(rep)
			if prev != nil {
				diff := compareFindings(prev, curr)
				printDiff(w, diff, cfg.AlertNewOnly)
			} else {
				fmt.Fprintf(w, "%d findings\n", len(curr))
			}
			prev = curr
		}

		if cfg.MaxIterations > 0 && iteration >= cfg.MaxIterations {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// findingKeys extracts the identity set of a report's recommendations.
func findingKeys(rep report.Report) map[string]bool {
	keys := make(map[string]bool, len(rep.Recommendations))
	for _, rec := range rep.Recommendations {
		keys[rec.SortKey()] = true
	}
	return keys
}

// compareFindings computes the membership diff of two finding sets.
func compareFindings(prev, curr map[string]bool) FindingDiff {
	var diff FindingDiff
	for key := range curr {
		if prev[key] {
			diff.Ongoing = append(diff.Ongoing, key)
		} else {
			diff.New = append(diff.New, key)
		}
	}
	for key := range prev {
		if !curr[key] {
			diff.Resolved = append(diff.Resolved, key)
		}
	}
	sort.Strings(diff.New)
	sort.Strings(diff.Resolved)
	sort.Strings(diff.Ongoing)
	return diff
}

func printDiff(w io.Writer, diff FindingDiff, newOnly bool) {
	if len(diff.New) == 0 && !newOnly {
		fmt.Fprintf(w, "no new findings (%d ongoing, %d resolved)\n", len(diff.Ongoing), len(diff.Resolved))
	}
	for _, key := range diff.New {
		fmt.Fprintf(w, "NEW      %s\n", key)
	}
	if newOnly {
		return
	}
	for _, key := range diff.Resolved {
		fmt.Fprintf(w, "RESOLVED %s\n", key)
	}
	for _, key := range diff.Ongoing {
		fmt.Fprintf(w, "ONGOING  %s\n", key)
	}
}
