// Package metrics is the usage-data seam: a narrow Provider interface over
// Prometheus range and instant queries, with retry behavior injected
// explicitly rather than buried in call sites.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/common/model"
)

// Provider is the query surface the collectors depend on.
type Provider interface {
	// QueryRange executes a range query over a time window.
	QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (model.Matrix, error)

	// QueryInstant executes an instant query at a specific time.
	QueryInstant(ctx context.Context, query string, ts time.Time) (model.Vector, error)

	// Health checks if the metrics endpoint is reachable.
	Health(ctx context.Context) error
}

// RetryPolicy controls how failed queries are retried. The zero value
// means a single attempt with no backoff.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Backoff is the wait between attempts; it doubles each retry.
	Backoff time.Duration
}

// DefaultRetryPolicy suits transient Prometheus hiccups without hiding
// real outages.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Config holds configuration for the Prometheus provider.
type Config struct {
	// PrometheusURL is the Prometheus endpoint (e.g. http://prometheus:9090).
	PrometheusURL string

	// Timeout bounds individual queries.
	Timeout time.Duration

	Retry RetryPolicy
}
