package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusClient implements Provider against a Prometheus endpoint.
type PrometheusClient struct {
	api    v1.API
	config Config
}

// NewPrometheusClient creates a new Prometheus client.
func NewPrometheusClient(config Config) (*PrometheusClient, error) {
	if config.PrometheusURL == "" {
		return nil, fmt.Errorf("prometheus URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry.MaxAttempts = 1
	}

	client, err := api.NewClient(api.Config{
		Address: config.PrometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusClient{
		api:    v1.NewAPI(client),
		config: config,
	}, nil
}

// GetAPI returns the underlying Prometheus API client.
func (p *PrometheusClient) GetAPI() v1.API {
	return p.api
}

// QueryRange executes a range query with the configured retry policy.
func (p *PrometheusClient) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (model.Matrix, error) {
	var matrix model.Matrix
	err := withRetry(ctx, p.config.Retry, func(ctx context.Context) error {
		qctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		result, _, err := p.api.QueryRange(qctx, query, v1.Range{Start: start, End: end, Step: step})
		if err != nil {
			return fmt.Errorf("query range failed: %w", err)
		}
		m, ok := result.(model.Matrix)
		if !ok {
			return fmt.Errorf("unexpected result type: %T", result)
		}
		matrix = m
		return nil
	})
	return matrix, err
}

// QueryInstant executes an instant query with the configured retry policy.
func (p *PrometheusClient) QueryInstant(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	var vector model.Vector
	err := withRetry(ctx, p.config.Retry, func(ctx context.Context) error {
		qctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		result, _, err := p.api.Query(qctx, query, ts)
		if err != nil {
			return fmt.Errorf("instant query failed: %w", err)
		}
		v, ok := result.(model.Vector)
		if !ok {
			return fmt.Errorf("unexpected result type: %T", result)
		}
		vector = v
		return nil
	})
	return vector, err
}

// Health checks if the Prometheus endpoint is reachable.
func (p *PrometheusClient) Health(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if _, err := p.api.Runtimeinfo(qctx); err != nil {
		return fmt.Errorf("prometheus health check failed: %w", err)
	}
	return nil
}

// withRetry runs fn up to the policy's attempt count, doubling the backoff
// between tries. Context cancellation always wins over another attempt.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := policy.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
