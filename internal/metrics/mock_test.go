package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProviderReturnsFixtures(t *testing.T) {
	mock := NewMockProvider()
	qb := NewQueryBuilder()

	query := qb.PodCPUUsage("web")
	mock.AddMatrix(query, model.Matrix{
		&model.SampleStream{
			Metric: model.Metric{"pod": "api-0"},
			Values: []model.SamplePair{{Timestamp: model.TimeFromUnix(100), Value: 0.5}},
		},
	})

	matrix, err := mock.QueryRange(context.Background(), query, time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.NoError(t, err)
	require.Len(t, matrix, 1)
	assert.Equal(t, model.LabelValue("api-0"), matrix[0].Metric["pod"])
	assert.Equal(t, 1, mock.QueryRangeCalls)
}

func TestMockProviderUnknownQueryIsEmpty(t *testing.T) {
	mock := NewMockProvider()

	matrix, err := mock.QueryRange(context.Background(), "up", time.Now(), time.Now(), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, matrix)

	vector, err := mock.QueryInstant(context.Background(), "up", time.Now())
	require.NoError(t, err)
	assert.Empty(t, vector)
}

func TestMockProviderErrorInjection(t *testing.T) {
	mock := NewMockProvider()
	mock.QueryRangeError = errors.New("boom")
	mock.HealthError = errors.New("down")

	_, err := mock.QueryRange(context.Background(), "up", time.Now(), time.Now(), time.Minute)
	assert.Error(t, err)
	assert.Error(t, mock.Health(context.Background()))

	mock.Reset()
	_, err = mock.QueryRange(context.Background(), "up", time.Now(), time.Now(), time.Minute)
	assert.NoError(t, err)
	assert.NoError(t, mock.Health(context.Background()))
	assert.Equal(t, 1, mock.QueryRangeCalls)
}

func TestWithRetryStopsAfterSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("persistent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := withRetry(ctx, RetryPolicy{MaxAttempts: 5, Backoff: time.Minute}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewPrometheusClientRequiresURL(t *testing.T) {
	_, err := NewPrometheusClient(Config{})
	assert.Error(t, err)

	client, err := NewPrometheusClient(Config{PrometheusURL: "http://localhost:9090"})
	require.NoError(t, err)
	assert.NotNil(t, client.GetAPI())
}
