package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successRecord(rt time.Duration) RequestRecord {
	return RequestRecord{
		Timestamp:    time.Now(),
		Result:       ResultSuccess,
		ResponseTime: &rt,
	}
}

func failureRecord(result RequestResult) RequestRecord {
	return RequestRecord{
		Timestamp: time.Now(),
		Result:    result,
	}
}

func TestAddRequestResultStreaks(t *testing.T) {
	m := NewProxyMetrics(time.Now())

	m = m.AddRequestResult(successRecord(100 * time.Millisecond))
	m = m.AddRequestResult(successRecord(100 * time.Millisecond))
	assert.Equal(t, 2, m.ConsecutiveSuccesses)
	assert.Equal(t, 0, m.ConsecutiveFailures)

	m = m.AddRequestResult(failureRecord(ResultTimeout))
	assert.Equal(t, 0, m.ConsecutiveSuccesses)
	assert.Equal(t, 1, m.ConsecutiveFailures)
	assert.Equal(t, 3, m.TotalRequests)
	assert.Equal(t, 2, m.SuccessfulRequests)
	assert.Equal(t, 1, m.FailedRequests)
	require.NotNil(t, m.LastFailureAt)
	require.NotNil(t, m.LastSuccessAt)
}

func TestAddRequestResultDoesNotMutateReceiver(t *testing.T) {
	original := NewProxyMetrics(time.Now())
	updated := original.AddRequestResult(successRecord(50 * time.Millisecond))

	assert.Equal(t, 0, original.TotalRequests)
	assert.Empty(t, original.History)
	assert.Equal(t, 1, updated.TotalRequests)
	assert.Len(t, updated.History, 1)
}

func TestHistoryIsCappedFIFO(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	for i := 0; i < 150; i++ {
		record := successRecord(10 * time.Millisecond)
		record.HTTPStatus = i
		m = m.AddRequestResult(record)
	}

	require.Len(t, m.History, 100)
	// The 50 oldest records were evicted.
	assert.Equal(t, 50, m.History[0].HTTPStatus)
	assert.Equal(t, 149, m.History[99].HTTPStatus)
	assert.Equal(t, 150, m.TotalRequests)
}

func TestSuccessRateEdges(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	assert.Zero(t, m.SuccessRate())
	assert.Zero(t, m.AvailabilityScore())

	m = m.AddRequestResult(successRecord(100 * time.Millisecond))
	assert.Equal(t, 1.0, m.SuccessRate())

	m = m.AddRequestResult(failureRecord(ResultConnectionError))
	assert.Equal(t, 0.5, m.SuccessRate())
}

func TestSpeedFactor(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	assert.Equal(t, 1.0, m.SpeedFactor())

	m = m.AddRequestResult(successRecord(2500 * time.Millisecond))
	assert.InDelta(t, 0.5, m.SpeedFactor(), 0.001)

	m = NewProxyMetrics(time.Now())
	m = m.AddRequestResult(successRecord(10 * time.Second))
	assert.Zero(t, m.SpeedFactor())
}

func TestAvailabilityScoreBlend(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	m = m.AddRequestResult(successRecord(0))
	m.TotalResponseTime = 0
	m.ResponseSamples = 0

	// Perfect success rate with no samples: 0.7*1 + 0.3*1.
	assert.InDelta(t, 1.0, m.AvailabilityScore(), 0.001)
}

func TestShouldQuarantineThresholds(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	assert.False(t, m.ShouldQuarantine())

	for i := 0; i < 5; i++ {
		m = m.AddRequestResult(failureRecord(ResultTimeout))
	}
	assert.True(t, m.ShouldQuarantine(), "five consecutive failures")

	m = NewProxyMetrics(time.Now())
	m = m.AddRequestResult(successRecord(time.Second))
	for i := 0; i < 19; i++ {
		m = m.AddRequestResult(failureRecord(ResultHTTPError))
	}
	require.GreaterOrEqual(t, m.TotalRequests, 20)
	require.Less(t, m.SuccessRate(), 0.1)
	assert.True(t, m.ShouldQuarantine(), "abysmal success rate over enough traffic")

	m = NewProxyMetrics(time.Now())
	m = m.AddRequestResult(successRecord(45 * time.Second))
	assert.True(t, m.ShouldQuarantine(), "average response time past 30s")
}

func TestHealthStatusHint(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	assert.Equal(t, HealthStatusUnknown, m.HealthStatusHint())

	m = m.AddRequestResult(successRecord(100 * time.Millisecond))
	assert.Equal(t, HealthStatusHealthy, m.HealthStatusHint())

	m = m.AddRequestResult(failureRecord(ResultTimeout))
	m = m.AddRequestResult(failureRecord(ResultTimeout))
	m = m.AddRequestResult(failureRecord(ResultTimeout))
	assert.Equal(t, HealthStatusUnhealthy, m.HealthStatusHint())

	slow := NewProxyMetrics(time.Now())
	slow = slow.AddRequestResult(successRecord(4 * time.Second))
	assert.Equal(t, HealthStatusDegraded, slow.HealthStatusHint())
}

func TestStabilityIndexBounds(t *testing.T) {
	m := NewProxyMetrics(time.Now())
	assert.Zero(t, m.StabilityIndex())

	for i := 0; i < 20; i++ {
		m = m.AddRequestResult(successRecord(50 * time.Millisecond))
	}
	stable := m.StabilityIndex()
	assert.Greater(t, stable, 0.9)
	assert.LessOrEqual(t, stable, 1.0)

	for i := 0; i < 20; i++ {
		m = m.AddRequestResult(failureRecord(ResultConnectionError))
	}
	assert.Less(t, m.StabilityIndex(), stable)
}
