package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

func testConfiguration(t *testing.T, host string, maxConcurrent int) ProxyConfiguration {
	t.Helper()
	endpoint, err := NewEndpoint(host, 8080, ProtocolHTTP)
	require.NoError(t, err)
	cfg, err := NewProxyConfiguration(endpoint, nil, nil, nil, maxConcurrent, 30*time.Second, 2)
	require.NoError(t, err)
	return cfg
}

func healthyProxy(t *testing.T, host string, maxConcurrent int) *Proxy {
	t.Helper()
	p := NewProxy(testConfiguration(t, host, maxConcurrent))
	rt := 100 * time.Millisecond
	p.ApplyHealthCheck(HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &rt,
		CheckType:    CheckTypeConnectivity,
	})
	p.DrainEvents()
	return p
}

func TestNewProxyDeterministicID(t *testing.T) {
	a := NewProxy(testConfiguration(t, "10.0.0.1", 5))
	b := NewProxy(testConfiguration(t, "10.0.0.1", 5))
	c := NewProxy(testConfiguration(t, "10.0.0.2", 5))

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestNewProxyStartsUnknownAndUnavailable(t *testing.T) {
	p := NewProxy(testConfiguration(t, "10.0.0.1", 5))

	assert.Equal(t, HealthStatusUnknown, p.HealthStatus())
	assert.False(t, p.IsAvailable(), "unknown proxies must not serve traffic")

	events := p.DrainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "proxy.created", events[0].EventName())
}

func TestAcquireRespectsCapacity(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 2)
	strategy := DefaultSelectionStrategy()
	sctx := NewSelectionContext("req-1")

	require.NoError(t, p.AcquireForRequest(strategy, sctx))
	require.NoError(t, p.AcquireForRequest(strategy, sctx))
	assert.Equal(t, 2, p.CurrentConcurrent())
	assert.False(t, p.IsAvailable())

	err := p.AcquireForRequest(strategy, sctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCapacityExhausted, apperrors.GetErrorCode(err))

	p.ReleaseFromRequest()
	assert.Equal(t, 1, p.CurrentConcurrent())
	assert.True(t, p.IsAvailable())
}

func TestReleaseFloorsAtZero(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 2)
	p.ReleaseFromRequest()
	assert.Zero(t, p.CurrentConcurrent())
}

func TestAdjustConcurrencyBounds(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 2)

	require.NoError(t, p.AdjustConcurrency(2))
	assert.Equal(t, 2, p.CurrentConcurrent())

	err := p.AdjustConcurrency(1)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCapacityExhausted, apperrors.GetErrorCode(err))

	require.NoError(t, p.AdjustConcurrency(-5))
	assert.Zero(t, p.CurrentConcurrent())
}

func TestAutoQuarantineAfterConsecutiveFailures(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)

	for i := 0; i < 5; i++ {
		p.RecordRequestResult(RequestRecord{
			Timestamp: time.Now(),
			Result:    ResultConnectionError,
		})
	}

	assert.True(t, p.IsQuarantined())
	assert.Equal(t, HealthStatusQuarantined, p.HealthStatus())
	require.NotNil(t, p.QuarantineUntil())
	assert.True(t, p.QuarantineUntil().After(time.Now()))
	assert.False(t, p.IsAvailable())

	var sawQuarantine, sawHealthChange bool
	for _, event := range p.DrainEvents() {
		switch event.EventName() {
		case "proxy.quarantined":
			sawQuarantine = true
		case "proxy.health_changed":
			sawHealthChange = true
		}
	}
	assert.True(t, sawQuarantine)
	assert.True(t, sawHealthChange)
}

func TestQuarantineStatusOutlivesWindow(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)
	p.ForceQuarantine("operator action", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	// The window has expired but the status stays sticky until a
	// successful health check.
	assert.False(t, p.IsQuarantined())
	assert.Equal(t, HealthStatusQuarantined, p.HealthStatus())
	assert.False(t, p.IsAvailable())
}

func TestHealthCheckRecoversQuarantinedProxy(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)
	p.ForceQuarantine("operator action", time.Hour)
	p.DrainEvents()

	rt := 80 * time.Millisecond
	p.ApplyHealthCheck(HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &rt,
		CheckType:    CheckTypeConnectivity,
	})

	assert.Equal(t, HealthStatusHealthy, p.HealthStatus())
	assert.Nil(t, p.QuarantineUntil())
	assert.False(t, p.IsQuarantined())

	var sawRecovered bool
	for _, event := range p.DrainEvents() {
		if event.EventName() == "proxy.recovered" {
			sawRecovered = true
		}
	}
	assert.True(t, sawRecovered)
}

func TestFailedProbeKeepsQuarantine(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)
	p.ForceQuarantine("operator action", time.Hour)

	p.ApplyHealthCheck(FailedCheck(CheckTypeConnectivity, assert.AnError))
	assert.Equal(t, HealthStatusQuarantined, p.HealthStatus())
}

func TestRepeatedProbeFailuresTurnUnhealthy(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)

	p.ApplyHealthCheck(FailedCheck(CheckTypeConnectivity, assert.AnError))
	assert.Equal(t, HealthStatusDegraded, p.HealthStatus())

	p.ApplyHealthCheck(FailedCheck(CheckTypeConnectivity, assert.AnError))
	p.ApplyHealthCheck(FailedCheck(CheckTypeConnectivity, assert.AnError))
	assert.Equal(t, HealthStatusUnhealthy, p.HealthStatus())
}

func TestSlowSuccessfulProbeDegrades(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)

	rt := 4 * time.Second
	p.ApplyHealthCheck(HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &rt,
		CheckType:    CheckTypeConnectivity,
	})
	assert.Equal(t, HealthStatusDegraded, p.HealthStatus())
}

func TestSelectionScoreStaysInUnitInterval(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)
	strategy := DefaultSelectionStrategy()
	sctx := NewSelectionContext("req-1")

	for i := 0; i < 30; i++ {
		result := ResultSuccess
		if i%4 == 0 {
			result = ResultTimeout
		}
		rt := time.Duration(50+i*10) * time.Millisecond
		p.RecordRequestResult(RequestRecord{
			Timestamp:    time.Now(),
			Result:       result,
			ResponseTime: &rt,
		})
		score := p.CalculateSelectionScore(strategy, sctx)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestLoadPenaltyLowersScore(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 4)
	strategy := DefaultSelectionStrategy()
	sctx := NewSelectionContext("req-1")

	rt := 50 * time.Millisecond
	for i := 0; i < 10; i++ {
		p.RecordRequestResult(RequestRecord{Timestamp: time.Now(), Result: ResultSuccess, ResponseTime: &rt})
	}

	idle := p.CalculateSelectionScore(strategy, sctx)
	require.NoError(t, p.AcquireForRequest(strategy, sctx))
	require.NoError(t, p.AcquireForRequest(strategy, sctx))
	loaded := p.CalculateSelectionScore(strategy, sctx)

	assert.Less(t, loaded, idle)
}

func TestUpdateConfigurationKeepsEndpoint(t *testing.T) {
	p := healthyProxy(t, "10.0.0.1", 5)

	changed := testConfiguration(t, "10.0.0.2", 5)
	err := p.UpdateConfiguration(changed)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidProxyConfig, apperrors.GetErrorCode(err))

	same := testConfiguration(t, "10.0.0.1", 20)
	require.NoError(t, p.UpdateConfiguration(same))
	assert.Equal(t, 20, p.Configuration().MaxConcurrent)
}

func TestDrainEventsEmpties(t *testing.T) {
	p := NewProxy(testConfiguration(t, "10.0.0.1", 5))
	assert.NotEmpty(t, p.DrainEvents())
	assert.Empty(t, p.DrainEvents())
}
