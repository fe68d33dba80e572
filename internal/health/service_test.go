package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyops/proxy-pool/internal/domain"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// stubChecker scripts the three probes independently.
type stubChecker struct {
	mu           sync.Mutex
	connectivity func(proxy *domain.Proxy) (domain.HealthCheckResult, error)
	anonymity    func(proxy *domain.Proxy) (domain.HealthCheckResult, error)
	geo          func(proxy *domain.Proxy) (domain.HealthCheckResult, error)
	inFlight     int64
	maxInFlight  int64
}

func successResult(checkType domain.CheckType) domain.HealthCheckResult {
	rt := 100 * time.Millisecond
	return domain.HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &rt,
		HTTPStatus:   200,
		CheckType:    checkType,
	}
}

func (c *stubChecker) CheckConnectivity(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	current := atomic.AddInt64(&c.inFlight, 1)
	defer atomic.AddInt64(&c.inFlight, -1)

	c.mu.Lock()
	if current > c.maxInFlight {
		c.maxInFlight = current
	}
	fn := c.connectivity
	c.mu.Unlock()

	if fn != nil {
		return fn(proxy)
	}
	return successResult(domain.CheckTypeConnectivity), nil
}

func (c *stubChecker) CheckAnonymity(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	c.mu.Lock()
	fn := c.anonymity
	c.mu.Unlock()
	if fn != nil {
		return fn(proxy)
	}
	result := successResult(domain.CheckTypeAnonymity)
	result.AnonymityLevel = domain.AnonymityElite
	return result, nil
}

func (c *stubChecker) CheckGeoLocation(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	c.mu.Lock()
	fn := c.geo
	c.mu.Unlock()
	if fn != nil {
		return fn(proxy)
	}
	return successResult(domain.CheckTypeGeo), nil
}

func (c *stubChecker) observedMax() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

func newHealthProxy(t *testing.T, host string) *domain.Proxy {
	t.Helper()
	endpoint, err := domain.NewEndpoint(host, 8080, domain.ProtocolHTTP)
	require.NoError(t, err)
	cfg, err := domain.NewProxyConfiguration(endpoint, nil, nil, nil, 10, 30*time.Second, 2)
	require.NoError(t, err)
	return domain.NewProxy(cfg)
}

func fastService(checker domain.HealthChecker) *Service {
	return NewService(checker, logger.NewNop(), WithProbeRate(100000, 100000))
}

func checkConfig() domain.HealthCheckConfig {
	cfg := domain.DefaultHealthCheckConfig()
	cfg.AnonymityCheck = true
	cfg.GeoVerification = true
	return cfg
}

func TestComprehensiveCheckMergesSecondaryProbes(t *testing.T) {
	checker := &stubChecker{}
	service := fastService(checker)
	proxy := newHealthProxy(t, "10.0.0.1")

	result := service.PerformComprehensiveHealthCheck(context.Background(), proxy, checkConfig())
	assert.True(t, result.Success)
	assert.Equal(t, domain.CheckTypeComprehensive, result.CheckType)
	assert.Equal(t, domain.AnonymityElite, result.AnonymityLevel)
}

func TestComprehensiveCheckConnectivityFailureIsAuthoritative(t *testing.T) {
	checker := &stubChecker{
		connectivity: func(*domain.Proxy) (domain.HealthCheckResult, error) {
			return domain.FailedCheck(domain.CheckTypeConnectivity, errors.New("connection refused")), nil
		},
	}
	service := fastService(checker)
	proxy := newHealthProxy(t, "10.0.0.1")

	result := service.PerformComprehensiveHealthCheck(context.Background(), proxy, checkConfig())
	assert.False(t, result.Success)
	assert.Equal(t, domain.CheckTypeConnectivity, result.CheckType)
}

func TestComprehensiveCheckSwallowsSecondaryFailures(t *testing.T) {
	checker := &stubChecker{
		anonymity: func(*domain.Proxy) (domain.HealthCheckResult, error) {
			return domain.HealthCheckResult{}, errors.New("judge unreachable")
		},
		geo: func(*domain.Proxy) (domain.HealthCheckResult, error) {
			return domain.HealthCheckResult{}, errors.New("judge unreachable")
		},
	}
	service := fastService(checker)
	proxy := newHealthProxy(t, "10.0.0.1")

	result := service.PerformComprehensiveHealthCheck(context.Background(), proxy, checkConfig())
	assert.True(t, result.Success, "secondary probe failures must not overturn connectivity success")
}

func TestBatchCheckProducesOutcomePerProxy(t *testing.T) {
	failing := "10.0.0.3"
	checker := &stubChecker{
		connectivity: func(p *domain.Proxy) (domain.HealthCheckResult, error) {
			if p.Configuration().Endpoint.Host == failing {
				return domain.FailedCheck(domain.CheckTypeConnectivity, errors.New("timeout")), nil
			}
			return successResult(domain.CheckTypeConnectivity), nil
		},
	}
	service := fastService(checker)

	proxies := make([]*domain.Proxy, 0, 5)
	for i := 1; i <= 5; i++ {
		proxies = append(proxies, newHealthProxy(t, fmt.Sprintf("10.0.0.%d", i)))
	}

	outcomes := service.PerformBatchHealthCheck(context.Background(), proxies, checkConfig(), 3)
	require.Len(t, outcomes, 5)

	failures := 0
	for _, outcome := range outcomes {
		require.NotNil(t, outcome.Proxy)
		if !outcome.Result.Success {
			failures++
			assert.Equal(t, failing, outcome.Proxy.Configuration().Endpoint.Host)
		}
	}
	assert.Equal(t, 1, failures)
}

func TestBatchCheckBoundsConcurrency(t *testing.T) {
	checker := &stubChecker{
		connectivity: func(*domain.Proxy) (domain.HealthCheckResult, error) {
			time.Sleep(20 * time.Millisecond)
			return successResult(domain.CheckTypeConnectivity), nil
		},
	}
	service := fastService(checker)

	proxies := make([]*domain.Proxy, 0, 12)
	for i := 1; i <= 12; i++ {
		proxies = append(proxies, newHealthProxy(t, fmt.Sprintf("10.0.1.%d", i)))
	}

	service.PerformBatchHealthCheck(context.Background(), proxies, checkConfig(), 4)
	assert.LessOrEqual(t, checker.observedMax(), int64(4))
}

func TestBatchCheckConvertsPanicToFailure(t *testing.T) {
	checker := &stubChecker{
		connectivity: func(*domain.Proxy) (domain.HealthCheckResult, error) {
			panic("probe exploded")
		},
	}
	service := fastService(checker)
	proxy := newHealthProxy(t, "10.0.0.1")

	outcomes := service.PerformBatchHealthCheck(
		context.Background(), []*domain.Proxy{proxy}, checkConfig(), 2)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Result.Success)
	assert.Contains(t, outcomes[0].Result.ErrorMessage, "panicked")
}

func TestShouldQuarantineProxy(t *testing.T) {
	service := fastService(&stubChecker{})
	proxy := newHealthProxy(t, "10.0.0.1")
	assert.False(t, service.ShouldQuarantineProxy(proxy))

	for i := 0; i < 5; i++ {
		proxy.RecordRequestResult(domain.RequestRecord{
			Timestamp: time.Now(),
			Result:    domain.ResultConnectionError,
		})
	}
	// The aggregate already quarantined itself, so the service must not
	// flag it again.
	assert.True(t, proxy.IsQuarantined())
	assert.False(t, service.ShouldQuarantineProxy(proxy))
}

func TestShouldRecoverProxy(t *testing.T) {
	service := fastService(&stubChecker{})
	proxy := newHealthProxy(t, "10.0.0.1")
	proxy.ForceQuarantine("test", time.Hour)
	assert.False(t, service.ShouldRecoverProxy(proxy), "no successful check yet")
}

func TestCalculateNextCheckTimeAdapts(t *testing.T) {
	service := fastService(&stubChecker{})
	base := 10 * time.Minute

	healthy := newHealthProxy(t, "10.0.0.1")
	healthy.ApplyHealthCheck(successResult(domain.CheckTypeConnectivity))
	checkedAt := healthy.LastHealthCheck().Timestamp

	// Healthy with no request history: base doubled.
	next := service.CalculateNextCheckTime(healthy, base)
	assert.WithinDuration(t, checkedAt.Add(20*time.Minute), next, time.Second)

	unhealthy := newHealthProxy(t, "10.0.0.2")
	for i := 0; i < 3; i++ {
		unhealthy.ApplyHealthCheck(domain.FailedCheck(domain.CheckTypeConnectivity, errors.New("down")))
	}
	require.Equal(t, domain.HealthStatusUnhealthy, unhealthy.HealthStatus())
	checkedAt = unhealthy.LastHealthCheck().Timestamp
	next = service.CalculateNextCheckTime(unhealthy, base)
	assert.WithinDuration(t, checkedAt.Add(5*time.Minute), next, time.Second)
}

func TestCalculateNextCheckTimeFloor(t *testing.T) {
	service := fastService(&stubChecker{})
	proxy := newHealthProxy(t, "10.0.0.1")
	for i := 0; i < 3; i++ {
		proxy.ApplyHealthCheck(domain.FailedCheck(domain.CheckTypeConnectivity, errors.New("down")))
	}

	next := service.CalculateNextCheckTime(proxy, 90*time.Second)
	checkedAt := proxy.LastHealthCheck().Timestamp
	assert.WithinDuration(t, checkedAt.Add(time.Minute), next, time.Second)
}

func TestPrioritizeProxiesForHealthCheck(t *testing.T) {
	service := fastService(&stubChecker{})

	neverChecked := newHealthProxy(t, "10.0.0.1")

	healthy := newHealthProxy(t, "10.0.0.2")
	healthy.ApplyHealthCheck(successResult(domain.CheckTypeConnectivity))

	unhealthy := newHealthProxy(t, "10.0.0.3")
	for i := 0; i < 3; i++ {
		unhealthy.ApplyHealthCheck(domain.FailedCheck(domain.CheckTypeConnectivity, errors.New("down")))
	}

	ordered := service.PrioritizeProxiesForHealthCheck(
		[]*domain.Proxy{healthy, unhealthy, neverChecked})
	require.Len(t, ordered, 3)
	assert.Equal(t, neverChecked.ID(), ordered[0].ID(), "never-checked proxies go first")
	assert.Equal(t, unhealthy.ID(), ordered[1].ID(), "unhealthy before healthy")
	assert.Equal(t, healthy.ID(), ordered[2].ID())
}
