package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/proxyops/proxy-pool/internal/domain"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

const (
	// defaultBatchConcurrency bounds the health-check fan-out when the
	// caller does not specify a limit.
	defaultBatchConcurrency = 10

	// quarantineFailureThreshold is the consecutive-failure count that
	// triggers quarantine.
	quarantineFailureThreshold = 5

	// recoverySuccessThreshold is the consecutive-success count required
	// before a quarantined proxy may recover.
	recoverySuccessThreshold = 3

	// minCheckInterval is the floor for the adaptive check interval.
	minCheckInterval = time.Minute
)

// CheckOutcome pairs a proxy with its batch health-check result.
type CheckOutcome struct {
	Proxy  *domain.Proxy
	Result domain.HealthCheckResult
}

// Service runs health probes through an injected checker and owns the
// quarantine, recovery and scheduling policies.
type Service struct {
	checker domain.HealthChecker
	limiter *rate.Limiter
	logger  *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProbeRate limits how many probes per second a batch may launch.
func WithProbeRate(perSecond float64, burst int) Option {
	return func(s *Service) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewService creates a health service around the given checker.
func NewService(checker domain.HealthChecker, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		checker: checker,
		limiter: rate.NewLimiter(rate.Limit(25), 50),
		logger:  log.HealthCheckLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PerformComprehensiveHealthCheck runs the connectivity probe and, when it
// succeeds, enriches the result with the anonymity and geo probes. A
// connectivity failure is authoritative; secondary probe failures are
// swallowed and never overturn the primary success.
func (s *Service) PerformComprehensiveHealthCheck(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) domain.HealthCheckResult {
	log := s.logger.ProxyLogger(proxy.ID().String(), proxy.Configuration().Endpoint.URL())

	result, err := s.checker.CheckConnectivity(ctx, proxy, config)
	if err != nil {
		log.WithError(err).Debug("Connectivity check errored")
		return domain.FailedCheck(domain.CheckTypeConnectivity, err)
	}
	if !result.Success {
		log.WithField("error", result.ErrorMessage).Debug("Connectivity check failed")
		return result
	}
	result.CheckType = domain.CheckTypeComprehensive

	if config.AnonymityCheck {
		if anon, err := s.checker.CheckAnonymity(ctx, proxy, config); err != nil {
			log.WithError(err).Debug("Anonymity check failed, keeping connectivity result")
		} else {
			result.AnonymityLevel = anon.AnonymityLevel
			result.RealIPDetected = anon.RealIPDetected
		}
	}

	if config.GeoVerification {
		if geo, err := s.checker.CheckGeoLocation(ctx, proxy, config); err != nil {
			log.WithError(err).Debug("Geo verification failed, keeping connectivity result")
		} else if !geo.Success {
			log.WithField("error", geo.ErrorMessage).Debug("Geo verification mismatch, keeping connectivity result")
		}
	}

	return result
}

// PerformBatchHealthCheck checks the given proxies with bounded concurrency
// and probe-rate pacing. A failing or panicking check produces a failed
// result for that proxy only and never aborts the batch.
func (s *Service) PerformBatchHealthCheck(ctx context.Context, proxies []*domain.Proxy, config domain.HealthCheckConfig, maxConcurrent int) []CheckOutcome {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultBatchConcurrency
	}

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	outcomes := make([]CheckOutcome, len(proxies))
	var wg sync.WaitGroup

	for i, proxy := range proxies {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = CheckOutcome{Proxy: proxy, Result: domain.FailedCheck(domain.CheckTypeComprehensive, err)}
			continue
		}

		wg.Add(1)
		go func(i int, proxy *domain.Proxy) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = CheckOutcome{Proxy: proxy, Result: s.safeCheck(ctx, proxy, config)}
		}(i, proxy)
	}

	wg.Wait()
	return outcomes
}

// safeCheck paces the probe and converts panics into failed results.
func (s *Service) safeCheck(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (result domain.HealthCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("proxy_id", proxy.ID().String()).
				WithField("panic", r).
				Error("Health check panicked")
			result = domain.FailedCheck(domain.CheckTypeComprehensive, fmt.Errorf("health check panicked: %v", r))
		}
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.FailedCheck(domain.CheckTypeComprehensive, err)
	}

	checkCtx := ctx
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}
	return s.PerformComprehensiveHealthCheck(checkCtx, proxy, config)
}

// ShouldQuarantineProxy reports whether the proxy should be quarantined:
// not already quarantined and past any of the degradation thresholds.
func (s *Service) ShouldQuarantineProxy(proxy *domain.Proxy) bool {
	if proxy.IsQuarantined() {
		return false
	}
	metrics := proxy.Metrics()
	if metrics.ConsecutiveFailures >= quarantineFailureThreshold {
		return true
	}
	if metrics.TotalRequests >= 20 && metrics.SuccessRate() < 0.1 {
		return true
	}
	return metrics.AverageResponseTime() > 30*time.Second
}

// ShouldRecoverProxy reports whether a quarantined proxy has proven healthy
// again: its last health check succeeded and it carries a success streak.
func (s *Service) ShouldRecoverProxy(proxy *domain.Proxy) bool {
	if proxy.HealthStatus() != domain.HealthStatusQuarantined {
		return false
	}
	last := proxy.LastHealthCheck()
	if last == nil || !last.Success {
		return false
	}
	return proxy.Metrics().ConsecutiveSuccesses >= recoverySuccessThreshold
}

// CalculateNextCheckTime derives the adaptive next-check time: healthy
// proxies are checked less often, failing ones more often, and the
// historical success rate stretches or shrinks the interval further.
func (s *Service) CalculateNextCheckTime(proxy *domain.Proxy, baseInterval time.Duration) time.Time {
	interval := baseInterval

	switch proxy.HealthStatus() {
	case domain.HealthStatusHealthy:
		interval *= 2
	case domain.HealthStatusUnhealthy:
		interval /= 2
	case domain.HealthStatusQuarantined:
		interval *= 4
	}

	metrics := proxy.Metrics()
	if metrics.TotalRequests > 0 {
		switch successRate := metrics.SuccessRate(); {
		case successRate > 0.95:
			interval = time.Duration(float64(interval) * 1.5)
		case successRate < 0.5:
			interval /= 2
		}
	}

	if interval < minCheckInterval {
		interval = minCheckInterval
	}

	from := time.Now()
	if last := proxy.LastHealthCheck(); last != nil {
		from = last.Timestamp
	}
	return from.Add(interval)
}

// healthCheckPriority ranks statuses for batch ordering; lower is checked
// sooner.
func healthCheckPriority(status domain.HealthStatus) int {
	switch status {
	case domain.HealthStatusUnhealthy:
		return 0
	case domain.HealthStatusDegraded:
		return 1
	case domain.HealthStatusQuarantined:
		return 2
	case domain.HealthStatusHealthy:
		return 3
	default:
		return 4
	}
}

// PrioritizeProxiesForHealthCheck orders proxies for a batch check:
// never-checked proxies first, then by status rank, then stalest first,
// then most-used first. The input slice is not modified.
func (s *Service) PrioritizeProxiesForHealthCheck(proxies []*domain.Proxy) []*domain.Proxy {
	ordered := make([]*domain.Proxy, len(proxies))
	copy(ordered, proxies)

	sort.SliceStable(ordered, func(i, j int) bool {
		lastI, lastJ := ordered[i].LastHealthCheck(), ordered[j].LastHealthCheck()
		if (lastI == nil) != (lastJ == nil) {
			return lastI == nil
		}

		rankI := healthCheckPriority(ordered[i].HealthStatus())
		rankJ := healthCheckPriority(ordered[j].HealthStatus())
		if rankI != rankJ {
			return rankI < rankJ
		}

		if lastI != nil && lastJ != nil && !lastI.Timestamp.Equal(lastJ.Timestamp) {
			return lastI.Timestamp.Before(lastJ.Timestamp)
		}

		return ordered[i].Metrics().TotalRequests > ordered[j].Metrics().TotalRequests
	})

	return ordered
}
