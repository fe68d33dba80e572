package application

import (
	"context"
	"time"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/internal/health"
	"github.com/proxyops/proxy-pool/internal/selection"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// candidateLimit caps how many proxies are pulled from the repository per
// selection.
const candidateLimit = 100

// PoolConfig tunes the application service.
type PoolConfig struct {
	CheckConfig      domain.HealthCheckConfig
	CheckInterval    time.Duration
	RecoveryInterval time.Duration
	BatchConcurrency int
	BatchLimit       int
}

// DefaultPoolConfig returns the standard orchestration settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		CheckConfig:      domain.DefaultHealthCheckConfig(),
		CheckInterval:    5 * time.Minute,
		RecoveryInterval: 10 * time.Minute,
		BatchConcurrency: 10,
		BatchLimit:       200,
	}
}

// HealthCheckSummary reports the outcome of a health-check run.
type HealthCheckSummary struct {
	Checked   int `json:"checked"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Recovered int `json:"recovered"`
}

// PoolStatistics aggregates the state of the pool.
type PoolStatistics struct {
	TotalProxies    int            `json:"total_proxies"`
	AvailableCount  int            `json:"available_count"`
	PoolHealthScore float64        `json:"pool_health_score"`
	ByStatus        map[string]int `json:"by_status"`
	ByProtocol      map[string]int `json:"by_protocol"`
	ByCountry       map[string]int `json:"by_country"`
}

// PoolService is the top-level orchestrator tying acquisition, result
// reporting and batch health checking together.
type PoolService struct {
	repo      domain.ProxyRepository
	selector  *selection.Selector
	health    *health.Service
	publisher domain.EventPublisher
	config    PoolConfig
	logger    *logger.Logger
}

// NewPoolService wires the application service.
func NewPoolService(
	repo domain.ProxyRepository,
	selector *selection.Selector,
	healthService *health.Service,
	publisher domain.EventPublisher,
	config PoolConfig,
	log *logger.Logger,
) *PoolService {
	return &PoolService{
		repo:      repo,
		selector:  selector,
		health:    healthService,
		publisher: publisher,
		config:    config,
		logger:    log.PoolLogger(),
	}
}

// AddProxy registers a new proxy in the pool and publishes ProxyCreated.
func (s *PoolService) AddProxy(ctx context.Context, configuration domain.ProxyConfiguration) (*domain.Proxy, error) {
	if existing, err := s.repo.FindByEndpoint(ctx, configuration.Endpoint); err == nil && existing != nil {
		return nil, apperrors.NewError(
			apperrors.ErrCodeProxyExists,
			"proxy_pool",
			"a proxy with this endpoint already exists",
		).WithMetadata("endpoint", configuration.Endpoint.URL())
	}

	proxy := domain.NewProxy(configuration)
	if err := s.repo.Save(ctx, proxy); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to save proxy")
	}
	s.publishEvents(ctx, proxy)

	s.logger.WithField("proxy_id", proxy.ID().String()).
		WithField("endpoint", configuration.Endpoint.URL()).
		Info("Added proxy to pool")
	return proxy, nil
}

// RemoveProxy deletes a proxy from the pool.
func (s *PoolService) RemoveProxy(ctx context.Context, id domain.ProxyID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("proxy_id", id.String()).Info("Removed proxy from pool")
	return nil
}

// GetAvailableProxy fetches candidates, selects one under the strategy,
// claims a concurrency slot and persists the mutation. NotFound and
// selection errors propagate to the caller, who decides whether to retry.
func (s *PoolService) GetAvailableProxy(
	ctx context.Context,
	filters domain.ProxyFilters,
	strategy domain.SelectionStrategy,
	sctx domain.SelectionContext,
) (*domain.Proxy, error) {
	candidates, err := s.repo.FindAvailable(ctx, filters, candidateLimit)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to fetch candidates")
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewNoAvailableProxyError()
	}

	proxy, err := s.selector.SelectOptimalProxy(ctx, candidates, strategy, sctx)
	if err != nil {
		return nil, err
	}

	if err := proxy.AcquireForRequest(strategy, sctx); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, proxy); err != nil {
		proxy.ReleaseFromRequest()
		return nil, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to persist acquisition")
	}
	s.publishEvents(ctx, proxy)

	return proxy, nil
}

// ReportProxyResult folds a request outcome back into the pool. It is
// best-effort by contract: a missing proxy or failing store must never
// destabilize the caller's business flow, so nothing is returned.
func (s *PoolService) ReportProxyResult(ctx context.Context, id domain.ProxyID, record domain.RequestRecord) {
	proxy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.WithField("proxy_id", id.String()).
			Debug("Ignoring result report for unknown proxy")
		return
	}

	proxy.RecordRequestResult(record)

	if err := s.repo.Save(ctx, proxy); err != nil {
		s.logger.WithError(err).WithField("proxy_id", id.String()).
			Warn("Failed to persist proxy result")
	}
	// Release through the repository so the slot update stays atomic under
	// concurrent callers.
	if err := s.repo.UpdateConcurrentUsage(ctx, id, -1); err != nil {
		s.logger.WithError(err).WithField("proxy_id", id.String()).
			Warn("Failed to release concurrency slot")
	}
	s.publishEvents(ctx, proxy)
}

// PerformHealthCheck checks one proxy when id is non-nil, otherwise runs a
// pool-wide batch over proxies due for a check (or all proxies when force
// is set).
func (s *PoolService) PerformHealthCheck(ctx context.Context, id *domain.ProxyID, force bool) (HealthCheckSummary, error) {
	if id != nil {
		return s.checkSingle(ctx, *id)
	}
	return s.checkPool(ctx, force)
}

func (s *PoolService) checkSingle(ctx context.Context, id domain.ProxyID) (HealthCheckSummary, error) {
	proxy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return HealthCheckSummary{}, err
	}

	wasQuarantined := proxy.HealthStatus() == domain.HealthStatusQuarantined
	result := s.health.PerformComprehensiveHealthCheck(ctx, proxy, s.config.CheckConfig)
	proxy.ApplyHealthCheck(result)

	if err := s.repo.Save(ctx, proxy); err != nil {
		return HealthCheckSummary{}, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to persist health check")
	}
	s.publishEvents(ctx, proxy)

	summary := HealthCheckSummary{Checked: 1}
	if result.Success {
		summary.Healthy = 1
		if wasQuarantined {
			summary.Recovered = 1
		}
	} else {
		summary.Unhealthy = 1
	}
	return summary, nil
}

func (s *PoolService) checkPool(ctx context.Context, force bool) (HealthCheckSummary, error) {
	var (
		due []*domain.Proxy
		err error
	)
	if force {
		due, err = s.repo.FindAll(ctx)
	} else {
		due, err = s.repo.FindNeedingHealthCheck(ctx, s.config.CheckInterval, s.config.BatchLimit)
	}
	if err != nil {
		return HealthCheckSummary{}, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to fetch proxies for health check")
	}
	if len(due) == 0 {
		return HealthCheckSummary{}, nil
	}

	ordered := s.health.PrioritizeProxiesForHealthCheck(due)
	outcomes := s.health.PerformBatchHealthCheck(ctx, ordered, s.config.CheckConfig, s.config.BatchConcurrency)

	summary := HealthCheckSummary{}
	for _, outcome := range outcomes {
		wasQuarantined := outcome.Proxy.HealthStatus() == domain.HealthStatusQuarantined
		outcome.Proxy.ApplyHealthCheck(outcome.Result)

		summary.Checked++
		if outcome.Result.Success {
			summary.Healthy++
			if wasQuarantined {
				summary.Recovered++
			}
		} else {
			summary.Unhealthy++
		}

		if err := s.repo.Save(ctx, outcome.Proxy); err != nil {
			s.logger.WithError(err).
				WithField("proxy_id", outcome.Proxy.ID().String()).
				Warn("Failed to persist health check result")
		}
		s.publishEvents(ctx, outcome.Proxy)
	}

	s.logger.WithField("checked", summary.Checked).
		WithField("healthy", summary.Healthy).
		WithField("recovered", summary.Recovered).
		Info("Pool health check completed")
	return summary, nil
}

// RunRecoverySweep probes quarantined proxies so they can prove themselves
// healthy again.
func (s *PoolService) RunRecoverySweep(ctx context.Context) (HealthCheckSummary, error) {
	candidates, err := s.repo.FindQuarantinedForRecovery(ctx, s.config.RecoveryInterval, s.config.BatchLimit)
	if err != nil {
		return HealthCheckSummary{}, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to fetch quarantined proxies")
	}
	if len(candidates) == 0 {
		return HealthCheckSummary{}, nil
	}

	outcomes := s.health.PerformBatchHealthCheck(ctx, candidates, s.config.CheckConfig, s.config.BatchConcurrency)

	summary := HealthCheckSummary{}
	for _, outcome := range outcomes {
		outcome.Proxy.ApplyHealthCheck(outcome.Result)
		summary.Checked++
		if outcome.Result.Success {
			summary.Healthy++
			summary.Recovered++
		} else {
			summary.Unhealthy++
		}
		if err := s.repo.Save(ctx, outcome.Proxy); err != nil {
			s.logger.WithError(err).
				WithField("proxy_id", outcome.Proxy.ID().String()).
				Warn("Failed to persist recovery check")
		}
		s.publishEvents(ctx, outcome.Proxy)
	}
	return summary, nil
}

// GetPoolStatistics aggregates the health distribution, selection health
// score and protocol/country breakdowns of the pool.
func (s *PoolService) GetPoolStatistics(ctx context.Context) (PoolStatistics, error) {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return PoolStatistics{}, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to fetch pool")
	}

	stats := PoolStatistics{
		TotalProxies: len(all),
		ByStatus:     make(map[string]int),
		ByProtocol:   make(map[string]int),
		ByCountry:    make(map[string]int),
	}

	availabilitySum := 0.0
	for _, proxy := range all {
		cfg := proxy.Configuration()
		stats.ByStatus[proxy.HealthStatus().String()]++
		stats.ByProtocol[string(cfg.Endpoint.Protocol)]++
		if code := cfg.CountryCode(); code != "" {
			stats.ByCountry[code]++
		}
		if proxy.IsAvailable() {
			stats.AvailableCount++
			availabilitySum += proxy.Metrics().AvailabilityScore()
		}
	}

	// Pool health: mean availability of available proxies, scaled by the
	// fraction of the pool that is available at all.
	if stats.AvailableCount > 0 && stats.TotalProxies > 0 {
		meanAvailability := availabilitySum / float64(stats.AvailableCount)
		fractionAvailable := float64(stats.AvailableCount) / float64(stats.TotalProxies)
		stats.PoolHealthScore = meanAvailability * fractionAvailable
	}
	return stats, nil
}

// CleanupPoorProxies bulk-deletes quarantined proxies that have been
// inactive for the given duration with a success rate below the floor.
// Returns how many proxies were removed.
func (s *PoolService) CleanupPoorProxies(ctx context.Context, minSuccessRate float64, inactiveFor time.Duration) (int, error) {
	quarantined := domain.HealthStatusQuarantined
	inactiveSince := time.Now().Add(-inactiveFor)

	deleted, err := s.repo.DeleteByCriteria(ctx, domain.DeleteCriteria{
		HealthStatus:     &quarantined,
		InactiveSince:    &inactiveSince,
		SuccessRateBelow: &minSuccessRate,
	})
	if err != nil {
		return 0, apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "cleanup failed")
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("Cleaned up poor proxies")
	}
	return deleted, nil
}

// ForceQuarantine suspends a proxy manually.
func (s *PoolService) ForceQuarantine(ctx context.Context, id domain.ProxyID, reason string, duration time.Duration) error {
	proxy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	proxy.ForceQuarantine(reason, duration)
	if err := s.repo.Save(ctx, proxy); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to persist quarantine")
	}
	s.publishEvents(ctx, proxy)
	return nil
}

// ForceRecovery returns a proxy to service manually.
func (s *PoolService) ForceRecovery(ctx context.Context, id domain.ProxyID) error {
	proxy, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	proxy.ForceRecovery()
	if err := s.repo.Save(ctx, proxy); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeRepository, "proxy_pool", "failed to persist recovery")
	}
	s.publishEvents(ctx, proxy)
	return nil
}

// publishEvents drains the aggregate's pending events into the sink.
// Publish failures are logged, never propagated.
func (s *PoolService) publishEvents(ctx context.Context, proxy *domain.Proxy) {
	for _, event := range proxy.DrainEvents() {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WithError(err).
				WithField("event", event.EventName()).
				WithField("proxy_id", event.AggregateID().String()).
				Warn("Failed to publish domain event")
		}
	}
}
