package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// ProxyRequest is the simplified acquisition request accepted by the facade.
type ProxyRequest struct {
	Country         string
	Protocol        domain.Protocol
	Strategy        domain.StrategyType
	MinSuccessRate  float64
	MaxResponseTime time.Duration
	ExcludeIDs      []domain.ProxyID
}

// Facade is the convenience surface for callers outside the core. Unlike
// the application service it absorbs every pool error and degrades to nil
// or zero results, so proxy-pool instability never breaks an unrelated
// business flow.
type Facade struct {
	pool   *PoolService
	logger *logger.Logger
}

// NewFacade wraps the pool service.
func NewFacade(pool *PoolService, log *logger.Logger) *Facade {
	return &Facade{pool: pool, logger: log.PoolLogger()}
}

// GetProxy acquires a proxy matching the request, or nil when none is
// available.
func (f *Facade) GetProxy(ctx context.Context, req ProxyRequest) *domain.Proxy {
	filters, strategy, sctx := f.translate(req)

	proxy, err := f.pool.GetAvailableProxy(ctx, filters, strategy, sctx)
	if err != nil {
		f.logger.WithError(err).Debug("Proxy acquisition degraded to nil")
		return nil
	}
	return proxy
}

// GetProxyWithRetry acquires a proxy, excluding previously returned ids on
// each subsequent attempt. Returns nil when every attempt fails.
func (f *Facade) GetProxyWithRetry(ctx context.Context, req ProxyRequest, maxRetries int) *domain.Proxy {
	if maxRetries < 1 {
		maxRetries = 1
	}
	filters, strategy, sctx := f.translate(req)

	for attempt := 0; attempt < maxRetries; attempt++ {
		filters.ExcludeIDs = sctx.ExcludeIDs
		proxy, err := f.pool.GetAvailableProxy(ctx, filters, strategy, sctx)
		if err == nil {
			return proxy
		}
		// When the failure names a specific proxy (quarantined, at
		// capacity), exclude it from subsequent attempts.
		if id, ok := failedProxyID(err); ok {
			sctx = sctx.WithExclusions(id)
		}
		f.logger.WithError(err).
			WithField("attempt", attempt+1).
			Debug("Proxy acquisition attempt failed")
	}
	return nil
}

// failedProxyID extracts the proxy id carried by an acquisition error.
func failedProxyID(err error) (domain.ProxyID, bool) {
	var ppErr *apperrors.ProxyPoolError
	if !errors.As(err, &ppErr) || ppErr.Metadata == nil {
		return "", false
	}
	if id, ok := ppErr.Metadata["proxy_id"].(string); ok && id != "" {
		return domain.ProxyID(id), true
	}
	return "", false
}

// ReportSuccess reports a successful request through the proxy.
func (f *Facade) ReportSuccess(ctx context.Context, id domain.ProxyID, responseTime time.Duration, targetHost string) {
	f.pool.ReportProxyResult(ctx, id, domain.RequestRecord{
		Timestamp:    time.Now(),
		Result:       domain.ResultSuccess,
		ResponseTime: &responseTime,
		TargetHost:   targetHost,
	})
}

// ReportFailure reports a failed request through the proxy.
func (f *Facade) ReportFailure(ctx context.Context, id domain.ProxyID, result domain.RequestResult, errorMessage string) {
	if result == "" || result.IsSuccess() {
		result = domain.ResultUnknownError
	}
	f.pool.ReportProxyResult(ctx, id, domain.RequestRecord{
		Timestamp:    time.Now(),
		Result:       result,
		ErrorMessage: errorMessage,
	})
}

// AddProxy registers a proxy, or returns nil when the configuration is
// rejected or the endpoint already exists.
func (f *Facade) AddProxy(ctx context.Context, configuration domain.ProxyConfiguration) *domain.Proxy {
	proxy, err := f.pool.AddProxy(ctx, configuration)
	if err != nil {
		f.logger.WithError(err).Debug("AddProxy degraded to nil")
		return nil
	}
	return proxy
}

// RemoveProxy removes a proxy, reporting only whether it happened.
func (f *Facade) RemoveProxy(ctx context.Context, id domain.ProxyID) bool {
	if err := f.pool.RemoveProxy(ctx, id); err != nil {
		f.logger.WithError(err).Debug("RemoveProxy degraded to false")
		return false
	}
	return true
}

// GetProxyStatistics returns pool statistics, or nil on failure.
func (f *Facade) GetProxyStatistics(ctx context.Context) *PoolStatistics {
	stats, err := f.pool.GetPoolStatistics(ctx)
	if err != nil {
		f.logger.WithError(err).Debug("GetProxyStatistics degraded to nil")
		return nil
	}
	return &stats
}

// PerformHealthCheck triggers a pool-wide health check, returning nil on
// failure.
func (f *Facade) PerformHealthCheck(ctx context.Context, force bool) *HealthCheckSummary {
	summary, err := f.pool.PerformHealthCheck(ctx, nil, force)
	if err != nil {
		f.logger.WithError(err).Debug("PerformHealthCheck degraded to nil")
		return nil
	}
	return &summary
}

// translate expands a simplified request into engine-level filters,
// strategy and context.
func (f *Facade) translate(req ProxyRequest) (domain.ProxyFilters, domain.SelectionStrategy, domain.SelectionContext) {
	filters := domain.ProxyFilters{
		ExcludeQuarantined: true,
		ExcludeIDs:         req.ExcludeIDs,
	}
	if req.Protocol != "" {
		filters.Protocols = []domain.Protocol{req.Protocol}
	}
	if req.Country != "" {
		filters.CountryCodes = []string{req.Country}
	}

	strategy := domain.DefaultSelectionStrategy()
	if req.Strategy.Valid() {
		strategy.Type = req.Strategy
	}
	if req.MinSuccessRate > 0 || req.MaxResponseTime > 0 {
		strategy.PerformanceThreshold = &domain.PerformanceThreshold{
			MinSuccessRate:  req.MinSuccessRate,
			MaxResponseTime: req.MaxResponseTime,
		}
	}

	sctx := domain.NewSelectionContext(uuid.NewString())
	if req.Country != "" {
		sctx = sctx.WithPreference(req.Country)
	}
	if len(req.ExcludeIDs) > 0 {
		sctx = sctx.WithExclusions(req.ExcludeIDs...)
	}
	return filters, strategy, sctx
}
