package domain

import (
	"sync"
	"time"

	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// DefaultQuarantineDuration is the automatic quarantine window applied when
// metrics degrade past the quarantine thresholds.
const DefaultQuarantineDuration = 30 * time.Minute

// unhealthyProbeThreshold is the number of consecutive failed health probes
// after which a proxy is classified unhealthy.
const unhealthyProbeThreshold = 3

// Proxy is the aggregate root of the pool. It owns configuration, metrics,
// health status, the quarantine window and the concurrency counter, and
// accumulates domain events until they are drained by the application
// service.
//
// Quarantine is tracked by two independent signals: IsQuarantined is the
// time gate on quarantineUntil, while the health status stays Quarantined
// until a successful health check (or ForceRecovery) flips it back. A proxy
// whose window has expired therefore still reports Quarantined status until
// it proves healthy again.
type Proxy struct {
	mu sync.RWMutex

	id              ProxyID
	configuration   ProxyConfiguration
	metrics         ProxyMetrics
	healthStatus    HealthStatus
	selectionWeight SelectionWeight
	concurrent      int
	probeFailures   int
	lastHealthCheck *HealthCheckResult
	quarantineUntil *time.Time
	createdAt       time.Time
	updatedAt       time.Time

	pendingEvents []DomainEvent
}

// NewProxy creates a proxy with a deterministic id derived from its
// endpoint and records a ProxyCreated event.
func NewProxy(configuration ProxyConfiguration) *Proxy {
	now := time.Now()
	p := &Proxy{
		id:              ProxyIDFromEndpoint(configuration.Endpoint),
		configuration:   configuration,
		metrics:         NewProxyMetrics(now),
		healthStatus:    HealthStatusUnknown,
		selectionWeight: NewSelectionWeight(),
		createdAt:       now,
		updatedAt:       now,
	}
	p.record(ProxyCreated{baseEvent: newBaseEvent(p.id), Configuration: configuration})
	return p
}

// ID returns the proxy identifier.
func (p *Proxy) ID() ProxyID {
	return p.id
}

// Configuration returns the current configuration.
func (p *Proxy) Configuration() ProxyConfiguration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.configuration
}

// Metrics returns the current metrics snapshot.
func (p *Proxy) Metrics() ProxyMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// HealthStatus returns the explicit health classification.
func (p *Proxy) HealthStatus() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthStatus
}

// SelectionWeight returns the current selection weight.
func (p *Proxy) SelectionWeight() SelectionWeight {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selectionWeight
}

// CurrentConcurrent returns the number of in-flight requests.
func (p *Proxy) CurrentConcurrent() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.concurrent
}

// LastHealthCheck returns the most recent probe result, or nil.
func (p *Proxy) LastHealthCheck() *HealthCheckResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastHealthCheck
}

// QuarantineUntil returns the end of the quarantine window, or nil.
func (p *Proxy) QuarantineUntil() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quarantineUntil
}

// CreatedAt returns the creation timestamp.
func (p *Proxy) CreatedAt() time.Time {
	return p.createdAt
}

// UpdatedAt returns the last mutation timestamp.
func (p *Proxy) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// IsQuarantined reports whether the quarantine window is currently open.
func (p *Proxy) IsQuarantined() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isQuarantinedLocked()
}

func (p *Proxy) isQuarantinedLocked() bool {
	return p.quarantineUntil != nil && time.Now().Before(*p.quarantineUntil)
}

// IsAvailable reports whether the proxy may serve a new request: not
// quarantined, in a selectable status, and below its concurrency limit.
func (p *Proxy) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.isQuarantinedLocked() {
		return false
	}
	if !p.healthStatus.Selectable() {
		return false
	}
	return p.concurrent < p.configuration.MaxConcurrent
}

// AcquireForRequest claims a concurrency slot and emits ProxyUsed with the
// selection score computed for the given strategy and context.
func (p *Proxy) AcquireForRequest(strategy SelectionStrategy, sctx SelectionContext) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isQuarantinedLocked() || !p.healthStatus.Selectable() {
		return apperrors.NewQuarantineError(p.id.String())
	}
	if p.concurrent >= p.configuration.MaxConcurrent {
		return apperrors.NewCapacityError(p.id.String(), p.configuration.MaxConcurrent)
	}

	p.concurrent++
	p.touch()
	p.record(ProxyUsed{
		baseEvent: newBaseEvent(p.id),
		Context:   sctx,
		Score:     p.selectionScoreLocked(strategy, sctx),
	})
	return nil
}

// ReleaseFromRequest frees a concurrency slot, floored at zero.
func (p *Proxy) ReleaseFromRequest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.concurrent > 0 {
		p.concurrent--
	}
	p.touch()
}

// AdjustConcurrency applies a delta to the concurrency counter while
// enforcing its bounds. Repositories use this for atomic slot updates.
func (p *Proxy) AdjustConcurrency(delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.concurrent + delta
	if next < 0 {
		next = 0
	}
	if next > p.configuration.MaxConcurrent {
		return apperrors.NewCapacityError(p.id.String(), p.configuration.MaxConcurrent)
	}
	p.concurrent = next
	p.touch()
	return nil
}

// RecordRequestResult folds a request outcome into the metrics, recomputes
// the selection weight, auto-quarantines on degraded metrics and refreshes
// the health classification.
func (p *Proxy) RecordRequestResult(record RequestRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics = p.metrics.AddRequestResult(record)
	p.selectionWeight = WeightFromMetrics(p.metrics, p.concurrencyRatioLocked())

	oldStatus := p.healthStatus
	if p.metrics.ShouldQuarantine() && !p.isQuarantinedLocked() {
		p.quarantineLocked("performance degraded past quarantine thresholds", DefaultQuarantineDuration)
	}

	if p.healthStatus != HealthStatusQuarantined {
		p.healthStatus = p.metrics.HealthStatusHint()
	}
	if p.healthStatus != oldStatus {
		p.record(ProxyHealthChanged{
			baseEvent: newBaseEvent(p.id),
			OldStatus: oldStatus,
			NewStatus: p.healthStatus,
		})
	}
	p.touch()
}

// ApplyHealthCheck updates the health state machine from a probe result.
// A success while quarantined is an explicit recovery: the window is
// cleared and ProxyRecovered is emitted.
func (p *Proxy) ApplyHealthCheck(result HealthCheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastHealthCheck = &result
	oldStatus := p.healthStatus

	if result.Success {
		p.probeFailures = 0
		if oldStatus == HealthStatusQuarantined {
			p.quarantineUntil = nil
			p.healthStatus = HealthStatusHealthy
			p.record(ProxyRecovered{baseEvent: newBaseEvent(p.id), Result: &result})
		} else if result.ResponseTime != nil && *result.ResponseTime >= 3*time.Second {
			p.healthStatus = HealthStatusDegraded
		} else {
			p.healthStatus = HealthStatusHealthy
		}
	} else {
		p.probeFailures++
		if oldStatus == HealthStatusQuarantined {
			// A failed probe keeps a quarantined proxy quarantined.
		} else if p.probeFailures >= unhealthyProbeThreshold {
			p.healthStatus = HealthStatusUnhealthy
		} else {
			p.healthStatus = HealthStatusDegraded
		}
	}

	if p.healthStatus != oldStatus {
		p.record(ProxyHealthChanged{
			baseEvent: newBaseEvent(p.id),
			OldStatus: oldStatus,
			NewStatus: p.healthStatus,
			Result:    &result,
		})
	}
	p.touch()
}

// ForceQuarantine suspends the proxy for the given duration, bypassing the
// automatic thresholds. Intended for operator use.
func (p *Proxy) ForceQuarantine(reason string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	oldStatus := p.healthStatus
	p.quarantineLocked(reason, duration)
	if p.healthStatus != oldStatus {
		p.record(ProxyHealthChanged{
			baseEvent: newBaseEvent(p.id),
			OldStatus: oldStatus,
			NewStatus: p.healthStatus,
		})
	}
	p.touch()
}

// ForceRecovery clears the quarantine window and marks the proxy healthy,
// bypassing the automatic recovery checks.
func (p *Proxy) ForceRecovery() {
	p.mu.Lock()
	defer p.mu.Unlock()

	oldStatus := p.healthStatus
	p.quarantineUntil = nil
	p.probeFailures = 0
	p.healthStatus = HealthStatusHealthy
	p.record(ProxyRecovered{baseEvent: newBaseEvent(p.id)})
	if oldStatus != p.healthStatus {
		p.record(ProxyHealthChanged{
			baseEvent: newBaseEvent(p.id),
			OldStatus: oldStatus,
			NewStatus: p.healthStatus,
		})
	}
	p.touch()
}

// UpdateConfiguration replaces the configuration. The endpoint is the
// identity of the proxy and cannot change.
func (p *Proxy) UpdateConfiguration(configuration ProxyConfiguration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configuration.Endpoint.Equal(configuration.Endpoint) {
		return apperrors.NewInvalidConfigError("endpoint of an existing proxy cannot be changed")
	}
	p.configuration = configuration
	p.touch()
	return nil
}

// CalculateSelectionScore computes the multi-factor score in [0, 1] used by
// score-based selection algorithms: the weighted blend of success rate,
// speed, stability and geo preference, scaled by the selection weight and
// penalized by the current load (at most 50%).
func (p *Proxy) CalculateSelectionScore(strategy SelectionStrategy, sctx SelectionContext) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.selectionScoreLocked(strategy, sctx)
}

func (p *Proxy) selectionScoreLocked(strategy SelectionStrategy, sctx SelectionContext) float64 {
	factors := strategy.WeightFactors
	if factors == (WeightFactors{}) {
		factors = DefaultWeightFactors()
	}

	blend := factors.SuccessRate*p.metrics.SuccessRate() +
		factors.ResponseTime*p.metrics.SpeedFactor() +
		factors.Stability*p.metrics.StabilityIndex() +
		factors.GeoPreference*p.geoScoreLocked(strategy, sctx)

	score := blend * clamp01(p.selectionWeight.FinalWeight())

	loadPenalty := 0.5 * clamp01(p.concurrencyRatioLocked())
	score *= 1 - loadPenalty

	return clamp01(score)
}

func (p *Proxy) geoScoreLocked(strategy SelectionStrategy, sctx SelectionContext) float64 {
	preferred := sctx.PreferredCountry
	if preferred == "" && len(strategy.GeoPreference) == 0 {
		return 1
	}
	code := p.configuration.CountryCode()
	if code == "" {
		return 0
	}
	if code == preferred || strategy.PrefersCountry(code) {
		return 1
	}
	return 0
}

// MatchesPreferredCountry reports whether the proxy's exit country matches
// the context or strategy preference. Used by geo-partitioned selection.
func (p *Proxy) MatchesPreferredCountry(strategy SelectionStrategy, sctx SelectionContext) bool {
	code := p.Configuration().CountryCode()
	if code == "" {
		return false
	}
	return code == sctx.PreferredCountry || strategy.PrefersCountry(code)
}

// DrainEvents returns and clears the pending domain events.
func (p *Proxy) DrainEvents() []DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.pendingEvents
	p.pendingEvents = nil
	return events
}

func (p *Proxy) quarantineLocked(reason string, duration time.Duration) {
	until := time.Now().Add(duration)
	p.quarantineUntil = &until
	p.healthStatus = HealthStatusQuarantined
	p.record(ProxyQuarantined{
		baseEvent: newBaseEvent(p.id),
		Reason:    reason,
		Until:     until,
		Metrics:   p.metrics,
	})
}

func (p *Proxy) concurrencyRatioLocked() float64 {
	if p.configuration.MaxConcurrent <= 0 {
		return 0
	}
	return float64(p.concurrent) / float64(p.configuration.MaxConcurrent)
}

func (p *Proxy) record(event DomainEvent) {
	p.pendingEvents = append(p.pendingEvents, event)
}

func (p *Proxy) touch() {
	p.updatedAt = time.Now()
}
