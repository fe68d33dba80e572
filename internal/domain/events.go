package domain

import "time"

// DomainEvent is implemented by every event emitted by the Proxy aggregate.
// Events accumulate on the aggregate and are drained and published by the
// orchestrating service after persistence.
type DomainEvent interface {
	EventName() string
	AggregateID() ProxyID
	OccurredAt() time.Time
}

type baseEvent struct {
	proxyID    ProxyID
	occurredAt time.Time
}

func newBaseEvent(proxyID ProxyID) baseEvent {
	return baseEvent{proxyID: proxyID, occurredAt: time.Now()}
}

func (e baseEvent) AggregateID() ProxyID  { return e.proxyID }
func (e baseEvent) OccurredAt() time.Time { return e.occurredAt }

// ProxyCreated is emitted when a proxy joins the pool.
type ProxyCreated struct {
	baseEvent
	Configuration ProxyConfiguration
}

func (ProxyCreated) EventName() string { return "proxy.created" }

// ProxyHealthChanged is emitted on every health status transition.
type ProxyHealthChanged struct {
	baseEvent
	OldStatus HealthStatus
	NewStatus HealthStatus
	Result    *HealthCheckResult
}

func (ProxyHealthChanged) EventName() string { return "proxy.health_changed" }

// ProxyUsed is emitted when a proxy is acquired for a request.
type ProxyUsed struct {
	baseEvent
	Context SelectionContext
	Score   float64
}

func (ProxyUsed) EventName() string { return "proxy.used" }

// ProxyQuarantined is emitted when a proxy is suspended from selection.
type ProxyQuarantined struct {
	baseEvent
	Reason  string
	Until   time.Time
	Metrics ProxyMetrics
}

func (ProxyQuarantined) EventName() string { return "proxy.quarantined" }

// ProxyRecovered is emitted when a quarantined proxy returns to service.
type ProxyRecovered struct {
	baseEvent
	Result *HealthCheckResult
}

func (ProxyRecovered) EventName() string { return "proxy.recovered" }
