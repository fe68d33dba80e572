package domain

import (
	"context"
	"time"
)

// DeleteCriteria is the compound criterion for bulk proxy deletion.
// Nil fields are ignored.
type DeleteCriteria struct {
	HealthStatus     *HealthStatus
	InactiveSince    *time.Time
	SuccessRateBelow *float64
}

// ProxyRepository is the storage contract the engine requires. The engine
// does not mandate a storage engine; implementations range from the
// in-memory reference store to database-backed ones.
type ProxyRepository interface {
	Save(ctx context.Context, proxy *Proxy) error
	FindByID(ctx context.Context, id ProxyID) (*Proxy, error)
	FindByEndpoint(ctx context.Context, endpoint Endpoint) (*Proxy, error)
	FindAvailable(ctx context.Context, filters ProxyFilters, limit int) ([]*Proxy, error)
	FindByHealthStatus(ctx context.Context, status HealthStatus) ([]*Proxy, error)
	FindByCountry(ctx context.Context, countryCode string) ([]*Proxy, error)
	FindAll(ctx context.Context) ([]*Proxy, error)
	CountTotal(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[HealthStatus]int, error)
	Delete(ctx context.Context, id ProxyID) error
	DeleteByCriteria(ctx context.Context, criteria DeleteCriteria) (int, error)
	Exists(ctx context.Context, id ProxyID) (bool, error)

	// FindNeedingHealthCheck returns proxies whose last check is older than
	// the interval (or that were never checked), up to limit.
	FindNeedingHealthCheck(ctx context.Context, interval time.Duration, limit int) ([]*Proxy, error)

	// FindQuarantinedForRecovery returns quarantined proxies whose last
	// check is older than the interval, up to limit.
	FindQuarantinedForRecovery(ctx context.Context, interval time.Duration, limit int) ([]*Proxy, error)

	// UpdateConcurrentUsage atomically adjusts the concurrency slot counter
	// of a proxy. Implementations must enforce 0 <= count <= max_concurrent.
	UpdateConcurrentUsage(ctx context.Context, id ProxyID, delta int) error
}

// HealthChecker performs the actual network probes against a proxy.
type HealthChecker interface {
	CheckConnectivity(ctx context.Context, proxy *Proxy, config HealthCheckConfig) (HealthCheckResult, error)
	CheckAnonymity(ctx context.Context, proxy *Proxy, config HealthCheckConfig) (HealthCheckResult, error)
	CheckGeoLocation(ctx context.Context, proxy *Proxy, config HealthCheckConfig) (HealthCheckResult, error)
}

// EventPublisher is the sink for domain events drained from aggregates.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}
