package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// InMemoryProxyRepository is the reference implementation of the
// ProxyRepository port. It stores aggregates in a map guarded by a RWMutex;
// UpdateConcurrentUsage is atomic under the repository lock.
type InMemoryProxyRepository struct {
	mu      sync.RWMutex
	proxies map[domain.ProxyID]*domain.Proxy
}

// NewInMemoryProxyRepository creates an empty in-memory repository.
func NewInMemoryProxyRepository() *InMemoryProxyRepository {
	return &InMemoryProxyRepository{
		proxies: make(map[domain.ProxyID]*domain.Proxy),
	}
}

// Save persists a proxy.
func (r *InMemoryProxyRepository) Save(ctx context.Context, proxy *domain.Proxy) error {
	if proxy == nil {
		return apperrors.NewError(apperrors.ErrCodeRepository, "repository", "proxy cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[proxy.ID()] = proxy
	return nil
}

// FindByID returns a proxy by its identifier.
func (r *InMemoryProxyRepository) FindByID(ctx context.Context, id domain.ProxyID) (*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proxy, exists := r.proxies[id]
	if !exists {
		return nil, apperrors.NewProxyNotFoundError(id.String())
	}
	return proxy, nil
}

// FindByEndpoint returns the proxy registered for the given endpoint.
func (r *InMemoryProxyRepository) FindByEndpoint(ctx context.Context, endpoint domain.Endpoint) (*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, proxy := range r.proxies {
		if proxy.Configuration().Endpoint.Equal(endpoint) {
			return proxy, nil
		}
	}
	return nil, apperrors.NewProxyNotFoundError(endpoint.URL())
}

// FindAvailable returns available proxies matching the hard filters, up to
// limit. Results are ordered by id for deterministic candidate sets.
func (r *InMemoryProxyRepository) FindAvailable(ctx context.Context, filters domain.ProxyFilters, limit int) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matching := make([]*domain.Proxy, 0)
	for _, proxy := range r.proxies {
		if proxy.IsAvailable() && filters.Matches(proxy) {
			matching = append(matching, proxy)
		}
	}
	sortByID(matching)
	if limit > 0 && len(matching) > limit {
		matching = matching[:limit]
	}
	return matching, nil
}

// FindByHealthStatus returns proxies in the given status.
func (r *InMemoryProxyRepository) FindByHealthStatus(ctx context.Context, status domain.HealthStatus) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []*domain.Proxy
	for _, proxy := range r.proxies {
		if proxy.HealthStatus() == status {
			matching = append(matching, proxy)
		}
	}
	sortByID(matching)
	return matching, nil
}

// FindByCountry returns proxies exiting in the given country.
func (r *InMemoryProxyRepository) FindByCountry(ctx context.Context, countryCode string) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []*domain.Proxy
	for _, proxy := range r.proxies {
		if proxy.Configuration().CountryCode() == countryCode {
			matching = append(matching, proxy)
		}
	}
	sortByID(matching)
	return matching, nil
}

// FindAll returns every proxy in the pool.
func (r *InMemoryProxyRepository) FindAll(ctx context.Context) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Proxy, 0, len(r.proxies))
	for _, proxy := range r.proxies {
		all = append(all, proxy)
	}
	sortByID(all)
	return all, nil
}

// CountTotal returns the number of proxies in the pool.
func (r *InMemoryProxyRepository) CountTotal(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.proxies), nil
}

// CountByStatus returns the health distribution of the pool.
func (r *InMemoryProxyRepository) CountByStatus(ctx context.Context) (map[domain.HealthStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.HealthStatus]int)
	for _, proxy := range r.proxies {
		counts[proxy.HealthStatus()]++
	}
	return counts, nil
}

// Delete removes a proxy.
func (r *InMemoryProxyRepository) Delete(ctx context.Context, id domain.ProxyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.proxies[id]; !exists {
		return apperrors.NewProxyNotFoundError(id.String())
	}
	delete(r.proxies, id)
	return nil
}

// DeleteByCriteria removes every proxy matching all non-nil criteria and
// returns how many were deleted.
func (r *InMemoryProxyRepository) DeleteByCriteria(ctx context.Context, criteria domain.DeleteCriteria) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, proxy := range r.proxies {
		if criteria.HealthStatus != nil && proxy.HealthStatus() != *criteria.HealthStatus {
			continue
		}
		metrics := proxy.Metrics()
		if criteria.InactiveSince != nil && metrics.LastUsed.After(*criteria.InactiveSince) {
			continue
		}
		if criteria.SuccessRateBelow != nil && metrics.SuccessRate() >= *criteria.SuccessRateBelow {
			continue
		}
		delete(r.proxies, id)
		deleted++
	}
	return deleted, nil
}

// Exists reports whether the proxy is in the pool.
func (r *InMemoryProxyRepository) Exists(ctx context.Context, id domain.ProxyID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.proxies[id]
	return exists, nil
}

// FindNeedingHealthCheck returns proxies never checked or last checked
// before now-interval, stalest first, up to limit.
func (r *InMemoryProxyRepository) FindNeedingHealthCheck(ctx context.Context, interval time.Duration, limit int) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-interval)
	due := make([]*domain.Proxy, 0)
	for _, proxy := range r.proxies {
		last := proxy.LastHealthCheck()
		if last == nil || last.Timestamp.Before(cutoff) {
			due = append(due, proxy)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		lastI, lastJ := due[i].LastHealthCheck(), due[j].LastHealthCheck()
		if (lastI == nil) != (lastJ == nil) {
			return lastI == nil
		}
		if lastI == nil {
			return due[i].ID() < due[j].ID()
		}
		return lastI.Timestamp.Before(lastJ.Timestamp)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// FindQuarantinedForRecovery returns quarantined proxies whose last check
// is older than the interval, up to limit.
func (r *InMemoryProxyRepository) FindQuarantinedForRecovery(ctx context.Context, interval time.Duration, limit int) ([]*domain.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-interval)
	candidates := make([]*domain.Proxy, 0)
	for _, proxy := range r.proxies {
		if proxy.HealthStatus() != domain.HealthStatusQuarantined {
			continue
		}
		last := proxy.LastHealthCheck()
		if last == nil || last.Timestamp.Before(cutoff) {
			candidates = append(candidates, proxy)
		}
	}
	sortByID(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// UpdateConcurrentUsage atomically adjusts a proxy's concurrency counter.
func (r *InMemoryProxyRepository) UpdateConcurrentUsage(ctx context.Context, id domain.ProxyID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	proxy, exists := r.proxies[id]
	if !exists {
		return apperrors.NewProxyNotFoundError(id.String())
	}
	return proxy.AdjustConcurrency(delta)
}

// Clear removes every proxy. Intended for tests.
func (r *InMemoryProxyRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = make(map[domain.ProxyID]*domain.Proxy)
}

func sortByID(proxies []*domain.Proxy) {
	sort.Slice(proxies, func(i, j int) bool {
		return proxies[i].ID() < proxies[j].ID()
	})
}
