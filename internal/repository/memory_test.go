package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

func storedProxy(t *testing.T, repo *InMemoryProxyRepository, host string) *domain.Proxy {
	t.Helper()
	endpoint, err := domain.NewEndpoint(host, 8080, domain.ProtocolHTTP)
	require.NoError(t, err)
	cfg, err := domain.NewProxyConfiguration(endpoint, nil, nil, nil, 3, 30*time.Second, 2)
	require.NoError(t, err)

	p := domain.NewProxy(cfg)
	rt := 100 * time.Millisecond
	p.ApplyHealthCheck(domain.HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &rt,
		CheckType:    domain.CheckTypeConnectivity,
	})
	p.DrainEvents()
	require.NoError(t, repo.Save(context.Background(), p))
	return p
}

func TestSaveAndFind(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	p := storedProxy(t, repo, "10.0.0.1")

	found, err := repo.FindByID(ctx, p.ID())
	require.NoError(t, err)
	assert.Equal(t, p.ID(), found.ID())

	byEndpoint, err := repo.FindByEndpoint(ctx, p.Configuration().Endpoint)
	require.NoError(t, err)
	assert.Equal(t, p.ID(), byEndpoint.ID())

	exists, err := repo.Exists(ctx, p.ID())
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.FindByID(ctx, domain.ProxyID("missing"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProxyNotFound, apperrors.GetErrorCode(err))

	require.Error(t, repo.Save(ctx, nil))
}

func TestFindAvailableFiltersAndLimit(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		storedProxy(t, repo, fmt.Sprintf("10.0.0.%d", i))
	}
	quarantined := storedProxy(t, repo, "10.0.0.6")
	quarantined.ForceQuarantine("test", time.Hour)

	available, err := repo.FindAvailable(ctx, domain.ProxyFilters{}, 0)
	require.NoError(t, err)
	assert.Len(t, available, 5, "quarantined proxies are never available")

	limited, err := repo.FindAvailable(ctx, domain.ProxyFilters{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := repo.FindAvailable(ctx, domain.ProxyFilters{
		Protocols: []domain.Protocol{domain.ProtocolSOCKS5},
	}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindAvailableIsDeterministic(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		storedProxy(t, repo, fmt.Sprintf("10.0.0.%d", i))
	}

	first, err := repo.FindAvailable(ctx, domain.ProxyFilters{}, 0)
	require.NoError(t, err)
	second, err := repo.FindAvailable(ctx, domain.ProxyFilters{}, 0)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID(), second[i].ID())
	}
}

func TestCountsAndStatusQueries(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	storedProxy(t, repo, "10.0.0.1")
	quarantined := storedProxy(t, repo, "10.0.0.2")
	quarantined.ForceQuarantine("test", time.Hour)

	total, err := repo.CountTotal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	byStatus, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, byStatus[domain.HealthStatusHealthy])
	assert.Equal(t, 1, byStatus[domain.HealthStatusQuarantined])

	quarantinedProxies, err := repo.FindByHealthStatus(ctx, domain.HealthStatusQuarantined)
	require.NoError(t, err)
	require.Len(t, quarantinedProxies, 1)
	assert.Equal(t, quarantined.ID(), quarantinedProxies[0].ID())
}

func TestDelete(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	p := storedProxy(t, repo, "10.0.0.1")
	require.NoError(t, repo.Delete(ctx, p.ID()))

	err := repo.Delete(ctx, p.ID())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProxyNotFound, apperrors.GetErrorCode(err))
}

func TestDeleteByCriteria(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	healthy := storedProxy(t, repo, "10.0.0.1")
	stale := storedProxy(t, repo, "10.0.0.2")
	stale.ForceQuarantine("test", time.Hour)

	quarantinedStatus := domain.HealthStatusQuarantined
	cutoff := time.Now().Add(time.Minute)
	floor := 0.5

	deleted, err := repo.DeleteByCriteria(ctx, domain.DeleteCriteria{
		HealthStatus:     &quarantinedStatus,
		InactiveSince:    &cutoff,
		SuccessRateBelow: &floor,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = repo.FindByID(ctx, stale.ID())
	assert.Error(t, err)
	_, err = repo.FindByID(ctx, healthy.ID())
	assert.NoError(t, err)
}

func TestUpdateConcurrentUsage(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	p := storedProxy(t, repo, "10.0.0.1")

	require.NoError(t, repo.UpdateConcurrentUsage(ctx, p.ID(), 2))
	assert.Equal(t, 2, p.CurrentConcurrent())

	// Past the configured limit of 3.
	err := repo.UpdateConcurrentUsage(ctx, p.ID(), 2)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCapacityExhausted, apperrors.GetErrorCode(err))

	// Releases floor at zero.
	require.NoError(t, repo.UpdateConcurrentUsage(ctx, p.ID(), -10))
	assert.Zero(t, p.CurrentConcurrent())

	err = repo.UpdateConcurrentUsage(ctx, domain.ProxyID("missing"), 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProxyNotFound, apperrors.GetErrorCode(err))
}

func TestFindNeedingHealthCheckOrdering(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	checked := storedProxy(t, repo, "10.0.0.1")

	neverEndpoint, err := domain.NewEndpoint("10.0.0.2", 8080, domain.ProtocolHTTP)
	require.NoError(t, err)
	neverCfg, err := domain.NewProxyConfiguration(neverEndpoint, nil, nil, nil, 3, 30*time.Second, 2)
	require.NoError(t, err)
	never := domain.NewProxy(neverCfg)
	require.NoError(t, repo.Save(ctx, never))

	// A zero interval makes every proxy due.
	due, err := repo.FindNeedingHealthCheck(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, never.ID(), due[0].ID(), "never-checked proxies come first")
	assert.Equal(t, checked.ID(), due[1].ID())

	// A long interval excludes the recently checked proxy.
	due, err = repo.FindNeedingHealthCheck(ctx, time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, never.ID(), due[0].ID())
}

func TestFindQuarantinedForRecovery(t *testing.T) {
	repo := NewInMemoryProxyRepository()
	ctx := context.Background()

	storedProxy(t, repo, "10.0.0.1")
	quarantined := storedProxy(t, repo, "10.0.0.2")
	quarantined.ForceQuarantine("test", time.Hour)

	// The quarantined proxy was checked moments ago, so a long interval
	// excludes it.
	candidates, err := repo.FindQuarantinedForRecovery(ctx, time.Hour, 0)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	candidates, err = repo.FindQuarantinedForRecovery(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, quarantined.ID(), candidates[0].ID())
}
