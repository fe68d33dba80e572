package selection

import (
	"context"
	"fmt"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// Selector applies the performance threshold of a strategy and dispatches
// to the configured selection algorithm, with graceful degradation and an
// optional fallback algorithm.
type Selector struct {
	registry *Registry
	logger   *logger.Logger
}

// NewSelector creates a selector with its own algorithm registry, so the
// round-robin cursor is scoped to this instance.
func NewSelector(log *logger.Logger) *Selector {
	return &Selector{
		registry: NewRegistry(),
		logger:   log.SelectionLogger(),
	}
}

// SelectOptimalProxy picks one proxy from the candidates under the given
// strategy. It returns a NO_AVAILABLE_PROXY error when no candidate
// survives filtering and a SELECTION_FAILED error on an algorithm fault.
func (s *Selector) SelectOptimalProxy(
	ctx context.Context,
	candidates []*domain.Proxy,
	strategy domain.SelectionStrategy,
	sctx domain.SelectionContext,
) (*domain.Proxy, error) {
	filtered := s.applyThreshold(candidates, strategy.PerformanceThreshold)

	if len(filtered) == 0 && strategy.PerformanceThreshold != nil {
		// Graceful degradation: retry with a loosened threshold before
		// declaring total starvation.
		loosened := strategy.PerformanceThreshold.Loosened()
		filtered = s.applyThreshold(candidates, &loosened)
		if len(filtered) > 0 {
			s.logger.WithField("candidates", len(filtered)).
				Debug("Strict performance threshold starved the pool, using loosened threshold")
		}
	}
	if len(filtered) == 0 {
		return nil, apperrors.NewNoAvailableProxyError()
	}

	algorithm, ok := s.registry.Get(strategy.Type)
	if !ok {
		return nil, apperrors.NewSelectionError(
			string(strategy.Type),
			fmt.Errorf("unknown strategy type %q", strategy.Type),
		)
	}

	selected, err := algorithm.Select(ctx, filtered, strategy, sctx)
	if err != nil {
		return nil, apperrors.NewSelectionError(string(strategy.Type), err)
	}

	if selected == nil && strategy.FallbackType != "" && strategy.FallbackType != strategy.Type {
		fallback, ok := s.registry.Get(strategy.FallbackType)
		if !ok {
			return nil, apperrors.NewSelectionError(
				string(strategy.FallbackType),
				fmt.Errorf("unknown fallback strategy type %q", strategy.FallbackType),
			)
		}
		s.logger.WithField("strategy", strategy.Type).
			WithField("fallback", strategy.FallbackType).
			Debug("Primary algorithm returned no proxy, trying fallback")
		selected, err = fallback.Select(ctx, filtered, strategy, sctx)
		if err != nil {
			return nil, apperrors.NewSelectionError(string(strategy.FallbackType), err)
		}
	}

	if selected == nil {
		return nil, apperrors.NewNoAvailableProxyError()
	}

	s.logger.WithField("proxy_id", selected.ID().String()).
		WithField("strategy", strategy.Type).
		Debug("Selected proxy for request")
	return selected, nil
}

// applyThreshold keeps candidates whose metrics pass the threshold. A nil
// threshold keeps everything.
func (s *Selector) applyThreshold(candidates []*domain.Proxy, threshold *domain.PerformanceThreshold) []*domain.Proxy {
	if threshold == nil {
		return candidates
	}
	filtered := make([]*domain.Proxy, 0, len(candidates))
	for _, p := range candidates {
		if threshold.Allows(p.Metrics()) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
