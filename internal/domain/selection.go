package domain

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// StrategyType identifies a proxy selection algorithm.
type StrategyType string

const (
	StrategyBest           StrategyType = "best"
	StrategyRoundRobin     StrategyType = "round_robin"
	StrategyWeightedRandom StrategyType = "weighted_random"
	StrategyGeoPreferred   StrategyType = "geo_preferred"
	StrategyLeastUsed      StrategyType = "least_used"
	StrategyFastest        StrategyType = "fastest"
	StrategyMostReliable   StrategyType = "most_reliable"
)

// Valid reports whether the strategy type is known.
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyBest, StrategyRoundRobin, StrategyWeightedRandom, StrategyGeoPreferred,
		StrategyLeastUsed, StrategyFastest, StrategyMostReliable:
		return true
	}
	return false
}

// WeightFactors are the blend weights of the multi-factor selection score.
// They must sum to 1.0.
type WeightFactors struct {
	SuccessRate   float64 `json:"success_rate" yaml:"success_rate"`
	ResponseTime  float64 `json:"response_time" yaml:"response_time"`
	Stability     float64 `json:"stability" yaml:"stability"`
	GeoPreference float64 `json:"geo_preference" yaml:"geo_preference"`
}

// DefaultWeightFactors returns the standard scoring blend.
func DefaultWeightFactors() WeightFactors {
	return WeightFactors{
		SuccessRate:   0.4,
		ResponseTime:  0.3,
		Stability:     0.2,
		GeoPreference: 0.1,
	}
}

// Validate ensures the factors sum to 1.0 within a small tolerance.
func (w WeightFactors) Validate() error {
	sum := w.SuccessRate + w.ResponseTime + w.Stability + w.GeoPreference
	if math.Abs(sum-1.0) > 1e-6 {
		return apperrors.NewInvalidConfigError(
			fmt.Sprintf("weight factors must sum to 1.0, got %.4f", sum))
	}
	return nil
}

// PerformanceThreshold is the soft performance filter applied before an
// algorithm runs. Proxies with no recorded requests are not held to the
// success-rate and response-time floors.
type PerformanceThreshold struct {
	MinSuccessRate         float64       `json:"min_success_rate" yaml:"min_success_rate"`
	MaxResponseTime        time.Duration `json:"max_response_time" yaml:"max_response_time"`
	MinAvailabilityScore   float64       `json:"min_availability_score" yaml:"min_availability_score"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
}

// Loosened relaxes the threshold for graceful degradation under a globally
// degraded pool: the success-rate floor is halved, the response-time
// ceiling and failure tolerance grow by half.
func (t PerformanceThreshold) Loosened() PerformanceThreshold {
	loose := t
	loose.MinSuccessRate = t.MinSuccessRate / 2
	loose.MinAvailabilityScore = t.MinAvailabilityScore / 2
	loose.MaxResponseTime = time.Duration(float64(t.MaxResponseTime) * 1.5)
	loose.MaxConsecutiveFailures = int(math.Ceil(float64(t.MaxConsecutiveFailures) * 1.5))
	return loose
}

// Allows reports whether the metrics pass the threshold.
func (t PerformanceThreshold) Allows(m ProxyMetrics) bool {
	if t.MaxConsecutiveFailures > 0 && m.ConsecutiveFailures > t.MaxConsecutiveFailures {
		return false
	}
	if m.TotalRequests == 0 {
		// Newly added proxies have no track record yet; let them through
		// so the pool can learn about them.
		return true
	}
	if t.MinSuccessRate > 0 && m.SuccessRate() < t.MinSuccessRate {
		return false
	}
	if t.MaxResponseTime > 0 && m.AverageResponseTime() > t.MaxResponseTime {
		return false
	}
	if t.MinAvailabilityScore > 0 && m.AvailabilityScore() < t.MinAvailabilityScore {
		return false
	}
	return true
}

// SelectionStrategy is the policy used to pick one proxy among candidates.
type SelectionStrategy struct {
	Type                 StrategyType          `json:"type" yaml:"type"`
	GeoPreference        []string              `json:"geo_preference,omitempty" yaml:"geo_preference,omitempty"`
	PerformanceThreshold *PerformanceThreshold `json:"performance_threshold,omitempty" yaml:"performance_threshold,omitempty"`
	FallbackType         StrategyType          `json:"fallback_type,omitempty" yaml:"fallback_type,omitempty"`
	WeightFactors        WeightFactors         `json:"weight_factors" yaml:"weight_factors"`
}

// DefaultSelectionStrategy returns the best-score strategy with a
// round-robin fallback.
func DefaultSelectionStrategy() SelectionStrategy {
	return SelectionStrategy{
		Type:          StrategyBest,
		FallbackType:  StrategyRoundRobin,
		WeightFactors: DefaultWeightFactors(),
	}
}

// PrefersCountry reports whether the strategy prefers the given country code.
func (s SelectionStrategy) PrefersCountry(code string) bool {
	for _, c := range s.GeoPreference {
		if c == code {
			return true
		}
	}
	return false
}

// SelectionContext carries per-call preferences. It is immutable; derive
// modified copies with WithExclusions and WithPreference.
type SelectionContext struct {
	RequestID         string
	TargetHost        string
	PreferredCountry  string
	PreferredProtocol Protocol
	MaxResponseTime   time.Duration
	MinSuccessRate    float64
	ExcludeIDs        []ProxyID
	CurrentUsage      map[ProxyID]int
	Timestamp         time.Time
	Metadata          map[string]string
}

// NewSelectionContext creates a context stamped with the current time.
func NewSelectionContext(requestID string) SelectionContext {
	return SelectionContext{
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// WithExclusions returns a copy with the given proxy ids appended to the
// exclusion list.
func (c SelectionContext) WithExclusions(ids ...ProxyID) SelectionContext {
	next := c
	next.ExcludeIDs = make([]ProxyID, 0, len(c.ExcludeIDs)+len(ids))
	next.ExcludeIDs = append(next.ExcludeIDs, c.ExcludeIDs...)
	next.ExcludeIDs = append(next.ExcludeIDs, ids...)
	return next
}

// WithPreference returns a copy preferring the given country code.
func (c SelectionContext) WithPreference(countryCode string) SelectionContext {
	next := c
	next.PreferredCountry = countryCode
	return next
}

// Excludes reports whether the proxy id is excluded in this context.
func (c SelectionContext) Excludes(id ProxyID) bool {
	for _, excluded := range c.ExcludeIDs {
		if excluded == id {
			return true
		}
	}
	return false
}
