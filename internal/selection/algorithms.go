package selection

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/proxyops/proxy-pool/internal/domain"
)

// Algorithm selects one proxy among available candidates. A (nil, nil)
// return means the algorithm found no suitable proxy; an error means an
// internal fault.
type Algorithm interface {
	Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error)
	Type() domain.StrategyType
	Name() string
}

// available narrows candidates to proxies that may serve a request and are
// not excluded by the selection context. Input order is preserved so that
// score ties and round-robin cursors stay stable.
func available(candidates []*domain.Proxy, sctx domain.SelectionContext) []*domain.Proxy {
	result := make([]*domain.Proxy, 0, len(candidates))
	for _, p := range candidates {
		if !p.IsAvailable() || sctx.Excludes(p.ID()) {
			continue
		}
		result = append(result, p)
	}
	return result
}

// BestAlgorithm picks the candidate with the highest multi-factor selection
// score. Ties are broken by stable input order.
type BestAlgorithm struct{}

func NewBestAlgorithm() *BestAlgorithm { return &BestAlgorithm{} }

func (a *BestAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	return a.selectFrom(available(candidates, sctx), strategy, sctx), nil
}

func (a *BestAlgorithm) selectFrom(pool []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) *domain.Proxy {
	var best *domain.Proxy
	bestScore := -1.0
	for _, p := range pool {
		if score := p.CalculateSelectionScore(strategy, sctx); score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

func (a *BestAlgorithm) Type() domain.StrategyType { return domain.StrategyBest }
func (a *BestAlgorithm) Name() string              { return "Best Score" }

// RoundRobinAlgorithm cycles a cursor over the current available candidate
// list. The cursor belongs to the algorithm instance (and therefore to the
// owning Selector), not to the process.
type RoundRobinAlgorithm struct {
	cursor uint64
}

func NewRoundRobinAlgorithm() *RoundRobinAlgorithm { return &RoundRobinAlgorithm{} }

func (a *RoundRobinAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)
	if len(pool) == 0 {
		return nil, nil
	}
	next := atomic.AddUint64(&a.cursor, 1)
	return pool[(next-1)%uint64(len(pool))], nil
}

func (a *RoundRobinAlgorithm) Type() domain.StrategyType { return domain.StrategyRoundRobin }
func (a *RoundRobinAlgorithm) Name() string              { return "Round Robin" }

// Reset rewinds the cursor.
func (a *RoundRobinAlgorithm) Reset() {
	atomic.StoreUint64(&a.cursor, 0)
}

// WeightedRandomAlgorithm draws a candidate with probability proportional
// to its final selection weight. Zero-weight proxies are excluded.
type WeightedRandomAlgorithm struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewWeightedRandomAlgorithm() *WeightedRandomAlgorithm {
	return &WeightedRandomAlgorithm{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (a *WeightedRandomAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)

	weights := make([]float64, 0, len(pool))
	eligible := make([]*domain.Proxy, 0, len(pool))
	total := 0.0
	for _, p := range pool {
		weight := p.SelectionWeight().FinalWeight()
		if weight <= 0 {
			continue
		}
		eligible = append(eligible, p)
		total += weight
		weights = append(weights, total)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	a.mu.Lock()
	draw := a.rng.Float64() * total
	a.mu.Unlock()

	for i, cumulative := range weights {
		if draw < cumulative {
			return eligible[i], nil
		}
	}
	return eligible[len(eligible)-1], nil
}

func (a *WeightedRandomAlgorithm) Type() domain.StrategyType { return domain.StrategyWeightedRandom }
func (a *WeightedRandomAlgorithm) Name() string              { return "Weighted Random" }

// GeoPreferredAlgorithm partitions candidates by preferred country and
// picks the best-scoring proxy from the preferred partition, falling back
// to the rest only when the preferred partition is empty.
type GeoPreferredAlgorithm struct {
	best *BestAlgorithm
}

func NewGeoPreferredAlgorithm() *GeoPreferredAlgorithm {
	return &GeoPreferredAlgorithm{best: NewBestAlgorithm()}
}

func (a *GeoPreferredAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)

	preferred := make([]*domain.Proxy, 0, len(pool))
	others := make([]*domain.Proxy, 0, len(pool))
	for _, p := range pool {
		if p.MatchesPreferredCountry(strategy, sctx) {
			preferred = append(preferred, p)
		} else {
			others = append(others, p)
		}
	}

	if selected := a.best.selectFrom(preferred, strategy, sctx); selected != nil {
		return selected, nil
	}
	return a.best.selectFrom(others, strategy, sctx), nil
}

func (a *GeoPreferredAlgorithm) Type() domain.StrategyType { return domain.StrategyGeoPreferred }
func (a *GeoPreferredAlgorithm) Name() string              { return "Geo Preferred" }

// LeastUsedAlgorithm picks the candidate with the fewest in-flight requests.
type LeastUsedAlgorithm struct{}

func NewLeastUsedAlgorithm() *LeastUsedAlgorithm { return &LeastUsedAlgorithm{} }

func (a *LeastUsedAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)

	var selected *domain.Proxy
	lowest := -1
	for _, p := range pool {
		if current := p.CurrentConcurrent(); lowest < 0 || current < lowest {
			lowest = current
			selected = p
		}
	}
	return selected, nil
}

func (a *LeastUsedAlgorithm) Type() domain.StrategyType { return domain.StrategyLeastUsed }
func (a *LeastUsedAlgorithm) Name() string              { return "Least Used" }

// fastestMinSamples is the track record required before a proxy may win on
// raw response time.
const fastestMinSamples = 5

// FastestAlgorithm picks the lowest average response time among proxies
// with enough recorded requests, falling back to the best score when none
// qualify.
type FastestAlgorithm struct {
	best *BestAlgorithm
}

func NewFastestAlgorithm() *FastestAlgorithm {
	return &FastestAlgorithm{best: NewBestAlgorithm()}
}

func (a *FastestAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)

	var selected *domain.Proxy
	var fastest time.Duration
	for _, p := range pool {
		metrics := p.Metrics()
		if metrics.TotalRequests < fastestMinSamples {
			continue
		}
		if avg := metrics.AverageResponseTime(); selected == nil || avg < fastest {
			fastest = avg
			selected = p
		}
	}
	if selected != nil {
		return selected, nil
	}
	return a.best.selectFrom(pool, strategy, sctx), nil
}

func (a *FastestAlgorithm) Type() domain.StrategyType { return domain.StrategyFastest }
func (a *FastestAlgorithm) Name() string              { return "Fastest" }

// reliableMinSamples is the track record required before a proxy may win on
// reliability.
const reliableMinSamples = 10

// MostReliableAlgorithm picks the highest blend of success rate and
// stability among proxies with enough recorded requests, falling back to
// the best score when none qualify.
type MostReliableAlgorithm struct {
	best *BestAlgorithm
}

func NewMostReliableAlgorithm() *MostReliableAlgorithm {
	return &MostReliableAlgorithm{best: NewBestAlgorithm()}
}

func (a *MostReliableAlgorithm) Select(ctx context.Context, candidates []*domain.Proxy, strategy domain.SelectionStrategy, sctx domain.SelectionContext) (*domain.Proxy, error) {
	pool := available(candidates, sctx)

	var selected *domain.Proxy
	bestScore := -1.0
	for _, p := range pool {
		metrics := p.Metrics()
		if metrics.TotalRequests < reliableMinSamples {
			continue
		}
		score := 0.7*metrics.SuccessRate() + 0.3*metrics.StabilityIndex()
		if score > bestScore {
			bestScore = score
			selected = p
		}
	}
	if selected != nil {
		return selected, nil
	}
	return a.best.selectFrom(pool, strategy, sctx), nil
}

func (a *MostReliableAlgorithm) Type() domain.StrategyType { return domain.StrategyMostReliable }
func (a *MostReliableAlgorithm) Name() string              { return "Most Reliable" }

// Registry maps strategy types to algorithm instances. It is constructed
// once per Selector so stateful algorithms (the round-robin cursor) stay
// scoped to their selection stream.
type Registry struct {
	algorithms map[domain.StrategyType]Algorithm
}

// NewRegistry builds a registry holding one instance of every algorithm.
func NewRegistry() *Registry {
	algorithms := []Algorithm{
		NewBestAlgorithm(),
		NewRoundRobinAlgorithm(),
		NewWeightedRandomAlgorithm(),
		NewGeoPreferredAlgorithm(),
		NewLeastUsedAlgorithm(),
		NewFastestAlgorithm(),
		NewMostReliableAlgorithm(),
	}
	byType := make(map[domain.StrategyType]Algorithm, len(algorithms))
	for _, algorithm := range algorithms {
		byType[algorithm.Type()] = algorithm
	}
	return &Registry{algorithms: byType}
}

// Get returns the algorithm registered for the strategy type.
func (r *Registry) Get(strategyType domain.StrategyType) (Algorithm, bool) {
	algorithm, ok := r.algorithms[strategyType]
	return algorithm, ok
}

// Types returns all registered strategy types.
func (r *Registry) Types() []domain.StrategyType {
	types := make([]domain.StrategyType, 0, len(r.algorithms))
	for t := range r.algorithms {
		types = append(types, t)
	}
	return types
}
