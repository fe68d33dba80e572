package domain

// SelectionWeight decomposes a proxy's selection weight into multiplicative
// factors so each concern can be tuned or inspected independently.
type SelectionWeight struct {
	Base            float64 `json:"base"`
	PerformanceMult float64 `json:"performance_mult"`
	GeoMult         float64 `json:"geo_mult"`
	LoadMult        float64 `json:"load_mult"`
	PenaltyMult     float64 `json:"penalty_mult"`
}

// NewSelectionWeight returns a neutral weight.
func NewSelectionWeight() SelectionWeight {
	return SelectionWeight{
		Base:            1,
		PerformanceMult: 1,
		GeoMult:         1,
		LoadMult:        1,
		PenaltyMult:     1,
	}
}

// FinalWeight is the product of all factors, floored at zero.
func (w SelectionWeight) FinalWeight() float64 {
	final := w.Base * w.PerformanceMult * w.GeoMult * w.LoadMult * w.PenaltyMult
	if final < 0 {
		return 0
	}
	return final
}

// WeightFromMetrics recomputes the weight from current metrics and the
// concurrency ratio (current / max concurrent requests).
func WeightFromMetrics(m ProxyMetrics, concurrencyRatio float64) SelectionWeight {
	w := NewSelectionWeight()
	if m.TotalRequests > 0 {
		w.PerformanceMult = 0.5 + m.AvailabilityScore()
	}
	w.LoadMult = 1 - 0.5*clamp01(concurrencyRatio)
	w.PenaltyMult = 1 / (1 + 0.2*float64(m.ConsecutiveFailures))
	return w
}
