package domain

import "time"

// ProxyFilters is the hard pre-filter applied by the repository when
// fetching selection candidates.
type ProxyFilters struct {
	Protocols            []Protocol       `json:"protocols,omitempty"`
	CountryCodes         []string         `json:"country_codes,omitempty"`
	AnonymityLevels      []AnonymityLevel `json:"anonymity_levels,omitempty"`
	Tags                 []string         `json:"tags,omitempty"`
	MinSuccessRate       *float64         `json:"min_success_rate,omitempty"`
	MaxResponseTime      *time.Duration   `json:"max_response_time,omitempty"`
	MinAvailabilityScore *float64         `json:"min_availability_score,omitempty"`
	ExcludeQuarantined   bool             `json:"exclude_quarantined,omitempty"`
	ExcludeIDs           []ProxyID        `json:"exclude_ids,omitempty"`
}

// Matches reports whether the proxy passes every configured filter.
func (f ProxyFilters) Matches(p *Proxy) bool {
	cfg := p.Configuration()

	if len(f.Protocols) > 0 && !containsProtocol(f.Protocols, cfg.Endpoint.Protocol) {
		return false
	}
	if len(f.CountryCodes) > 0 && !containsString(f.CountryCodes, cfg.CountryCode()) {
		return false
	}
	if len(f.Tags) > 0 {
		for _, tag := range f.Tags {
			if !cfg.HasTag(tag) {
				return false
			}
		}
	}
	if len(f.AnonymityLevels) > 0 {
		last := p.LastHealthCheck()
		if last == nil || !containsAnonymity(f.AnonymityLevels, last.AnonymityLevel) {
			return false
		}
	}

	metrics := p.Metrics()
	if f.MinSuccessRate != nil && metrics.TotalRequests > 0 && metrics.SuccessRate() < *f.MinSuccessRate {
		return false
	}
	if f.MaxResponseTime != nil && metrics.AverageResponseTime() > *f.MaxResponseTime {
		return false
	}
	if f.MinAvailabilityScore != nil && metrics.TotalRequests > 0 && metrics.AvailabilityScore() < *f.MinAvailabilityScore {
		return false
	}

	if f.ExcludeQuarantined && (p.IsQuarantined() || p.HealthStatus() == HealthStatusQuarantined) {
		return false
	}
	for _, id := range f.ExcludeIDs {
		if id == p.ID() {
			return false
		}
	}
	return true
}

func containsProtocol(list []Protocol, p Protocol) bool {
	for _, item := range list {
		if item == p {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsAnonymity(list []AnonymityLevel, a AnonymityLevel) bool {
	for _, item := range list {
		if item == a {
			return true
		}
	}
	return false
}
