package domain

import "time"

// RequestResult classifies the outcome of one request routed through a proxy.
type RequestResult string

const (
	ResultSuccess         RequestResult = "success"
	ResultTimeout         RequestResult = "timeout"
	ResultConnectionError RequestResult = "connection_error"
	ResultHTTPError       RequestResult = "http_error"
	ResultProxyError      RequestResult = "proxy_error"
	ResultUnknownError    RequestResult = "unknown_error"
)

// IsSuccess reports whether the outcome counts as a successful request.
func (r RequestResult) IsSuccess() bool {
	return r == ResultSuccess
}

// RequestRecord captures one request outcome for the metrics history.
type RequestRecord struct {
	Timestamp    time.Time      `json:"timestamp"`
	Result       RequestResult  `json:"result"`
	ResponseTime *time.Duration `json:"response_time,omitempty"`
	HTTPStatus   int            `json:"http_status,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	TargetHost   string         `json:"target_host,omitempty"`
}

const (
	// historyLimit caps the FIFO request history kept per proxy.
	historyLimit = 100

	// speedFactorCeiling is the response time at which the speed factor
	// bottoms out at zero.
	speedFactorCeiling = 5000 * time.Millisecond
)

// ProxyMetrics is an immutable snapshot of a proxy's performance.
// AddRequestResult returns a new value instead of mutating in place.
type ProxyMetrics struct {
	TotalRequests        int             `json:"total_requests"`
	SuccessfulRequests   int             `json:"successful_requests"`
	FailedRequests       int             `json:"failed_requests"`
	TotalResponseTime    time.Duration   `json:"total_response_time"`
	ResponseSamples      int             `json:"response_samples"`
	LastSuccessAt        *time.Time      `json:"last_success_at,omitempty"`
	LastFailureAt        *time.Time      `json:"last_failure_at,omitempty"`
	ConsecutiveFailures  int             `json:"consecutive_failures"`
	ConsecutiveSuccesses int             `json:"consecutive_successes"`
	FirstSeen            time.Time       `json:"first_seen"`
	LastUsed             time.Time       `json:"last_used"`
	History              []RequestRecord `json:"history,omitempty"`
}

// NewProxyMetrics creates empty metrics for a proxy first seen at the given time.
func NewProxyMetrics(firstSeen time.Time) ProxyMetrics {
	return ProxyMetrics{FirstSeen: firstSeen, LastUsed: firstSeen}
}

// AddRequestResult returns a new metrics value with the record folded in.
// The history is a FIFO capped at historyLimit entries.
func (m ProxyMetrics) AddRequestResult(record RequestRecord) ProxyMetrics {
	next := m
	next.TotalRequests++
	next.LastUsed = record.Timestamp

	if record.Result.IsSuccess() {
		next.SuccessfulRequests++
		next.ConsecutiveSuccesses = m.ConsecutiveSuccesses + 1
		next.ConsecutiveFailures = 0
		ts := record.Timestamp
		next.LastSuccessAt = &ts
	} else {
		next.FailedRequests++
		next.ConsecutiveFailures = m.ConsecutiveFailures + 1
		next.ConsecutiveSuccesses = 0
		ts := record.Timestamp
		next.LastFailureAt = &ts
	}

	if record.ResponseTime != nil {
		next.TotalResponseTime = m.TotalResponseTime + *record.ResponseTime
		next.ResponseSamples = m.ResponseSamples + 1
	}

	history := make([]RequestRecord, 0, len(m.History)+1)
	history = append(history, m.History...)
	history = append(history, record)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	next.History = history

	return next
}

// SuccessRate returns the fraction of successful requests, 0 when unused.
func (m ProxyMetrics) SuccessRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// AverageResponseTime returns the mean response time over recorded samples.
func (m ProxyMetrics) AverageResponseTime() time.Duration {
	if m.ResponseSamples == 0 {
		return 0
	}
	return m.TotalResponseTime / time.Duration(m.ResponseSamples)
}

// SpeedFactor maps the average response time onto [0, 1], where 1 means
// instant and 0 means at or beyond the ceiling.
func (m ProxyMetrics) SpeedFactor() float64 {
	avg := m.AverageResponseTime()
	if avg == 0 {
		return 1
	}
	factor := 1 - float64(avg)/float64(speedFactorCeiling)
	if factor < 0 {
		return 0
	}
	return factor
}

// AvailabilityScore blends success rate and response speed. A proxy with no
// recorded requests scores 0.
func (m ProxyMetrics) AvailabilityScore() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return 0.7*m.SuccessRate() + 0.3*m.SpeedFactor()
}

// StabilityIndex captures the consistency of recent outcomes: the success
// ratio over the last hour of history, a bonus for the current success
// streak, and a penalty for the current failure streak.
func (m ProxyMetrics) StabilityIndex() float64 {
	if m.TotalRequests == 0 {
		return 0
	}

	recentRatio := m.recentSuccessRatio(time.Now().Add(-time.Hour))
	streakBonus := float64(min(m.ConsecutiveSuccesses, 10)) / 10
	streakPenalty := float64(min(m.ConsecutiveFailures, 10)) / 10

	return clamp01(0.2 + 0.5*recentRatio + 0.3*streakBonus - 0.3*streakPenalty)
}

// recentSuccessRatio returns the success ratio over history entries at or
// after the cutoff, falling back to the overall success rate when the
// window is empty.
func (m ProxyMetrics) recentSuccessRatio(cutoff time.Time) float64 {
	total, successes := 0, 0
	for _, record := range m.History {
		if record.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if record.Result.IsSuccess() {
			successes++
		}
	}
	if total == 0 {
		return m.SuccessRate()
	}
	return float64(successes) / float64(total)
}

// ShouldQuarantine reports whether the metrics have degraded past the
// quarantine thresholds.
func (m ProxyMetrics) ShouldQuarantine() bool {
	if m.ConsecutiveFailures >= 5 {
		return true
	}
	if m.TotalRequests >= 20 && m.SuccessRate() < 0.1 {
		return true
	}
	return m.AverageResponseTime() > 30*time.Second
}

// HealthStatusHint derives a health classification from the metrics alone.
// Quarantine is decided by the aggregate, not here.
func (m ProxyMetrics) HealthStatusHint() HealthStatus {
	switch {
	case m.TotalRequests == 0:
		return HealthStatusUnknown
	case m.ConsecutiveFailures >= 3:
		return HealthStatusUnhealthy
	case m.SuccessRate() < 0.95 || m.AverageResponseTime() > 3*time.Second:
		return HealthStatusDegraded
	default:
		return HealthStatusHealthy
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
