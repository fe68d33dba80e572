package domain

import "time"

// HealthStatus represents the health classification of a proxy
type HealthStatus int

const (
	// HealthStatusUnknown indicates the proxy has never been classified
	HealthStatusUnknown HealthStatus = iota
	// HealthStatusHealthy indicates the proxy is performing well
	HealthStatusHealthy
	// HealthStatusDegraded indicates the proxy works but underperforms
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates the proxy is failing checks
	HealthStatusUnhealthy
	// HealthStatusQuarantined indicates the proxy is suspended from selection
	HealthStatusQuarantined
)

// String returns the string representation of HealthStatus
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	case HealthStatusQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

// Selectable reports whether a proxy in this status may receive traffic.
func (s HealthStatus) Selectable() bool {
	return s == HealthStatusHealthy || s == HealthStatusDegraded
}

// AnonymityLevel classifies how much a proxy reveals about its client.
type AnonymityLevel int

const (
	// AnonymityTransparent proxies forward the client address
	AnonymityTransparent AnonymityLevel = 1
	// AnonymityAnonymous proxies hide the client but identify as proxies
	AnonymityAnonymous AnonymityLevel = 2
	// AnonymityElite proxies are indistinguishable from direct clients
	AnonymityElite AnonymityLevel = 3
)

func (a AnonymityLevel) String() string {
	switch a {
	case AnonymityTransparent:
		return "transparent"
	case AnonymityAnonymous:
		return "anonymous"
	case AnonymityElite:
		return "elite"
	default:
		return "unknown"
	}
}

// CheckType identifies which probe produced a HealthCheckResult.
type CheckType string

const (
	CheckTypeConnectivity  CheckType = "connectivity"
	CheckTypeAnonymity     CheckType = "anonymity"
	CheckTypeGeo           CheckType = "geo"
	CheckTypeComprehensive CheckType = "comprehensive"
)

// HealthCheckResult is the outcome of one health probe against a proxy.
type HealthCheckResult struct {
	Timestamp      time.Time      `json:"timestamp"`
	Success        bool           `json:"success"`
	ResponseTime   *time.Duration `json:"response_time,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	HTTPStatus     int            `json:"http_status,omitempty"`
	AnonymityLevel AnonymityLevel `json:"anonymity_level,omitempty"`
	RealIPDetected string         `json:"real_ip_detected,omitempty"`
	CheckType      CheckType      `json:"check_type"`
}

// FailedCheck builds a failed result for the given probe type.
func FailedCheck(checkType CheckType, err error) HealthCheckResult {
	result := HealthCheckResult{
		Timestamp: time.Now(),
		Success:   false,
		CheckType: checkType,
	}
	if err != nil {
		result.ErrorMessage = err.Error()
	}
	return result
}

// HealthCheckConfig configures health probes.
type HealthCheckConfig struct {
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	TestURL         string        `json:"test_url" yaml:"test_url"`
	GeoURL          string        `json:"geo_url" yaml:"geo_url"`
	AnonymityCheck  bool          `json:"anonymity_check" yaml:"anonymity_check"`
	GeoVerification bool          `json:"geo_verification" yaml:"geo_verification"`
	MaxConcurrent   int           `json:"max_concurrent" yaml:"max_concurrent"`
	Interval        time.Duration `json:"interval" yaml:"interval"`
}

// DefaultHealthCheckConfig returns the standard probe configuration.
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Timeout:       10 * time.Second,
		TestURL:       "https://httpbin.org/ip",
		GeoURL:        "https://httpbin.org/ip",
		MaxConcurrent: 10,
		Interval:      5 * time.Minute,
	}
}
