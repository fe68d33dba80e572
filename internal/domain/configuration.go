package domain

import (
	"fmt"
	"time"

	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// ProxyConfiguration is the immutable configuration of a proxy. It is only
// replaced wholesale through Proxy.UpdateConfiguration, which forbids
// changing the endpoint.
type ProxyConfiguration struct {
	Endpoint      Endpoint      `json:"endpoint" yaml:"endpoint"`
	Credentials   *Credentials  `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Geo           *GeoLocation  `json:"geo,omitempty" yaml:"geo,omitempty"`
	Tags          []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount    int           `json:"retry_count" yaml:"retry_count"`
}

// NewProxyConfiguration validates and constructs a proxy configuration.
func NewProxyConfiguration(
	endpoint Endpoint,
	credentials *Credentials,
	geo *GeoLocation,
	tags []string,
	maxConcurrent int,
	timeout time.Duration,
	retryCount int,
) (ProxyConfiguration, error) {
	if maxConcurrent <= 0 {
		return ProxyConfiguration{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("max_concurrent must be positive, got %d", maxConcurrent))
	}
	if timeout <= 0 {
		return ProxyConfiguration{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("timeout must be positive, got %s", timeout))
	}
	if retryCount < 0 {
		return ProxyConfiguration{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("retry_count must not be negative, got %d", retryCount))
	}
	if credentials != nil {
		if _, err := NewCredentials(credentials.Username, credentials.Password); err != nil {
			return ProxyConfiguration{}, err
		}
	}
	return ProxyConfiguration{
		Endpoint:      endpoint,
		Credentials:   credentials,
		Geo:           geo,
		Tags:          append([]string(nil), tags...),
		MaxConcurrent: maxConcurrent,
		Timeout:       timeout,
		RetryCount:    retryCount,
	}, nil
}

// HasTag reports whether the configuration carries the given tag.
func (c ProxyConfiguration) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// CountryCode returns the configured exit country code, or "" if unknown.
func (c ProxyConfiguration) CountryCode() string {
	if c.Geo == nil {
		return ""
	}
	return c.Geo.CountryCode
}

// ToMap serializes the configuration into a generic map, suitable for
// persistence layers that store documents.
func (c ProxyConfiguration) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"endpoint": map[string]interface{}{
			"host":     c.Endpoint.Host,
			"port":     c.Endpoint.Port,
			"protocol": string(c.Endpoint.Protocol),
		},
		"tags":           append([]string(nil), c.Tags...),
		"max_concurrent": c.MaxConcurrent,
		"timeout_ms":     c.Timeout.Milliseconds(),
		"retry_count":    c.RetryCount,
	}
	if c.Credentials != nil {
		m["credentials"] = map[string]interface{}{
			"username": c.Credentials.Username,
			"password": c.Credentials.Password,
		}
	}
	if c.Geo != nil {
		m["geo"] = map[string]interface{}{
			"country":      c.Geo.Country,
			"country_code": c.Geo.CountryCode,
			"city":         c.Geo.City,
			"region":       c.Geo.Region,
			"latitude":     c.Geo.Latitude,
			"longitude":    c.Geo.Longitude,
		}
	}
	return m
}

// ConfigurationFromMap reconstructs a configuration produced by ToMap.
func ConfigurationFromMap(m map[string]interface{}) (ProxyConfiguration, error) {
	em, ok := m["endpoint"].(map[string]interface{})
	if !ok {
		return ProxyConfiguration{}, apperrors.NewInvalidConfigError("missing endpoint section")
	}
	endpoint, err := NewEndpoint(
		asString(em["host"]),
		asInt(em["port"]),
		Protocol(asString(em["protocol"])),
	)
	if err != nil {
		return ProxyConfiguration{}, err
	}

	var credentials *Credentials
	if cm, ok := m["credentials"].(map[string]interface{}); ok {
		c, err := NewCredentials(asString(cm["username"]), asString(cm["password"]))
		if err != nil {
			return ProxyConfiguration{}, err
		}
		credentials = &c
	}

	var geo *GeoLocation
	if gm, ok := m["geo"].(map[string]interface{}); ok {
		g, err := NewGeoLocation(
			asString(gm["country"]),
			asString(gm["country_code"]),
			asString(gm["city"]),
			asString(gm["region"]),
			asFloat(gm["latitude"]),
			asFloat(gm["longitude"]),
		)
		if err != nil {
			return ProxyConfiguration{}, err
		}
		geo = &g
	}

	var tags []string
	switch v := m["tags"].(type) {
	case []string:
		tags = append(tags, v...)
	case []interface{}:
		for _, t := range v {
			tags = append(tags, asString(t))
		}
	}

	return NewProxyConfiguration(
		endpoint,
		credentials,
		geo,
		tags,
		asInt(m["max_concurrent"]),
		time.Duration(asInt64(m["timeout_ms"]))*time.Millisecond,
		asInt(m["retry_count"]),
	)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
