package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEndpointValidation(t *testing.T) {
	_, err := NewEndpoint("", 8080, ProtocolHTTP)
	assert.Error(t, err)

	_, err = NewEndpoint("not a host", 8080, ProtocolHTTP)
	assert.Error(t, err)

	_, err = NewEndpoint("proxy.example.com", 0, ProtocolHTTP)
	assert.Error(t, err)

	_, err = NewEndpoint("proxy.example.com", 70000, ProtocolHTTP)
	assert.Error(t, err)

	_, err = NewEndpoint("proxy.example.com", 8080, Protocol("ftp"))
	assert.Error(t, err)

	endpoint, err := NewEndpoint("proxy.example.com", 8080, ProtocolSOCKS5)
	require.NoError(t, err)
	assert.Equal(t, "proxy.example.com:8080", endpoint.Address())
	assert.Equal(t, "socks5://proxy.example.com:8080", endpoint.URL())

	_, err = NewEndpoint("192.168.1.10", 3128, ProtocolHTTP)
	assert.NoError(t, err)
}

func TestNewProxyConfigurationValidation(t *testing.T) {
	endpoint, err := NewEndpoint("10.0.0.1", 8080, ProtocolHTTP)
	require.NoError(t, err)

	_, err = NewProxyConfiguration(endpoint, nil, nil, nil, 0, time.Second, 0)
	assert.Error(t, err, "max_concurrent must be positive")

	_, err = NewProxyConfiguration(endpoint, nil, nil, nil, 5, 0, 0)
	assert.Error(t, err, "timeout must be positive")

	_, err = NewProxyConfiguration(endpoint, nil, nil, nil, 5, time.Second, -1)
	assert.Error(t, err, "retry_count must not be negative")

	_, err = NewProxyConfiguration(endpoint, &Credentials{Username: "u"}, nil, nil, 5, time.Second, 0)
	assert.Error(t, err, "credentials require both fields")
}

func TestNewGeoLocationValidation(t *testing.T) {
	_, err := NewGeoLocation("Japan", "JPN", "", "", 0, 0)
	assert.Error(t, err, "country code must be 2 characters")

	_, err = NewGeoLocation("Japan", "jp", "", "", 95, 0)
	assert.Error(t, err, "latitude out of range")

	geo, err := NewGeoLocation("Japan", "jp", "Tokyo", "", 35.68, 139.69)
	require.NoError(t, err)
	assert.Equal(t, "JP", geo.CountryCode, "country code is uppercased")
}

func TestConfigurationMapRoundTrip(t *testing.T) {
	endpoint, err := NewEndpoint("proxy.example.com", 1080, ProtocolSOCKS5)
	require.NoError(t, err)
	credentials, err := NewCredentials("user", "secret")
	require.NoError(t, err)
	geo, err := NewGeoLocation("Germany", "DE", "Berlin", "BE", 52.52, 13.40)
	require.NoError(t, err)

	original, err := NewProxyConfiguration(
		endpoint, &credentials, &geo, []string{"datacenter", "fast"}, 8, 20*time.Second, 3)
	require.NoError(t, err)

	restored, err := ConfigurationFromMap(original.ToMap())
	require.NoError(t, err)

	assert.True(t, restored.Endpoint.Equal(original.Endpoint))
	require.NotNil(t, restored.Credentials)
	assert.Equal(t, "user", restored.Credentials.Username)
	require.NotNil(t, restored.Geo)
	assert.Equal(t, "DE", restored.Geo.CountryCode)
	assert.InDelta(t, 52.52, restored.Geo.Latitude, 0.001)
	assert.Equal(t, original.Tags, restored.Tags)
	assert.Equal(t, 8, restored.MaxConcurrent)
	assert.Equal(t, 20*time.Second, restored.Timeout)
	assert.Equal(t, 3, restored.RetryCount)
}

func TestConfigurationTagsAndCountry(t *testing.T) {
	endpoint, err := NewEndpoint("10.0.0.1", 8080, ProtocolHTTP)
	require.NoError(t, err)

	cfg, err := NewProxyConfiguration(endpoint, nil, nil, []string{"residential"}, 5, time.Second, 0)
	require.NoError(t, err)

	assert.True(t, cfg.HasTag("residential"))
	assert.False(t, cfg.HasTag("datacenter"))
	assert.Empty(t, cfg.CountryCode())
}
