package domain

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// ProxyID is the opaque identifier of a proxy, used as a repository key.
type ProxyID string

// NewProxyID generates a random proxy identifier.
func NewProxyID() ProxyID {
	return ProxyID(uuid.NewString())
}

// ProxyIDFromEndpoint derives a deterministic identifier from an endpoint,
// so the same protocol://host:port always maps to the same proxy.
func ProxyIDFromEndpoint(endpoint Endpoint) ProxyID {
	return ProxyID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(endpoint.URL())).String())
}

func (id ProxyID) String() string {
	return string(id)
}

// Protocol is the proxy wire protocol
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// Valid reports whether the protocol is one of the supported schemes.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
		return true
	}
	return false
}

var domainNameRegexp = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// Endpoint identifies the network address of a proxy.
type Endpoint struct {
	Host     string   `json:"host" yaml:"host"`
	Port     int      `json:"port" yaml:"port"`
	Protocol Protocol `json:"protocol" yaml:"protocol"`
}

// NewEndpoint validates and constructs a proxy endpoint.
func NewEndpoint(host string, port int, protocol Protocol) (Endpoint, error) {
	if host == "" {
		return Endpoint{}, apperrors.NewInvalidConfigError("endpoint host cannot be empty")
	}
	if net.ParseIP(host) == nil && !domainNameRegexp.MatchString(host) {
		return Endpoint{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("endpoint host %q is neither an IP address nor a domain name", host))
	}
	if port < 1 || port > 65535 {
		return Endpoint{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("endpoint port %d is out of range [1, 65535]", port))
	}
	if !protocol.Valid() {
		return Endpoint{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("unsupported proxy protocol %q", protocol))
	}
	return Endpoint{Host: host, Port: port, Protocol: protocol}, nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL returns protocol://host:port.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s:%d", e.Protocol, e.Host, e.Port)
}

func (e Endpoint) Equal(other Endpoint) bool {
	return e.Host == other.Host && e.Port == other.Port && e.Protocol == other.Protocol
}

// Credentials holds optional proxy authentication.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// NewCredentials validates and constructs proxy credentials.
func NewCredentials(username, password string) (Credentials, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return Credentials{}, apperrors.NewInvalidConfigError(
			"credentials require both username and password")
	}
	return Credentials{Username: username, Password: password}, nil
}

// GeoLocation describes where a proxy exits to the network.
type GeoLocation struct {
	Country     string  `json:"country" yaml:"country"`
	CountryCode string  `json:"country_code" yaml:"country_code"`
	City        string  `json:"city,omitempty" yaml:"city,omitempty"`
	Region      string  `json:"region,omitempty" yaml:"region,omitempty"`
	Latitude    float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
}

// NewGeoLocation validates and constructs a geo location.
func NewGeoLocation(country, countryCode, city, region string, lat, lon float64) (GeoLocation, error) {
	if len(countryCode) != 2 {
		return GeoLocation{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("country code %q must be exactly 2 characters", countryCode))
	}
	if lat < -90 || lat > 90 {
		return GeoLocation{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("latitude %.4f is out of range [-90, 90]", lat))
	}
	if lon < -180 || lon > 180 {
		return GeoLocation{}, apperrors.NewInvalidConfigError(
			fmt.Sprintf("longitude %.4f is out of range [-180, 180]", lon))
	}
	return GeoLocation{
		Country:     country,
		CountryCode: strings.ToUpper(countryCode),
		City:        city,
		Region:      region,
		Latitude:    lat,
		Longitude:   lon,
	}, nil
}
