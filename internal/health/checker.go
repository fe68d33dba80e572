package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// judgeResponse is the payload returned by the judge endpoint: the origin
// IP it observed plus any forwarding headers the proxy leaked.
type judgeResponse struct {
	Origin      string            `json:"origin"`
	CountryCode string            `json:"country_code"`
	Headers     map[string]string `json:"headers"`
}

// headers that reveal the client or the proxy itself
var revealingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-Ip",
	"Via",
	"Forwarded",
	"Proxy-Connection",
}

// HTTPProber implements the HealthChecker port by issuing requests to a
// judge endpoint through the proxy under test. HTTP and HTTPS proxies use
// the transport proxy hook; SOCKS5 proxies are dialed via x/net/proxy.
type HTTPProber struct {
	clientIP string
	logger   *logger.Logger
}

// NewHTTPProber creates a prober. clientIP is the caller's real public IP,
// used to grade anonymity; pass "" to skip real-IP comparison.
func NewHTTPProber(clientIP string, log *logger.Logger) *HTTPProber {
	return &HTTPProber{
		clientIP: clientIP,
		logger:   log.HealthCheckLogger(),
	}
}

// CheckConnectivity issues a GET against the test URL through the proxy
// and grades the result on status code and latency.
func (p *HTTPProber) CheckConnectivity(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	_, status, elapsed, err := p.fetch(ctx, proxy, config, config.TestURL)
	if err != nil {
		p.logger.WithError(err).
			WithField("proxy_id", proxy.ID().String()).
			WithField("duration_ms", elapsed.Milliseconds()).
			Debug("Connectivity probe failed")
		return domain.FailedCheck(domain.CheckTypeConnectivity, err), nil
	}

	result := domain.HealthCheckResult{
		Timestamp:    time.Now(),
		ResponseTime: &elapsed,
		HTTPStatus:   status,
		CheckType:    domain.CheckTypeConnectivity,
	}
	if status >= 200 && status < 300 {
		result.Success = true
	} else {
		result.ErrorMessage = fmt.Sprintf("judge returned status %d", status)
	}
	return result, nil
}

// CheckAnonymity asks the judge which IP and headers it observed and
// grades the proxy: transparent when it forwards the client address,
// anonymous when it identifies as a proxy, elite otherwise.
func (p *HTTPProber) CheckAnonymity(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	body, status, elapsed, err := p.fetch(ctx, proxy, config, config.TestURL)
	if err != nil {
		return domain.HealthCheckResult{}, apperrors.NewHealthCheckError(proxy.ID().String(), err)
	}
	if status < 200 || status >= 300 {
		return domain.HealthCheckResult{}, apperrors.NewHealthCheckError(
			proxy.ID().String(), fmt.Errorf("judge returned status %d", status))
	}

	var judge judgeResponse
	if err := json.Unmarshal(body, &judge); err != nil {
		return domain.HealthCheckResult{}, apperrors.NewHealthCheckError(proxy.ID().String(), err)
	}

	result := domain.HealthCheckResult{
		Timestamp:      time.Now(),
		Success:        true,
		ResponseTime:   &elapsed,
		HTTPStatus:     status,
		CheckType:      domain.CheckTypeAnonymity,
		RealIPDetected: judge.Origin,
	}

	switch {
	case p.clientIP != "" && strings.Contains(judge.Origin, p.clientIP):
		result.AnonymityLevel = domain.AnonymityTransparent
	case leaksRevealingHeaders(judge.Headers):
		result.AnonymityLevel = domain.AnonymityAnonymous
	default:
		result.AnonymityLevel = domain.AnonymityElite
	}
	return result, nil
}

// CheckGeoLocation verifies the judge-observed exit country against the
// proxy's configured geo location. A proxy without a configured location
// passes trivially.
func (p *HTTPProber) CheckGeoLocation(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig) (domain.HealthCheckResult, error) {
	geoURL := config.GeoURL
	if geoURL == "" {
		geoURL = config.TestURL
	}
	body, status, elapsed, err := p.fetch(ctx, proxy, config, geoURL)
	if err != nil {
		return domain.HealthCheckResult{}, apperrors.NewHealthCheckError(proxy.ID().String(), err)
	}

	var judge judgeResponse
	if err := json.Unmarshal(body, &judge); err != nil {
		return domain.HealthCheckResult{}, apperrors.NewHealthCheckError(proxy.ID().String(), err)
	}

	result := domain.HealthCheckResult{
		Timestamp:    time.Now(),
		Success:      true,
		ResponseTime: &elapsed,
		HTTPStatus:   status,
		CheckType:    domain.CheckTypeGeo,
	}

	claimed := proxy.Configuration().CountryCode()
	if claimed != "" && judge.CountryCode != "" && !strings.EqualFold(claimed, judge.CountryCode) {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf(
			"configured exit country %s but judge observed %s", claimed, judge.CountryCode)
	}
	return result, nil
}

// fetch issues a GET through the proxy and returns body, status and latency.
func (p *HTTPProber) fetch(ctx context.Context, proxy *domain.Proxy, config domain.HealthCheckConfig, target string) ([]byte, int, time.Duration, error) {
	client, err := p.clientFor(proxy, config.Timeout)
	if err != nil {
		return nil, 0, 0, err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("User-Agent", "ProxyPool-HealthChecker/1.0")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, elapsed, err
	}
	defer resp.Body.Close()

	body := make([]byte, 0, 512)
	buf := make([]byte, 512)
	for len(body) < 1<<16 {
		n, readErr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if readErr != nil {
			break
		}
	}
	return body, resp.StatusCode, elapsed, nil
}

// clientFor builds an HTTP client routing through the proxy under test.
func (p *HTTPProber) clientFor(proxy *domain.Proxy, timeout time.Duration) (*http.Client, error) {
	cfg := proxy.Configuration()
	transport := &http.Transport{
		MaxIdleConns:        2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 2,
	}

	switch cfg.Endpoint.Protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS:
		proxyURL := &url.URL{
			Scheme: string(cfg.Endpoint.Protocol),
			Host:   cfg.Endpoint.Address(),
		}
		if cfg.Credentials != nil {
			proxyURL.User = url.UserPassword(cfg.Credentials.Username, cfg.Credentials.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)

	case domain.ProtocolSOCKS5:
		var auth *xproxy.Auth
		if cfg.Credentials != nil {
			auth = &xproxy.Auth{User: cfg.Credentials.Username, Password: cfg.Credentials.Password}
		}
		dialer, err := xproxy.SOCKS5("tcp", cfg.Endpoint.Address(), auth, &net.Dialer{Timeout: timeout})
		if err != nil {
			return nil, apperrors.NewHealthCheckError(proxy.ID().String(), err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := dialer.(xproxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}

	default:
		return nil, apperrors.NewHealthCheckError(
			proxy.ID().String(),
			fmt.Errorf("protocol %s is not probeable", cfg.Endpoint.Protocol),
		)
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

func leaksRevealingHeaders(headers map[string]string) bool {
	for _, name := range revealingHeaders {
		for key := range headers {
			if strings.EqualFold(key, name) {
				return true
			}
		}
	}
	return false
}
