package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/proxyops/proxy-pool/internal/application"
	"github.com/proxyops/proxy-pool/internal/domain"
	apperrors "github.com/proxyops/proxy-pool/internal/errors"
)

// addProxyRequest is the POST /proxies body.
type addProxyRequest struct {
	Host          string              `json:"host"`
	Port          int                 `json:"port"`
	Protocol      string              `json:"protocol"`
	Username      string              `json:"username,omitempty"`
	Password      string              `json:"password,omitempty"`
	Geo           *domain.GeoLocation `json:"geo,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
	MaxConcurrent int                 `json:"max_concurrent,omitempty"`
	TimeoutMS     int64               `json:"timeout_ms,omitempty"`
	RetryCount    int                 `json:"retry_count,omitempty"`
}

// acquireRequest is the POST /proxies/acquire body.
type acquireRequest struct {
	Country           string   `json:"country,omitempty"`
	Protocol          string   `json:"protocol,omitempty"`
	Strategy          string   `json:"strategy,omitempty"`
	MinSuccessRate    float64  `json:"min_success_rate,omitempty"`
	MaxResponseTimeMS int64    `json:"max_response_time_ms,omitempty"`
	ExcludeIDs        []string `json:"exclude_ids,omitempty"`
	MaxRetries        int      `json:"max_retries,omitempty"`
}

// reportRequest is the POST /proxies/{id}/report body.
type reportRequest struct {
	Success        bool   `json:"success"`
	Result         string `json:"result,omitempty"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	TargetHost     string `json:"target_host,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// quarantineRequest is the POST /proxies/{id}/quarantine body.
type quarantineRequest struct {
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// proxyView is the JSON shape of a proxy in responses.
type proxyView struct {
	ID                string   `json:"id"`
	Endpoint          string   `json:"endpoint"`
	Protocol          string   `json:"protocol"`
	CountryCode       string   `json:"country_code,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	HealthStatus      string   `json:"health_status"`
	SuccessRate       float64  `json:"success_rate"`
	AvailabilityScore float64  `json:"availability_score"`
	AvgResponseTimeMS int64    `json:"avg_response_time_ms"`
	TotalRequests     int      `json:"total_requests"`
	CurrentConcurrent int      `json:"current_concurrent"`
	Quarantined       bool     `json:"quarantined"`
}

func viewOf(proxy *domain.Proxy) proxyView {
	cfg := proxy.Configuration()
	metrics := proxy.Metrics()
	return proxyView{
		ID:                proxy.ID().String(),
		Endpoint:          cfg.Endpoint.Address(),
		Protocol:          string(cfg.Endpoint.Protocol),
		CountryCode:       cfg.CountryCode(),
		Tags:              cfg.Tags,
		HealthStatus:      proxy.HealthStatus().String(),
		SuccessRate:       metrics.SuccessRate(),
		AvailabilityScore: metrics.AvailabilityScore(),
		AvgResponseTimeMS: metrics.AverageResponseTime().Milliseconds(),
		TotalRequests:     metrics.TotalRequests,
		CurrentConcurrent: proxy.CurrentConcurrent(),
		Quarantined:       proxy.IsQuarantined(),
	}
}

func (s *Server) handleAddProxy(w http.ResponseWriter, r *http.Request) {
	var req addProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewInvalidConfigError("invalid request body"))
		return
	}

	endpoint, err := domain.NewEndpoint(req.Host, req.Port, domain.Protocol(req.Protocol))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var credentials *domain.Credentials
	if req.Username != "" || req.Password != "" {
		c, err := domain.NewCredentials(req.Username, req.Password)
		if err != nil {
			s.writeError(w, err)
			return
		}
		credentials = &c
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 10
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	configuration, err := domain.NewProxyConfiguration(
		endpoint, credentials, req.Geo, req.Tags, maxConcurrent, timeout, req.RetryCount)
	if err != nil {
		s.writeError(w, err)
		return
	}

	proxy, err := s.pool.AddProxy(r.Context(), configuration)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewOf(proxy))
}

func (s *Server) handleRemoveProxy(w http.ResponseWriter, r *http.Request) {
	id := domain.ProxyID(mux.Vars(r)["id"])
	if err := s.pool.RemoveProxy(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleAcquireProxy(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if r.Body != nil {
		// An empty body means default acquisition.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	excludes := make([]domain.ProxyID, 0, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		excludes = append(excludes, domain.ProxyID(id))
	}

	facadeReq := application.ProxyRequest{
		Country:         req.Country,
		Protocol:        domain.Protocol(req.Protocol),
		Strategy:        domain.StrategyType(req.Strategy),
		MinSuccessRate:  req.MinSuccessRate,
		MaxResponseTime: time.Duration(req.MaxResponseTimeMS) * time.Millisecond,
		ExcludeIDs:      excludes,
	}

	var proxy *domain.Proxy
	if req.MaxRetries > 1 {
		proxy = s.facade.GetProxyWithRetry(r.Context(), facadeReq, req.MaxRetries)
	} else {
		proxy = s.facade.GetProxy(r.Context(), facadeReq)
	}
	if proxy == nil {
		s.writeError(w, apperrors.NewNoAvailableProxyError())
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(proxy))
}

func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	id := domain.ProxyID(mux.Vars(r)["id"])

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewInvalidConfigError("invalid request body"))
		return
	}

	if req.Success {
		s.facade.ReportSuccess(r.Context(), id,
			time.Duration(req.ResponseTimeMS)*time.Millisecond, req.TargetHost)
	} else {
		s.facade.ReportFailure(r.Context(), id,
			domain.RequestResult(req.Result), req.ErrorMessage)
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleForceQuarantine(w http.ResponseWriter, r *http.Request) {
	id := domain.ProxyID(mux.Vars(r)["id"])

	var req quarantineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewInvalidConfigError("invalid request body"))
		return
	}
	if req.Reason == "" {
		req.Reason = "manual quarantine"
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration == 0 {
		duration = domain.DefaultQuarantineDuration
	}

	if err := s.pool.ForceQuarantine(r.Context(), id, req.Reason, duration); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "quarantined"})
}

func (s *Server) handleForceRecovery(w http.ResponseWriter, r *http.Request) {
	id := domain.ProxyID(mux.Vars(r)["id"])
	if err := s.pool.ForceRecovery(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
}

func (s *Server) handleCheckProxy(w http.ResponseWriter, r *http.Request) {
	id := domain.ProxyID(mux.Vars(r)["id"])
	summary, err := s.pool.PerformHealthCheck(r.Context(), &id, true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCheckPool(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	summary, err := s.pool.PerformHealthCheck(r.Context(), nil, force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pool.GetPoolStatistics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
