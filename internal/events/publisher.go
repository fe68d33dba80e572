package events

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/proxyops/proxy-pool/internal/domain"
	"github.com/proxyops/proxy-pool/pkg/logger"
)

// LogPublisher is the default EventPublisher: it writes every domain event
// as a structured log line. A broker-backed publisher can replace it
// without touching the application layer.
type LogPublisher struct {
	logger *logger.Logger
}

// NewLogPublisher creates a publisher writing to the given logger.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.WithField("component", "events")}
}

// Publish logs the event with its type-specific fields.
func (p *LogPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	entry := p.logger.WithFields(logrus.Fields{
		"event":       event.EventName(),
		"proxy_id":    event.AggregateID().String(),
		"occurred_at": event.OccurredAt().Format(time.RFC3339Nano),
	})

	switch e := event.(type) {
	case domain.ProxyCreated:
		entry.WithField("endpoint", e.Configuration.Endpoint.URL()).
			Info("Proxy created")
	case domain.ProxyHealthChanged:
		entry.WithField("old_status", e.OldStatus.String()).
			WithField("new_status", e.NewStatus.String()).
			Info("Proxy health changed")
	case domain.ProxyUsed:
		entry.WithField("request_id", e.Context.RequestID).
			WithField("score", fmt.Sprintf("%.4f", e.Score)).
			Debug("Proxy selected for request")
	case domain.ProxyQuarantined:
		entry.WithField("reason", e.Reason).
			WithField("until", e.Until.Format(time.RFC3339)).
			Warn("Proxy quarantined")
	case domain.ProxyRecovered:
		entry.Info("Proxy recovered from quarantine")
	default:
		entry.Debug("Domain event")
	}
	return nil
}
