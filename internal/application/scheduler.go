package application

import (
	"context"
	"sync"
	"time"

	"github.com/proxyops/proxy-pool/pkg/logger"
)

// Scheduler drives the periodic pool-wide health checks and the quarantine
// recovery sweep.
type Scheduler struct {
	pool             *PoolService
	checkInterval    time.Duration
	recoveryInterval time.Duration
	logger           *logger.Logger

	mu        sync.Mutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
}

// NewScheduler creates a scheduler over the pool service.
func NewScheduler(pool *PoolService, checkInterval, recoveryInterval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		pool:             pool,
		checkInterval:    checkInterval,
		recoveryInterval: recoveryInterval,
		logger:           log.HealthCheckLogger(),
	}
}

// Start launches the periodic loops. It is a no-op when already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})

	s.logger.WithField("check_interval", s.checkInterval.String()).
		WithField("recovery_interval", s.recoveryInterval.String()).
		Info("Starting health check scheduler")

	s.wg.Add(2)
	go s.loop(ctx, s.checkInterval, s.runHealthCheck)
	go s.loop(ctx, s.recoveryInterval, s.runRecoverySweep)
}

// Stop halts the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	close(s.stopChan)
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Health check scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			run(ctx)
		}
	}
}

func (s *Scheduler) runHealthCheck(ctx context.Context) {
	summary, err := s.pool.PerformHealthCheck(ctx, nil, false)
	if err != nil {
		s.logger.WithError(err).Warn("Scheduled health check failed")
		return
	}
	if summary.Checked > 0 {
		s.logger.WithField("checked", summary.Checked).
			WithField("healthy", summary.Healthy).
			Debug("Scheduled health check completed")
	}
}

func (s *Scheduler) runRecoverySweep(ctx context.Context) {
	summary, err := s.pool.RunRecoverySweep(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Recovery sweep failed")
		return
	}
	if summary.Recovered > 0 {
		s.logger.WithField("recovered", summary.Recovered).
			Info("Quarantined proxies recovered")
	}
}
