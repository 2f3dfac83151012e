package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSessionRetention is how long ended sessions are kept for auditing.
const DefaultSessionRetention = 30 * 24 * time.Hour

// HousekeepingService periodically deletes session rows that ended long ago
// to prevent unbounded growth of the sessions table. Skipping it never
// affects correctness.
type HousekeepingService struct {
	Sessions  *SessionStore
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Metrics   *Metrics

	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. Non-positive
// interval and retention fall back to 1 hour and DefaultSessionRetention.
func NewHousekeepingService(
	sessions *SessionStore,
	logger *slog.Logger,
	interval, retention time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = DefaultSessionRetention
	}

	return &HousekeepingService{
		Sessions:  sessions,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop shuts down the worker, waiting for an in-progress sweep to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes sessions that expired or were logged out before the
// retention cutoff and returns how many rows went.
func (s *HousekeepingService) Sweep(ctx context.Context) int64 {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	n, err := s.Sessions.DeleteStale(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to delete stale sessions", "error", causeOf(err))
		return 0
	}
	s.Metrics.sessionsReaped(ctx, n)
	s.Logger.Info("housekeeping cleanup completed", "sessions_deleted", n)
	return n
}
