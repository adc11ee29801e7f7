package service

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHealthTimeout bounds a single database probe.
const DefaultHealthTimeout = 5 * time.Second

// DatabaseChecker proves the database is reachable. Implemented by
// *sqlstore.DB.
type DatabaseChecker interface {
	Check(ctx context.Context) error
}

// HealthStatus is the outcome of one health probe.
type HealthStatus struct {
	Database  bool
	CheckedAt time.Time
}

func (h HealthStatus) Healthy() bool { return h.Database }

type HealthService struct {
	db      DatabaseChecker
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewHealthService returns a HealthService; timeout <= 0 uses
// DefaultHealthTimeout.
func NewHealthService(db DatabaseChecker, timeout time.Duration, logger *slog.Logger) *HealthService {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthService{db: db, timeout: timeout, logger: logger, now: time.Now}
}

// Check probes every dependency under the configured deadline.
func (s *HealthService) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := HealthStatus{Database: true, CheckedAt: s.now()}
	if err := s.db.Check(ctx); err != nil {
		s.logger.Warn("database health check failed", slog.String("error", err.Error()))
		status.Database = false
	}
	return status
}
