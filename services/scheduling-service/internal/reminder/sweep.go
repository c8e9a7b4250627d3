// Package reminder finds appointments starting soon whose reminder has not gone out and
// marks them, which emits reminder.due for the notification side.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/scheduling-service/internal/model"
)

type Marker interface {
	DueReminders(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error)
	MarkReminderSent(ctx context.Context, tenantID, appointmentID string) (model.Appointment, error)
}

type Config struct {
	// Window is how far ahead of now appointments count as due.
	Window    time.Duration
	BatchSize int
}

type Sweeper struct {
	marker  Marker
	logger  *slog.Logger
	metrics *metrics.Metrics
	window  time.Duration
	batch   int
	now     func() time.Time
}

func NewSweeper(marker Marker, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Sweeper {
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{marker: marker, logger: logger, metrics: m, window: cfg.Window, batch: cfg.BatchSize, now: time.Now}
}

// RunOnce marks every due reminder in [now, now+window). Running it twice in a row
// marks nothing the second time.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now()
	marked, failed := 0, 0
	for {
		due, err := s.marker.DueReminders(ctx, now, now.Add(s.window), s.batch)
		if err != nil {
			s.metrics.SweepRun("error")
			return err
		}
		progressed := 0
		for _, a := range due {
			if _, err := s.marker.MarkReminderSent(ctx, a.TenantID, a.ID); err != nil {
				failed++
				s.logger.Warn("reminder mark failed", "tenant_id", a.TenantID, "appointment_id", a.ID, "err", err)
				continue
			}
			progressed++
		}
		marked += progressed
		if len(due) < s.batch || progressed == 0 {
			break
		}
	}

	s.metrics.SweepRun("ok")
	if marked > 0 || failed > 0 {
		s.logger.Info("reminder sweep done", "marked", marked, "failed", failed)
	}
	return nil
}
