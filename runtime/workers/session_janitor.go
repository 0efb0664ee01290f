package workers

import (
	"context"
	"final-draft/repositories"
	"log/slog"
	"time"
)

// SessionJanitor deletes expired sessions on a fixed interval.
// Expired sessions are already refused on lookup, this only reclaims space.
type SessionJanitor struct {
	sessions repositories.ISessionRepository
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewSessionJanitor(sessions repositories.ISessionRepository, interval time.Duration, log *slog.Logger) *SessionJanitor {
	return &SessionJanitor{
		sessions: sessions,
		interval: interval,
		now:      time.Now,
		log:      log,
	}
}

func (w *SessionJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			purged, err := w.sessions.PurgeExpired(ctx, w.now())
			if err != nil {
				return err
			}
			if purged > 0 {
				w.log.Info("Expired sessions purged", "count", purged)
			}
		}
	}
}
