package workers

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcDiscardRatio = 0.5

// BadgerGC reclaims value log space left by deleted sessions and rewritten sequences.
type BadgerGC struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewBadgerGC(db *badger.DB, interval time.Duration, log *slog.Logger) *BadgerGC {
	return &BadgerGC{db: db, interval: interval, log: log}
}

func (w *BadgerGC) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rewritten := 0
			// One call rewrites at most one file
			for ctx.Err() == nil {
				err := w.db.RunValueLogGC(gcDiscardRatio)
				if stdErrors.Is(err, badger.ErrNoRewrite) || stdErrors.Is(err, badger.ErrRejected) {
					break
				}
				if stdErrors.Is(err, badger.ErrGCInMemoryMode) {
					w.log.Info("In-memory store, value log GC disabled")
					return nil
				}
				if err != nil {
					return err
				}
				rewritten++
			}
			if rewritten > 0 {
				w.log.Debug("Value log garbage collected", "files", rewritten)
			}
		}
	}
}
