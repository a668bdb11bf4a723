package status

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Sweeper deletes expired statuses on a fixed interval until its context
// is cancelled.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper creates a sweeper for svc.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run blocks until ctx is done. A non-positive interval disables it.
func (w *Sweeper) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info("Status sweeper started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			log.Info("Status sweeper stopped")
			return
		case <-ticker.C:
			n, err := w.svc.Sweep(ctx)
			if err != nil {
				log.Error("status sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("Expired statuses removed", "count", n)
			}
		}
	}
}
