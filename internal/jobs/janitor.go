package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically sweeps stale jobs so work abandoned by a dead worker
// becomes claimable again (or fails terminally once retries run out).
type Janitor struct {
	store      Store
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewJanitor(store Store, staleAfter time.Duration) *Janitor {
	return &Janitor{
		store:      store,
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
}

func (j *Janitor) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := j.store.SweepStale(ctx, j.staleAfter)
		if err != nil {
			slog.Error("stale job sweep failed", "error", err)
			return
		}
		if n > 0 {
			slog.Warn("recovered stale jobs", "count", n, "stale_after", j.staleAfter)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}
