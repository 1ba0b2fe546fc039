package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/insuredocs/docquery/internal/models"
)

// ProgressBus fans job progress updates from workers to API subscribers over
// redis pub/sub, so progress streaming works across processes.
type ProgressBus struct {
	client *redis.Client
}

func NewProgressBus(client *redis.Client) *ProgressBus {
	return &ProgressBus{client: client}
}

func progressChannel(jobID string) string {
	return "jobs:progress:" + jobID
}

// PublishProgress implements jobs.ProgressNotifier.
func (b *ProgressBus) PublishProgress(ctx context.Context, p models.JobProgress) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("marshal progress", "job_id", p.JobID, "error", err)
		return
	}
	if err := b.client.Publish(ctx, progressChannel(p.JobID.String()), data).Err(); err != nil {
		slog.Warn("publish progress", "job_id", p.JobID, "error", err)
	}
}

// Subscribe returns a channel of progress updates for a job and a cancel
// function. The channel closes when ctx is done or cancel is called.
func (b *ProgressBus) Subscribe(ctx context.Context, jobID string) (<-chan models.JobProgress, func(), error) {
	sub := b.client.Subscribe(ctx, progressChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan models.JobProgress, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var p models.JobProgress
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				slog.Warn("decode progress", "job_id", jobID, "error", err)
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { sub.Close() }
	return out, cancel, nil
}
