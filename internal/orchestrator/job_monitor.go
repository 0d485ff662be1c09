package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// monitorCancellation polls the cancel set while the job runs and cancels
// its context once the job is marked. It returns when ctx is done.
func (o *Orchestrator) monitorCancellation(ctx context.Context, jobID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(o.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := o.deps.Queue.IsCancelled(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("job_id", jobID).Msg("failed to check cancellation")
				}
				continue
			}
			if cancelled {
				log.Info().Str("job_id", jobID).Msg("job cancelled (detected via Redis) - stopping pipeline")
				cancel()
				return
			}
		}
	}
}
