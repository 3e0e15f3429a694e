package engine

import (
	"context"
	"time"
)

// runJanitor periodically fails active jobs whose goroutine stopped
// heartbeating, typically after a crash or redeploy mid-run.
func (e *Engine) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-e.cfg.StaleJobThreshold)
		swept, err := e.jobs.FailStale(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				e.log.Error().Err(err).Msg("stale job sweep failed")
			}
			continue
		}
		if swept > 0 {
			e.log.Info().Int("count", swept).Msg("failed stale jobs")
		}
	}
}
