package engine

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goonidz/purple-sub000/internal/domain"
	"github.com/goonidz/purple-sub000/internal/telemetry"
)

// errJobCancelled aborts a run after a cancel request was observed at a chunk
// boundary. The terminal state is already written by then.
var errJobCancelled = errors.New("job cancelled")

// chunkReport summarizes one processed chunk for the flush callback.
type chunkReport struct {
	// Indexes of the chunk's items that completed without error.
	Succeeded []int
	// Indexes that errored, with the matching errors.
	Failed  []int
	Errs    map[int]error
	IsFinal bool
}

// runChunks walks item indexes in consecutive chunks. Items inside a chunk
// run in parallel; an item error is contained in the chunk report instead of
// aborting the run. After each chunk, flush persists the partial results,
// then the job's progress advances by the cumulative success count.
// Cancellation is honoured between chunks only, so a chunk always either
// fully runs or never starts.
func (e *Engine) runChunks(
	ctx context.Context,
	job *domain.GenerationJob,
	items []int,
	chunkSize int,
	work func(ctx context.Context, idx int) error,
	flush func(ctx context.Context, report chunkReport) error,
) (succeeded, failed int, err error) {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	for offset := 0; offset < len(items); offset += chunkSize {
		if err := e.checkCancelled(ctx, job.ID); err != nil {
			return succeeded, failed, err
		}

		end := offset + chunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[offset:end]

		report := chunkReport{
			Errs:    make(map[int]error, len(chunk)),
			IsFinal: end == len(items),
		}
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		for _, idx := range chunk {
			idx := idx
			g.Go(func() error {
				itemErr := work(gctx, idx)
				mu.Lock()
				defer mu.Unlock()
				if itemErr != nil {
					report.Failed = append(report.Failed, idx)
					report.Errs[idx] = itemErr
					telemetry.ItemsProcessed.WithLabelValues(string(job.Type), "failed").Inc()
					e.log.Warn().Err(itemErr).
						Str("job_id", job.ID).
						Int("item", idx).
						Msg("work item failed")
					return nil
				}
				report.Succeeded = append(report.Succeeded, idx)
				telemetry.ItemsProcessed.WithLabelValues(string(job.Type), "succeeded").Inc()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return succeeded, failed, err
		}

		if flush != nil {
			if err := flush(ctx, report); err != nil {
				return succeeded, failed, err
			}
		}

		succeeded += len(report.Succeeded)
		failed += len(report.Failed)
		if err := e.jobs.UpdateProgress(ctx, job.ID, succeeded); err != nil {
			e.log.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
		}
	}
	return succeeded, failed, nil
}

// checkCancelled re-reads the job and turns an externally requested cancel
// into errJobCancelled.
func (e *Engine) checkCancelled(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusCancelled {
		return errJobCancelled
	}
	return nil
}
