// Package scheduler runs the periodic trash purge.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/locks"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
)

const (
	lockName         = "purge"
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 100
)

// Purger hard-deletes trashed files whose retention ran out.
type Purger interface {
	PurgeDue(ctx context.Context, limit int, exclude []string) (services.PurgeResult, error)
}

type PurgeJob struct {
	purger    Purger
	locker    locks.Locker
	log       logging.Logger
	interval  time.Duration
	batchSize int
}

// NewPurgeJob builds the job. A non-positive interval or batch size falls
// back to the defaults.
func NewPurgeJob(p Purger, l locks.Locker, interval time.Duration, batchSize int, log logging.Logger) *PurgeJob {
	if interval <= 0 {
		interval = defaultInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PurgeJob{
		purger:    p,
		locker:    l,
		log:       log.With("module", "purge"),
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run sweeps once per interval until ctx is done.
func (j *PurgeJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info(ctx, "purge job started", "interval", j.interval.String())
	for {
		select {
		case <-ctx.Done():
			j.log.Info(ctx, "purge job stopped")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil && !errors.Is(err, locks.ErrNotAcquired) {
				j.log.Error(ctx, "purge sweep failed", "error", err)
			}
		}
	}
}

// RunOnce takes the purge lock and drains due files batch by batch. Files
// that fail are not offered again within the same sweep. It returns
// locks.ErrNotAcquired when another runner holds the lock.
func (j *PurgeJob) RunOnce(ctx context.Context) (services.PurgeResult, error) {
	var total services.PurgeResult

	release, err := j.locker.Acquire(ctx, lockName, j.lockTTL())
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			j.log.Debug(ctx, "purge lock held elsewhere")
		}
		return total, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			j.log.Warn(ctx, "purge lock release failed", "error", err)
		}
	}()

	for {
		res, err := j.purger.PurgeDue(ctx, j.batchSize, total.FailedIDs)
		total.Due += res.Due
		total.Purged += res.Purged
		total.Skipped += res.Skipped
		total.Failed += res.Failed
		total.FailedIDs = append(total.FailedIDs, res.FailedIDs...)
		if err != nil {
			return total, err
		}
		if res.Due < j.batchSize {
			break
		}
	}

	if total.Due > 0 {
		j.log.Info(ctx, "purge sweep finished",
			"due", total.Due, "purged", total.Purged, "skipped", total.Skipped, "failed", total.Failed)
	}
	return total, nil
}

func (j *PurgeJob) lockTTL() time.Duration {
	return j.interval
}
