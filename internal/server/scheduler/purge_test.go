package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/sealvault/internal/logging"
	"github.com/dmitrijs2005/sealvault/internal/server/locks"
	"github.com/dmitrijs2005/sealvault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPurger struct {
	results  []services.PurgeResult
	err      error
	calls    int
	limits   []int
	excludes [][]string
}

func (p *scriptedPurger) PurgeDue(_ context.Context, limit int, exclude []string) (services.PurgeResult, error) {
	p.limits = append(p.limits, limit)
	p.excludes = append(p.excludes, append([]string(nil), exclude...))
	if p.calls >= len(p.results) {
		p.calls++
		return services.PurgeResult{}, p.err
	}
	r := p.results[p.calls]
	p.calls++
	return r, nil
}

func TestRunOnce_DrainsFullBatches(t *testing.T) {
	p := &scriptedPurger{results: []services.PurgeResult{
		{Due: 2, Purged: 2},
		{Due: 2, Purged: 1, Skipped: 1},
		{Due: 1, Purged: 1},
	}}
	j := NewPurgeJob(p, locks.NewLocalLocker(), time.Minute, 2, logging.Nop())

	total, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, services.PurgeResult{Due: 5, Purged: 4, Skipped: 1}, total)
	assert.Equal(t, []int{2, 2, 2}, p.limits)
}

func TestRunOnce_FailedFilesAreNotRetriedInTheSameSweep(t *testing.T) {
	p := &scriptedPurger{results: []services.PurgeResult{
		{Due: 2, Failed: 2, FailedIDs: []string{"f-1", "f-2"}},
		{Due: 2, Purged: 1, Failed: 1, FailedIDs: []string{"f-3"}},
		{Due: 1, Purged: 1},
	}}
	j := NewPurgeJob(p, locks.NewLocalLocker(), time.Minute, 2, logging.Nop())

	total, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, [][]string{nil, {"f-1", "f-2"}, {"f-1", "f-2", "f-3"}}, p.excludes)
	assert.Equal(t, 3, total.Failed)
	assert.Equal(t, 2, total.Purged)
	assert.Equal(t, []string{"f-1", "f-2", "f-3"}, total.FailedIDs)
}

func TestNewPurgeJob_NonPositiveSettingsFallBack(t *testing.T) {
	j := NewPurgeJob(&scriptedPurger{}, locks.NewLocalLocker(), 0, 0, logging.Nop())
	assert.Equal(t, defaultInterval, j.interval)
	assert.Equal(t, defaultBatchSize, j.batchSize)

	j = NewPurgeJob(&scriptedPurger{}, locks.NewLocalLocker(), -time.Second, -1, logging.Nop())
	assert.Equal(t, defaultInterval, j.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() { j.Run(ctx) })
}

func TestRunOnce_LockHeldElsewhere(t *testing.T) {
	l := locks.NewLocalLocker()
	release, err := l.Acquire(context.Background(), lockName, time.Minute)
	require.NoError(t, err)

	p := &scriptedPurger{}
	j := NewPurgeJob(p, l, time.Minute, 10, logging.Nop())

	_, err = j.RunOnce(context.Background())
	assert.ErrorIs(t, err, locks.ErrNotAcquired)
	assert.Zero(t, p.calls)

	require.NoError(t, release(context.Background()))
	_, err = j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	_, err = j.RunOnce(context.Background())
	require.NoError(t, err, "the lock is released after each sweep")
}

func TestRunOnce_PropagatesListError(t *testing.T) {
	p := &scriptedPurger{err: errors.New("db down")}
	j := NewPurgeJob(p, locks.NewLocalLocker(), time.Minute, 10, logging.Nop())

	_, err := j.RunOnce(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestRun_StopsOnCancel(t *testing.T) {
	p := &scriptedPurger{}
	j := NewPurgeJob(p, locks.NewLocalLocker(), 5*time.Millisecond, 10, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
