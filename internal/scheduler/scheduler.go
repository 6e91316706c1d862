package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Queue runs detached follow-up jobs: fire-and-forget command sequences that
// begin only after the inbound response that spawned them has been sent.
// Jobs are never ordered relative to each other, never retried, and their
// failures are logged and dropped.
type Queue struct {
	log    *logrus.Logger
	after  func(time.Duration) <-chan time.Time
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log *logrus.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{log: log, after: time.After, ctx: ctx, cancel: cancel}
}

// SetTimer replaces the delay source. Tests install an immediate timer so
// delayed sequences run without real sleeps.
func (q *Queue) SetTimer(after func(time.Duration) <-chan time.Time) {
	q.after = after
}

// Go spawns job detached from the caller. The job's context is the queue's
// lifetime, not the inbound request's.
func (q *Queue) Go(name string, job func(ctx context.Context) error) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := job(q.ctx); err != nil {
			q.log.WithField("job", name).Errorf("background job failed: %v", err)
		}
	}()
}

// Wait blocks for d or until the queue shuts down.
func (q *Queue) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-q.after(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain blocks until all currently running jobs have finished.
func (q *Queue) Drain() {
	q.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to exit.
func (q *Queue) Shutdown() {
	q.cancel()
	q.wg.Wait()
}
