// Package scheduler implements a single consolidated scheduling wheel
// running named periodic jobs, replacing ad-hoc per-feature timers
// with one cancellable primitive.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is a named periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(now time.Time)
}

// Wheel runs a set of Jobs, each on its own ticker, all stoppable by a
// single call to Stop.
type Wheel struct {
	logger *zap.Logger
	jobs   []Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Wheel with the given jobs, not yet started.
func New(logger *zap.Logger, jobs ...Job) *Wheel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Wheel{logger: logger, jobs: jobs, ctx: ctx, cancel: cancel}
}

// Start launches one goroutine per job.
func (w *Wheel) Start() {
	for _, job := range w.jobs {
		w.wg.Add(1)
		go w.runJob(job)
	}
}

func (w *Wheel) runJob(job Job) {
	defer w.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-ticker.C:
			w.safeRun(job, t)
		}
	}
}

func (w *Wheel) safeRun(job Job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("scheduled job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()
	job.Run(now)
}

// Stop cancels all jobs and waits for their goroutines to exit.
func (w *Wheel) Stop() {
	w.cancel()
	w.wg.Wait()
}
