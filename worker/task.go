package worker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
)

type TaskContext struct {
	Task engine.ExternalTask

	ctx       context.Context
	w         *Worker
	variables Variables
}

func (tc TaskContext) Context() context.Context {
	return tc.ctx
}

func (tc TaskContext) Engine() engine.Engine {
	return tc.w.e
}

// Variable decodes a variable of the task's snapshot into v.
func (tc TaskContext) Variable(name string, v any) error {
	return decodeVariable(tc.Task.Variables, name, v)
}

// Variables returns the snapshot of the process variables, taken when the task was created.
func (tc TaskContext) Variables() Variables {
	return Variables(tc.Task.Variables)
}

// SetVariables sets variables, which are merged into the process instance, when the task is completed.
func (tc TaskContext) SetVariables(variables Variables) {
	for name, value := range variables {
		tc.variables.Put(name, value)
	}
}

func (tc TaskContext) SetVariable(name string, value any) {
	tc.variables.Put(name, value)
}

func newTaskExecutor(w *Worker) *taskExecutor {
	ctx, cancel := context.WithCancel(context.Background())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.options.LockInterval
	b.MaxInterval = w.options.MaxBackoff

	return &taskExecutor{
		w: w,

		ctx:     ctx,
		cancel:  cancel,
		backoff: b,
		done:    make(chan struct{}),
	}
}

// taskExecutor polls in a fixed interval. When locking fails, the delay grows exponentially until the next successful poll.
type taskExecutor struct {
	w *Worker

	ctx     context.Context
	cancel  context.CancelFunc
	backoff *backoff.ExponentialBackOff
	done    chan struct{}
}

func (e *taskExecutor) execute() {
	go func(w *Worker) {
		defer close(e.done)

		timer := time.NewTimer(w.options.LockInterval)
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				delay := w.options.LockInterval

				count, err := w.ExecuteTasks(e.ctx)
				if err != nil && e.ctx.Err() == nil {
					delay = e.backoff.NextBackOff()
					w.logger.Warn("failed to lock tasks", "err", err, "retryIn", delay)
				} else {
					e.backoff.Reset()
				}

				if count != 0 {
					w.logger.Debug("tasks executed", "count", count)
				}

				timer.Reset(delay)
			case <-e.ctx.Done():
				return
			}
		}
	}(e.w)
}

func (e *taskExecutor) stop() {
	e.cancel()
	<-e.done
}
