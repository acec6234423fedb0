package internal

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zensgit/metasheet2-sub006/engine"
)

// TimerScheduler periodically claims and fires due timer jobs.
type TimerScheduler struct {
	engine engine.Engine
	limit  int
	logger hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ticker *time.Ticker
	done   chan struct{}
}

func NewTimerScheduler(e engine.Engine, interval time.Duration, limit int, logger hclog.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &TimerScheduler{
		engine: e,
		limit:  limit,
		logger: logger,

		ctx:    ctx,
		cancel: cancel,
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
}

func (s *TimerScheduler) Start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.ticker.C:
				s.tick()
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for a running tick.
func (s *TimerScheduler) Stop() {
	s.ticker.Stop()
	s.cancel()
	<-s.done
}

func (s *TimerScheduler) tick() {
	completed, failed, err := s.engine.ExecuteTimers(s.ctx, engine.ExecuteTimersCmd{Limit: s.limit})
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Error("failed to execute timers", "err", err)
		}
		return
	}
	if len(completed) != 0 || len(failed) != 0 {
		s.logger.Debug("timers executed", "completed", len(completed), "failed", len(failed))
	}
}
