package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/expr"
)

var _ engine.Engine = &Engine{}

// Engine implements [engine.Engine] on top of a [Store].
type Engine struct {
	options engine.Options
	store   Store
	logger  hclog.Logger

	evaluator *expr.Evaluator
	graphs    *GraphCache
	instances *InstanceStore
	node      *snowflake.Node
	registry  *SubscriptionRegistry
	scheduler *TimerScheduler
	validate  *validator.Validate

	deployMutex  sync.Mutex
	messageMutex sync.Mutex

	offsetMutex sync.RWMutex
	offset      time.Duration // offset, added to the current time
}

// New creates an engine, using the given store, and registers the subscriptions of all running process instances.
// If enabled, the timer scheduler is started.
func New(ctx context.Context, store Store, options engine.Options) (*Engine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(nodeId(options.EngineId))
	if err != nil {
		return nil, fmt.Errorf("failed to create ID generator: %v", err)
	}

	evaluator := expr.New()

	e := Engine{
		options: options,
		store:   store,
		logger:  options.Logger,

		evaluator: evaluator,
		graphs:    NewGraphCache(options.GraphCacheSize, evaluator),
		node:      node,
		registry:  NewSubscriptionRegistry(),
		validate:  newValidate(),
	}

	e.instances = NewInstanceStore(store, e.flush)

	activityInstances, err := store.ActivityInstances().SelectSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select subscriptions: %v", err)
	}
	for _, activityInstance := range activityInstances {
		if s, ok := activityInstance.subscription(); ok {
			e.registry.Subscribe(s)
		}
	}

	e.logger.Info("engine started", "engineId", options.EngineId, "subscriptions", e.registry.Len())

	if options.TimerSchedulerEnabled {
		e.scheduler = NewTimerScheduler(&e, options.TimerSchedulerInterval, options.TimerSchedulerLimit, e.logger.Named("timer-scheduler"))
		e.scheduler.Start()
	}

	return &e, nil
}

// nodeId derives the snowflake node ID from the engine ID.
func nodeId(engineId string) int64 {
	h := fnv.New32a()
	h.Write([]byte(engineId))
	return int64(h.Sum32() % 1024)
}

func (e *Engine) nextId() int64 {
	return e.node.Generate().Int64()
}

// now returns the engine's current time: UTC, truncated to millis.
func (e *Engine) now() time.Time {
	e.offsetMutex.RLock()
	defer e.offsetMutex.RUnlock()
	return time.Now().UTC().Add(e.offset).Truncate(time.Millisecond)
}

// flush writes a batch to the store. Transient errors are retried with an exponential backoff.
func (e *Engine) flush(ctx context.Context, batch *Batch) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.store.Flush(ctx, batch)
		if err == nil {
			return struct{}{}, nil
		}

		var engineErr engine.Error
		if errors.As(err, &engineErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.options.StoreRetryLimit)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			e.logger.Warn("failed to flush batch, retrying", "delay", delay, "err", err)
		}),
	)
	if err == nil {
		return nil
	}

	var engineErr engine.Error
	if errors.As(err, &engineErr) {
		return err
	}
	return fmt.Errorf("failed to flush batch: %v", err)
}

func (e *Engine) CreateQuery() engine.Query {
	return &query{store: e.store, defaultLimit: e.options.DefaultQueryLimit}
}

func (e *Engine) SetTime(_ context.Context, cmd engine.SetTimeCmd) error {
	if err := e.validateCmd("failed to set time", cmd); err != nil {
		return err
	}

	e.offsetMutex.Lock()
	defer e.offsetMutex.Unlock()

	now := time.Now().UTC().Add(e.offset).Truncate(time.Millisecond)

	t := cmd.Time.UTC().Truncate(time.Millisecond)
	if !t.After(now) {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to set time",
			Detail: fmt.Sprintf("time must be after %s", now.Format(time.RFC3339Nano)),
		}
	}

	e.offset += t.Sub(now)
	return nil
}

func (e *Engine) Shutdown() {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	e.store.Close()

	e.logger.Info("engine stopped", "engineId", e.options.EngineId)
}
