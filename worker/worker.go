package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func New(e engine.Engine, customizers ...func(*Options)) (*Worker, error) {
	if e == nil {
		return nil, errors.New("engine is nil")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	worker := Worker{
		e:        e,
		id:       options.WorkerId,
		handlers: make(map[string]Handler),
		logger:   options.Logger.With("workerId", options.WorkerId),
		options:  options,
	}

	return &worker, nil
}

// NewOptions returns options with default values. The worker ID is random.
func NewOptions() Options {
	return Options{
		LockDuration: "PT5M",
		LockInterval: 5 * time.Second,
		LockLimit:    10,
		Logger:       hclog.Default().Named("worker"),
		MaxBackoff:   time.Minute,
		WorkerId:     "worker-" + uuid.NewString(),
	}
}

// Handler performs the work of an external task. Variables, put into the task context, are merged into the process instance.
// If an error is returned, the task is failed and an incident is created.
type Handler func(TaskContext) error

type Options struct {
	LockDuration engine.ISO8601Duration // Duration of the lock of a task. If the handler takes longer, another worker can lock the task.
	LockInterval time.Duration          // Interval between polls for external tasks.
	LockLimit    int                    // Maximum number of tasks, locked per topic and poll.
	Logger       hclog.Logger
	MaxBackoff   time.Duration // Maximum delay between polls, when locking tasks fails.
	WorkerId     string        // Worker ID.

	OnTaskExecutionFailure func(engine.ExternalTask, error) // Called when the worker failed to complete or fail a locked task.
}

func (o Options) Validate() error {
	if _, err := engine.NewISO8601Duration(o.LockDuration.String()); err != nil {
		return fmt.Errorf("lock duration is invalid: %v", err)
	}
	if o.LockInterval <= 0 {
		return errors.New("lock interval must be greater than 0")
	}
	if o.LockLimit < 1 || o.LockLimit > 1000 {
		return errors.New("lock limit must be between 1 and 1000")
	}
	if o.Logger == nil {
		return errors.New("logger is nil")
	}
	if o.MaxBackoff < o.LockInterval {
		return errors.New("max backoff must be greater than or equal to the lock interval")
	}
	if strings.TrimSpace(o.WorkerId) == "" {
		return errors.New("worker ID must not be empty or blank")
	}

	return nil
}

// Worker locks external tasks of registered topics and executes them, using the topic's handler.
type Worker struct {
	e        engine.Engine
	id       string
	handlers map[string]Handler
	logger   hclog.Logger
	options  Options

	mu       sync.Mutex
	executor *taskExecutor
}

func (w *Worker) Engine() engine.Engine {
	return w.e
}

func (w *Worker) Id() string {
	return w.id
}

// ExecuteTask executes a locked task. The task is completed or, if the handler returns an error, failed.
func (w *Worker) ExecuteTask(ctx context.Context, externalTask engine.ExternalTask) (engine.ExternalTask, error) {
	handler, ok := w.handlers[externalTask.Topic]
	if !ok {
		return engine.ExternalTask{}, fmt.Errorf("no handler registered for topic %s", externalTask.Topic)
	}

	tc := TaskContext{
		Task: externalTask,

		ctx:       ctx,
		w:         w,
		variables: Variables{},
	}

	if err := safeHandle(handler, tc); err != nil {
		w.logger.Warn("task failed", "task", externalTask, "err", err)

		return w.e.FailExternalTask(ctx, engine.FailExternalTaskCmd{
			Id:       externalTask.Id,
			Error:    err.Error(),
			WorkerId: w.id,
		})
	}

	return w.e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{
		Id:        externalTask.Id,
		Variables: tc.variables,
		WorkerId:  w.id,
	})
}

// ExecuteTasks locks and executes tasks of all registered topics once.
// It returns the number of executed tasks.
func (w *Worker) ExecuteTasks(ctx context.Context) (int, error) {
	var (
		count int
		errs  []error
	)

	for _, topic := range w.Topics() {
		lockedTasks, err := w.e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{
			Topic:        topic,
			Limit:        w.options.LockLimit,
			LockDuration: w.options.LockDuration,
			WorkerId:     w.id,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to lock tasks of topic %s: %w", topic, err))
			continue
		}

		for _, lockedTask := range lockedTasks {
			if _, err := w.ExecuteTask(ctx, lockedTask); err != nil {
				w.logger.Error("failed to execute task", "task", lockedTask, "err", err)
				if w.options.OnTaskExecutionFailure != nil {
					w.options.OnTaskExecutionFailure(lockedTask, err)
				}
				continue
			}
			count++
		}
	}

	return count, errors.Join(errs...)
}

// Register registers a handler for the external tasks of a topic.
func (w *Worker) Register(topic string, handler Handler) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("topic must not be empty or blank")
	}
	if handler == nil {
		return errors.New("handler is nil")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.executor != nil {
		return errors.New("worker is already started")
	}
	if _, ok := w.handlers[topic]; ok {
		return fmt.Errorf("handler for topic %s is already registered", topic)
	}

	w.handlers[topic] = handler
	return nil
}

// Start starts polling for external tasks in a separate goroutine.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.executor != nil {
		return
	}

	w.executor = newTaskExecutor(w)
	w.executor.execute()

	w.logger.Info("worker started", "topics", w.Topics())
}

// Stop stops polling and waits for the current poll to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	executor := w.executor
	w.executor = nil
	w.mu.Unlock()

	if executor != nil {
		executor.stop()
		w.logger.Info("worker stopped")
	}
}

// Topics returns the registered topics in sorted order.
func (w *Worker) Topics() []string {
	topics := make([]string, 0, len(w.handlers))
	for topic := range w.handlers {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// safeHandle converts a handler panic into an error, so that the task is failed.
func safeHandle(handler Handler, tc TaskContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(tc)
}
