package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

const defaultLockDuration = engine.ISO8601Duration("PT5M")

type ExternalTaskEntity struct {
	Id int64

	ProcessInstanceId  int64
	ActivityInstanceId int64

	ActivityId    string
	CompletedAt   pgtype.Timestamp
	CreatedAt     time.Time
	Error         pgtype.Text
	LockedAt      pgtype.Timestamp
	LockedBy      pgtype.Text
	LockExpiresAt pgtype.Timestamp
	State         engine.ExternalTaskState
	Topic         string
	Variables     map[string]any
}

func (e ExternalTaskEntity) ExternalTask() engine.ExternalTask {
	return engine.ExternalTask{
		Id: e.Id,

		ProcessInstanceId:  e.ProcessInstanceId,
		ActivityInstanceId: e.ActivityInstanceId,

		ActivityId:    e.ActivityId,
		CompletedAt:   timeOrNil(e.CompletedAt),
		CreatedAt:     e.CreatedAt,
		Error:         e.Error.String,
		LockedAt:      timeOrNil(e.LockedAt),
		LockedBy:      e.LockedBy.String,
		LockExpiresAt: timeOrNil(e.LockExpiresAt),
		State:         e.State,
		Topic:         e.Topic,
		Variables:     cloneVariables(e.Variables),
	}
}

type ExternalTaskRepository interface {
	Select(ctx context.Context, id int64) (*ExternalTaskEntity, error)
	// SelectOpen selects all CREATED or LOCKED external tasks of a process instance.
	SelectOpen(ctx context.Context, processInstanceId int64) ([]*ExternalTaskEntity, error)

	// Lock locks external tasks of a topic, which are CREATED or whose lock expired.
	// Locking is a compare-and-set operation: a task is locked by one worker only.
	Lock(context.Context, ExternalTaskLock) ([]*ExternalTaskEntity, error)

	Query(context.Context, engine.ExternalTaskCriteria, engine.QueryOptions) ([]engine.ExternalTask, error)
}

// executeExternalTask selects an external task, which must be locked by the given worker, and executes fn under the lock of the related process instance.
func (e *Engine) executeExternalTask(ctx context.Context, title string, id int64, workerId string, fn func(*instanceState, *Batch, *ExternalTaskEntity) error) error {
	externalTask, err := e.store.ExternalTasks().Select(ctx, id)
	if err == pgx.ErrNoRows {
		return engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("external task %d could not be found", id),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to select external task %d: %v", id, err)
	}

	return e.executeInstance(ctx, title, externalTask.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		externalTask, err := e.store.ExternalTasks().Select(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to select external task %d: %v", id, err)
		}
		if externalTask.State != engine.ExternalTaskLocked {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  title,
				Detail: fmt.Sprintf("external task %d is not locked, but %s", id, externalTask.State),
			}
		}
		if externalTask.LockedBy.String != workerId {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  title,
				Detail: fmt.Sprintf("external task %d is locked by a different worker", id),
			}
		}
		return fn(state, batch, externalTask)
	})
}

func (e *Engine) CompleteExternalTask(ctx context.Context, cmd engine.CompleteExternalTaskCmd) (engine.ExternalTask, error) {
	if err := e.validateCmd("failed to complete external task", cmd); err != nil {
		return engine.ExternalTask{}, err
	}

	variables, err := normalizeVariables(cmd.Variables)
	if err != nil {
		return engine.ExternalTask{}, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to complete external task",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	var result engine.ExternalTask
	err = e.executeExternalTask(ctx, "failed to complete external task", cmd.Id, cmd.WorkerId, func(state *instanceState, batch *Batch, externalTask *ExternalTaskEntity) error {
		externalTask.CompletedAt = timestamp(e.now())
		externalTask.State = engine.ExternalTaskCompleted
		batch.PutExternalTask(externalTask)

		if !state.instance.isEnded() {
			if err := state.mergeVariables(variables, batch); err != nil {
				return err
			}
		}

		result = externalTask.ExternalTask()
		return nil
	})
	return result, err
}

func (e *Engine) FailExternalTask(ctx context.Context, cmd engine.FailExternalTaskCmd) (engine.ExternalTask, error) {
	if err := e.validateCmd("failed to fail external task", cmd); err != nil {
		return engine.ExternalTask{}, err
	}

	var result engine.ExternalTask
	err := e.executeExternalTask(ctx, "failed to fail external task", cmd.Id, cmd.WorkerId, func(state *instanceState, batch *Batch, externalTask *ExternalTaskEntity) error {
		now := e.now()

		externalTask.CompletedAt = timestamp(now)
		externalTask.Error = text(cmd.Error)
		externalTask.State = engine.ExternalTaskFailed
		batch.PutExternalTask(externalTask)

		incident := IncidentEntity{
			Id: e.nextId(),

			ProcessInstanceId:  externalTask.ProcessInstanceId,
			ActivityInstanceId: pgtype.Int8{Int64: externalTask.ActivityInstanceId, Valid: true},
			ExternalTaskId:     pgtype.Int8{Int64: externalTask.Id, Valid: true},

			ActivityId: externalTask.ActivityId,
			CreatedAt:  now,
			CreatedBy:  cmd.WorkerId,
			Message:    cmd.Error,
			State:      engine.IncidentOpen,
			Type:       engine.IncidentFailedExternalTask,
		}
		batch.PutIncident(&incident)

		state.openIncidents++

		e.logger.Warn("external task failed", "id", externalTask.Id, "topic", externalTask.Topic, "processInstanceId", externalTask.ProcessInstanceId, "error", cmd.Error)

		result = externalTask.ExternalTask()
		return nil
	})
	return result, err
}

func (e *Engine) LockExternalTasks(ctx context.Context, cmd engine.LockExternalTasksCmd) ([]engine.ExternalTask, error) {
	if err := e.validateCmd("failed to lock external tasks", cmd); err != nil {
		return nil, err
	}

	lockDuration := cmd.LockDuration
	if lockDuration.IsZero() {
		lockDuration = defaultLockDuration
	}

	now := e.now()

	lockedTasks, err := e.store.ExternalTasks().Lock(ctx, ExternalTaskLock{
		Topic:         cmd.Topic,
		Limit:         cmd.Limit,
		Now:           now,
		LockExpiresAt: lockDuration.Calculate(now),
		WorkerId:      cmd.WorkerId,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock external tasks of topic %s: %v", cmd.Topic, err)
	}

	externalTasks := make([]engine.ExternalTask, len(lockedTasks))
	for i, lockedTask := range lockedTasks {
		externalTasks[i] = lockedTask.ExternalTask()
	}
	return externalTasks, nil
}

// retryExternalTask creates a new external task for the same activity as a failed one.
func (e *Engine) retryExternalTask(ctx context.Context, batch *Batch, id int64) error {
	failed, err := e.store.ExternalTasks().Select(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to select external task %d: %v", id, err)
	}

	retry := ExternalTaskEntity{
		Id: e.nextId(),

		ProcessInstanceId:  failed.ProcessInstanceId,
		ActivityInstanceId: failed.ActivityInstanceId,

		ActivityId: failed.ActivityId,
		CreatedAt:  e.now(),
		State:      engine.ExternalTaskCreated,
		Topic:      failed.Topic,
		Variables:  failed.Variables,
	}

	batch.PutExternalTask(&retry)
	return nil
}
