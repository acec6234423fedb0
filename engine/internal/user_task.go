package internal

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

type UserTaskEntity struct {
	Id int64

	ProcessInstanceId  int64
	ActivityInstanceId int64

	ActivityId      string
	Assignee        pgtype.Text
	CandidateGroups []string
	CandidateUsers  []string
	ClaimedAt       pgtype.Timestamp
	CompletedAt     pgtype.Timestamp
	CompletedBy     pgtype.Text
	CreatedAt       time.Time
	FormKey         pgtype.Text
	Name            string
	State           engine.UserTaskState
	Variables       map[string]any
}

func (e UserTaskEntity) UserTask() engine.UserTask {
	return engine.UserTask{
		Id: e.Id,

		ProcessInstanceId:  e.ProcessInstanceId,
		ActivityInstanceId: e.ActivityInstanceId,

		ActivityId:      e.ActivityId,
		Assignee:        e.Assignee.String,
		CandidateGroups: slices.Clone(e.CandidateGroups),
		CandidateUsers:  slices.Clone(e.CandidateUsers),
		ClaimedAt:       timeOrNil(e.ClaimedAt),
		CompletedAt:     timeOrNil(e.CompletedAt),
		CompletedBy:     e.CompletedBy.String,
		CreatedAt:       e.CreatedAt,
		FormKey:         e.FormKey.String,
		Name:            e.Name,
		State:           e.State,
		Variables:       cloneVariables(e.Variables),
	}
}

func (e UserTaskEntity) isEnded() bool {
	return e.State == engine.UserTaskCompleted || e.State == engine.UserTaskCancelled
}

type UserTaskRepository interface {
	Select(ctx context.Context, id int64) (*UserTaskEntity, error)
	// SelectOpen selects all READY or RESERVED user tasks of a process instance.
	SelectOpen(ctx context.Context, processInstanceId int64) ([]*UserTaskEntity, error)

	Query(context.Context, engine.UserTaskCriteria, engine.QueryOptions) ([]engine.UserTask, error)
}

// executeUserTask selects a user task and executes fn with the user task, under the lock of the related process instance.
func (e *Engine) executeUserTask(ctx context.Context, title string, id int64, fn func(*instanceState, *Batch, *UserTaskEntity) error) error {
	userTask, err := e.store.UserTasks().Select(ctx, id)
	if err == pgx.ErrNoRows {
		return engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("user task %d could not be found", id),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to select user task %d: %v", id, err)
	}

	return e.executeInstance(ctx, title, userTask.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		// select again, since the user task could have been changed, while waiting for the lock
		userTask, err := e.store.UserTasks().Select(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to select user task %d: %v", id, err)
		}
		return fn(state, batch, userTask)
	})
}

func (e *Engine) ClaimUserTask(ctx context.Context, cmd engine.ClaimUserTaskCmd) (engine.UserTask, error) {
	if err := e.validateCmd("failed to claim user task", cmd); err != nil {
		return engine.UserTask{}, err
	}

	var result engine.UserTask
	err := e.executeUserTask(ctx, "failed to claim user task", cmd.Id, func(_ *instanceState, batch *Batch, userTask *UserTaskEntity) error {
		if userTask.isEnded() {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to claim user task",
				Detail: fmt.Sprintf("user task %d is already %s", cmd.Id, userTask.State),
			}
		}

		if userTask.State == engine.UserTaskReserved {
			if userTask.Assignee.String != cmd.UserId {
				return engine.Error{
					Type:   engine.ErrorConflict,
					Title:  "failed to claim user task",
					Detail: fmt.Sprintf("user task %d is reserved by a different user", cmd.Id),
				}
			}

			result = userTask.UserTask()
			return nil
		}

		userTask.Assignee = text(cmd.UserId)
		userTask.ClaimedAt = timestamp(e.now())
		userTask.State = engine.UserTaskReserved

		batch.PutUserTask(userTask)

		result = userTask.UserTask()
		return nil
	})
	return result, err
}

func (e *Engine) CompleteUserTask(ctx context.Context, cmd engine.CompleteUserTaskCmd) error {
	if err := e.validateCmd("failed to complete user task", cmd); err != nil {
		return err
	}

	variables, err := normalizeVariables(cmd.Variables)
	if err != nil {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to complete user task",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	return e.executeUserTask(ctx, "failed to complete user task", cmd.Id, func(state *instanceState, batch *Batch, userTask *UserTaskEntity) error {
		if userTask.isEnded() {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "already completed",
				Detail: fmt.Sprintf("user task %d is already %s", cmd.Id, userTask.State),
			}
		}
		if state.instance.State == engine.InstanceSuspended {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to complete user task",
				Detail: fmt.Sprintf("process instance %d is suspended", state.instance.Id),
			}
		}
		if userTask.State == engine.UserTaskReserved && cmd.UserId != "" && userTask.Assignee.String != cmd.UserId {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to complete user task",
				Detail: fmt.Sprintf("user task %d is reserved by a different user", cmd.Id),
			}
		}

		activityInstance := state.openById(userTask.ActivityInstanceId)
		if activityInstance == nil {
			return engine.Error{
				Type:   engine.ErrorBug,
				Title:  "failed to complete user task",
				Detail: fmt.Sprintf("activity instance %d of user task %d is not active", userTask.ActivityInstanceId, cmd.Id),
			}
		}

		g, err := e.graphs.Get(ctx, e.store, state.instance.ProcessDefinitionId)
		if err != nil {
			return err
		}

		userTask.CompletedAt = timestamp(e.now())
		userTask.CompletedBy = text(cmd.UserId)
		userTask.State = engine.UserTaskCompleted
		userTask.Variables = variables
		batch.PutUserTask(userTask)

		if err := state.mergeVariables(variables, batch); err != nil {
			return err
		}

		ec := e.newExecution(ctx, g, state, batch, cmd.UserId)
		return ec.continueActivity(activityInstance)
	})
}

func (e *Engine) UnclaimUserTask(ctx context.Context, cmd engine.UnclaimUserTaskCmd) (engine.UserTask, error) {
	if err := e.validateCmd("failed to unclaim user task", cmd); err != nil {
		return engine.UserTask{}, err
	}

	var result engine.UserTask
	err := e.executeUserTask(ctx, "failed to unclaim user task", cmd.Id, func(_ *instanceState, batch *Batch, userTask *UserTaskEntity) error {
		if userTask.State != engine.UserTaskReserved {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to unclaim user task",
				Detail: fmt.Sprintf("user task %d is not reserved, but %s", cmd.Id, userTask.State),
			}
		}
		if userTask.Assignee.String != cmd.UserId {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to unclaim user task",
				Detail: fmt.Sprintf("user task %d is reserved by a different user", cmd.Id),
			}
		}

		userTask.Assignee = pgtype.Text{}
		userTask.ClaimedAt = pgtype.Timestamp{}
		userTask.State = engine.UserTaskReady

		batch.PutUserTask(userTask)

		result = userTask.UserTask()
		return nil
	})
	return result, err
}
