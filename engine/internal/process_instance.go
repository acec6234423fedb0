package internal

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

type ProcessInstanceEntity struct {
	Id int64

	ProcessDefinitionId int64

	BusinessKey       pgtype.Text
	CreatedBy         string
	DefinitionKey     string
	DefinitionVersion int
	EndedAt           pgtype.Timestamp
	StartedAt         time.Time
	State             engine.InstanceState
	TenantId          string
	Variables         map[string]any
}

func (e ProcessInstanceEntity) ProcessInstance() engine.ProcessInstance {
	return engine.ProcessInstance{
		Id: e.Id,

		ProcessDefinitionId: e.ProcessDefinitionId,

		BusinessKey:       e.BusinessKey.String,
		CreatedBy:         e.CreatedBy,
		DefinitionKey:     e.DefinitionKey,
		DefinitionVersion: e.DefinitionVersion,
		EndedAt:           timeOrNil(e.EndedAt),
		StartedAt:         e.StartedAt,
		State:             e.State,
		TenantId:          e.TenantId,
		Variables:         cloneVariables(e.Variables),
	}
}

func (e ProcessInstanceEntity) isEnded() bool {
	return e.State == engine.InstanceCompleted || e.State == engine.InstanceTerminated
}

type ProcessInstanceRepository interface {
	Select(ctx context.Context, id int64) (*ProcessInstanceEntity, error)
	// SelectActive selects all process instances, which are ACTIVE or SUSPENDED.
	SelectActive(context.Context) ([]*ProcessInstanceEntity, error)

	Query(context.Context, engine.ProcessInstanceCriteria, engine.QueryOptions) ([]engine.ProcessInstance, error)
}

func processInstanceNotFound(title string, id int64) error {
	return engine.Error{
		Type:   engine.ErrorNotFound,
		Title:  title,
		Detail: fmt.Sprintf("process instance %d could not be found", id),
	}
}

// executeInstance executes fn under the lock of a process instance and maps a missing process instance to [engine.ErrorNotFound].
func (e *Engine) executeInstance(ctx context.Context, title string, id int64, fn instanceFunc) error {
	err := e.instances.Execute(ctx, id, fn)
	if err == pgx.ErrNoRows {
		return processInstanceNotFound(title, id)
	}
	return err
}

func (e *Engine) GetProcessVariables(ctx context.Context, cmd engine.GetProcessVariablesCmd) (map[string]any, error) {
	if err := e.validateCmd("failed to get process variables", cmd); err != nil {
		return nil, err
	}

	var variables map[string]any
	err := e.executeInstance(ctx, "failed to get process variables", cmd.ProcessInstanceId, func(state *instanceState, _ *Batch) error {
		variables = cloneVariables(state.instance.Variables)
		return nil
	})
	return variables, err
}

func (e *Engine) ResumeProcessInstance(ctx context.Context, cmd engine.ResumeProcessInstanceCmd) error {
	if err := e.validateCmd("failed to resume process instance", cmd); err != nil {
		return err
	}

	return e.executeInstance(ctx, "failed to resume process instance", cmd.Id, func(state *instanceState, batch *Batch) error {
		if state.instance.State != engine.InstanceSuspended {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to resume process instance",
				Detail: fmt.Sprintf("process instance %d is not suspended, but %s", cmd.Id, state.instance.State),
			}
		}

		state.instance.State = engine.InstanceActive
		batch.PutProcessInstance(state.instance)
		return nil
	})
}

func (e *Engine) SetProcessVariables(ctx context.Context, cmd engine.SetProcessVariablesCmd) error {
	if err := e.validateCmd("failed to set process variables", cmd); err != nil {
		return err
	}

	if _, err := normalizeVariables(cmd.Variables); err != nil {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to set process variables",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	return e.executeInstance(ctx, "failed to set process variables", cmd.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		if state.instance.isEnded() {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to set process variables",
				Detail: fmt.Sprintf("process instance %d is %s", cmd.ProcessInstanceId, state.instance.State),
			}
		}

		return state.mergeVariables(cmd.Variables, batch)
	})
}

func (e *Engine) SuspendProcessInstance(ctx context.Context, cmd engine.SuspendProcessInstanceCmd) error {
	if err := e.validateCmd("failed to suspend process instance", cmd); err != nil {
		return err
	}

	return e.executeInstance(ctx, "failed to suspend process instance", cmd.Id, func(state *instanceState, batch *Batch) error {
		if state.instance.State != engine.InstanceActive {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to suspend process instance",
				Detail: fmt.Sprintf("process instance %d is not active, but %s", cmd.Id, state.instance.State),
			}
		}

		state.instance.State = engine.InstanceSuspended
		batch.PutProcessInstance(state.instance)
		return nil
	})
}

func (e *Engine) TerminateProcessInstance(ctx context.Context, cmd engine.TerminateProcessInstanceCmd) error {
	if err := e.validateCmd("failed to terminate process instance", cmd); err != nil {
		return err
	}

	return e.executeInstance(ctx, "failed to terminate process instance", cmd.Id, func(state *instanceState, batch *Batch) error {
		if state.instance.isEnded() {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to terminate process instance",
				Detail: fmt.Sprintf("process instance %d is already %s", cmd.Id, state.instance.State),
			}
		}

		if err := e.endInstance(ctx, state, batch, engine.InstanceTerminated); err != nil {
			return err
		}

		e.logger.Info("process instance terminated", "id", cmd.Id, "userId", cmd.UserId, "reason", cmd.Reason)
		return nil
	})
}

// endInstance transitions a process instance into a terminal state.
// Open activity instances are terminated. Open user tasks and timer jobs are cancelled and all subscriptions are removed.
// Open external tasks are only cancelled, when the process instance is terminated.
func (e *Engine) endInstance(ctx context.Context, state *instanceState, batch *Batch, instanceState engine.InstanceState) error {
	now := e.now()

	for _, activityInstance := range state.open {
		activityInstance.State = engine.ActivityTerminated
		activityInstance.EndedAt = timestamp(now)
		batch.PutActivityInstance(activityInstance)
	}
	state.open = nil

	processInstanceId := state.instance.Id

	userTasks, err := e.store.UserTasks().SelectOpen(ctx, processInstanceId)
	if err != nil {
		return fmt.Errorf("failed to select open user tasks of process instance %d: %v", processInstanceId, err)
	}
	for _, userTask := range pending(userTasks, batch.UserTasks, processInstanceId, func(userTask *UserTaskEntity) (int64, int64, bool) {
		return userTask.Id, userTask.ProcessInstanceId, userTask.State == engine.UserTaskReady || userTask.State == engine.UserTaskReserved
	}) {
		userTask.State = engine.UserTaskCancelled
		batch.PutUserTask(userTask)
	}

	timerJobs, err := e.store.TimerJobs().SelectOpen(ctx, processInstanceId)
	if err != nil {
		return fmt.Errorf("failed to select open timer jobs of process instance %d: %v", processInstanceId, err)
	}
	for _, timerJob := range pending(timerJobs, batch.TimerJobs, processInstanceId, func(timerJob *TimerJobEntity) (int64, int64, bool) {
		return timerJob.Id, timerJob.ProcessInstanceId, timerJob.State == engine.TimerWaiting || timerJob.State == engine.TimerLocked
	}) {
		timerJob.State = engine.TimerCanceled
		timerJob.CompletedAt = timestamp(now)
		batch.PutTimerJob(timerJob)
	}

	// external tasks of a completed process instance stay open, since their activities have been completed already
	if instanceState == engine.InstanceTerminated {
		if err := e.cancelExternalTasks(ctx, processInstanceId, batch, now); err != nil {
			return err
		}
	}

	state.instance.State = instanceState
	state.instance.EndedAt = timestamp(now)
	batch.PutProcessInstance(state.instance)

	batch.AfterFlush(func() {
		e.registry.UnsubscribeProcessInstance(processInstanceId)
	})

	return nil
}

func (e *Engine) cancelExternalTasks(ctx context.Context, processInstanceId int64, batch *Batch, now time.Time) error {
	externalTasks, err := e.store.ExternalTasks().SelectOpen(ctx, processInstanceId)
	if err != nil {
		return fmt.Errorf("failed to select open external tasks of process instance %d: %v", processInstanceId, err)
	}
	for _, externalTask := range batch.ExternalTasks {
		// created by the current trigger
		if externalTask.ProcessInstanceId == processInstanceId && externalTask.State == engine.ExternalTaskCreated {
			externalTasks = append(externalTasks, externalTask)
		}
	}
	for _, externalTask := range externalTasks {
		if batched, ok := batch.ExternalTasks[externalTask.Id]; ok {
			externalTask = batched
		}
		externalTask.State = engine.ExternalTaskCanceled
		externalTask.CompletedAt = timestamp(now)
		batch.PutExternalTask(externalTask)
	}
	return nil
}

// pending returns the open entities of a process instance, as they are after the batch is flushed.
// Stored entities are replaced by their batched version, which may have ended within the current trigger.
// Entities that are created by the current trigger are included.
func pending[T any](stored []*T, batched map[int64]*T, processInstanceId int64, describe func(*T) (id int64, processInstanceId int64, open bool)) []*T {
	var results []*T
	seen := make(map[int64]bool, len(stored))
	for _, e := range stored {
		id, _, _ := describe(e)
		seen[id] = true
		if b, ok := batched[id]; ok {
			e = b
		}
		if _, _, open := describe(e); open {
			results = append(results, e)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(batched)) {
		if seen[id] {
			continue
		}
		e := batched[id]
		if _, instanceId, open := describe(e); open && instanceId == processInstanceId {
			results = append(results, e)
		}
	}
	return results
}
