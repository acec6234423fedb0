package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"testing"
)

// Assert creates an assertion helper for a process instance, used to drive and verify a process instance in tests.
func Assert(t *testing.T, e Engine, processInstance ProcessInstance) *ProcessInstanceAssert {
	return &ProcessInstanceAssert{
		t: t,
		e: e,

		processInstanceId: processInstance.Id,
	}
}

type ProcessInstanceAssert struct {
	t *testing.T
	e Engine

	processInstanceId  int64
	activityInstanceId int64
	activityId         string
}

func (a *ProcessInstanceAssert) ActivityInstance() ActivityInstance {
	if a.activityInstanceId == 0 {
		a.Fatalf("call IsWaitingAt first")
	}

	results, err := a.e.CreateQuery().QueryActivityInstances(context.Background(), ActivityInstanceCriteria{
		Id: a.activityInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to query activity instance: %v", err)
	}

	if len(results) != 1 {
		a.Fatalf("expected one activity instance, but got %d", len(results))
	}

	return results[0]
}

func (a *ProcessInstanceAssert) ActivityInstances(criteria ...ActivityInstanceCriteria) []ActivityInstance {
	var c ActivityInstanceCriteria
	if len(criteria) != 0 {
		c = criteria[0]
	}

	c.ProcessInstanceId = a.processInstanceId

	results, err := a.e.CreateQuery().QueryActivityInstances(context.Background(), c)
	if err != nil {
		a.Fatalf("failed to query activity instances: %v", err)
	}

	return results
}

// CompleteUserTask completes the user task of the activity, the process instance is waiting at.
func (a *ProcessInstanceAssert) CompleteUserTask(variables ...map[string]any) {
	userTask := a.UserTask()

	cmd := CompleteUserTaskCmd{
		Id:     userTask.Id,
		UserId: userTask.Assignee,
	}
	if cmd.UserId == "" {
		cmd.UserId = "test-user"
	}
	if len(variables) != 0 {
		cmd.Variables = variables[0]
	}

	if err := a.e.CompleteUserTask(context.Background(), cmd); err != nil {
		a.Fatalf("failed to complete user task %s: %v", userTask, err)
	}

	a.activityId = ""
	a.activityInstanceId = 0
}

// ExecuteTimer increases the engine's time to the due time of the waiting timer job and fires it.
func (a *ProcessInstanceAssert) ExecuteTimer() TimerJob {
	timerJob := a.TimerJob()

	if err := a.e.SetTime(context.Background(), SetTimeCmd{Time: timerJob.DueAt}); err != nil && !IsErrorType(err, ErrorValidation) {
		a.Fatalf("failed to set time: %v", err) // a validation error indicates, that the timer job is due already
	}

	completed, failed, err := a.e.ExecuteTimers(context.Background(), ExecuteTimersCmd{
		ProcessInstanceId: a.processInstanceId,
		Limit:             100,
	})
	if err != nil {
		a.Fatalf("failed to execute timers: %v", err)
	}

	if len(failed) != 0 {
		a.Fatalf("expected zero failed timer jobs, but got %d: %s", len(failed), failed[0].Error)
	}

	for _, result := range completed {
		if result.Id == timerJob.Id {
			a.activityId = ""
			a.activityInstanceId = 0
			return result
		}
	}

	a.Fatalf("expected timer job %s to be completed, but is not", timerJob)
	return TimerJob{}
}

func (a *ProcessInstanceAssert) Fatalf(format string, args ...any) {
	data := map[string]string{
		"Error Trace": string(debug.Stack()),
		"Error":       fmt.Sprintf(format, args...),
		"Test":        a.t.Name(),
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\n%s: %s", k, data[k]))
	}

	a.t.Fatal(sb.String())
}

func (a *ProcessInstanceAssert) HasPassed(activityId string) {
	results := a.ActivityInstances(ActivityInstanceCriteria{State: ActivityCompleted})

	for _, result := range results {
		if result.ActivityId == activityId {
			return
		}
	}

	slices.SortFunc(results, func(a ActivityInstance, b ActivityInstance) int {
		if a.EndedAt.Equal(*b.EndedAt) {
			return int(a.Id - b.Id)
		}
		return a.EndedAt.Compare(*b.EndedAt)
	})

	passed := make([]string, len(results))
	for i, result := range results {
		passed[i] = result.ActivityId
	}

	a.Fatalf("expected process instance to have passed %s, but has not\npassed activities: %s", activityId, strings.Join(passed, ", "))
}

func (a *ProcessInstanceAssert) HasNotPassed(activityId string) {
	for _, result := range a.ActivityInstances(ActivityInstanceCriteria{ActivityId: activityId}) {
		if result.State == ActivityCompleted {
			a.Fatalf("expected process instance not to have passed %s, but has", activityId)
		}
	}
}

func (a *ProcessInstanceAssert) HasIncident() Incident {
	results, err := a.e.CreateQuery().QueryIncidents(context.Background(), IncidentCriteria{
		ProcessInstanceId: a.processInstanceId,
		State:             IncidentOpen,
	})
	if err != nil {
		a.Fatalf("failed to query incidents: %v", err)
	}

	if len(results) == 0 {
		a.Fatalf("expected process instance to have an open incident, but has not")
	}

	return results[0]
}

func (a *ProcessInstanceAssert) HasNoProcessVariable(name string) {
	if _, ok := a.processVariables()[name]; ok {
		a.Fatalf("expected process instance to have no variable %s, but has", name)
	}
}

func (a *ProcessInstanceAssert) HasProcessVariable(name string) {
	if _, ok := a.processVariables()[name]; !ok {
		a.Fatalf("expected process instance to have variable %s, but has not", name)
	}
}

func (a *ProcessInstanceAssert) IsCompleted() {
	if state := a.ProcessInstance().State; state != InstanceCompleted {
		a.Fatalf("expected process instance to be completed, but is %s", state)
	}
}

func (a *ProcessInstanceAssert) IsNotCompleted() {
	if a.ProcessInstance().State == InstanceCompleted {
		a.Fatalf("expected process instance not to be completed, but is")
	}
}

func (a *ProcessInstanceAssert) IsTerminated() {
	if state := a.ProcessInstance().State; state != InstanceTerminated {
		a.Fatalf("expected process instance to be terminated, but is %s", state)
	}
}

func (a *ProcessInstanceAssert) IsNotWaitingAt(activityId string) {
	results := a.ActivityInstances(ActivityInstanceCriteria{
		ActivityId: activityId,
		State:      ActivityActive,
	})

	if len(results) != 0 {
		a.Fatalf("expected process instance not to be waiting at %s, but is", activityId)
	}
}

// IsWaitingAt asserts that the process instance has an active activity instance of the given node.
// Subsequent calls of ActivityInstance, UserTask and TimerJob refer to this activity instance.
func (a *ProcessInstanceAssert) IsWaitingAt(activityId string) {
	results := a.ActivityInstances(ActivityInstanceCriteria{
		ActivityId: activityId,
		State:      ActivityActive,
	})

	if len(results) != 0 {
		a.activityId = activityId
		a.activityInstanceId = results[0].Id
		return
	}

	a.Fatalf("expected process instance to be waiting at %s: no active activity instance found", activityId)
}

func (a *ProcessInstanceAssert) ProcessInstance() ProcessInstance {
	results, err := a.e.CreateQuery().QueryProcessInstances(context.Background(), ProcessInstanceCriteria{
		Id: a.processInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to query process instance: %v", err)
	}

	if len(results) != 1 {
		a.Fatalf("expected one process instance, but got %d", len(results))
	}

	return results[0]
}

func (a *ProcessInstanceAssert) ProcessVariable(name string) any {
	value, ok := a.processVariables()[name]
	if !ok {
		a.Fatalf("expected process instance to have variable %s, but has not", name)
	}
	return value
}

func (a *ProcessInstanceAssert) TimerJob() TimerJob {
	if a.activityInstanceId == 0 {
		a.Fatalf("call IsWaitingAt first")
	}

	results, err := a.e.CreateQuery().QueryTimerJobs(context.Background(), TimerJobCriteria{
		ProcessInstanceId: a.processInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to query timer jobs: %v", err)
	}

	for _, result := range results {
		if result.ActivityInstanceId == a.activityInstanceId && result.State == TimerWaiting {
			return result
		}
	}

	a.Fatalf("expected process instance to have a waiting timer job at %s", a.activityId)
	return TimerJob{}
}

func (a *ProcessInstanceAssert) UserTask() UserTask {
	if a.activityInstanceId == 0 {
		a.Fatalf("call IsWaitingAt first")
	}

	results, err := a.e.CreateQuery().QueryUserTasks(context.Background(), UserTaskCriteria{
		ProcessInstanceId: a.processInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to query user tasks: %v", err)
	}

	for _, result := range results {
		if result.ActivityInstanceId == a.activityInstanceId && !result.IsEnded() {
			return result
		}
	}

	a.Fatalf("expected process instance to have an open user task at %s", a.activityId)
	return UserTask{}
}

func (a *ProcessInstanceAssert) processVariables() map[string]any {
	variables, err := a.e.GetProcessVariables(context.Background(), GetProcessVariablesCmd{
		ProcessInstanceId: a.processInstanceId,
	})
	if err != nil {
		a.Fatalf("failed to get process variables: %v", err)
	}
	return variables
}
