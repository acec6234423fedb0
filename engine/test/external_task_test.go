package test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

// externalThenReview creates a process, whose external task is followed by a user task.
func externalThenReview(topic string) string {
	return fmt.Sprintf(`
id: externalThenReview
nodes:
  - id: start
    type: startEvent
  - id: send
    type: serviceTask
    implementation: external
    topic: %s
  - id: review
    type: userTask
  - id: end
    type: endEvent
flows:
  - source: start
    target: send
  - source: send
    target: review
  - source: review
    target: end
`, topic)
}

func TestExternalTask(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	t.Run("lock and complete", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "service-task.bpmn")

				// when
				piAssert := mustStart(t, e, processDefinition, map[string]any{
					"price":    10,
					"shipping": 5,
					"quantity": 2,
				})

				// then
				piAssert.IsCompleted()
				piAssert.HasPassed("computeTotal")
				piAssert.HasPassed("notify")
				assert.Equal(30.0, piAssert.ProcessVariable("total"))

				processInstanceId := piAssert.ProcessInstance().Id

				externalTasks, err := e.CreateQuery().QueryExternalTasks(ctx, engine.ExternalTaskCriteria{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				created := mustQueryOne(t, externalTasks)
				assert.Equal(engine.ExternalTaskCreated, created.State)
				assert.Equal("notify", created.ActivityId)
				assert.Equal("notify-customer", created.Topic)
				assert.Equal(30.0, created.Variables["total"])

				// when
				locked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{
					Topic:    "notify-customer",
					Limit:    10,
					WorkerId: testWorkerId,
				})

				// then
				require.NoError(t, err)
				require.Len(t, locked, 1)
				assert.Equal(created.Id, locked[0].Id)
				assert.Equal(engine.ExternalTaskLocked, locked[0].State)
				assert.Equal(testWorkerId, locked[0].LockedBy)
				require.NotNil(t, locked[0].LockedAt)
				require.NotNil(t, locked[0].LockExpiresAt)
				assert.Equal(5*time.Minute, locked[0].LockExpiresAt.Sub(*locked[0].LockedAt))

				// when locked again
				none, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{
					Topic:    "notify-customer",
					Limit:    10,
					WorkerId: "other-worker",
				})

				// then
				require.NoError(t, err)
				assert.Empty(none)

				// when completed by a different worker
				_, err = e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{Id: created.Id, WorkerId: "other-worker"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				// when
				completed, err := e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{
					Id:        created.Id,
					Variables: map[string]any{"notified": true},
					WorkerId:  testWorkerId,
				})

				// then
				require.NoError(t, err)
				assert.Equal(engine.ExternalTaskCompleted, completed.State)
				assert.NotNil(completed.CompletedAt)

				piAssert.HasNoProcessVariable("notified")

				// when completed again
				_, err = e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{Id: created.Id, WorkerId: testWorkerId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("merges variables into active instance", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, externalThenReview("merge"))

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("review")

				locked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "merge", Limit: 1, WorkerId: testWorkerId})
				require.NoError(t, err)
				require.Len(t, locked, 1)

				// when
				_, err = e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{
					Id:        locked[0].Id,
					Variables: map[string]any{"messageId": "m-1"},
					WorkerId:  testWorkerId,
				})

				// then
				require.NoError(t, err)
				assert.Equal("m-1", piAssert.ProcessVariable("messageId"))

				piAssert.CompleteUserTask()
				piAssert.IsCompleted()
			})
		}
	})

	t.Run("expired lock", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, externalThenReview("expire"))
				mustStart(t, e, processDefinition, nil)

				locked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{
					Topic:        "expire",
					Limit:        1,
					LockDuration: "PT1M",
					WorkerId:     testWorkerId,
				})
				require.NoError(t, err)
				require.Len(t, locked, 1)

				require.NoError(t, e.SetTime(ctx, engine.SetTimeCmd{Time: locked[0].LockExpiresAt.Add(time.Second)}))

				// when
				relocked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "expire", Limit: 1, WorkerId: "other-worker"})

				// then
				require.NoError(t, err)
				require.Len(t, relocked, 1)
				assert.Equal(locked[0].Id, relocked[0].Id)
				assert.Equal("other-worker", relocked[0].LockedBy)

				_, err = e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{Id: locked[0].Id, WorkerId: testWorkerId})
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("fail creates incident and retry creates new task", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, externalThenReview("fail"))

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("review")

				locked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "fail", Limit: 1, WorkerId: testWorkerId})
				require.NoError(t, err)
				require.Len(t, locked, 1)

				// when
				failed, err := e.FailExternalTask(ctx, engine.FailExternalTaskCmd{
					Id:       locked[0].Id,
					Error:    "SMTP server unavailable",
					WorkerId: testWorkerId,
				})

				// then
				require.NoError(t, err)
				assert.Equal(engine.ExternalTaskFailed, failed.State)
				assert.Equal("SMTP server unavailable", failed.Error)

				incident := piAssert.HasIncident()
				assert.Equal(engine.IncidentFailedExternalTask, incident.Type)
				assert.Equal(locked[0].Id, incident.ExternalTaskId)
				assert.Equal("send", incident.ActivityId)
				assert.Equal(testWorkerId, incident.CreatedBy)
				assert.Equal("SMTP server unavailable", incident.Message)

				// when the instance reaches its end
				piAssert.CompleteUserTask()

				// then
				piAssert.IsNotCompleted()

				// when
				require.NoError(t, e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incident.Id, Retry: true, UserId: testUserId}))

				// then
				piAssert.IsCompleted()

				retried, err := e.CreateQuery().QueryExternalTasks(ctx, engine.ExternalTaskCriteria{Topic: "fail", State: engine.ExternalTaskCreated})
				require.NoError(t, err)
				require.Len(t, retried, 1)
				assert.NotEqual(locked[0].Id, retried[0].Id)
				assert.Equal("send", retried[0].ActivityId)
				assert.Equal(locked[0].ActivityInstanceId, retried[0].ActivityInstanceId)
			})
		}
	})

	t.Run("terminate cancels open tasks", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, externalThenReview("cancel"))

				piAssert := mustStart(t, e, processDefinition, nil)
				processInstanceId := piAssert.ProcessInstance().Id

				// when
				require.NoError(t, e.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))

				// then
				externalTasks, err := e.CreateQuery().QueryExternalTasks(ctx, engine.ExternalTaskCriteria{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				canceled := mustQueryOne(t, externalTasks)
				assert.Equal(engine.ExternalTaskCanceled, canceled.State)

				locked, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "cancel", Limit: 1, WorkerId: testWorkerId})
				require.NoError(t, err)
				assert.Empty(locked)
			})
		}
	})

	t.Run("returns error when command is invalid", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				_, err := e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "notify-customer", WorkerId: testWorkerId})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))

				_, err = e.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "notify-customer", Limit: 1, LockDuration: "5m", WorkerId: testWorkerId})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))

				_, err = e.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{Id: -1, WorkerId: testWorkerId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				_, err = e.FailExternalTask(ctx, engine.FailExternalTaskCmd{Id: -1, WorkerId: testWorkerId})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))
			})
		}
	})
}
