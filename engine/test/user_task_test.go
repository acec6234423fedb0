package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func TestUserTask(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	t.Run("claim, unclaim and complete", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{
					"amount":   21,
					"reviewer": "bob",
				})
				piAssert.IsWaitingAt("approve")

				userTask := piAssert.UserTask()
				assert.Equal("approve", userTask.ActivityId)
				assert.Equal("Approve request", userTask.Name)
				assert.Equal("approval-form", userTask.FormKey)
				assert.Equal([]string{"alice", "bob"}, userTask.CandidateUsers)
				assert.Equal([]string{"managers"}, userTask.CandidateGroups)
				assert.Equal(engine.UserTaskReady, userTask.State)
				assert.Empty(userTask.Assignee)

				// when
				claimed, err := e.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})

				// then
				require.NoError(t, err)
				assert.Equal(engine.UserTaskReserved, claimed.State)
				assert.Equal("alice", claimed.Assignee)
				assert.NotNil(claimed.ClaimedAt)

				// when claimed again by the same user
				again, err := e.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})

				// then
				require.NoError(t, err)
				assert.Equal(engine.UserTaskReserved, again.State)
				assert.Equal("alice", again.Assignee)

				// when claimed by a different user
				_, err = e.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "bob"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				// when completed by a different user
				err = e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: userTask.Id, UserId: "bob"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
				piAssert.IsWaitingAt("approve")

				// when unclaimed by a different user
				_, err = e.UnclaimUserTask(ctx, engine.UnclaimUserTaskCmd{Id: userTask.Id, UserId: "bob"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				// when
				unclaimed, err := e.UnclaimUserTask(ctx, engine.UnclaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})

				// then
				require.NoError(t, err)
				assert.Equal(engine.UserTaskReady, unclaimed.State)
				assert.Empty(unclaimed.Assignee)
				assert.Nil(unclaimed.ClaimedAt)

				// when unclaimed again
				_, err = e.UnclaimUserTask(ctx, engine.UnclaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				// when
				err = e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{
					Id:        userTask.Id,
					UserId:    "carol",
					Variables: map[string]any{"approved": true},
				})

				// then
				require.NoError(t, err)

				piAssert.IsCompleted()
				piAssert.HasPassed("approve")
				piAssert.HasPassed("calculate")
				piAssert.HasPassed("endEvent")

				assert.Equal(true, piAssert.ProcessVariable("approved"))
				assert.Equal(42.0, piAssert.ProcessVariable("doubled"))

				userTasks, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{Id: userTask.Id})
				require.NoError(t, err)
				completed := mustQueryOne(t, userTasks)
				assert.Equal(engine.UserTaskCompleted, completed.State)
				assert.Equal("carol", completed.CompletedBy)
				assert.NotNil(completed.CompletedAt)
				assert.Equal(map[string]any{"approved": true}, completed.Variables)

				// when completed again
				err = e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: userTask.Id, UserId: "carol"})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("assignee reserves task", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task-assignee.bpmn")

				// when
				piAssert := mustStart(t, e, processDefinition, map[string]any{"requester": "dave"})

				// then
				piAssert.IsWaitingAt("review")

				userTask := piAssert.UserTask()
				assert.Equal(engine.UserTaskReserved, userTask.State)
				assert.Equal("dave", userTask.Assignee)
				assert.NotNil(userTask.ClaimedAt)

				results, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{Assignee: "dave"})
				require.NoError(t, err)
				assert.Len(results, 1)

				// when
				piAssert.CompleteUserTask()

				// then
				piAssert.IsCompleted()
			})
		}
	})

	t.Run("query by candidate", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{"amount": 1, "reviewer": "erin"})
				piAssert.IsWaitingAt("approve")

				userTask := piAssert.UserTask()

				// when
				byUser, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{CandidateUser: "erin"})
				require.NoError(t, err)

				byGroup, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{
					ProcessInstanceId: userTask.ProcessInstanceId,
					CandidateGroup:    "managers",
				})
				require.NoError(t, err)

				none, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{CandidateUser: "mallory"})
				require.NoError(t, err)

				// then
				require.Len(t, byUser, 1)
				assert.Equal(userTask.Id, byUser[0].Id)
				require.Len(t, byGroup, 1)
				assert.Equal(userTask.Id, byGroup[0].Id)
				assert.Empty(none)
			})
		}
	})

	t.Run("returns error when process instance is suspended", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{"amount": 1, "reviewer": "bob"})
				piAssert.IsWaitingAt("approve")

				userTask := piAssert.UserTask()

				processInstanceId := userTask.ProcessInstanceId
				require.NoError(t, e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))

				// when
				err := e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: userTask.Id, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
				piAssert.IsWaitingAt("approve")

				// when resumed
				require.NoError(t, e.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))
				piAssert.CompleteUserTask()

				// then
				piAssert.IsCompleted()
			})
		}
	})

	t.Run("returns error when user task not exists", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				err := e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				_, err = e.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				_, err = e.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: -1})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))
			})
		}
	})
}
