package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func TestProcessInstance(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	t.Run("suspend and resume", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{"amount": 1, "reviewer": "bob"})
				processInstanceId := piAssert.ProcessInstance().Id

				// when
				err := e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				require.NoError(t, err)
				assert.Equal(engine.InstanceSuspended, piAssert.ProcessInstance().State)

				// when suspended again
				err = e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				// when
				err = e.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				require.NoError(t, err)
				assert.Equal(engine.InstanceActive, piAssert.ProcessInstance().State)

				// when resumed again
				err = e.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("terminate", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "parallel-gateway.bpmn")

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("taskA")

				processInstanceId := piAssert.ProcessInstance().Id
				require.NoError(t, e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))

				// when
				err := e.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				require.NoError(t, err)
				piAssert.IsTerminated()
				assert.NotNil(piAssert.ProcessInstance().EndedAt)

				piAssert.IsNotWaitingAt("taskA")
				piAssert.IsNotWaitingAt("taskB")

				for _, activityInstance := range piAssert.ActivityInstances(engine.ActivityInstanceCriteria{State: engine.ActivityTerminated}) {
					assert.Contains([]string{"taskA", "taskB"}, activityInstance.ActivityId)
					assert.NotNil(activityInstance.EndedAt)
				}

				userTasks, err := e.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				require.Len(t, userTasks, 2)
				for _, userTask := range userTasks {
					assert.Equal(engine.UserTaskCancelled, userTask.State)
				}

				// when terminated again
				err = e.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				err = e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				err = e.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: userTasks[0].Id, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("get and set variables", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{
					"amount":   1,
					"reviewer": "bob",
					"obsolete": "x",
				})
				processInstanceId := piAssert.ProcessInstance().Id

				// when
				err := e.SetProcessVariables(ctx, engine.SetProcessVariablesCmd{
					ProcessInstanceId: processInstanceId,
					Variables: map[string]any{
						"amount":   7,
						"customer": map[string]any{"name": "ACME", "tags": []any{"a", "b"}},
						"obsolete": nil,
					},
					UserId: testUserId,
				})

				// then
				require.NoError(t, err)

				variables, err := e.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				assert.Equal(map[string]any{
					"amount":   7.0,
					"customer": map[string]any{"name": "ACME", "tags": []any{"a", "b"}},
					"reviewer": "bob",
				}, variables)

				piAssert.HasNoProcessVariable("obsolete")

				// when completed
				piAssert.IsWaitingAt("approve")
				piAssert.CompleteUserTask()
				piAssert.IsCompleted()

				err = e.SetProcessVariables(ctx, engine.SetProcessVariablesCmd{
					ProcessInstanceId: processInstanceId,
					Variables:         map[string]any{"amount": 8},
					UserId:            testUserId,
				})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				variables, err = e.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				assert.Equal(14.0, variables["doubled"])
			})
		}
	})

	t.Run("returned variables are copies", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "user-task.bpmn")

				piAssert := mustStart(t, e, processDefinition, map[string]any{
					"amount":   1,
					"reviewer": "bob",
					"order":    map[string]any{"amount": 1, "items": []any{"a"}},
				})
				processInstanceId := piAssert.ProcessInstance().Id

				variables, err := e.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)

				// when
				order := variables["order"].(map[string]any)
				order["amount"] = 999
				order["items"].([]any)[0] = "x"

				processInstance := piAssert.ProcessInstance()
				processInstance.Variables["order"].(map[string]any)["amount"] = 999

				// then
				variables, err = e.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: processInstanceId})
				require.NoError(t, err)
				assert.Equal(map[string]any{"amount": 1.0, "items": []any{"a"}}, variables["order"])
				assert.Equal(map[string]any{"amount": 1.0, "items": []any{"a"}}, piAssert.ProcessInstance().Variables["order"])
			})
		}
	})

	t.Run("returns error when process instance not exists", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				err := e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				err = e.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				err = e.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				_, err = e.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: -1})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))
			})
		}
	})
}
