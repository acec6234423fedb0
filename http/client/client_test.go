package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/mem"
	"github.com/zensgit/metasheet2-sub006/http/server"
)

const shipment = `
id: shipment
nodes:
  - id: start
    type: startEvent
  - id: pack
    type: userTask
    candidateGroups: warehouse
  - id: label
    type: serviceTask
    implementation: external
    topic: print-label
  - id: wait
    type: intermediateCatchEvent
    timer:
      duration: PT1H
  - id: paid
    type: intermediateCatchEvent
    message:
      name: paymentReceived
  - id: end
    type: endEvent
flows:
  - source: start
    target: pack
  - source: pack
    target: label
  - source: label
    target: wait
  - source: wait
    target: paid
  - source: paid
    target: end
`

func TestClientServer(t *testing.T) {
	assert := assert.New(t)

	e, err := mem.New(func(o *mem.Options) {
		o.Common.Logger = hclog.NewNullLogger()
	})
	require.NoError(t, err)
	defer e.Shutdown()

	s, err := server.New(e, func(o *server.Options) {
		o.Logger = hclog.NewNullLogger()
		o.SetTimeEnabled = true
	})
	require.NoError(t, err)

	httpServer := httptest.NewServer(s.Handler())
	defer httpServer.Close()

	var requests int
	client, err := New(httpServer.URL, func(o *Options) {
		o.OnRequest = func(r *http.Request) error {
			requests++
			return nil
		}
	})
	require.NoError(t, err)
	defer client.Shutdown()

	ctx := context.Background()

	// given
	processDefinition, err := client.DeployProcess(ctx, engine.DeployProcessCmd{
		Source:    shipment,
		TenantId:  "acme",
		CreatedBy: "test",
	})
	require.NoError(t, err)

	t.Run("deploy process", func(t *testing.T) {
		assert.Equal("shipment", processDefinition.Key)
		assert.Equal("acme", processDefinition.TenantId)
		assert.Equal(1, processDefinition.Version)
		assert.Equal("test", processDefinition.CreatedBy)

		results, err := client.CreateQuery().QueryProcessDefinitions(ctx, engine.ProcessDefinitionCriteria{Key: "shipment"})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(processDefinition.Id, results[0].Id)
	})

	processInstance, err := client.StartProcess(ctx, engine.StartProcessCmd{
		DefinitionKey: "shipment",
		TenantId:      "acme",
		BusinessKey:   "order-7",
		Variables:     map[string]any{"weight": 2.5},
		CreatedBy:     "test",
	})
	require.NoError(t, err)

	t.Run("user task", func(t *testing.T) {
		userTasks, err := client.CreateQuery().QueryUserTasks(ctx, engine.UserTaskCriteria{CandidateGroup: "warehouse"})
		require.NoError(t, err)
		require.Len(t, userTasks, 1)

		userTask := userTasks[0]

		claimed, err := client.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})
		require.NoError(t, err)
		assert.Equal(engine.UserTaskReserved, claimed.State)

		_, err = client.ClaimUserTask(ctx, engine.ClaimUserTaskCmd{Id: userTask.Id, UserId: "bob"})
		assert.True(engine.IsErrorType(err, engine.ErrorConflict))

		unclaimed, err := client.UnclaimUserTask(ctx, engine.UnclaimUserTaskCmd{Id: userTask.Id, UserId: "alice"})
		require.NoError(t, err)
		assert.Equal(engine.UserTaskReady, unclaimed.State)
		assert.Empty(unclaimed.Assignee)

		err = client.CompleteUserTask(ctx, engine.CompleteUserTaskCmd{Id: userTask.Id, Variables: map[string]any{"boxes": 2}})
		require.NoError(t, err)
	})

	t.Run("external task fails and is retried", func(t *testing.T) {
		locked, err := client.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "print-label", Limit: 5, WorkerId: "printer"})
		require.NoError(t, err)
		require.Len(t, locked, 1)
		assert.Equal(2.5, locked[0].Variables["weight"])

		failed, err := client.FailExternalTask(ctx, engine.FailExternalTaskCmd{Id: locked[0].Id, Error: "printer offline", WorkerId: "printer"})
		require.NoError(t, err)
		assert.Equal(engine.ExternalTaskFailed, failed.State)

		incidents, err := client.CreateQuery().QueryIncidents(ctx, engine.IncidentCriteria{ProcessInstanceId: processInstance.Id})
		require.NoError(t, err)
		require.Len(t, incidents, 1)
		assert.Equal(engine.IncidentFailedExternalTask, incidents[0].Type)

		require.NoError(t, client.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incidents[0].Id, Retry: true, UserId: "test"}))

		retried, err := client.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "print-label", Limit: 5, WorkerId: "printer"})
		require.NoError(t, err)
		require.Len(t, retried, 1)
		assert.NotEqual(locked[0].Id, retried[0].Id)

		completed, err := client.CompleteExternalTask(ctx, engine.CompleteExternalTaskCmd{Id: retried[0].Id, WorkerId: "printer"})
		require.NoError(t, err)
		assert.Equal(engine.ExternalTaskCompleted, completed.State)
	})

	t.Run("timer", func(t *testing.T) {
		timerJobs, err := client.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{ProcessInstanceId: processInstance.Id})
		require.NoError(t, err)
		require.Len(t, timerJobs, 1)
		assert.Equal(engine.TimerWaiting, timerJobs[0].State)

		require.NoError(t, client.SetTime(ctx, engine.SetTimeCmd{Time: timerJobs[0].DueAt.Add(time.Second)}))

		completed, failed, err := client.ExecuteTimers(ctx, engine.ExecuteTimersCmd{ProcessInstanceId: processInstance.Id})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Empty(failed)
		assert.Equal(engine.TimerCompleted, completed[0].State)
	})

	t.Run("message", func(t *testing.T) {
		message, err := client.SendMessage(ctx, engine.SendMessageCmd{
			Name:           "paymentReceived",
			CorrelationKey: "order-7",
			Variables:      map[string]any{"paid": true},
			CreatedBy:      "test",
		})
		require.NoError(t, err)
		assert.Equal(1, message.DeliveryCount)

		messages, err := client.CreateQuery().QueryMessages(ctx, engine.MessageCriteria{Name: "paymentReceived"})
		require.NoError(t, err)
		assert.Len(messages, 1)

		processInstances, err := client.CreateQuery().QueryProcessInstances(ctx, engine.ProcessInstanceCriteria{Id: processInstance.Id})
		require.NoError(t, err)
		require.Len(t, processInstances, 1)
		assert.Equal(engine.InstanceCompleted, processInstances[0].State)

		variables, err := client.GetProcessVariables(ctx, engine.GetProcessVariablesCmd{ProcessInstanceId: processInstance.Id})
		require.NoError(t, err)
		assert.Equal(map[string]any{"weight": 2.5, "boxes": 2.0, "paid": true}, variables)
	})

	t.Run("signal", func(t *testing.T) {
		signal, err := client.BroadcastSignal(ctx, engine.BroadcastSignalCmd{Name: "inventory", CreatedBy: "test"})
		require.NoError(t, err)
		assert.Equal("inventory", signal.Name)

		signals, err := client.CreateQuery().QuerySignals(ctx, engine.SignalCriteria{Name: "inventory"})
		require.NoError(t, err)
		assert.Len(signals, 1)
	})

	t.Run("query options", func(t *testing.T) {
		q := client.CreateQuery()
		q.SetOptions(engine.QueryOptions{Limit: 1, Offset: 1})

		activityInstances, err := q.QueryActivityInstances(ctx, engine.ActivityInstanceCriteria{ProcessInstanceId: processInstance.Id})
		require.NoError(t, err)
		require.Len(t, activityInstances, 1)
		assert.Equal("pack", activityInstances[0].ActivityId)

		externalTasks, err := q.QueryExternalTasks(ctx, engine.ExternalTaskCriteria{Topic: "print-label"})
		require.NoError(t, err)
		require.Len(t, externalTasks, 1)
		assert.Equal(engine.ExternalTaskCompleted, externalTasks[0].State)
	})

	t.Run("process instance lifecycle", func(t *testing.T) {
		other, err := client.StartProcess(ctx, engine.StartProcessCmd{DefinitionKey: "shipment", TenantId: "acme", CreatedBy: "test"})
		require.NoError(t, err)

		require.NoError(t, client.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: other.Id, UserId: "test"}))
		require.NoError(t, client.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: other.Id, UserId: "test"}))
		require.NoError(t, client.SetProcessVariables(ctx, engine.SetProcessVariablesCmd{
			ProcessInstanceId: other.Id,
			Variables:         map[string]any{"priority": "high"},
			UserId:            "test",
		}))
		require.NoError(t, client.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{Id: other.Id, Reason: "cancelled order", UserId: "test"}))

		err = client.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: other.Id, UserId: "test"})
		assert.True(engine.IsErrorType(err, engine.ErrorConflict))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := client.DeployProcess(ctx, engine.DeployProcessCmd{Source: "id: broken\nnodes: []\n", CreatedBy: "test"})
		assert.True(engine.IsErrorType(err, engine.ErrorDefinition))

		_, err = client.StartProcess(ctx, engine.StartProcessCmd{DefinitionKey: "unknown", CreatedBy: "test"})
		assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

		_, err = client.LockExternalTasks(ctx, engine.LockExternalTasksCmd{Topic: "print-label", WorkerId: "printer"})
		require.True(t, engine.IsErrorType(err, engine.ErrorValidation))

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		require.Len(t, engineErr.Causes, 1)
		assert.Equal("/limit", engineErr.Causes[0].Pointer)
	})

	assert.Positive(requests)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	_, err := New("")
	assert.Error(err)

	_, err = New("http://localhost:8080", func(o *Options) {
		o.Timeout = 0
	})
	assert.Error(err)
}
