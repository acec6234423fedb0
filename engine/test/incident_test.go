package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

const divideByZero = `
id: divideByZero
nodes:
  - id: start
    type: startEvent
  - id: divide
    type: scriptTask
    script: result.ratio = variables.total / variables.count
  - id: end
    type: endEvent
flows:
  - source: start
    target: divide
  - source: divide
    target: end
`

func TestIncident(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	t.Run("script failure creates incident", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, divideByZero)

				// when
				piAssert := mustStart(t, e, processDefinition, map[string]any{"total": 10, "count": 0})

				// then
				piAssert.IsNotCompleted()
				piAssert.HasNotPassed("divide")
				piAssert.HasNoProcessVariable("ratio")

				incident := piAssert.HasIncident()
				assert.Equal(engine.IncidentUnhandledError, incident.Type)
				assert.Equal(engine.IncidentOpen, incident.State)
				assert.Equal("divide", incident.ActivityId)
				assert.NotEmpty(incident.Message)
				assert.Equal(testUserId, incident.CreatedBy)
				assert.Equal(int64(0), incident.ExternalTaskId)

				// when fixed and retried
				require.NoError(t, e.SetProcessVariables(ctx, engine.SetProcessVariablesCmd{
					ProcessInstanceId: incident.ProcessInstanceId,
					Variables:         map[string]any{"count": 4},
					UserId:            testUserId,
				}))

				require.NoError(t, e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incident.Id, Retry: true, UserId: testUserId}))

				// then
				piAssert.IsCompleted()
				piAssert.HasPassed("divide")
				assert.Equal(2.5, piAssert.ProcessVariable("ratio"))

				// when resolved again
				err := e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incident.Id, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))
			})
		}
	})

	t.Run("resolve without retry abandons failed path", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, divideByZero)

				piAssert := mustStart(t, e, processDefinition, map[string]any{"total": 10, "count": 0})
				incident := piAssert.HasIncident()

				// when
				err := e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incident.Id, Notes: "skipped", UserId: testUserId})

				// then
				require.NoError(t, err)

				piAssert.IsCompleted()
				piAssert.HasNotPassed("divide")
				piAssert.HasNotPassed("end")

				assert.Len(piAssert.ActivityInstances(engine.ActivityInstanceCriteria{ActivityId: "divide"}), 1)
			})
		}
	})

	t.Run("retry of suspended instance", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, divideByZero)

				piAssert := mustStart(t, e, processDefinition, map[string]any{"total": 10, "count": 0})
				incident := piAssert.HasIncident()

				require.NoError(t, e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: incident.ProcessInstanceId, UserId: testUserId}))

				// when
				err := e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: incident.Id, Retry: true, UserId: testUserId})

				// then
				assert.True(engine.IsErrorType(err, engine.ErrorConflict))

				incidents, err := e.CreateQuery().QueryIncidents(ctx, engine.IncidentCriteria{Id: incident.Id})
				require.NoError(t, err)
				open := mustQueryOne(t, incidents)
				assert.Equal(engine.IncidentOpen, open.State)
			})
		}
	})

	t.Run("returns error when incident not exists", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				err := e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: -1, UserId: testUserId})
				assert.True(engine.IsErrorType(err, engine.ErrorNotFound))

				err = e.ResolveIncident(ctx, engine.ResolveIncidentCmd{Id: -1})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))
			})
		}
	})
}
