package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

func TestQuery(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	for i, e := range engines {
		t.Run(engineTypes[i], func(t *testing.T) {
			// given
			processDefinition := mustDeployFile(t, e, "timer-catch.bpmn")

			processInstanceIds := make([]int64, 5)
			for j := range processInstanceIds {
				processInstanceIds[j] = mustStart(t, e, processDefinition, nil).ProcessInstance().Id
			}

			criteria := engine.ProcessInstanceCriteria{DefinitionKey: "timerCatchTest"}

			// when
			all, err := e.CreateQuery().QueryProcessInstances(ctx, criteria)

			// then
			require.NoError(t, err)
			require.Len(t, all, 5)
			for j, processInstance := range all {
				assert.Equal(processInstanceIds[j], processInstance.Id, "should be ordered by ID")
			}

			// when limited
			q := e.CreateQuery()
			q.SetOptions(engine.QueryOptions{Limit: 2})

			limited, err := q.QueryProcessInstances(ctx, criteria)

			// then
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(processInstanceIds[0], limited[0].Id)

			// when offset
			q.SetOptions(engine.QueryOptions{Limit: 2, Offset: 3})

			offset, err := q.QueryProcessInstances(ctx, criteria)

			// then
			require.NoError(t, err)
			require.Len(t, offset, 2)
			assert.Equal(processInstanceIds[3], offset[0].Id)
			assert.Equal(processInstanceIds[4], offset[1].Id)

			// when offset exceeds results
			q.SetOptions(engine.QueryOptions{Offset: 10})

			none, err := q.QueryProcessInstances(ctx, criteria)

			// then
			require.NoError(t, err)
			assert.Empty(none)

			// when filtered by state
			waiting, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{State: engine.TimerWaiting})

			// then
			require.NoError(t, err)
			assert.Len(waiting, 5)

			active, err := e.CreateQuery().QueryProcessInstances(ctx, engine.ProcessInstanceCriteria{State: engine.InstanceActive})
			require.NoError(t, err)
			assert.Len(active, 5)

			completed, err := e.CreateQuery().QueryProcessInstances(ctx, engine.ProcessInstanceCriteria{State: engine.InstanceCompleted})
			require.NoError(t, err)
			assert.Empty(completed)
		})
	}
}
