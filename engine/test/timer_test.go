package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
)

const cycleLoop = `
id: cycleLoop
nodes:
  - id: start
    type: startEvent
  - id: tick
    type: intermediateCatchEvent
    timer:
      cycle: R3/PT1M
  - id: increment
    type: scriptTask
    script: result.counter = variables.counter + 1
  - id: check
    type: exclusiveGateway
    default: done
  - id: end
    type: endEvent
flows:
  - source: start
    target: tick
  - source: tick
    target: increment
  - source: increment
    target: check
  - id: again
    source: check
    target: tick
    condition: variables.counter < 3
  - id: done
    source: check
    target: end
`

const cycleOnce = `
id: cycleOnce
nodes:
  - id: start
    type: startEvent
  - id: tick
    type: intermediateCatchEvent
    timer:
      cycle: R3/PT1M
  - id: review
    type: userTask
  - id: end
    type: endEvent
flows:
  - source: start
    target: tick
  - source: tick
    target: review
  - source: review
    target: end
`

func TestTimer(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	ctx := context.Background()

	t.Run("duration", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "timer-catch.bpmn")

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("wait")

				timerJob := piAssert.TimerJob()
				assert.Equal(engine.TimerDuration, timerJob.Type)
				assert.Equal("PT1H", timerJob.Definition)
				assert.Equal(engine.TimerWaiting, timerJob.State)
				assert.Equal(time.Hour, timerJob.DueAt.Sub(timerJob.CreatedAt))

				// when not due
				completed, failed, err := e.ExecuteTimers(ctx, engine.ExecuteTimersCmd{ProcessInstanceId: timerJob.ProcessInstanceId})

				// then
				require.NoError(t, err)
				assert.Empty(completed)
				assert.Empty(failed)
				piAssert.IsWaitingAt("wait")

				// when
				fired := piAssert.ExecuteTimer()

				// then
				assert.Equal(engine.TimerCompleted, fired.State)
				assert.NotNil(fired.CompletedAt)

				piAssert.IsCompleted()
				piAssert.HasPassed("wait")

				timerJobs, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{Id: timerJob.Id})
				require.NoError(t, err)
				stored := mustQueryOne(t, timerJobs)
				assert.Equal(engine.TimerCompleted, stored.State)
			})
		}
	})

	t.Run("cycle is rebound when entered again", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, cycleLoop)

				piAssert := mustStart(t, e, processDefinition, map[string]any{"counter": 0})
				piAssert.IsWaitingAt("tick")

				timerJob := piAssert.TimerJob()
				assert.Equal(engine.TimerCycle, timerJob.Type)
				assert.Equal(2, timerJob.Repetitions)

				// when
				for j := 1; j <= 3; j++ {
					piAssert.IsWaitingAt("tick")
					fired := piAssert.ExecuteTimer()
					assert.Equal(timerJob.Id, fired.Id)
					assert.Equal(float64(j), piAssert.ProcessVariable("counter"))
				}

				// then
				piAssert.IsCompleted()
				piAssert.HasPassed("end")

				timerJobs, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{ProcessInstanceId: timerJob.ProcessInstanceId})
				require.NoError(t, err)
				require.Len(t, timerJobs, 1)
				assert.Equal(engine.TimerCompleted, timerJobs[0].State)

				assert.Len(piAssert.ActivityInstances(engine.ActivityInstanceCriteria{ActivityId: "tick"}), 3)
			})
		}
	})

	t.Run("cycle completes when not entered again", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeploy(t, e, cycleOnce)

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("tick")

				timerJob := piAssert.TimerJob()
				assert.Equal(engine.TimerCycle, timerJob.Type)

				// when
				fired := piAssert.ExecuteTimer()

				// then
				assert.Equal(timerJob.Id, fired.Id)
				assert.Equal(engine.TimerCompleted, fired.State)
				assert.NotNil(fired.CompletedAt)

				piAssert.HasPassed("tick")
				piAssert.IsWaitingAt("review")

				timerJobs, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{ProcessInstanceId: timerJob.ProcessInstanceId})
				require.NoError(t, err)
				completed := mustQueryOne(t, timerJobs)
				assert.Equal(engine.TimerCompleted, completed.State)
				assert.Equal(timerJob.ActivityInstanceId, completed.ActivityInstanceId)

				// when the next occurrence is due
				require.NoError(t, e.SetTime(ctx, engine.SetTimeCmd{Time: timerJob.DueAt.Add(time.Hour)}))

				executed, failed, err := e.ExecuteTimers(ctx, engine.ExecuteTimersCmd{ProcessInstanceId: timerJob.ProcessInstanceId})

				// then
				require.NoError(t, err)
				assert.Empty(executed)
				assert.Empty(failed)
				piAssert.IsWaitingAt("review")

				piAssert.CompleteUserTask()
				piAssert.IsCompleted()
				assert.Len(piAssert.ActivityInstances(engine.ActivityInstanceCriteria{ActivityId: "tick"}), 1)
			})
		}
	})

	t.Run("suspended instance keeps timer waiting", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "timer-catch.bpmn")

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("wait")

				timerJob := piAssert.TimerJob()
				processInstanceId := timerJob.ProcessInstanceId

				require.NoError(t, e.SuspendProcessInstance(ctx, engine.SuspendProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))
				require.NoError(t, e.SetTime(ctx, engine.SetTimeCmd{Time: timerJob.DueAt}))

				// when
				completed, failed, err := e.ExecuteTimers(ctx, engine.ExecuteTimersCmd{ProcessInstanceId: processInstanceId})

				// then
				require.NoError(t, err)
				assert.Empty(completed)
				assert.Empty(failed)

				timerJobs, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{Id: timerJob.Id})
				require.NoError(t, err)
				waiting := mustQueryOne(t, timerJobs)
				assert.Equal(engine.TimerWaiting, waiting.State)
				assert.Empty(waiting.LockedBy)

				// when resumed
				require.NoError(t, e.ResumeProcessInstance(ctx, engine.ResumeProcessInstanceCmd{Id: processInstanceId, UserId: testUserId}))

				completed, _, err = e.ExecuteTimers(ctx, engine.ExecuteTimersCmd{ProcessInstanceId: processInstanceId})

				// then
				require.NoError(t, err)
				assert.Len(completed, 1)
				piAssert.IsCompleted()
			})
		}
	})

	t.Run("terminate cancels timer", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				// given
				processDefinition := mustDeployFile(t, e, "timer-catch.bpmn")

				piAssert := mustStart(t, e, processDefinition, nil)
				piAssert.IsWaitingAt("wait")

				timerJob := piAssert.TimerJob()

				// when
				require.NoError(t, e.TerminateProcessInstance(ctx, engine.TerminateProcessInstanceCmd{
					Id:     timerJob.ProcessInstanceId,
					Reason: "obsolete",
					UserId: testUserId,
				}))

				// then
				piAssert.IsTerminated()

				timerJobs, err := e.CreateQuery().QueryTimerJobs(ctx, engine.TimerJobCriteria{Id: timerJob.Id})
				require.NoError(t, err)
				canceled := mustQueryOne(t, timerJobs)
				assert.Equal(engine.TimerCanceled, canceled.State)

				activityInstances, err := e.CreateQuery().QueryActivityInstances(ctx, engine.ActivityInstanceCriteria{
					Id: timerJob.ActivityInstanceId,
				})
				require.NoError(t, err)
				activityInstance := mustQueryOne(t, activityInstances)
				assert.Equal(engine.ActivityTerminated, activityInstance.State)
			})
		}
	})

	t.Run("returns error when time is not in the future", func(t *testing.T) {
		for i, e := range engines {
			t.Run(engineTypes[i], func(t *testing.T) {
				err := e.SetTime(ctx, engine.SetTimeCmd{Time: time.Now().Add(-time.Hour)})
				assert.True(engine.IsErrorType(err, engine.ErrorValidation))
			})
		}
	})
}
