package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/expr"
	"github.com/zensgit/metasheet2-sub006/model"
)

func mustCompileGraph(t *testing.T, source string) (*graph, error) {
	process, err := parseSource(source)
	require.NoError(t, err)

	return compileGraph(&ProcessDefinitionEntity{Id: 1, Key: process.Id}, process, expr.New())
}

func TestCompileGraph(t *testing.T) {
	assert := assert.New(t)

	t.Run("compile", func(t *testing.T) {
		g, err := mustCompileGraph(t, `
id: order
nodes:
  - id: start
    type: startEvent
  - id: fork
    type: parallelGateway
  - id: approve
    type: userTask
    assignee: ${requester}
    candidateGroups: managers, auditors
  - id: notify
    type: serviceTask
    topic: notify
  - id: join
    type: parallelGateway
  - id: end
    type: endEvent
flows:
  - {source: start, target: fork}
  - {id: toApprove, source: fork, target: approve}
  - {id: toNotify, source: fork, target: notify}
  - {id: fromApprove, source: approve, target: join}
  - {id: fromNotify, source: notify, target: join}
  - {source: join, target: end}
`)
		require.NoError(t, err)

		assert.Equal(int64(1), g.definitionId)
		assert.Equal("order", g.key)
		assert.Len(g.nodes, 6)
		assert.Equal("start", g.start.id)

		fork := g.nodes["fork"]
		assert.False(fork.isJoin())
		assert.Len(fork.outgoing, 2)
		assert.Equal("approve", fork.outgoing[0].target.id)
		assert.Equal("notify", fork.outgoing[1].target.id)

		join := g.nodes["join"]
		assert.True(join.isJoin())
		assert.Equal([]string{"fromApprove", "fromNotify"}, join.incoming)

		assert.Equal(userTaskBehavior{
			assignee:        "${requester}",
			candidateGroups: []string{"managers", "auditors"},
		}, g.nodes["approve"].behavior)

		assert.Equal(externalServiceBehavior{topic: "notify"}, g.nodes["notify"].behavior)
	})

	t.Run("compile BPMN", func(t *testing.T) {
		g, err := mustCompileGraph(t, mustReadFile(t, "exclusive-gateway.bpmn"))
		require.NoError(t, err)

		fork := g.nodes["fork"]
		assert.Equal(exclusiveGatewayBehavior{defaultFlow: "toStandard"}, fork.behavior)
		assert.Len(fork.outgoing, 3)
		assert.Equal("variables.amount > 1000", fork.outgoing[0].condition)
	})

	t.Run("HTTP method defaults to POST", func(t *testing.T) {
		g, err := mustCompileGraph(t, `
id: http
nodes:
  - {id: start, type: startEvent}
  - {id: call, type: serviceTask, url: "http://localhost/${id}"}
  - {id: end, type: endEvent}
flows:
  - {source: start, target: call}
  - {source: call, target: end}
`)
		require.NoError(t, err)

		assert.Equal(httpServiceBehavior{method: "POST", url: "http://localhost/${id}"}, g.nodes["call"].behavior)
	})

	t.Run("returns error when condition is denylisted", func(t *testing.T) {
		_, err := mustCompileGraph(t, `
id: insecure
nodes:
  - {id: start, type: startEvent}
  - {id: fork, type: exclusiveGateway}
  - {id: end, type: endEvent}
flows:
  - {source: start, target: fork}
  - {id: f2, source: fork, target: end, condition: "require('fs')"}
`)

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(engine.ErrorDefinition, engineErr.Type)
		require.Len(t, engineErr.Causes, 1)
		assert.Equal("/f2", engineErr.Causes[0].Pointer)
		assert.Equal("security", engineErr.Causes[0].Type)
	})

	t.Run("returns error when script cannot be parsed", func(t *testing.T) {
		_, err := mustCompileGraph(t, `
id: invalidScript
nodes:
  - {id: start, type: startEvent}
  - {id: calculate, type: scriptTask, script: "result.x = (1 +"}
  - {id: end, type: endEvent}
flows:
  - {source: start, target: calculate}
  - {source: calculate, target: end}
`)

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(engine.ErrorDefinition, engineErr.Type)
		require.Len(t, engineErr.Causes, 1)
		assert.Equal("/calculate", engineErr.Causes[0].Pointer)
		assert.Equal("expression", engineErr.Causes[0].Type)
	})

	t.Run("returns error when literal timer is invalid", func(t *testing.T) {
		_, err := mustCompileGraph(t, `
id: invalidTimer
nodes:
  - {id: start, type: startEvent}
  - {id: wait, type: intermediateCatchEvent, timer: {duration: "1 hour"}}
  - {id: end, type: endEvent}
flows:
  - {source: start, target: wait}
  - {source: wait, target: end}
`)

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		require.Len(t, engineErr.Causes, 1)
		assert.Equal("/wait", engineErr.Causes[0].Pointer)
		assert.Equal("timer_event", engineErr.Causes[0].Type)
	})

	t.Run("timer expressions are validated at runtime", func(t *testing.T) {
		g, err := mustCompileGraph(t, `
id: timerExpression
nodes:
  - {id: start, type: startEvent}
  - {id: wait, type: intermediateCatchEvent, timer: {duration: "${delay}"}}
  - {id: end, type: endEvent}
flows:
  - {source: start, target: wait}
  - {source: wait, target: end}
`)
		require.NoError(t, err)

		assert.Equal(timerEventBehavior{definition: model.TimerDefinition{TimeDuration: "${delay}"}}, g.nodes["wait"].behavior)
	})
}

func TestParseSource(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when process is invalid", func(t *testing.T) {
		_, err := parseSource(mustReadFile(t, "invalid/sequence-flow-target-missing.bpmn"))

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(engine.ErrorDefinition, engineErr.Type)
		assert.NotEmpty(engineErr.Causes)
	})

	t.Run("returns error when XML is malformed", func(t *testing.T) {
		_, err := parseSource("<bpmn:definitions")

		var engineErr engine.Error
		require.ErrorAs(t, err, &engineErr)
		assert.Equal(engine.ErrorDefinition, engineErr.Type)
	})
}
