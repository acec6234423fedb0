package internal

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/expr"
	"github.com/zensgit/metasheet2-sub006/model"
)

// graph is the immutable, executable form of a process definition.
type graph struct {
	definitionId int64
	key          string

	nodes map[string]*graphNode
	start *graphNode
}

type graphNode struct {
	id       string
	name     string
	nodeType model.NodeType

	outgoing []*graphFlow
	incoming []string // IDs of the incoming sequence flows

	behavior behavior
}

// isJoin reports whether the node is a parallel gateway, that synchronizes more than one incoming sequence flow.
func (n *graphNode) isJoin() bool {
	return n.nodeType == model.NodeParallelGateway && len(n.incoming) > 1
}

type graphFlow struct {
	id        string
	condition string
	target    *graphNode
}

// behavior is implemented by the node type specific behaviors.
type behavior interface {
	isBehavior()
}

type startEventBehavior struct{}

type endEventBehavior struct{}

type userTaskBehavior struct {
	assignee        string
	candidateUsers  []string
	candidateGroups []string
	formKey         string
}

type scriptTaskBehavior struct {
	script string
}

type expressionServiceBehavior struct {
	expression string
}

type httpServiceBehavior struct {
	method         string
	url            string
	resultVariable string
}

type externalServiceBehavior struct {
	topic string
}

type exclusiveGatewayBehavior struct {
	defaultFlow string
}

type parallelGatewayBehavior struct{}

type timerEventBehavior struct {
	definition model.TimerDefinition
}

type messageEventBehavior struct {
	name           string
	correlationKey string
}

type signalEventBehavior struct {
	name string
}

func (startEventBehavior) isBehavior()        {}
func (endEventBehavior) isBehavior()          {}
func (userTaskBehavior) isBehavior()          {}
func (scriptTaskBehavior) isBehavior()        {}
func (expressionServiceBehavior) isBehavior() {}
func (httpServiceBehavior) isBehavior()       {}
func (externalServiceBehavior) isBehavior()   {}
func (exclusiveGatewayBehavior) isBehavior()  {}
func (parallelGatewayBehavior) isBehavior()   {}
func (timerEventBehavior) isBehavior()        {}
func (messageEventBehavior) isBehavior()      {}
func (signalEventBehavior) isBehavior()       {}

// compileGraph compiles a structurally valid process into a graph.
// All conditions, scripts, expressions and literal timer values are validated. If one is invalid, an error of type [engine.ErrorDefinition] is returned.
func compileGraph(definition *ProcessDefinitionEntity, process *model.Process, evaluator *expr.Evaluator) (*graph, error) {
	c := compiler{evaluator: evaluator}

	g := graph{
		definitionId: definition.Id,
		key:          definition.Key,
		nodes:        make(map[string]*graphNode, len(process.Nodes)),
	}

	for _, node := range process.Nodes {
		gn := graphNode{
			id:       node.Id,
			name:     node.Name,
			nodeType: node.Type,
			behavior: c.compileBehavior(node),
		}
		for _, sequenceFlow := range node.Incoming {
			gn.incoming = append(gn.incoming, sequenceFlow.Id)
		}

		g.nodes[node.Id] = &gn

		if node.Type == model.NodeStartEvent && g.start == nil {
			g.start = &gn
		}
	}

	for _, node := range process.Nodes {
		gn := g.nodes[node.Id]
		for _, sequenceFlow := range node.Outgoing {
			if sequenceFlow.Condition != "" {
				c.validateCondition(sequenceFlow.Id, sequenceFlow.Condition)
			}

			gn.outgoing = append(gn.outgoing, &graphFlow{
				id:        sequenceFlow.Id,
				condition: sequenceFlow.Condition,
				target:    g.nodes[sequenceFlow.Target.Id],
			})
		}
	}

	if len(c.causes) != 0 {
		return nil, engine.Error{
			Type:   engine.ErrorDefinition,
			Title:  "failed to compile process definition",
			Detail: fmt.Sprintf("process %s contains invalid expressions", process.Id),
			Causes: c.causes,
		}
	}
	if g.start == nil {
		return nil, engine.Error{
			Type:   engine.ErrorDefinition,
			Title:  "failed to compile process definition",
			Detail: fmt.Sprintf("process %s has no start event", process.Id),
		}
	}

	return &g, nil
}

type compiler struct {
	evaluator *expr.Evaluator
	causes    []engine.ErrorCause
}

func (c *compiler) addCause(id string, causeType string, format string, args ...any) {
	c.causes = append(c.causes, engine.ErrorCause{
		Pointer: "/" + id,
		Type:    causeType,
		Detail:  fmt.Sprintf(format, args...),
	})
}

func (c *compiler) addError(id string, err error) {
	var securityErr *expr.SecurityError
	if errors.As(err, &securityErr) {
		c.addCause(id, "security", "%v", err)
	} else {
		c.addCause(id, "expression", "%v", err)
	}
}

func (c *compiler) compileBehavior(node *model.Node) behavior {
	switch node.Type {
	case model.NodeStartEvent:
		return startEventBehavior{}
	case model.NodeEndEvent:
		return endEventBehavior{}
	case model.NodeUserTask:
		m, _ := node.Model.(model.UserTask)
		b := userTaskBehavior{
			assignee:        strings.TrimSpace(m.Assignee),
			candidateUsers:  splitList(m.CandidateUsers),
			candidateGroups: splitList(m.CandidateGroups),
			formKey:         strings.TrimSpace(m.FormKey),
		}

		c.checkSecurity(node.Id, b.assignee)
		for _, v := range b.candidateUsers {
			c.checkSecurity(node.Id, v)
		}
		for _, v := range b.candidateGroups {
			c.checkSecurity(node.Id, v)
		}
		return b
	case model.NodeScriptTask:
		m, _ := node.Model.(model.ScriptTask)
		if err := c.evaluator.ValidateScript(m.Script); err != nil {
			c.addError(node.Id, err)
		}
		return scriptTaskBehavior{script: m.Script}
	case model.NodeServiceTask:
		m, _ := node.Model.(model.ServiceTask)
		switch m.Implementation {
		case model.ServiceHttp:
			method := strings.ToUpper(strings.TrimSpace(m.Method))
			if method == "" {
				method = http.MethodPost
			}
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				c.addCause(node.Id, "node", "HTTP method %s is not supported", method)
			}

			c.checkSecurity(node.Id, m.Url)
			return httpServiceBehavior{
				method:         method,
				url:            strings.TrimSpace(m.Url),
				resultVariable: strings.TrimSpace(m.ResultVariable),
			}
		case model.ServiceExternal:
			return externalServiceBehavior{topic: strings.TrimSpace(m.Topic)}
		default:
			if err := c.evaluator.ValidateScript(m.Expression); err != nil {
				c.addError(node.Id, err)
			}
			return expressionServiceBehavior{expression: m.Expression}
		}
	case model.NodeExclusiveGateway:
		m, _ := node.Model.(model.ExclusiveGateway)
		return exclusiveGatewayBehavior{defaultFlow: m.Default}
	case model.NodeParallelGateway:
		return parallelGatewayBehavior{}
	case model.NodeIntermediateCatchEvent:
		m, _ := node.Model.(model.CatchEvent)
		switch {
		case m.Timer != nil:
			c.validateTimer(node.Id, m.Timer)
			return timerEventBehavior{definition: *m.Timer}
		case m.Message != nil:
			c.checkSecurity(node.Id, m.Message.CorrelationKey)
			return messageEventBehavior{
				name:           strings.TrimSpace(m.Message.Name),
				correlationKey: strings.TrimSpace(m.Message.CorrelationKey),
			}
		default:
			return signalEventBehavior{name: strings.TrimSpace(m.Signal.Name)}
		}
	default:
		c.addCause(node.Id, "node", "node type %s is not supported", node.Type)
		return nil
	}
}

func (c *compiler) checkSecurity(id string, s string) {
	if s == "" {
		return
	}
	if err := c.evaluator.CheckSecurity(s); err != nil {
		c.addError(id, err)
	}
}

func (c *compiler) validateCondition(id string, condition string) {
	if err := c.evaluator.ValidateCondition(condition); err != nil {
		c.addError(id, err)
	}
}

func (c *compiler) validateTimer(id string, definition *model.TimerDefinition) {
	timerType, value := timerValue(definition)
	if isExpression(value) {
		c.checkSecurity(id, value)
		return
	}
	if _, err := parseTimer(timerType, value); err != nil {
		c.addCause(id, "timer_event", "%v", err)
	}
}

// isExpression reports whether an attribute value is resolved against the process variables.
func isExpression(s string) bool {
	s = strings.TrimSpace(s)
	return strings.Contains(s, "${") || strings.HasPrefix(s, "variables.")
}
