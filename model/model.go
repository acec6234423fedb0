package model

import (
	"fmt"
	"strings"
)

// Model is the result of parsing a process definition. It contains one or more processes.
type Model struct {
	Id        string
	Processes []*Process
}

// ExecutableProcess returns the first executable process. If no process is marked as executable, the first process is returned.
func (m *Model) ExecutableProcess() *Process {
	for _, process := range m.Processes {
		if process.IsExecutable {
			return process
		}
	}
	if len(m.Processes) != 0 {
		return m.Processes[0]
	}
	return nil
}

// ProcessById returns the process with the given id, or nil, if no such process exists.
func (m *Model) ProcessById(id string) *Process {
	for _, process := range m.Processes {
		if process.Id == id {
			return process
		}
	}
	return nil
}

type Process struct {
	Id           string
	Name         string
	IsExecutable bool

	Nodes         []*Node
	SequenceFlows []*SequenceFlow

	unsupported []unsupportedNode
}

// NodeById returns the node with the given id, or nil, if no such node exists.
func (p *Process) NodeById(id string) *Node {
	for _, node := range p.Nodes {
		if node.Id == id {
			return node
		}
	}
	return nil
}

// NodesByType returns all nodes of the given type.
func (p *Process) NodesByType(nodeType NodeType) []*Node {
	var nodes []*Node
	for _, node := range p.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func (p *Process) SequenceFlowById(id string) *SequenceFlow {
	for _, sequenceFlow := range p.SequenceFlows {
		if sequenceFlow.Id == id {
			return sequenceFlow
		}
	}
	return nil
}

// Validate checks the structure of the process. An error of type [*ValidationError] is returned, if the process is invalid.
func (p *Process) Validate() error {
	var problems []Problem

	addProblem := func(pointer string, problemType string, format string, args ...any) {
		problems = append(problems, Problem{
			Pointer: pointer,
			Type:    problemType,
			Detail:  fmt.Sprintf(format, args...),
		})
	}

	if strings.TrimSpace(p.Id) == "" {
		addProblem("", "process", "process has no ID")
	}

	for _, node := range p.unsupported {
		addProblem(node.id, "node", "element %s is not supported", node.elementName)
	}

	ids := make(map[string]bool, len(p.Nodes))
	for _, node := range p.Nodes {
		if node.Id == "" {
			addProblem(node.pointer(), "node", "%s has no ID", node.Type)
			continue
		}
		if ids[node.Id] {
			addProblem(node.pointer(), "node", "ID %s is not unique", node.Id)
		}
		ids[node.Id] = true
	}

	if len(p.NodesByType(NodeStartEvent)) == 0 {
		addProblem(p.Id, "process", "process has no start event")
	}

	for _, sequenceFlow := range p.SequenceFlows {
		pointer := sequenceFlow.Id
		if sequenceFlow.Source == nil {
			addProblem(pointer, "sequence_flow", "source %s does not exist", sequenceFlow.sourceRef)
		}
		if sequenceFlow.Target == nil {
			addProblem(pointer, "sequence_flow", "target %s does not exist", sequenceFlow.targetRef)
		}
	}

	for _, node := range p.Nodes {
		switch node.Type {
		case NodeStartEvent:
			if len(node.Outgoing) == 0 {
				addProblem(node.pointer(), "node", "start event has no outgoing sequence flow")
			}
		case NodeExclusiveGateway:
			model, _ := node.Model.(ExclusiveGateway)
			if model.Default != "" && node.OutgoingById(model.Default) == nil {
				addProblem(node.pointer(), "node", "default sequence flow %s is not an outgoing sequence flow", model.Default)
			}
			if len(node.Outgoing) == 0 {
				addProblem(node.pointer(), "node", "exclusive gateway has no outgoing sequence flow")
			}
		case NodeIntermediateCatchEvent:
			model, _ := node.Model.(CatchEvent)
			if n := model.definitionCount(); n != 1 {
				addProblem(node.pointer(), "event", "catch event must have exactly one event definition, but has %d", n)
				continue
			}

			switch {
			case model.Timer != nil:
				if n := model.Timer.valueCount(); n != 1 {
					addProblem(node.pointer(), "timer_event", "timer must define exactly one of time date, duration or cycle, but defines %d", n)
				}
			case model.Message != nil:
				if strings.TrimSpace(model.Message.Name) == "" {
					addProblem(node.pointer(), "message_event", "message event has no message name")
				}
			case model.Signal != nil:
				if strings.TrimSpace(model.Signal.Name) == "" {
					addProblem(node.pointer(), "signal_event", "signal event has no signal name")
				}
			}
		case NodeScriptTask:
			model, _ := node.Model.(ScriptTask)
			if strings.TrimSpace(model.Script) == "" {
				addProblem(node.pointer(), "node", "script task has no script")
			}
		case NodeServiceTask:
			model, _ := node.Model.(ServiceTask)
			switch model.Implementation {
			case ServiceExpression:
				if strings.TrimSpace(model.Expression) == "" {
					addProblem(node.pointer(), "node", "service task has no expression")
				}
			case ServiceHttp:
				if strings.TrimSpace(model.Url) == "" {
					addProblem(node.pointer(), "node", "service task has no URL")
				}
			case ServiceExternal:
				if strings.TrimSpace(model.Topic) == "" {
					addProblem(node.pointer(), "node", "service task has no topic")
				}
			default:
				addProblem(node.pointer(), "node", "service task implementation %q is not supported", model.Implementation)
			}
		}
	}

	if len(problems) != 0 {
		return &ValidationError{ProcessId: p.Id, Problems: problems}
	}
	return nil
}

type Node struct {
	Id   string
	Name string
	Type NodeType

	Incoming []*SequenceFlow
	Outgoing []*SequenceFlow

	Model any // Type specific model, e.g. [UserTask] or [CatchEvent].
}

// OutgoingById returns the outgoing sequence flow with the given id, or nil, if no such sequence flow exists.
func (n *Node) OutgoingById(id string) *SequenceFlow {
	for _, sequenceFlow := range n.Outgoing {
		if sequenceFlow.Id == id {
			return sequenceFlow
		}
	}
	return nil
}

func (n *Node) pointer() string {
	if n.Id != "" {
		return n.Id
	}
	return n.Type.String()
}

// unsupportedNode is a BPMN flow node, which cannot be executed.
type unsupportedNode struct {
	id          string
	elementName string
}

type SequenceFlow struct {
	Id        string
	Name      string
	Source    *Node
	Target    *Node
	Condition string // Optional condition expression.

	sourceRef string
	targetRef string
}

// Problem is a single structural problem of a process.
type Problem struct {
	Pointer string // ID of the node or sequence flow.
	Type    string // Type indicator like `node` or `sequence_flow`.
	Detail  string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Type, p.Pointer, p.Detail)
}

// ValidationError is returned, when a process is structurally invalid.
type ValidationError struct {
	ProcessId string
	Problems  []Problem
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("process %s is invalid", e.ProcessId))
	for _, problem := range e.Problems {
		sb.WriteRune('\n')
		sb.WriteString(problem.String())
	}
	return sb.String()
}

// node type specific models

type ExclusiveGateway struct {
	Default string // ID of the default sequence flow.
}

type UserTask struct {
	Assignee        string // Literal or expression.
	CandidateUsers  string // Comma separated literals or expressions.
	CandidateGroups string // Comma separated literals or expressions.
	FormKey         string
}

type ScriptTask struct {
	Script string
}

const (
	ServiceExpression = "expression"
	ServiceExternal   = "external"
	ServiceHttp       = "http"
)

type ServiceTask struct {
	Implementation string // One of [ServiceExpression], [ServiceExternal] or [ServiceHttp].

	Expression     string // Script, evaluated by an expression service task.
	Method         string // HTTP method of an HTTP service task, defaults to POST.
	Url            string // URL of an HTTP service task.
	ResultVariable string // Variable that stores the response of an HTTP service task.
	Topic          string // Topic of an external service task.
}

type CatchEvent struct {
	Timer   *TimerDefinition
	Message *MessageDefinition
	Signal  *SignalDefinition
}

func (e CatchEvent) definitionCount() int {
	var n int
	if e.Timer != nil {
		n++
	}
	if e.Message != nil {
		n++
	}
	if e.Signal != nil {
		n++
	}
	return n
}

type TimerDefinition struct {
	TimeDate     string
	TimeDuration string
	TimeCycle    string
}

func (d TimerDefinition) valueCount() int {
	var n int
	for _, v := range []string{d.TimeDate, d.TimeDuration, d.TimeCycle} {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

type MessageDefinition struct {
	Name           string
	CorrelationKey string // Literal or expression. If empty, the business key of the process instance is used.
}

type SignalDefinition struct {
	Name string
}

// link resolves the source and target references of all sequence flows.
func (p *Process) link() {
	for _, sequenceFlow := range p.SequenceFlows {
		if source := p.NodeById(sequenceFlow.sourceRef); source != nil {
			sequenceFlow.Source = source
			source.Outgoing = append(source.Outgoing, sequenceFlow)
		}
		if target := p.NodeById(sequenceFlow.targetRef); target != nil {
			sequenceFlow.Target = target
			target.Incoming = append(target.Incoming, sequenceFlow)
		}
	}
}
