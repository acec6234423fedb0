package model

import "fmt"

// NodeType describes the executable node types of a process graph.
//
// The string representation equals the local name of the corresponding BPMN 2.0 XML element.
type NodeType int

const (
	NodeEndEvent NodeType = iota + 1
	NodeExclusiveGateway
	NodeIntermediateCatchEvent
	NodeParallelGateway
	NodeScriptTask
	NodeServiceTask
	NodeStartEvent
	NodeUserTask
)

// NodeTypes returns all supported node types.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeEndEvent,
		NodeExclusiveGateway,
		NodeIntermediateCatchEvent,
		NodeParallelGateway,
		NodeScriptTask,
		NodeServiceTask,
		NodeStartEvent,
		NodeUserTask,
	}
}

func MapNodeType(s string) NodeType {
	switch s {
	case "endEvent":
		return NodeEndEvent
	case "exclusiveGateway":
		return NodeExclusiveGateway
	case "intermediateCatchEvent":
		return NodeIntermediateCatchEvent
	case "parallelGateway":
		return NodeParallelGateway
	case "scriptTask":
		return NodeScriptTask
	case "serviceTask":
		return NodeServiceTask
	case "startEvent":
		return NodeStartEvent
	case "userTask":
		return NodeUserTask
	default:
		return 0
	}
}

// IsWaitState reports whether execution suspends, when a node of this type is entered.
func (v NodeType) IsWaitState() bool {
	return v == NodeUserTask || v == NodeIntermediateCatchEvent
}

func (v NodeType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v NodeType) String() string {
	switch v {
	case NodeEndEvent:
		return "endEvent"
	case NodeExclusiveGateway:
		return "exclusiveGateway"
	case NodeIntermediateCatchEvent:
		return "intermediateCatchEvent"
	case NodeParallelGateway:
		return "parallelGateway"
	case NodeScriptTask:
		return "scriptTask"
	case NodeServiceTask:
		return "serviceTask"
	case NodeStartEvent:
		return "startEvent"
	case NodeUserTask:
		return "userTask"
	default:
		return ""
	}
}

func (v *NodeType) UnmarshalText(data []byte) error {
	*v = MapNodeType(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid node type %s", string(data))
	}
	return nil
}
