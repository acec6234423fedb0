package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// NewDocument parses a graph document, provided as JSON or YAML:
//
//	id: order
//	name: Order process
//	nodes:
//	  - id: start
//	    type: startEvent
//	  - id: approve
//	    type: userTask
//	    assignee: ${requester}
//	  - id: end
//	    type: endEvent
//	flows:
//	  - source: start
//	    target: approve
//	  - source: approve
//	    target: end
//
// Sequence flows without an ID get a generated one.
func NewDocument(data []byte) (*Model, error) {
	var doc document

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	if trimmed[0] == '{' {
		decoder := json.NewDecoder(bytes.NewReader(trimmed))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode JSON document: %v", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML document: %v", err)
	}

	process := Process{
		Id:           doc.Id,
		Name:         doc.Name,
		IsExecutable: true,
	}

	for _, n := range doc.Nodes {
		nodeType := MapNodeType(n.Type)
		if nodeType == 0 {
			process.unsupported = append(process.unsupported, unsupportedNode{id: n.Id, elementName: n.Type})
			continue
		}

		node := Node{Id: n.Id, Name: n.Name, Type: nodeType}

		switch nodeType {
		case NodeExclusiveGateway:
			node.Model = ExclusiveGateway{Default: n.Default}
		case NodeIntermediateCatchEvent:
			var catchEvent CatchEvent
			if n.Timer != nil {
				catchEvent.Timer = &TimerDefinition{
					TimeDate:     n.Timer.Date,
					TimeDuration: n.Timer.Duration,
					TimeCycle:    n.Timer.Cycle,
				}
			}
			if n.Message != nil {
				catchEvent.Message = &MessageDefinition{Name: n.Message.Name, CorrelationKey: n.Message.CorrelationKey}
			}
			if n.Signal != nil {
				catchEvent.Signal = &SignalDefinition{Name: n.Signal.Name}
			}
			node.Model = catchEvent
		case NodeScriptTask:
			node.Model = ScriptTask{Script: n.Script}
		case NodeServiceTask:
			serviceTask := ServiceTask{
				Implementation: n.Implementation,
				Expression:     n.Expression,
				Method:         n.Method,
				Url:            n.Url,
				ResultVariable: n.ResultVariable,
				Topic:          n.Topic,
			}
			serviceTask.setDefaultImplementation()
			node.Model = serviceTask
		case NodeUserTask:
			node.Model = UserTask{
				Assignee:        n.Assignee,
				CandidateUsers:  n.CandidateUsers,
				CandidateGroups: n.CandidateGroups,
				FormKey:         n.FormKey,
			}
		}

		process.Nodes = append(process.Nodes, &node)
	}

	for i, f := range doc.Flows {
		id := f.Id
		if id == "" {
			id = fmt.Sprintf("flow-%d", i+1)
		}

		process.SequenceFlows = append(process.SequenceFlows, &SequenceFlow{
			Id:        id,
			Name:      f.Name,
			Condition: f.Condition,
			sourceRef: f.Source,
			targetRef: f.Target,
		})
	}

	process.link()

	return &Model{Id: doc.Id, Processes: []*Process{&process}}, nil
}

type document struct {
	Id    string         `json:"id" yaml:"id"`
	Name  string         `json:"name,omitempty" yaml:"name"`
	Nodes []documentNode `json:"nodes" yaml:"nodes"`
	Flows []documentFlow `json:"flows" yaml:"flows"`
}

type documentNode struct {
	Id   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
	Name string `json:"name,omitempty" yaml:"name"`

	// exclusiveGateway
	Default string `json:"default,omitempty" yaml:"default"`

	// userTask
	Assignee        string `json:"assignee,omitempty" yaml:"assignee"`
	CandidateUsers  string `json:"candidateUsers,omitempty" yaml:"candidateUsers"`
	CandidateGroups string `json:"candidateGroups,omitempty" yaml:"candidateGroups"`
	FormKey         string `json:"formKey,omitempty" yaml:"formKey"`

	// scriptTask
	Script string `json:"script,omitempty" yaml:"script"`

	// serviceTask
	Implementation string `json:"implementation,omitempty" yaml:"implementation"`
	Expression     string `json:"expression,omitempty" yaml:"expression"`
	Method         string `json:"method,omitempty" yaml:"method"`
	Url            string `json:"url,omitempty" yaml:"url"`
	ResultVariable string `json:"resultVariable,omitempty" yaml:"resultVariable"`
	Topic          string `json:"topic,omitempty" yaml:"topic"`

	// intermediateCatchEvent
	Timer *struct {
		Date     string `json:"date,omitempty" yaml:"date"`
		Duration string `json:"duration,omitempty" yaml:"duration"`
		Cycle    string `json:"cycle,omitempty" yaml:"cycle"`
	} `json:"timer,omitempty" yaml:"timer"`
	Message *struct {
		Name           string `json:"name" yaml:"name"`
		CorrelationKey string `json:"correlationKey,omitempty" yaml:"correlationKey"`
	} `json:"message,omitempty" yaml:"message"`
	Signal *struct {
		Name string `json:"name" yaml:"name"`
	} `json:"signal,omitempty" yaml:"signal"`
}

type documentFlow struct {
	Id        string `json:"id,omitempty" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name"`
	Source    string `json:"source" yaml:"source"`
	Target    string `json:"target" yaml:"target"`
	Condition string `json:"condition,omitempty" yaml:"condition"`
}
