package model

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// unsupportedElements are BPMN flow nodes, which are recognized, but cannot be executed.
var unsupportedElements = map[string]bool{
	"boundaryEvent":          true,
	"businessRuleTask":       true,
	"callActivity":           true,
	"complexGateway":         true,
	"eventBasedGateway":      true,
	"inclusiveGateway":       true,
	"intermediateThrowEvent": true,
	"manualTask":             true,
	"receiveTask":            true,
	"sendTask":               true,
	"subProcess":             true,
	"task":                   true,
	"transaction":            true,
}

// New parses a BPMN 2.0 XML document. Elements are matched by their local names, so that any namespace prefix is accepted.
//
// Parsing succeeds for structurally invalid processes - [Process.Validate] must be used to detect problems like missing sequence flow targets.
func New(bpmnXmlReader io.Reader) (*Model, error) {
	var (
		model             Model
		definitionsParsed bool

		process *Process
		node    *Node
		flow    *SequenceFlow

		messageNames = make(map[string]string) // message ID -> message name
		signalNames  = make(map[string]string) // signal ID -> signal name
		messageRefs  = make(map[*MessageDefinition]string)
		signalRefs   = make(map[*SignalDefinition]string)

		text     strings.Builder
		textInto *string // receives the character data of the current element
	)

	catchEvent := func() *CatchEvent {
		if node == nil || node.Type != NodeIntermediateCatchEvent {
			return nil
		}
		model := node.Model.(*CatchEvent)
		return model
	}

	addNode := func(nodeType NodeType, attributes []xml.Attr) {
		node = &Node{
			Id:   getAttrValue(attributes, "id"),
			Name: getAttrValue(attributes, "name"),
			Type: nodeType,
		}
		if process != nil {
			process.Nodes = append(process.Nodes, node)
		}
	}

	decoder := xml.NewDecoder(bpmnXmlReader)

	count := 0
	for {
		token, err := decoder.Token()
		if token == nil || err == io.EOF {
			if count == 0 {
				return nil, errors.New("XML is empty")
			}
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode XML: %v", err)
		}

		count++

		switch t := token.(type) {
		case xml.StartElement:
			name := t.Name.Local

			if process == nil {
				switch name {
				case "definitions":
					model.Id = getAttrValue(t.Attr, "id")
					definitionsParsed = true
				case "message":
					messageNames[getAttrValue(t.Attr, "id")] = getAttrValue(t.Attr, "name")
				case "signal":
					signalNames[getAttrValue(t.Attr, "id")] = getAttrValue(t.Attr, "name")
				case "process":
					isExecutable, _ := strconv.ParseBool(getAttrValue(t.Attr, "isExecutable"))
					process = &Process{
						Id:           getAttrValue(t.Attr, "id"),
						Name:         getAttrValue(t.Attr, "name"),
						IsExecutable: isExecutable,
					}
					model.Processes = append(model.Processes, process)
				}
				continue
			}

			if unsupportedElements[name] {
				process.unsupported = append(process.unsupported, unsupportedNode{
					id:          getAttrValue(t.Attr, "id"),
					elementName: name,
				})
				node = nil
				continue
			}

			switch name {
			case "conditionExpression":
				if flow != nil {
					text.Reset()
					textInto = &flow.Condition
				}
			case "endEvent":
				addNode(NodeEndEvent, t.Attr)
			case "exclusiveGateway":
				addNode(NodeExclusiveGateway, t.Attr)
				node.Model = ExclusiveGateway{Default: getAttrValue(t.Attr, "default")}
			case "intermediateCatchEvent":
				addNode(NodeIntermediateCatchEvent, t.Attr)
				node.Model = &CatchEvent{}
			case "messageEventDefinition":
				if model := catchEvent(); model != nil {
					model.Message = &MessageDefinition{CorrelationKey: getAttrValue(t.Attr, "correlationKey")}
					messageRefs[model.Message] = getAttrValue(t.Attr, "messageRef")
				}
			case "parallelGateway":
				addNode(NodeParallelGateway, t.Attr)
			case "script":
				if node != nil && node.Type == NodeScriptTask {
					text.Reset()
					textInto = &node.Model.(*ScriptTask).Script
				}
			case "scriptTask":
				addNode(NodeScriptTask, t.Attr)
				node.Model = &ScriptTask{}
			case "sequenceFlow":
				flow = &SequenceFlow{
					Id:        getAttrValue(t.Attr, "id"),
					Name:      getAttrValue(t.Attr, "name"),
					sourceRef: getAttrValue(t.Attr, "sourceRef"),
					targetRef: getAttrValue(t.Attr, "targetRef"),
				}
				process.SequenceFlows = append(process.SequenceFlows, flow)
			case "serviceTask":
				addNode(NodeServiceTask, t.Attr)
				node.Model = newServiceTask(t.Attr)
			case "signalEventDefinition":
				if model := catchEvent(); model != nil {
					model.Signal = &SignalDefinition{}
					signalRefs[model.Signal] = getAttrValue(t.Attr, "signalRef")
				}
			case "startEvent":
				addNode(NodeStartEvent, t.Attr)
			case "timeCycle", "timeDate", "timeDuration":
				if model := catchEvent(); model != nil && model.Timer != nil {
					text.Reset()
					switch name {
					case "timeCycle":
						textInto = &model.Timer.TimeCycle
					case "timeDate":
						textInto = &model.Timer.TimeDate
					default:
						textInto = &model.Timer.TimeDuration
					}
				}
			case "timerEventDefinition":
				if model := catchEvent(); model != nil {
					model.Timer = &TimerDefinition{}
				}
			case "userTask":
				addNode(NodeUserTask, t.Attr)
				node.Model = UserTask{
					Assignee:        getAttrValue(t.Attr, "assignee"),
					CandidateUsers:  getAttrValue(t.Attr, "candidateUsers"),
					CandidateGroups: getAttrValue(t.Attr, "candidateGroups"),
					FormKey:         getAttrValue(t.Attr, "formKey"),
				}
			}
		case xml.CharData:
			if textInto != nil {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "conditionExpression", "script", "timeCycle", "timeDate", "timeDuration":
				if textInto != nil {
					*textInto = strings.TrimSpace(text.String())
					textInto = nil
				}
			case "process":
				process = nil
				node = nil
			case "sequenceFlow":
				flow = nil
			}
		}
	}

	if !definitionsParsed {
		return nil, errors.New("no definitions found")
	}
	if len(model.Processes) == 0 {
		return nil, errors.New("no process found")
	}

	for message, ref := range messageRefs {
		if name, ok := messageNames[ref]; ok && name != "" {
			message.Name = name
		} else {
			message.Name = ref
		}
	}
	for signal, ref := range signalRefs {
		if name, ok := signalNames[ref]; ok && name != "" {
			signal.Name = name
		} else {
			signal.Name = ref
		}
	}

	for _, process := range model.Processes {
		process.normalize()
		process.link()
	}

	return &model, nil
}

func newServiceTask(attributes []xml.Attr) *ServiceTask {
	serviceTask := ServiceTask{
		Implementation: getAttrValue(attributes, "implementation"),
		Expression:     getAttrValue(attributes, "expression"),
		Method:         getAttrValue(attributes, "method"),
		Url:            getAttrValue(attributes, "url"),
		ResultVariable: getAttrValue(attributes, "resultVariable"),
		Topic:          getAttrValue(attributes, "topic"),
	}
	serviceTask.setDefaultImplementation()
	return &serviceTask
}

func (t *ServiceTask) setDefaultImplementation() {
	if t.Implementation != "" && t.Implementation != "##WebService" {
		return
	}

	switch {
	case t.Url != "":
		t.Implementation = ServiceHttp
	case t.Topic != "":
		t.Implementation = ServiceExternal
	default:
		t.Implementation = ServiceExpression
	}
}

// normalize replaces pointer models, used while parsing, with values.
func (p *Process) normalize() {
	for _, node := range p.Nodes {
		switch model := node.Model.(type) {
		case *CatchEvent:
			node.Model = *model
		case *ScriptTask:
			node.Model = *model
		case *ServiceTask:
			node.Model = *model
		}
	}
}

func getAttrValue(attributes []xml.Attr, name string) string {
	for i := range attributes {
		if attributes[i].Name.Local == name {
			return attributes[i].Value
		}
	}
	return ""
}
