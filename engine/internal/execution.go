package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

// activityError fails the current activity. Instead of aborting the trigger, an incident is created.
type activityError struct {
	Type    engine.IncidentType
	Message string
}

func (e *activityError) Error() string {
	return e.Message
}

func failedJob(format string, args ...any) error {
	return &activityError{Type: engine.IncidentFailedJob, Message: fmt.Sprintf(format, args...)}
}

func unhandledError(format string, args ...any) error {
	return &activityError{Type: engine.IncidentUnhandledError, Message: fmt.Sprintf(format, args...)}
}

// execution drives a process instance through its graph, as the result of a single trigger.
//
// Traversal is depth first: an activity, that completes synchronously, takes its outgoing sequence flows before a sibling is executed.
// A wait state ends the traversal of a path.
type execution struct {
	e       *Engine
	ctx     context.Context
	g       *graph
	state   *instanceState
	batch   *Batch
	actorId string

	steps   int // number of executed activities
	pending int // number of taken sequence flows, whose target has not been executed yet

	firingTimer *TimerJobEntity // timer job, which triggered the execution
}

func (e *Engine) newExecution(ctx context.Context, g *graph, state *instanceState, batch *Batch, actorId string) *execution {
	return &execution{
		e:       e,
		ctx:     ctx,
		g:       g,
		state:   state,
		batch:   batch,
		actorId: actorId,
	}
}

// executeActivity enters a node: an ACTIVE activity instance is opened and the node's behavior is executed.
// flowId is the ID of the sequence flow, which has been taken to reach the node.
func (ec *execution) executeActivity(node *graphNode, flowId string) error {
	activityInstance := ActivityInstanceEntity{
		Id: ec.e.nextId(),

		ProcessDefinitionId: ec.g.definitionId,
		ProcessInstanceId:   ec.state.instance.Id,

		ActivityId:   node.id,
		ActivityType: node.nodeType,
		FlowId:       text(flowId),
		Name:         node.name,
		StartedAt:    ec.e.now(),
		State:        engine.ActivityActive,
	}

	ec.state.addOpen(&activityInstance)
	ec.batch.PutActivityInstance(&activityInstance)

	ec.steps++

	var err error
	if maxSteps := ec.e.options.MaxStepsPerTrigger; ec.steps > maxSteps {
		err = unhandledError("maximum number of %d steps per trigger exceeded", maxSteps)
	} else {
		err = ec.behave(node, &activityInstance)
	}

	var activityErr *activityError
	if errors.As(err, &activityErr) {
		return ec.failActivity(&activityInstance, activityErr)
	}
	return err
}

func (ec *execution) behave(node *graphNode, activityInstance *ActivityInstanceEntity) error {
	switch b := node.behavior.(type) {
	case startEventBehavior:
		return ec.takeFlows(activityInstance, node.outgoing)
	case endEventBehavior:
		ec.completeActivity(activityInstance)
		return ec.tryCompleteInstance()
	case userTaskBehavior:
		return ec.createUserTask(node, activityInstance, b)
	case scriptTaskBehavior:
		results, err := ec.e.evaluator.EvaluateScript(b.script, ec.variables())
		if err != nil {
			return unhandledError("failed to evaluate script: %v", err)
		}
		if err := ec.setVariables(results); err != nil {
			return unhandledError("failed to store script results: %v", err)
		}
		return ec.takeFlows(activityInstance, node.outgoing)
	case expressionServiceBehavior:
		results, err := ec.e.evaluator.EvaluateScript(b.expression, ec.variables())
		if err != nil {
			return failedJob("failed to evaluate expression: %v", err)
		}
		if err := ec.setVariables(results); err != nil {
			return failedJob("failed to store expression results: %v", err)
		}
		return ec.takeFlows(activityInstance, node.outgoing)
	case httpServiceBehavior:
		if err := ec.callHttp(b); err != nil {
			return err
		}
		return ec.takeFlows(activityInstance, node.outgoing)
	case externalServiceBehavior:
		ec.createExternalTask(activityInstance, b)
		return ec.takeFlows(activityInstance, node.outgoing)
	case exclusiveGatewayBehavior:
		flow, err := ec.chooseFlow(node, b)
		if err != nil {
			return err
		}
		return ec.takeFlows(activityInstance, []*graphFlow{flow})
	case parallelGatewayBehavior:
		if node.isJoin() {
			return ec.join(node)
		}
		return ec.takeFlows(activityInstance, node.outgoing)
	case timerEventBehavior:
		return ec.waitForTimer(node, activityInstance, b)
	case messageEventBehavior:
		return ec.waitForMessage(activityInstance, b)
	case signalEventBehavior:
		activityInstance.SignalName = text(b.name)
		ec.subscribe(activityInstance)
		return nil
	default:
		return engine.Error{
			Type:   engine.ErrorBug,
			Title:  "failed to execute activity",
			Detail: fmt.Sprintf("node %s of type %s has no behavior", node.id, node.nodeType),
		}
	}
}

// continueActivity completes an activity instance in a wait state and takes the outgoing sequence flows of its node.
func (ec *execution) continueActivity(activityInstance *ActivityInstanceEntity) error {
	node, ok := ec.g.nodes[activityInstance.ActivityId]
	if !ok {
		return engine.Error{
			Type:   engine.ErrorBug,
			Title:  "failed to continue activity",
			Detail: fmt.Sprintf("process definition %d has no node %s", ec.g.definitionId, activityInstance.ActivityId),
		}
	}
	return ec.takeFlows(activityInstance, node.outgoing)
}

// takeFlows completes an activity instance and executes the targets of the given sequence flows, in order.
func (ec *execution) takeFlows(activityInstance *ActivityInstanceEntity, flows []*graphFlow) error {
	ec.completeActivity(activityInstance)

	ec.pending += len(flows)
	for _, flow := range flows {
		ec.pending--
		if err := ec.executeActivity(flow.target, flow.id); err != nil {
			return err
		}
	}
	return nil
}

func (ec *execution) completeActivity(activityInstance *ActivityInstanceEntity) {
	activityInstance.EndedAt = timestamp(ec.e.now())
	activityInstance.State = engine.ActivityCompleted

	ec.batch.PutActivityInstance(activityInstance)
	ec.state.removeOpen(activityInstance.Id)

	if _, ok := activityInstance.subscription(); ok {
		activityInstanceId := activityInstance.Id
		ec.batch.AfterFlush(func() {
			ec.e.registry.Unsubscribe(activityInstanceId)
		})
	}
}

func (ec *execution) failActivity(activityInstance *ActivityInstanceEntity, err *activityError) error {
	now := ec.e.now()

	activityInstance.EndedAt = timestamp(now)
	activityInstance.State = engine.ActivityFailed

	ec.batch.PutActivityInstance(activityInstance)
	ec.state.removeOpen(activityInstance.Id)

	incident := IncidentEntity{
		Id: ec.e.nextId(),

		ProcessInstanceId:  activityInstance.ProcessInstanceId,
		ActivityInstanceId: pgtype.Int8{Int64: activityInstance.Id, Valid: true},

		ActivityId: activityInstance.ActivityId,
		CreatedAt:  now,
		CreatedBy:  ec.actorId,
		Message:    err.Message,
		State:      engine.IncidentOpen,
		Type:       err.Type,
	}

	ec.batch.PutIncident(&incident)
	ec.state.openIncidents++

	ec.e.logger.Warn("activity failed",
		"processInstanceId", activityInstance.ProcessInstanceId,
		"activityId", activityInstance.ActivityId,
		"incidentId", incident.Id,
		"incidentType", incident.Type,
		"message", incident.Message,
	)
	return nil
}

// tryCompleteInstance completes the process instance, when no path can continue anymore.
// A process instance with an open incident is not completed, since the failed activity could be retried.
func (ec *execution) tryCompleteInstance() error {
	if len(ec.state.open) != 0 || ec.pending != 0 || ec.state.openIncidents != 0 {
		return nil
	}
	if ec.state.instance.isEnded() {
		return nil
	}

	if err := ec.e.endInstance(ec.ctx, ec.state, ec.batch, engine.InstanceCompleted); err != nil {
		return err
	}

	ec.e.logger.Debug("process instance completed", "id", ec.state.instance.Id)
	return nil
}

func (ec *execution) variables() map[string]any {
	return ec.state.instance.Variables
}

// setVariables stores results of a script or service task. Unlike merged variables, a nil result is stored as null.
func (ec *execution) setVariables(results map[string]any) error {
	if len(results) == 0 {
		return nil
	}

	normalized, err := normalizeVariables(results)
	if err != nil {
		return err
	}

	instance := ec.state.instance
	if instance.Variables == nil {
		instance.Variables = make(map[string]any, len(normalized))
	}
	for name, value := range normalized {
		instance.Variables[name] = value
	}

	ec.batch.PutProcessInstance(instance)
	return nil
}

func (ec *execution) resolveString(s string) (string, error) {
	v, err := ec.e.evaluator.ResolveString(s, ec.variables())
	if err != nil {
		return "", unhandledError("failed to resolve %q: %v", s, err)
	}
	return v, nil
}

func (ec *execution) resolveList(values []string) ([]string, error) {
	var resolved []string
	for _, value := range values {
		v, err := ec.resolveString(value)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, splitList(v)...)
	}
	return resolved, nil
}

func (ec *execution) createUserTask(node *graphNode, activityInstance *ActivityInstanceEntity, b userTaskBehavior) error {
	assignee, err := ec.resolveString(b.assignee)
	if err != nil {
		return err
	}
	candidateUsers, err := ec.resolveList(b.candidateUsers)
	if err != nil {
		return err
	}
	candidateGroups, err := ec.resolveList(b.candidateGroups)
	if err != nil {
		return err
	}

	now := ec.e.now()

	userTask := UserTaskEntity{
		Id: ec.e.nextId(),

		ProcessInstanceId:  activityInstance.ProcessInstanceId,
		ActivityInstanceId: activityInstance.Id,

		ActivityId:      activityInstance.ActivityId,
		CandidateGroups: candidateGroups,
		CandidateUsers:  candidateUsers,
		CreatedAt:       now,
		FormKey:         text(b.formKey),
		Name:            node.name,
		State:           engine.UserTaskReady,
		Variables:       map[string]any{},
	}

	if assignee != "" {
		userTask.Assignee = text(assignee)
		userTask.ClaimedAt = timestamp(now)
		userTask.State = engine.UserTaskReserved
	}

	ec.batch.PutUserTask(&userTask)
	return nil
}

func (ec *execution) createExternalTask(activityInstance *ActivityInstanceEntity, b externalServiceBehavior) {
	externalTask := ExternalTaskEntity{
		Id: ec.e.nextId(),

		ProcessInstanceId:  activityInstance.ProcessInstanceId,
		ActivityInstanceId: activityInstance.Id,

		ActivityId: activityInstance.ActivityId,
		CreatedAt:  ec.e.now(),
		State:      engine.ExternalTaskCreated,
		Topic:      b.topic,
		Variables:  cloneVariables(ec.variables()),
	}

	ec.batch.PutExternalTask(&externalTask)
}

// chooseFlow evaluates the conditions of the outgoing sequence flows in declared order.
// The first sequence flow without condition or with a true condition is chosen. Otherwise the default sequence flow.
func (ec *execution) chooseFlow(node *graphNode, b exclusiveGatewayBehavior) (*graphFlow, error) {
	var defaultFlow *graphFlow
	for _, flow := range node.outgoing {
		if flow.id == b.defaultFlow {
			defaultFlow = flow
			continue
		}
		if flow.condition == "" {
			return flow, nil
		}

		ok, err := ec.e.evaluator.EvaluateCondition(flow.condition, ec.variables())
		if err != nil {
			return nil, unhandledError("failed to evaluate condition of sequence flow %s: %v", flow.id, err)
		}
		if ok {
			return flow, nil
		}
	}

	if defaultFlow != nil {
		return defaultFlow, nil
	}
	return nil, unhandledError("no sequence flow could be taken")
}

// join synchronizes the waiting activity instances of a joining parallel gateway.
//
// When one activity instance per incoming sequence flow is waiting, the earliest of each incoming sequence flow is completed
// and the outgoing sequence flows are taken once. Further activity instances wait for the next round.
func (ec *execution) join(node *graphNode) error {
	arrived := make(map[string]*ActivityInstanceEntity, len(node.incoming))
	for _, activityInstance := range ec.state.open {
		if activityInstance.ActivityId != node.id {
			continue
		}
		if _, ok := arrived[activityInstance.FlowId.String]; !ok {
			arrived[activityInstance.FlowId.String] = activityInstance
		}
	}

	for _, flowId := range node.incoming {
		if _, ok := arrived[flowId]; !ok {
			return nil // wait
		}
	}

	var last *ActivityInstanceEntity
	for _, flowId := range node.incoming {
		activityInstance := arrived[flowId]
		if last == nil || activityInstance.Id > last.Id {
			last = activityInstance
		}
	}
	for _, flowId := range node.incoming {
		if activityInstance := arrived[flowId]; activityInstance != last {
			ec.completeActivity(activityInstance)
		}
	}

	return ec.takeFlows(last, node.outgoing)
}

func (ec *execution) waitForMessage(activityInstance *ActivityInstanceEntity, b messageEventBehavior) error {
	correlationKey, err := ec.resolveString(b.correlationKey)
	if err != nil {
		return err
	}
	if correlationKey == "" {
		correlationKey = ec.state.instance.BusinessKey.String
	}

	activityInstance.CorrelationKey = text(correlationKey)
	activityInstance.MessageName = text(b.name)
	ec.subscribe(activityInstance)
	return nil
}

// subscribe registers the subscription of a catch event, after the batch has been flushed.
func (ec *execution) subscribe(activityInstance *ActivityInstanceEntity) {
	s, ok := activityInstance.subscription()
	if !ok {
		return
	}
	ec.batch.AfterFlush(func() {
		ec.e.registry.Subscribe(s)
	})
}

func (ec *execution) waitForTimer(node *graphNode, activityInstance *ActivityInstanceEntity, b timerEventBehavior) error {
	now := ec.e.now()

	// a cycle timer, whose catch event is entered again, is rebound instead of creating a new timer job
	if timerJob := ec.firingTimer; timerJob != nil && timerJob.ActivityId == node.id && timerJob.Type == engine.TimerCycle {
		ec.firingTimer = nil

		if timerJob.Repetitions == 0 {
			return ec.takeFlows(activityInstance, node.outgoing) // cycle has ended
		}

		cycle, err := parseTimer(engine.TimerCycle, timerJob.Definition)
		if err != nil {
			return unhandledError("failed to parse timer: %v", err)
		}

		dueAt, err := cycle.next(timerJob.DueAt)
		if err == nil && !dueAt.After(now) {
			dueAt, err = cycle.next(now)
		}
		if err != nil {
			return unhandledError("failed to evaluate timer: %v", err)
		}

		timerJob.ActivityInstanceId = activityInstance.Id
		timerJob.CompletedAt = pgtype.Timestamp{}
		timerJob.DueAt = dueAt
		timerJob.Retries = ec.e.options.TimerRetryLimit
		timerJob.State = engine.TimerWaiting
		timerJob.unlock()
		if timerJob.Repetitions > 0 {
			timerJob.Repetitions--
		}
		return nil
	}

	t, err := resolveTimer(ec.e.evaluator, &b.definition, ec.variables())
	if err != nil {
		return unhandledError("failed to resolve timer: %v", err)
	}

	dueAt, err := t.next(now)
	if err != nil {
		return unhandledError("failed to evaluate timer: %v", err)
	}

	timerJob := TimerJobEntity{
		Id: ec.e.nextId(),

		ProcessInstanceId:  activityInstance.ProcessInstanceId,
		ActivityInstanceId: activityInstance.Id,

		ActivityId: activityInstance.ActivityId,
		CreatedAt:  now,
		Definition: t.Definition,
		DueAt:      dueAt,
		Retries:    ec.e.options.TimerRetryLimit,
		State:      engine.TimerWaiting,
		Type:       t.Type,
	}

	if t.Type == engine.TimerCycle {
		timerJob.Repetitions = t.repetitions
		if timerJob.Repetitions > 0 {
			timerJob.Repetitions-- // first occurrence
		}
	}

	ec.batch.PutTimerJob(&timerJob)
	return nil
}
