package internal

import (
	"context"
	"fmt"

	"github.com/zensgit/metasheet2-sub006/engine"
)

type query struct {
	store        Store
	defaultLimit int
	options      engine.QueryOptions
}

func (q *query) QueryActivityInstances(ctx context.Context, criteria engine.ActivityInstanceCriteria) ([]engine.ActivityInstance, error) {
	results, err := q.store.ActivityInstances().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query activity instances: %v", err)
	}
	return results, nil
}

func (q *query) QueryExternalTasks(ctx context.Context, criteria engine.ExternalTaskCriteria) ([]engine.ExternalTask, error) {
	results, err := q.store.ExternalTasks().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query external tasks: %v", err)
	}
	return results, nil
}

func (q *query) QueryIncidents(ctx context.Context, criteria engine.IncidentCriteria) ([]engine.Incident, error) {
	results, err := q.store.Incidents().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %v", err)
	}
	return results, nil
}

func (q *query) QueryMessages(ctx context.Context, criteria engine.MessageCriteria) ([]engine.MessageEvent, error) {
	results, err := q.store.Messages().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %v", err)
	}
	return results, nil
}

func (q *query) QueryProcessDefinitions(ctx context.Context, criteria engine.ProcessDefinitionCriteria) ([]engine.ProcessDefinition, error) {
	results, err := q.store.ProcessDefinitions().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query process definitions: %v", err)
	}
	return results, nil
}

func (q *query) QueryProcessInstances(ctx context.Context, criteria engine.ProcessInstanceCriteria) ([]engine.ProcessInstance, error) {
	results, err := q.store.ProcessInstances().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query process instances: %v", err)
	}
	return results, nil
}

func (q *query) QuerySignals(ctx context.Context, criteria engine.SignalCriteria) ([]engine.SignalEvent, error) {
	results, err := q.store.Signals().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %v", err)
	}
	return results, nil
}

func (q *query) QueryTimerJobs(ctx context.Context, criteria engine.TimerJobCriteria) ([]engine.TimerJob, error) {
	results, err := q.store.TimerJobs().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query timer jobs: %v", err)
	}
	return results, nil
}

func (q *query) QueryUserTasks(ctx context.Context, criteria engine.UserTaskCriteria) ([]engine.UserTask, error) {
	results, err := q.store.UserTasks().Query(ctx, criteria, q.queryOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to query user tasks: %v", err)
	}
	return results, nil
}

func (q *query) SetOptions(options engine.QueryOptions) {
	q.options = options
}

func (q *query) queryOptions() engine.QueryOptions {
	options := q.options
	if options.Limit <= 0 {
		options.Limit = q.defaultLimit
	}
	if options.Offset < 0 {
		options.Offset = 0
	}
	return options
}
