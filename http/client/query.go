package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

type query struct {
	c *client

	options engine.QueryOptions
}

func (q *query) QueryActivityInstances(ctx context.Context, criteria engine.ActivityInstanceCriteria) ([]engine.ActivityInstance, error) {
	return doQuery[engine.ActivityInstance](ctx, q, common.PathActivityInstancesQuery, criteria)
}

func (q *query) QueryExternalTasks(ctx context.Context, criteria engine.ExternalTaskCriteria) ([]engine.ExternalTask, error) {
	return doQuery[engine.ExternalTask](ctx, q, common.PathExternalTasksQuery, criteria)
}

func (q *query) QueryIncidents(ctx context.Context, criteria engine.IncidentCriteria) ([]engine.Incident, error) {
	return doQuery[engine.Incident](ctx, q, common.PathIncidentsQuery, criteria)
}

func (q *query) QueryMessages(ctx context.Context, criteria engine.MessageCriteria) ([]engine.MessageEvent, error) {
	return doQuery[engine.MessageEvent](ctx, q, common.PathMessagesQuery, criteria)
}

func (q *query) QueryProcessDefinitions(ctx context.Context, criteria engine.ProcessDefinitionCriteria) ([]engine.ProcessDefinition, error) {
	return doQuery[engine.ProcessDefinition](ctx, q, common.PathProcessDefinitionsQuery, criteria)
}

func (q *query) QueryProcessInstances(ctx context.Context, criteria engine.ProcessInstanceCriteria) ([]engine.ProcessInstance, error) {
	return doQuery[engine.ProcessInstance](ctx, q, common.PathProcessInstancesQuery, criteria)
}

func (q *query) QuerySignals(ctx context.Context, criteria engine.SignalCriteria) ([]engine.SignalEvent, error) {
	return doQuery[engine.SignalEvent](ctx, q, common.PathSignalsQuery, criteria)
}

func (q *query) QueryTimerJobs(ctx context.Context, criteria engine.TimerJobCriteria) ([]engine.TimerJob, error) {
	return doQuery[engine.TimerJob](ctx, q, common.PathTimerJobsQuery, criteria)
}

func (q *query) QueryUserTasks(ctx context.Context, criteria engine.UserTaskCriteria) ([]engine.UserTask, error) {
	return doQuery[engine.UserTask](ctx, q, common.PathUserTasksQuery, criteria)
}

func (q *query) SetOptions(options engine.QueryOptions) {
	q.options = options
}

func doQuery[T any](ctx context.Context, q *query, path string, criteria any) ([]T, error) {
	var resBody common.QueryRes[T]
	if err := q.c.do(ctx, http.MethodPost, queryPath(path, q.options), criteria, &resBody); err != nil {
		return nil, err
	}
	return resBody.Results, nil
}

// queryPath appends limit and offset parameters, when set.
func queryPath(path string, options engine.QueryOptions) string {
	var params []string
	if options.Limit > 0 {
		params = append(params, fmt.Sprintf("%s=%d", common.QueryLimit, options.Limit))
	}
	if options.Offset > 0 {
		params = append(params, fmt.Sprintf("%s=%d", common.QueryOffset, options.Offset))
	}
	if len(params) == 0 {
		return path
	}
	return path + "?" + strings.Join(params, "&")
}
