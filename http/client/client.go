package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func New(url string, customizers ...func(*Options)) (engine.Engine, error) {
	if url == "" {
		return nil, errors.New("URL is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	httpClient := http.Client{}

	if options.Configure != nil {
		options.Configure(&httpClient)
	}

	client := client{
		httpClient: &httpClient,
		url:        strings.TrimSuffix(url, "/"),
		options:    options,
	}

	return &client, nil
}

func NewOptions() Options {
	return Options{
		Timeout: 40 * time.Second,
	}
}

type Options struct {
	Timeout time.Duration // Time limit for requests made by the HTTP client.

	// OnRequest is an optional function that accepts a [*http.Request]. It is called before a HTTP request is send.
	OnRequest func(*http.Request) error
	// OnResponse is an optional function that accepts a [*http.Response]. It is called after a HTTP response is returned.
	OnResponse func(*http.Response) error

	Configure func(*http.Client) // Optional function, used to configure the underlying HTTP client.
}

func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return errors.New("timeout must be greater than 0")
	}
	return nil
}

type client struct {
	httpClient *http.Client
	url        string
	options    Options
}

func (c *client) BroadcastSignal(ctx context.Context, cmd engine.BroadcastSignalCmd) (engine.SignalEvent, error) {
	var signal engine.SignalEvent
	if err := c.do(ctx, http.MethodPost, common.PathSignals, cmd, &signal); err != nil {
		return engine.SignalEvent{}, err
	}
	return signal, nil
}

func (c *client) ClaimUserTask(ctx context.Context, cmd engine.ClaimUserTaskCmd) (engine.UserTask, error) {
	var userTask engine.UserTask
	if err := c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathUserTasksClaim, cmd.Id), cmd, &userTask); err != nil {
		return engine.UserTask{}, err
	}
	return userTask, nil
}

func (c *client) CompleteExternalTask(ctx context.Context, cmd engine.CompleteExternalTaskCmd) (engine.ExternalTask, error) {
	var externalTask engine.ExternalTask
	if err := c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathExternalTasksComplete, cmd.Id), cmd, &externalTask); err != nil {
		return engine.ExternalTask{}, err
	}
	return externalTask, nil
}

func (c *client) CompleteUserTask(ctx context.Context, cmd engine.CompleteUserTaskCmd) error {
	return c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathUserTasksComplete, cmd.Id), cmd, nil)
}

func (c *client) CreateQuery() engine.Query {
	return &query{c: c}
}

func (c *client) DeployProcess(ctx context.Context, cmd engine.DeployProcessCmd) (engine.ProcessDefinition, error) {
	var processDefinition engine.ProcessDefinition
	if err := c.do(ctx, http.MethodPost, common.PathProcessDefinitions, cmd, &processDefinition); err != nil {
		return engine.ProcessDefinition{}, err
	}
	return processDefinition, nil
}

func (c *client) ExecuteTimers(ctx context.Context, cmd engine.ExecuteTimersCmd) ([]engine.TimerJob, []engine.TimerJob, error) {
	var resBody common.ExecuteTimersRes
	if err := c.do(ctx, http.MethodPost, common.PathTimerJobsExecute, cmd, &resBody); err != nil {
		return nil, nil, err
	}
	return resBody.CompletedTimerJobs, resBody.FailedTimerJobs, nil
}

func (c *client) FailExternalTask(ctx context.Context, cmd engine.FailExternalTaskCmd) (engine.ExternalTask, error) {
	var externalTask engine.ExternalTask
	if err := c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathExternalTasksFail, cmd.Id), cmd, &externalTask); err != nil {
		return engine.ExternalTask{}, err
	}
	return externalTask, nil
}

func (c *client) GetProcessVariables(ctx context.Context, cmd engine.GetProcessVariablesCmd) (map[string]any, error) {
	var resBody common.GetVariablesRes
	if err := c.do(ctx, http.MethodGet, common.ResolvePath(common.PathProcessInstancesVariables, cmd.ProcessInstanceId), nil, &resBody); err != nil {
		return nil, err
	}
	return resBody.Variables, nil
}

func (c *client) LockExternalTasks(ctx context.Context, cmd engine.LockExternalTasksCmd) ([]engine.ExternalTask, error) {
	var resBody common.LockExternalTasksRes
	if err := c.do(ctx, http.MethodPost, common.PathExternalTasksLock, cmd, &resBody); err != nil {
		return nil, err
	}
	return resBody.ExternalTasks, nil
}

func (c *client) ResolveIncident(ctx context.Context, cmd engine.ResolveIncidentCmd) error {
	return c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathIncidentsResolve, cmd.Id), cmd, nil)
}

func (c *client) ResumeProcessInstance(ctx context.Context, cmd engine.ResumeProcessInstanceCmd) error {
	return c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathProcessInstancesResume, cmd.Id), cmd, nil)
}

func (c *client) SendMessage(ctx context.Context, cmd engine.SendMessageCmd) (engine.MessageEvent, error) {
	var message engine.MessageEvent
	if err := c.do(ctx, http.MethodPost, common.PathMessages, cmd, &message); err != nil {
		return engine.MessageEvent{}, err
	}
	return message, nil
}

func (c *client) SetProcessVariables(ctx context.Context, cmd engine.SetProcessVariablesCmd) error {
	return c.do(ctx, http.MethodPut, common.ResolvePath(common.PathProcessInstancesVariables, cmd.ProcessInstanceId), cmd, nil)
}

func (c *client) SetTime(ctx context.Context, cmd engine.SetTimeCmd) error {
	return c.do(ctx, http.MethodPatch, common.PathTime, cmd, nil)
}

func (c *client) StartProcess(ctx context.Context, cmd engine.StartProcessCmd) (engine.ProcessInstance, error) {
	var processInstance engine.ProcessInstance
	if err := c.do(ctx, http.MethodPost, common.PathProcessInstances, cmd, &processInstance); err != nil {
		return engine.ProcessInstance{}, err
	}
	return processInstance, nil
}

func (c *client) SuspendProcessInstance(ctx context.Context, cmd engine.SuspendProcessInstanceCmd) error {
	return c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathProcessInstancesSuspend, cmd.Id), cmd, nil)
}

func (c *client) TerminateProcessInstance(ctx context.Context, cmd engine.TerminateProcessInstanceCmd) error {
	return c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathProcessInstancesTerminate, cmd.Id), cmd, nil)
}

func (c *client) UnclaimUserTask(ctx context.Context, cmd engine.UnclaimUserTaskCmd) (engine.UserTask, error) {
	var userTask engine.UserTask
	if err := c.do(ctx, http.MethodPatch, common.ResolvePath(common.PathUserTasksUnclaim, cmd.Id), cmd, &userTask); err != nil {
		return engine.UserTask{}, err
	}
	return userTask, nil
}

func (c *client) Shutdown() {
	c.httpClient.CloseIdleConnections()
}

// do performs a request against the server. A nil reqBody results in a request without body.
// If resBody is nil, the response body is discarded.
func (c *client) do(ctx context.Context, method string, path string, reqBody any, resBody any) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to create JSON request body: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %v", method, err)
	}

	if reqBody != nil {
		req.Header.Set(common.HeaderContentType, common.ContentTypeJson)
	}

	if c.options.OnRequest != nil {
		if err := c.options.OnRequest(req); err != nil {
			return err
		}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %v", method, c.url+path, err)
	}

	if c.options.OnResponse != nil {
		if err := c.options.OnResponse(res); err != nil {
			res.Body.Close()
			return err
		}
	}

	return decodeJSONResponseBody(res, resBody)
}
