package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// An Engine deploys process definitions, starts process instances and drives them to completion.
//
// Execution of a process instance is serialized: two triggers for the same process instance (e.g. a user task completion and a due timer) never execute concurrently.
// Failures of a single activity do not abort a process instance - they are recorded as incidents instead.
type Engine interface {
	// BroadcastSignal notifies all signal subscribers. If no subscriber exists, the signal is recorded as undelivered.
	BroadcastSignal(context.Context, BroadcastSignalCmd) (SignalEvent, error)

	// ClaimUserTask reserves a ready user task for a specific user.
	//
	// Claiming a task, which is already reserved by the same user, has no effect.
	// Claiming a task, which is reserved by a different user, results in an error of type [ErrorConflict].
	ClaimUserTask(context.Context, ClaimUserTaskCmd) (UserTask, error)

	// CompleteExternalTask completes an external task, locked by a worker, and merges the variables into the process instance.
	CompleteExternalTask(context.Context, CompleteExternalTaskCmd) (ExternalTask, error)

	// CompleteUserTask completes a ready or reserved user task and continues the process instance.
	//
	// The variables are merged into the variables of the process instance.
	// If the user task does not exist, an error of type [ErrorNotFound] is returned.
	// If the user task is already completed or cancelled, an error of type [ErrorConflict] is returned.
	CompleteUserTask(context.Context, CompleteUserTaskCmd) error

	// CreateQuery creates a query with default options.
	CreateQuery() Query

	// DeployProcess deploys a process definition, provided as BPMN 2.0 XML or as graph document (JSON or YAML).
	//
	// Deployment is idempotent per content: if the latest version of the same key and tenant has an equal checksum, it is returned.
	// Otherwise a new version is created.
	DeployProcess(context.Context, DeployProcessCmd) (ProcessDefinition, error)

	// ExecuteTimers claims and fires due timer jobs.
	//
	// Due timer jobs are normally handled by the timer scheduler, running inside the engine.
	// When waiting for a due timer during testing, this method must be called!
	ExecuteTimers(context.Context, ExecuteTimersCmd) ([]TimerJob, []TimerJob, error)

	// FailExternalTask fails an external task, locked by a worker, and creates an incident.
	FailExternalTask(context.Context, FailExternalTaskCmd) (ExternalTask, error)

	// GetProcessVariables gets the variables of a process instance.
	GetProcessVariables(context.Context, GetProcessVariablesCmd) (map[string]any, error)

	// LockExternalTasks locks external tasks of a topic, which are not locked or whose lock expired.
	LockExternalTasks(context.Context, LockExternalTasksCmd) ([]ExternalTask, error)

	// ResolveIncident resolves an open incident.
	//
	// When retry is requested, the failed activity is executed again.
	ResolveIncident(context.Context, ResolveIncidentCmd) error

	// ResumeProcessInstance resumes a suspended process instance.
	ResumeProcessInstance(context.Context, ResumeProcessInstanceCmd) error

	// SendMessage correlates a message with all subscribers of the message name.
	//
	// If a correlation key is provided, only subscribers with an equal correlation key are notified.
	// Sending a message without subscribers is not an error. Delivery to a subscription, which was already consumed, has no effect.
	SendMessage(context.Context, SendMessageCmd) (MessageEvent, error)

	// SetProcessVariables sets or deletes variables of an active process instance.
	SetProcessVariables(context.Context, SetProcessVariablesCmd) error

	// SetTime increases the engine's time for testing purposes.
	SetTime(context.Context, SetTimeCmd) error

	// StartProcess starts a process instance of the latest or a specific version of a process definition.
	StartProcess(context.Context, StartProcessCmd) (ProcessInstance, error)

	// SuspendProcessInstance suspends an active process instance. Triggers are rejected or postponed, until the instance is resumed.
	SuspendProcessInstance(context.Context, SuspendProcessInstanceCmd) error

	// TerminateProcessInstance terminates an active or suspended process instance.
	//
	// Open activity instances are terminated, user tasks and external tasks are cancelled, timers and subscriptions are removed.
	TerminateProcessInstance(context.Context, TerminateProcessInstanceCmd) error

	// UnclaimUserTask releases a reserved user task.
	UnclaimUserTask(context.Context, UnclaimUserTaskCmd) (UserTask, error)

	// Shutdown shuts the engine down.
	Shutdown()
}

// A Query allows to query entities, using query options.
type Query interface {
	QueryActivityInstances(context.Context, ActivityInstanceCriteria) ([]ActivityInstance, error)
	QueryExternalTasks(context.Context, ExternalTaskCriteria) ([]ExternalTask, error)
	QueryIncidents(context.Context, IncidentCriteria) ([]Incident, error)
	QueryMessages(context.Context, MessageCriteria) ([]MessageEvent, error)
	QueryProcessDefinitions(context.Context, ProcessDefinitionCriteria) ([]ProcessDefinition, error)
	QueryProcessInstances(context.Context, ProcessInstanceCriteria) ([]ProcessInstance, error)
	QuerySignals(context.Context, SignalCriteria) ([]SignalEvent, error)
	QueryTimerJobs(context.Context, TimerJobCriteria) ([]TimerJob, error)
	QueryUserTasks(context.Context, UserTaskCriteria) ([]UserTask, error)

	// SetOptions sets options that are used when performing a query.
	SetOptions(QueryOptions)
}

// NewOptions returns options with default values. The engine ID is random.
func NewOptions() Options {
	return Options{
		DefaultQueryLimit:      1000,
		EngineId:               "engine-" + uuid.NewString(),
		GraphCacheSize:         256,
		HttpClient:             &http.Client{Timeout: 30 * time.Second},
		Logger:                 hclog.Default().Named("process-engine"),
		MaxStepsPerTrigger:     1000,
		StoreRetryLimit:        3,
		TimerRetryDelay:        "PT1M",
		TimerRetryLimit:        3,
		TimerSchedulerEnabled:  false,
		TimerSchedulerInterval: 60 * time.Second,
		TimerSchedulerLimit:    100,
	}
}

// Options are common configuration options that are shared between engine implementations.
type Options struct {
	DefaultQueryLimit      int             // Default limit for queries, executed without an explicit limit.
	EngineId               string          // ID of the engine, used to lock timer jobs.
	GraphCacheSize         int             // Maximum number of compiled process graphs to cache.
	HttpClient             *http.Client    // Client, used by HTTP service tasks.
	Logger                 hclog.Logger    // Logger of the engine.
	MaxStepsPerTrigger     int             // Maximum number of activities, executed for a single trigger.
	StoreRetryLimit        int             // Maximum number of attempts to write a change to the store.
	TimerRetryDelay        ISO8601Duration // Duration until a failed timer job becomes due again.
	TimerRetryLimit        int             // Maximum number of timer job retries.
	TimerSchedulerEnabled  bool            // Enables or disables the engine's timer scheduler.
	TimerSchedulerInterval time.Duration   // Interval between polls for due timer jobs.
	TimerSchedulerLimit    int             // Maximum number of due timer jobs to claim and fire per poll.

	OnTimerExecutionFailure func(TimerJob, error) // Called when the engine failed to fire a claimed timer job.
}

func (o Options) Validate() error {
	if o.DefaultQueryLimit < 1 {
		return errors.New("default query limit must be greater than or equal to 1")
	}
	if strings.TrimSpace(o.EngineId) == "" {
		return errors.New("engine ID must not be empty or blank")
	}
	if o.GraphCacheSize < 1 {
		return errors.New("graph cache size must be greater than or equal to 1")
	}
	if o.HttpClient == nil {
		return errors.New("HTTP client is nil")
	}
	if o.Logger == nil {
		return errors.New("logger is nil")
	}
	if o.MaxStepsPerTrigger < 1 {
		return errors.New("max steps per trigger must be greater than or equal to 1")
	}
	if o.StoreRetryLimit < 1 {
		return errors.New("store retry limit must be greater than or equal to 1")
	}
	if _, err := NewISO8601Duration(o.TimerRetryDelay.String()); err != nil {
		return fmt.Errorf("timer retry delay is invalid: %v", err)
	}
	if o.TimerRetryLimit < 0 {
		return errors.New("timer retry limit must be greater than or equal to 0")
	}
	if o.TimerSchedulerInterval.Milliseconds() < 1000 {
		return errors.New("timer scheduler interval must be greater than or equal to 1000 ms")
	}
	if o.TimerSchedulerLimit < 1 {
		return errors.New("timer scheduler limit must be greater than or equal to 1")
	}
	if o.TimerSchedulerLimit > 1000 {
		return errors.New("timer scheduler limit must be less than or equal to 1000")
	}

	return nil
}

// QueryOptions are used to limit or offset query results.
// The zero value does not affect a query.
type QueryOptions struct {
	// Limit specifies the maximum number of results to return.
	// If Limit <= 0, the option's DefaultQueryLimit is applied.
	Limit int
	// Offset specifies the number of results to skip, before returning any result.
	// If Offset <= 0, no results are skipped.
	Offset int
}

type Error struct {
	Type   ErrorType
	Title  string
	Detail string
	Causes []ErrorCause
}

func (e Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s: %s", e.Type, e.Title, e.Detail))

	for _, cause := range e.Causes {
		sb.WriteRune('\n')
		sb.WriteString(cause.String())
	}

	return sb.String()
}

// IsErrorType reports whether err is an [Error] of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var engineErr Error
	return errors.As(err, &engineErr) && engineErr.Type == errorType
}

type ErrorType int

const (
	ErrorActivityExecution ErrorType = iota + 1
	ErrorBug
	ErrorConflict
	ErrorDefinition
	ErrorNotFound
	ErrorQuery
	ErrorSecurity
	ErrorTimerExecution
	ErrorValidation
)

func MapErrorType(s string) ErrorType {
	switch s {
	case "ACTIVITY_EXECUTION":
		return ErrorActivityExecution
	case "BUG":
		return ErrorBug
	case "CONFLICT":
		return ErrorConflict
	case "DEFINITION":
		return ErrorDefinition
	case "NOT_FOUND":
		return ErrorNotFound
	case "QUERY":
		return ErrorQuery
	case "SECURITY":
		return ErrorSecurity
	case "TIMER_EXECUTION":
		return ErrorTimerExecution
	case "VALIDATION":
		return ErrorValidation
	default:
		return 0
	}
}

func (v ErrorType) String() string {
	switch v {
	case ErrorActivityExecution:
		return "ACTIVITY_EXECUTION"
	case ErrorBug:
		return "BUG"
	case ErrorConflict:
		return "CONFLICT"
	case ErrorDefinition:
		return "DEFINITION"
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorQuery:
		return "QUERY"
	case ErrorSecurity:
		return "SECURITY"
	case ErrorTimerExecution:
		return "TIMER_EXECUTION"
	case ErrorValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// A cause of a definition or validation [Error] like an unsupported node type or a missing sequence flow target.
type ErrorCause struct {
	Pointer string // A pointer, locating the invalid node or sequence flow.
	Type    string // Type indicator.
	Detail  string // Human-readable, detailed information about the cause.
}

func (e ErrorCause) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Pointer, e.Detail)
}
