package engine

import (
	"time"
)

// BroadcastSignalCmd provides data for broadcasting a signal.
type BroadcastSignalCmd struct {
	// Signal name.
	Name string `json:"name" validate:"required"`
	// Variables to merge into each notified process instance.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
	// ID of the worker or user that broadcasts the signal.
	CreatedBy string `json:"createdBy" validate:"required"`
}

// ClaimUserTaskCmd provides data for claiming a user task.
type ClaimUserTaskCmd struct {
	// User task ID.
	Id int64 `json:"-"`

	// ID of the user that claims the task.
	UserId string `json:"userId" validate:"required"`
}

// CompleteExternalTaskCmd provides data for the completion of a locked external task.
type CompleteExternalTaskCmd struct {
	// External task ID.
	Id int64 `json:"-"`

	// Variables to merge into the process instance.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// CompleteUserTaskCmd provides data for the completion of a user task.
type CompleteUserTaskCmd struct {
	// User task ID.
	Id int64 `json:"-"`

	// Optional ID of the completing user. If the task is reserved, it must equal the assignee.
	UserId string `json:"userId,omitempty"`
	// Variables to merge into the process instance.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
}

// DeployProcessCmd provides data for the deployment of a process definition.
type DeployProcessCmd struct {
	// BPMN 2.0 XML or a graph document (JSON or YAML).
	Source string `json:"source" validate:"required"`
	// Optional name, which overrides the name of the process element.
	Name string `json:"name,omitempty"`
	// Optional tenant ID.
	TenantId string `json:"tenantId,omitempty"`
	// ID of the user that deploys the process definition.
	CreatedBy string `json:"createdBy" validate:"required"`
}

// ExecuteTimersCmd specifies which due timer jobs are claimed and fired.
type ExecuteTimersCmd struct {
	// Optional process instance condition.
	ProcessInstanceId int64 `json:"processInstanceId,omitempty"`
	// Maximum number of timer jobs to claim and fire. If `0`, the timer scheduler limit is applied.
	Limit int `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// FailExternalTaskCmd provides data for failing a locked external task.
type FailExternalTaskCmd struct {
	// External task ID.
	Id int64 `json:"-"`

	// Error, describing the failure.
	Error string `json:"error" validate:"required"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// GetProcessVariablesCmd specifies the process instance, whose variables are returned.
type GetProcessVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId int64 `json:"processInstanceId" validate:"required"`
}

// LockExternalTasksCmd specifies which external tasks are locked by a worker.
type LockExternalTasksCmd struct {
	// Topic condition.
	Topic string `json:"topic" validate:"required"`
	// Maximum number of tasks to lock.
	Limit int `json:"limit" validate:"gte=1,lte=1000"`
	// Duration of the lock. After the lock expired, another worker can lock the task. Defaults to 5 minutes.
	LockDuration ISO8601Duration `json:"lockDuration,omitempty" validate:"iso8601_duration"`
	// ID of the worker that locks the tasks.
	WorkerId string `json:"workerId" validate:"required"`
}

// ResolveIncidentCmd provides data for the resolution of an incident.
type ResolveIncidentCmd struct {
	// Incident ID.
	Id int64 `json:"-"`

	// Determines if the failed activity is executed again.
	Retry bool `json:"retry"`
	// Optional notes.
	Notes string `json:"notes,omitempty"`
	// ID of the user that resolves the incident.
	UserId string `json:"userId" validate:"required"`
}

// ResumeProcessInstanceCmd provides data for resuming a suspended process instance.
type ResumeProcessInstanceCmd struct {
	// Process instance ID.
	Id int64 `json:"-"`

	// ID of the user that resumes the process instance.
	UserId string `json:"userId" validate:"required"`
}

// SendMessageCmd provides data for sending a message.
type SendMessageCmd struct {
	// Message name.
	Name string `json:"name" validate:"required"`
	// Optional key, used to select subscribers. If empty, all subscribers of the message name are notified.
	CorrelationKey string `json:"correlationKey,omitempty"`
	// Optional key, which identifies the message. A message with a known unique key is not delivered again.
	UniqueKey string `json:"uniqueKey,omitempty"`
	// Variables to merge into each notified process instance.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
	// ID of the worker or user that sends the message.
	CreatedBy string `json:"createdBy" validate:"required"`
}

// SetProcessVariablesCmd provides data for setting or deleting process variables.
type SetProcessVariablesCmd struct {
	// Process instance ID.
	ProcessInstanceId int64 `json:"-"`

	// Variables to set. A variable with a nil value is deleted.
	Variables map[string]any `json:"variables" validate:"required,max=100"`
	// ID of the user that sets the variables.
	UserId string `json:"userId" validate:"required"`
}

// SetTimeCmd moves the engine's time forward.
type SetTimeCmd struct {
	// A future point in time.
	Time time.Time `json:"time" validate:"required"`
}

// StartProcessCmd provides data for starting a process instance.
type StartProcessCmd struct {
	// Key of the process definition.
	DefinitionKey string `json:"definitionKey" validate:"required"`
	// Optional version. If `0`, the latest version is started.
	Version int `json:"version,omitempty" validate:"gte=0"`
	// Optional key, used to correlate a process instance with a business entity.
	BusinessKey string `json:"businessKey,omitempty"`
	// Optional tenant ID.
	TenantId string `json:"tenantId,omitempty"`
	// Initial process variables.
	Variables map[string]any `json:"variables,omitempty" validate:"max=100"`
	// ID of the user that starts the process instance.
	CreatedBy string `json:"createdBy" validate:"required"`
}

// SuspendProcessInstanceCmd provides data for suspending an active process instance.
type SuspendProcessInstanceCmd struct {
	// Process instance ID.
	Id int64 `json:"-"`

	// ID of the user that suspends the process instance.
	UserId string `json:"userId" validate:"required"`
}

// TerminateProcessInstanceCmd provides data for terminating a process instance.
type TerminateProcessInstanceCmd struct {
	// Process instance ID.
	Id int64 `json:"-"`

	// Optional reason.
	Reason string `json:"reason,omitempty"`
	// ID of the user that terminates the process instance.
	UserId string `json:"userId" validate:"required"`
}

// UnclaimUserTaskCmd provides data for releasing a reserved user task.
type UnclaimUserTaskCmd struct {
	// User task ID.
	Id int64 `json:"-"`

	// ID of the assignee.
	UserId string `json:"userId" validate:"required"`
}
