package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zensgit/metasheet2-sub006/model"
)

// ActivityInstance is the execution record of a single visit of a node within a process instance.
// Concurrent activity instances of a process instance represent parallel branches.
type ActivityInstance struct {
	Id int64 `json:"id"` // Activity instance ID.

	ProcessInstanceId   int64 `json:"processInstanceId"`   // ID of the enclosing process instance.
	ProcessDefinitionId int64 `json:"processDefinitionId"` // ID of the related process definition.

	ActivityId   string         `json:"activityId"`       // ID of the node within the process definition.
	ActivityType model.NodeType `json:"activityType"`     // Node type.
	EndedAt      *time.Time     `json:"endedAt,omitempty"` // End time.
	FlowId       string         `json:"flowId,omitempty"` // ID of the sequence flow, the activity has been entered through.
	Name         string         `json:"name,omitempty"`   // Node name.
	StartedAt    time.Time      `json:"startedAt"`        // Start time.
	State        ActivityState  `json:"state"`            // Current state.
}

func (v ActivityInstance) IsEnded() bool {
	return v.EndedAt != nil
}

func (v ActivityInstance) String() string {
	return fmt.Sprintf("%d/%s", v.Id, v.ActivityId)
}

// ActivityInstanceCriteria specifies the results, returned by an activity instance query.
type ActivityInstanceCriteria struct {
	Id int64 `json:"id,omitempty"` // Activity instance filter.

	ProcessInstanceId int64         `json:"processInstanceId,omitempty"` // Process instance filter.
	ActivityId        string        `json:"activityId,omitempty"`        // Node filter.
	State             ActivityState `json:"state,omitempty"`             // State filter.
}

// ExternalTask is a unit of work, created by an external service task, which is locked and completed by a worker.
type ExternalTask struct {
	Id int64 `json:"id"` // External task ID.

	ProcessInstanceId  int64 `json:"processInstanceId"`  // ID of the enclosing process instance.
	ActivityInstanceId int64 `json:"activityInstanceId"` // ID of the service task's activity instance.

	ActivityId    string            `json:"activityId"`              // ID of the service task node.
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`   // Completion time.
	CreatedAt     time.Time         `json:"createdAt"`               // Creation time.
	Error         string            `json:"error,omitempty"`         // Error, reported by a worker.
	LockedAt      *time.Time        `json:"lockedAt,omitempty"`      // Lock time.
	LockedBy      string            `json:"lockedBy,omitempty"`      // ID of the worker that locked the task.
	LockExpiresAt *time.Time        `json:"lockExpiresAt,omitempty"` // Point in time, when the lock expires.
	State         ExternalTaskState `json:"state"`                   // Current state.
	Topic         string            `json:"topic"`                   // Topic, used by workers to lock tasks.
	Variables     map[string]any    `json:"variables,omitempty"`     // Snapshot of the process variables at creation time.
}

func (v ExternalTask) String() string {
	return fmt.Sprintf("%d/%s", v.Id, v.Topic)
}

// ExternalTaskCriteria specifies the results, returned by an external task query.
type ExternalTaskCriteria struct {
	Id int64 `json:"id,omitempty"` // External task filter.

	ProcessInstanceId int64             `json:"processInstanceId,omitempty"` // Process instance filter.
	State             ExternalTaskState `json:"state,omitempty"`             // State filter.
	Topic             string            `json:"topic,omitempty"`             // Topic filter.
}

// Incident is the record of an activity execution failure. It does not abort the process instance.
type Incident struct {
	Id int64 `json:"id"` // Incident ID.

	ProcessInstanceId  int64 `json:"processInstanceId"`            // ID of the enclosing process instance.
	ActivityInstanceId int64 `json:"activityInstanceId,omitempty"` // ID of the failed activity instance.
	ExternalTaskId     int64 `json:"externalTaskId,omitempty"`     // ID of the failed external task.

	ActivityId string        `json:"activityId"`           // ID of the failed node.
	CreatedAt  time.Time     `json:"createdAt"`            // Creation time.
	CreatedBy  string        `json:"createdBy"`            // ID of the engine or worker that caused the incident.
	Message    string        `json:"message"`              // Error message.
	Notes      string        `json:"notes,omitempty"`      // Notes of the resolution.
	ResolvedAt *time.Time    `json:"resolvedAt,omitempty"` // Resolution time.
	ResolvedBy string        `json:"resolvedBy,omitempty"` // ID of the user that resolved the incident.
	State      IncidentState `json:"state"`                // Current state.
	Type       IncidentType  `json:"type"`                 // Incident type.
}

func (v Incident) IsResolved() bool {
	return v.State == IncidentResolved
}

func (v Incident) String() string {
	return strconv.FormatInt(v.Id, 10)
}

// IncidentCriteria specifies the results, returned by an incident query.
type IncidentCriteria struct {
	Id int64 `json:"id,omitempty"` // Incident filter.

	ProcessInstanceId int64         `json:"processInstanceId,omitempty"` // Process instance filter.
	State             IncidentState `json:"state,omitempty"`             // State filter.
}

// MessageEvent is the delivery record of a sent message.
type MessageEvent struct {
	Id int64 `json:"id"` // Message ID.

	CorrelationKey string         `json:"correlationKey,omitempty"` // Key, used to select subscribers.
	CreatedAt      time.Time      `json:"createdAt"`                // Message sent time.
	CreatedBy      string         `json:"createdBy"`                // ID of the worker or user that sent the message.
	DeliveryCount  int            `json:"deliveryCount"`            // Number of notified subscribers.
	Name           string         `json:"name"`                     // Message name.
	State          EventState     `json:"state"`                    // Delivery state.
	UniqueKey      string         `json:"uniqueKey,omitempty"`      // Key that uniquely identifies the message.
	Variables      map[string]any `json:"variables,omitempty"`      // Payload.
}

func (v MessageEvent) String() string {
	return strconv.FormatInt(v.Id, 10)
}

// MessageCriteria specifies the results, returned by a message query.
type MessageCriteria struct {
	Id int64 `json:"id,omitempty"` // Message filter.

	Name string `json:"name,omitempty"` // Message name filter.
}

// ProcessDefinition is an immutable, versioned graph of nodes and sequence flows.
type ProcessDefinition struct {
	Id int64 `json:"id"` // Process definition ID.

	Checksum  string    `json:"checksum"`           // Checksum of the source.
	CreatedAt time.Time `json:"createdAt"`          // Deployment time.
	CreatedBy string    `json:"createdBy"`          // ID of the user that deployed the process definition.
	Key       string    `json:"key"`                // Key, identifying a logical process - the ID of the process element.
	Name      string    `json:"name,omitempty"`     // Name.
	TenantId  string    `json:"tenantId,omitempty"` // Tenant ID.
	Version   int       `json:"version"`            // Version, monotonically increasing per key and tenant.
}

func (v ProcessDefinition) String() string {
	return fmt.Sprintf("%d:%s:%d", v.Id, v.Key, v.Version)
}

// ProcessDefinitionCriteria specifies the results, returned by a process definition query.
type ProcessDefinitionCriteria struct {
	Id int64 `json:"id,omitempty"` // Process definition filter.

	Key      string `json:"key,omitempty"`      // Key filter.
	TenantId string `json:"tenantId,omitempty"` // Tenant filter.
}

// ProcessInstance is a running or ended execution of a process definition.
type ProcessInstance struct {
	Id int64 `json:"id"` // Process instance ID.

	ProcessDefinitionId int64 `json:"processDefinitionId"` // ID of the related process definition.

	BusinessKey       string         `json:"businessKey,omitempty"` // Key, used to correlate a process instance with a business entity.
	CreatedBy         string         `json:"createdBy"`             // ID of the user that started the process instance.
	DefinitionKey     string         `json:"definitionKey"`         // Key of the related process definition.
	DefinitionVersion int            `json:"definitionVersion"`     // Version of the related process definition.
	EndedAt           *time.Time     `json:"endedAt,omitempty"`     // End time.
	StartedAt         time.Time      `json:"startedAt"`             // Start time.
	State             InstanceState  `json:"state"`                 // Current state.
	TenantId          string         `json:"tenantId,omitempty"`    // Tenant ID.
	Variables         map[string]any `json:"variables,omitempty"`   // Process variables.
}

func (v ProcessInstance) IsEnded() bool {
	return v.State == InstanceCompleted || v.State == InstanceTerminated
}

func (v ProcessInstance) String() string {
	return strconv.FormatInt(v.Id, 10)
}

// ProcessInstanceCriteria specifies the results, returned by a process instance query.
type ProcessInstanceCriteria struct {
	Id int64 `json:"id,omitempty"` // Process instance filter.

	BusinessKey         string        `json:"businessKey,omitempty"`         // Business key filter.
	DefinitionKey       string        `json:"definitionKey,omitempty"`       // Process definition key filter.
	ProcessDefinitionId int64         `json:"processDefinitionId,omitempty"` // Process definition filter.
	State               InstanceState `json:"state,omitempty"`               // State filter.
	TenantId            string        `json:"tenantId,omitempty"`            // Tenant filter.
}

// SignalEvent is the delivery record of a broadcasted signal.
type SignalEvent struct {
	Id int64 `json:"id"` // Signal ID.

	CreatedAt       time.Time      `json:"createdAt"`           // Signal sent time.
	CreatedBy       string         `json:"createdBy"`           // ID of the worker or user that sent the signal.
	Name            string         `json:"name"`                // Signal name.
	State           EventState     `json:"state"`               // Delivery state.
	SubscriberCount int            `json:"subscriberCount"`     // Number of notified subscribers.
	Variables       map[string]any `json:"variables,omitempty"` // Payload.
}

func (v SignalEvent) String() string {
	return strconv.FormatInt(v.Id, 10)
}

// SignalCriteria specifies the results, returned by a signal query.
type SignalCriteria struct {
	Id int64 `json:"id,omitempty"` // Signal filter.

	Name string `json:"name,omitempty"` // Signal name filter.
}

// TimerJob is a scheduled resumption of a timer catch event.
type TimerJob struct {
	Id int64 `json:"id"` // Timer job ID.

	ProcessInstanceId  int64 `json:"processInstanceId"`  // ID of the enclosing process instance.
	ActivityInstanceId int64 `json:"activityInstanceId"` // ID of the activity instance, that waits for the timer.

	ActivityId  string     `json:"activityId"`            // ID of the timer catch event node.
	CompletedAt *time.Time `json:"completedAt,omitempty"` // Completion time.
	CreatedAt   time.Time  `json:"createdAt"`             // Creation time.
	Definition  string     `json:"definition"`            // Resolved timer value - an ISO 8601 duration, a RFC 3339 time, a CRON expression or a repeating interval.
	DueAt       time.Time  `json:"dueAt"`                 // Point in time when the timer job can be claimed.
	Error       string     `json:"error,omitempty"`       // Error of the last failed attempt.
	LockedAt    *time.Time `json:"lockedAt,omitempty"`    // Lock time.
	LockedBy    string     `json:"lockedBy,omitempty"`    // ID of the engine that claimed the timer job.
	Repetitions int        `json:"repetitions,omitempty"` // Remaining repetitions of a cycle timer, -1 if unbounded.
	RetryCount  int        `json:"retryCount"`            // Number of failed attempts.
	Retries     int        `json:"retries"`               // Number of remaining retries.
	State       TimerState `json:"state"`                 // Current state.
	Type        TimerType  `json:"type"`                  // Timer type.
}

func (v TimerJob) HasError() bool {
	return v.Error != ""
}

func (v TimerJob) IsLocked() bool {
	return v.State == TimerLocked
}

func (v TimerJob) String() string {
	return fmt.Sprintf("%d/%s", v.Id, v.ActivityId)
}

// TimerJobCriteria specifies the results, returned by a timer job query.
type TimerJobCriteria struct {
	Id int64 `json:"id,omitempty"` // Timer job filter.

	ProcessInstanceId int64      `json:"processInstanceId,omitempty"` // Process instance filter.
	State             TimerState `json:"state,omitempty"`             // State filter.
}

// UserTask is a task, performed by a human - created when a user task node is entered.
type UserTask struct {
	Id int64 `json:"id"` // User task ID.

	ProcessInstanceId  int64 `json:"processInstanceId"`  // ID of the enclosing process instance.
	ActivityInstanceId int64 `json:"activityInstanceId"` // ID of the spawning activity instance.

	ActivityId      string         `json:"activityId"`                // ID of the user task node.
	Assignee        string         `json:"assignee,omitempty"`        // ID of the user, the task is reserved for.
	CandidateGroups []string       `json:"candidateGroups,omitempty"` // Groups, whose members may claim the task.
	CandidateUsers  []string       `json:"candidateUsers,omitempty"`  // Users, who may claim the task.
	ClaimedAt       *time.Time     `json:"claimedAt,omitempty"`       // Time of the last claim.
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`     // Completion time.
	CompletedBy     string         `json:"completedBy,omitempty"`     // ID of the user that completed the task.
	CreatedAt       time.Time      `json:"createdAt"`                 // Creation time.
	FormKey         string         `json:"formKey,omitempty"`         // Key of the form to render.
	Name            string         `json:"name,omitempty"`            // Task name.
	State           UserTaskState  `json:"state"`                     // Current state.
	Variables       map[string]any `json:"variables,omitempty"`       // Variables, submitted on completion.
}

func (v UserTask) IsEnded() bool {
	return v.State == UserTaskCompleted || v.State == UserTaskCancelled
}

func (v UserTask) String() string {
	return fmt.Sprintf("%d/%s", v.Id, v.ActivityId)
}

// UserTaskCriteria specifies the results, returned by a user task query.
type UserTaskCriteria struct {
	Id int64 `json:"id,omitempty"` // User task filter.

	Assignee          string        `json:"assignee,omitempty"`          // Assignee filter.
	CandidateGroup    string        `json:"candidateGroup,omitempty"`    // Candidate group filter.
	CandidateUser     string        `json:"candidateUser,omitempty"`     // Candidate user filter.
	ProcessInstanceId int64         `json:"processInstanceId,omitempty"` // Process instance filter.
	State             UserTaskState `json:"state,omitempty"`             // State filter.
}
