package engine

import (
	"fmt"
)

// ActivityState describes the states of an activity instance.
type ActivityState int

const (
	ActivityActive ActivityState = iota + 1
	ActivityCompleted
	ActivityFailed
	ActivityTerminated
)

func MapActivityState(s string) ActivityState {
	switch s {
	case "ACTIVE":
		return ActivityActive
	case "COMPLETED":
		return ActivityCompleted
	case "FAILED":
		return ActivityFailed
	case "TERMINATED":
		return ActivityTerminated
	default:
		return 0
	}
}

func (v ActivityState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v ActivityState) String() string {
	switch v {
	case ActivityActive:
		return "ACTIVE"
	case ActivityCompleted:
		return "COMPLETED"
	case ActivityFailed:
		return "FAILED"
	case ActivityTerminated:
		return "TERMINATED"
	default:
		return ""
	}
}

func (v *ActivityState) UnmarshalText(data []byte) error {
	*v = MapActivityState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid activity state %s", string(data))
	}
	return nil
}

// EventState describes if a message or signal has been delivered to at least one subscriber.
type EventState int

const (
	EventDelivered EventState = iota + 1
	EventUndelivered
)

func MapEventState(s string) EventState {
	switch s {
	case "DELIVERED":
		return EventDelivered
	case "UNDELIVERED":
		return EventUndelivered
	default:
		return 0
	}
}

func (v EventState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v EventState) String() string {
	switch v {
	case EventDelivered:
		return "DELIVERED"
	case EventUndelivered:
		return "UNDELIVERED"
	default:
		return ""
	}
}

func (v *EventState) UnmarshalText(data []byte) error {
	*v = MapEventState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid event state %s", string(data))
	}
	return nil
}

// ExternalTaskState describes the states of an external task.
type ExternalTaskState int

const (
	ExternalTaskCanceled ExternalTaskState = iota + 1
	ExternalTaskCompleted
	ExternalTaskCreated
	ExternalTaskFailed
	ExternalTaskLocked
)

func MapExternalTaskState(s string) ExternalTaskState {
	switch s {
	case "CANCELED":
		return ExternalTaskCanceled
	case "COMPLETED":
		return ExternalTaskCompleted
	case "CREATED":
		return ExternalTaskCreated
	case "FAILED":
		return ExternalTaskFailed
	case "LOCKED":
		return ExternalTaskLocked
	default:
		return 0
	}
}

func (v ExternalTaskState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v ExternalTaskState) String() string {
	switch v {
	case ExternalTaskCanceled:
		return "CANCELED"
	case ExternalTaskCompleted:
		return "COMPLETED"
	case ExternalTaskCreated:
		return "CREATED"
	case ExternalTaskFailed:
		return "FAILED"
	case ExternalTaskLocked:
		return "LOCKED"
	default:
		return ""
	}
}

func (v *ExternalTaskState) UnmarshalText(data []byte) error {
	*v = MapExternalTaskState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid external task state %s", string(data))
	}
	return nil
}

// IncidentState describes the states of an incident.
type IncidentState int

const (
	IncidentOpen IncidentState = iota + 1
	IncidentResolved
)

func MapIncidentState(s string) IncidentState {
	switch s {
	case "OPEN":
		return IncidentOpen
	case "RESOLVED":
		return IncidentResolved
	default:
		return 0
	}
}

func (v IncidentState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v IncidentState) String() string {
	switch v {
	case IncidentOpen:
		return "OPEN"
	case IncidentResolved:
		return "RESOLVED"
	default:
		return ""
	}
}

func (v *IncidentState) UnmarshalText(data []byte) error {
	*v = MapIncidentState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid incident state %s", string(data))
	}
	return nil
}

// IncidentType describes the cause of an incident.
type IncidentType int

const (
	IncidentFailedExternalTask IncidentType = iota + 1
	IncidentFailedJob
	IncidentTimeoutError
	IncidentUnhandledError
)

func MapIncidentType(s string) IncidentType {
	switch s {
	case "failedExternalTask":
		return IncidentFailedExternalTask
	case "failedJob":
		return IncidentFailedJob
	case "timeoutError":
		return IncidentTimeoutError
	case "unhandledError":
		return IncidentUnhandledError
	default:
		return 0
	}
}

func (v IncidentType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v IncidentType) String() string {
	switch v {
	case IncidentFailedExternalTask:
		return "failedExternalTask"
	case IncidentFailedJob:
		return "failedJob"
	case IncidentTimeoutError:
		return "timeoutError"
	case IncidentUnhandledError:
		return "unhandledError"
	default:
		return ""
	}
}

func (v *IncidentType) UnmarshalText(data []byte) error {
	*v = MapIncidentType(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid incident type %s", string(data))
	}
	return nil
}

// InstanceState describes the states of a process instance.
type InstanceState int

const (
	InstanceActive InstanceState = iota + 1
	InstanceCompleted
	InstanceSuspended
	InstanceTerminated
)

func MapInstanceState(s string) InstanceState {
	switch s {
	case "ACTIVE":
		return InstanceActive
	case "COMPLETED":
		return InstanceCompleted
	case "SUSPENDED":
		return InstanceSuspended
	case "TERMINATED":
		return InstanceTerminated
	default:
		return 0
	}
}

func (v InstanceState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v InstanceState) String() string {
	switch v {
	case InstanceActive:
		return "ACTIVE"
	case InstanceCompleted:
		return "COMPLETED"
	case InstanceSuspended:
		return "SUSPENDED"
	case InstanceTerminated:
		return "TERMINATED"
	default:
		return ""
	}
}

func (v *InstanceState) UnmarshalText(data []byte) error {
	*v = MapInstanceState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid instance state %s", string(data))
	}
	return nil
}

// TimerState describes the states of a timer job.
type TimerState int

const (
	TimerCanceled TimerState = iota + 1
	TimerCompleted
	TimerFailed
	TimerLocked
	TimerWaiting
)

func MapTimerState(s string) TimerState {
	switch s {
	case "CANCELED":
		return TimerCanceled
	case "COMPLETED":
		return TimerCompleted
	case "FAILED":
		return TimerFailed
	case "LOCKED":
		return TimerLocked
	case "WAITING":
		return TimerWaiting
	default:
		return 0
	}
}

func (v TimerState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v TimerState) String() string {
	switch v {
	case TimerCanceled:
		return "CANCELED"
	case TimerCompleted:
		return "COMPLETED"
	case TimerFailed:
		return "FAILED"
	case TimerLocked:
		return "LOCKED"
	case TimerWaiting:
		return "WAITING"
	default:
		return ""
	}
}

func (v *TimerState) UnmarshalText(data []byte) error {
	*v = MapTimerState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid timer state %s", string(data))
	}
	return nil
}

// TimerType describes how the due time of a timer job is determined.
type TimerType int

const (
	TimerCycle TimerType = iota + 1
	TimerDate
	TimerDuration
)

func MapTimerType(s string) TimerType {
	switch s {
	case "CYCLE":
		return TimerCycle
	case "DATE":
		return TimerDate
	case "DURATION":
		return TimerDuration
	default:
		return 0
	}
}

func (v TimerType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v TimerType) String() string {
	switch v {
	case TimerCycle:
		return "CYCLE"
	case TimerDate:
		return "DATE"
	case TimerDuration:
		return "DURATION"
	default:
		return ""
	}
}

func (v *TimerType) UnmarshalText(data []byte) error {
	*v = MapTimerType(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid timer type %s", string(data))
	}
	return nil
}

// UserTaskState describes the states of a user task.
type UserTaskState int

const (
	UserTaskCancelled UserTaskState = iota + 1
	UserTaskCompleted
	UserTaskReady
	UserTaskReserved
)

func MapUserTaskState(s string) UserTaskState {
	switch s {
	case "CANCELLED":
		return UserTaskCancelled
	case "COMPLETED":
		return UserTaskCompleted
	case "READY":
		return UserTaskReady
	case "RESERVED":
		return UserTaskReserved
	default:
		return 0
	}
}

func (v UserTaskState) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v UserTaskState) String() string {
	switch v {
	case UserTaskCancelled:
		return "CANCELLED"
	case UserTaskCompleted:
		return "COMPLETED"
	case UserTaskReady:
		return "READY"
	case UserTaskReserved:
		return "RESERVED"
	default:
		return ""
	}
}

func (v *UserTaskState) UnmarshalText(data []byte) error {
	*v = MapUserTaskState(string(data))
	if *v == 0 {
		return fmt.Errorf("invalid user task state %s", string(data))
	}
	return nil
}
