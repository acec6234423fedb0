package common

import (
	"strconv"
	"strings"
)

const (
	ContentTypeJson        = "application/json"
	ContentTypeProblemJson = "application/problem+json"

	HeaderContentType = "Content-Type"

	PathActivityInstancesQuery = "/activity-instances/query"

	PathExternalTasksComplete = "/external-tasks/{id}/complete"
	PathExternalTasksFail     = "/external-tasks/{id}/fail"
	PathExternalTasksLock     = "/external-tasks/lock"
	PathExternalTasksQuery    = "/external-tasks/query"

	PathIncidentsQuery   = "/incidents/query"
	PathIncidentsResolve = "/incidents/{id}/resolve"

	PathMessages      = "/messages"
	PathMessagesQuery = "/messages/query"

	PathProcessDefinitions      = "/process-definitions"
	PathProcessDefinitionsQuery = "/process-definitions/query"

	PathProcessInstances          = "/process-instances"
	PathProcessInstancesQuery     = "/process-instances/query"
	PathProcessInstancesResume    = "/process-instances/{id}/resume"
	PathProcessInstancesSuspend   = "/process-instances/{id}/suspend"
	PathProcessInstancesTerminate = "/process-instances/{id}/terminate"
	PathProcessInstancesVariables = "/process-instances/{id}/variables"

	PathSignals      = "/signals"
	PathSignalsQuery = "/signals/query"

	PathTimerJobsExecute = "/timer-jobs/execute"
	PathTimerJobsQuery   = "/timer-jobs/query"

	PathUserTasksClaim    = "/user-tasks/{id}/claim"
	PathUserTasksComplete = "/user-tasks/{id}/complete"
	PathUserTasksQuery    = "/user-tasks/query"
	PathUserTasksUnclaim  = "/user-tasks/{id}/unclaim"

	PathReadiness = "/readiness"
	PathTime      = "/time"

	QueryLimit  = "limit"
	QueryOffset = "offset"
)

// ResolvePath replaces the {id} parameter of a path, e.g. /user-tasks/{id}/claim -> /user-tasks/1/claim.
func ResolvePath(path string, id int64) string {
	return strings.Replace(path, "{id}", strconv.FormatInt(id, 10), 1)
}
