package common

import "github.com/zensgit/metasheet2-sub006/engine"

// Response of a timer job execution.
type ExecuteTimersRes struct {
	Locked    int `json:"locked"`    // Number of claimed timer jobs.
	Completed int `json:"completed"` // Number of fired timer jobs.
	Failed    int `json:"failed"`    // Number of timer jobs, whose execution failed.

	CompletedTimerJobs []engine.TimerJob `json:"completedTimerJobs"`
	FailedTimerJobs    []engine.TimerJob `json:"failedTimerJobs"`
}

// Response of an external task locking.
type LockExternalTasksRes struct {
	Count         int                   `json:"count"`         // Number of locked tasks.
	ExternalTasks []engine.ExternalTask `json:"externalTasks"` // Locked tasks.
}

// Process instance variables response.
type GetVariablesRes struct {
	Count     int            `json:"count"`
	Variables map[string]any `json:"variables"`
}

// QueryRes is the response of any query, e.g. QueryRes[engine.Incident] for an incident query.
type QueryRes[T any] struct {
	Count   int `json:"count"` // Number of results.
	Results []T `json:"results"`
}

func NewQueryRes[T any](results []T) QueryRes[T] {
	if results == nil {
		results = make([]T, 0)
	}
	return QueryRes[T]{Count: len(results), Results: results}
}
