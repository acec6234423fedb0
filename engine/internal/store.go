package internal

import (
	"context"
	"slices"
	"time"
)

// Store is the persistence collaborator of the engine.
//
// Repositories return [pgx.ErrNoRows], when a single entity cannot be selected.
// Entities are only written via [Store.Flush].
type Store interface {
	ActivityInstances() ActivityInstanceRepository
	ExternalTasks() ExternalTaskRepository
	Incidents() IncidentRepository
	Messages() MessageRepository
	ProcessDefinitions() ProcessDefinitionRepository
	ProcessInstances() ProcessInstanceRepository
	Signals() SignalRepository
	TimerJobs() TimerJobRepository
	UserTasks() UserTaskRepository

	// Flush inserts or updates all entities of a batch within a single transaction.
	Flush(context.Context, *Batch) error

	Close()
}

// Batch collects the entity writes of a single trigger.
// An entity, which is put more than once, is written once with its latest state.
type Batch struct {
	ActivityInstances  map[int64]*ActivityInstanceEntity
	ExternalTasks      map[int64]*ExternalTaskEntity
	Incidents          map[int64]*IncidentEntity
	Messages           map[int64]*MessageEventEntity
	ProcessDefinitions map[int64]*ProcessDefinitionEntity
	ProcessInstances   map[int64]*ProcessInstanceEntity
	Signals            map[int64]*SignalEventEntity
	TimerJobs          map[int64]*TimerJobEntity
	UserTasks          map[int64]*UserTaskEntity

	afterFlush []func()
}

func (b *Batch) PutActivityInstance(e *ActivityInstanceEntity) {
	b.ActivityInstances = put(b.ActivityInstances, e.Id, e)
}

func (b *Batch) PutExternalTask(e *ExternalTaskEntity) {
	b.ExternalTasks = put(b.ExternalTasks, e.Id, e)
}

func (b *Batch) PutIncident(e *IncidentEntity) {
	b.Incidents = put(b.Incidents, e.Id, e)
}

func (b *Batch) PutMessage(e *MessageEventEntity) {
	b.Messages = put(b.Messages, e.Id, e)
}

func (b *Batch) PutProcessDefinition(e *ProcessDefinitionEntity) {
	b.ProcessDefinitions = put(b.ProcessDefinitions, e.Id, e)
}

func (b *Batch) PutProcessInstance(e *ProcessInstanceEntity) {
	b.ProcessInstances = put(b.ProcessInstances, e.Id, e)
}

func (b *Batch) PutSignal(e *SignalEventEntity) {
	b.Signals = put(b.Signals, e.Id, e)
}

func (b *Batch) PutTimerJob(e *TimerJobEntity) {
	b.TimerJobs = put(b.TimerJobs, e.Id, e)
}

func (b *Batch) PutUserTask(e *UserTaskEntity) {
	b.UserTasks = put(b.UserTasks, e.Id, e)
}

// AfterFlush registers a function, which is called after the batch has been flushed successfully.
func (b *Batch) AfterFlush(f func()) {
	b.afterFlush = append(b.afterFlush, f)
}

func (b *Batch) IsEmpty() bool {
	return len(b.ActivityInstances) == 0 &&
		len(b.ExternalTasks) == 0 &&
		len(b.Incidents) == 0 &&
		len(b.Messages) == 0 &&
		len(b.ProcessDefinitions) == 0 &&
		len(b.ProcessInstances) == 0 &&
		len(b.Signals) == 0 &&
		len(b.TimerJobs) == 0 &&
		len(b.UserTasks) == 0
}

func (b *Batch) flushed() {
	for _, f := range b.afterFlush {
		f()
	}
	b.afterFlush = nil
}

func put[T any](m map[int64]*T, id int64, e *T) map[int64]*T {
	if m == nil {
		m = make(map[int64]*T)
	}
	m[id] = e
	return m
}

// Sorted returns the entities of a batch map, ordered by ID.
// Since IDs are snowflakes, the order equals the creation order.
func Sorted[T any](m map[int64]*T) []*T {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	entities := make([]*T, len(ids))
	for i, id := range ids {
		entities[i] = m[id]
	}
	return entities
}

// TimerJobLock specifies which due timer jobs are locked.
type TimerJobLock struct {
	ProcessInstanceId int64 // Optional process instance condition.
	Limit             int
	Now               time.Time
	EngineId          string
}

// ExternalTaskLock specifies which external tasks are locked by a worker.
type ExternalTaskLock struct {
	Topic         string
	Limit         int
	Now           time.Time
	LockExpiresAt time.Time
	WorkerId      string
}
