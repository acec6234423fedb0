package mem

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

func New(customizers ...func(*Options)) (engine.Engine, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	e, err := internal.New(context.Background(), newMemStore(), options.Common)
	if err != nil {
		return nil, fmt.Errorf("failed to create mem engine: %v", err)
	}
	return e, nil
}

func NewOptions() Options {
	common := engine.NewOptions()
	common.EngineId = "mem-engine"

	return Options{Common: common}
}

type Options struct {
	Common engine.Options // Common options
}

func (o Options) Validate() error {
	return o.Common.Validate()
}

// memStore implements [internal.Store]. Entities are stored as values and copied, when selected.
type memStore struct {
	mutex sync.RWMutex

	activityInstances  map[int64]internal.ActivityInstanceEntity
	externalTasks      map[int64]internal.ExternalTaskEntity
	incidents          map[int64]internal.IncidentEntity
	messages           map[int64]internal.MessageEventEntity
	processDefinitions map[int64]internal.ProcessDefinitionEntity
	processInstances   map[int64]internal.ProcessInstanceEntity
	signals            map[int64]internal.SignalEventEntity
	timerJobs          map[int64]internal.TimerJobEntity
	userTasks          map[int64]internal.UserTaskEntity
}

func newMemStore() *memStore {
	s := memStore{}
	s.clear()
	return &s
}

func (s *memStore) ActivityInstances() internal.ActivityInstanceRepository {
	return activityInstanceRepository{s: s}
}

func (s *memStore) ExternalTasks() internal.ExternalTaskRepository {
	return externalTaskRepository{s: s}
}

func (s *memStore) Incidents() internal.IncidentRepository {
	return incidentRepository{s: s}
}

func (s *memStore) Messages() internal.MessageRepository {
	return messageRepository{s: s}
}

func (s *memStore) ProcessDefinitions() internal.ProcessDefinitionRepository {
	return processDefinitionRepository{s: s}
}

func (s *memStore) ProcessInstances() internal.ProcessInstanceRepository {
	return processInstanceRepository{s: s}
}

func (s *memStore) Signals() internal.SignalRepository {
	return signalRepository{s: s}
}

func (s *memStore) TimerJobs() internal.TimerJobRepository {
	return timerJobRepository{s: s}
}

func (s *memStore) UserTasks() internal.UserTaskRepository {
	return userTaskRepository{s: s}
}

// Flush writes all entities of a batch. Either all entities are written or none.
func (s *memStore) Flush(_ context.Context, batch *internal.Batch) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, e := range batch.ProcessDefinitions {
		for _, existing := range s.processDefinitions {
			if existing.Id != e.Id && existing.Key == e.Key && existing.TenantId == e.TenantId && existing.Version == e.Version {
				return engine.Error{
					Type:   engine.ErrorConflict,
					Title:  "failed to flush batch",
					Detail: fmt.Sprintf("process definition %s:%d already exists", e.Key, e.Version),
				}
			}
		}
	}
	for _, e := range batch.Messages {
		if !e.UniqueKey.Valid {
			continue
		}
		for _, existing := range s.messages {
			if existing.Id != e.Id && existing.Name == e.Name && existing.UniqueKey == e.UniqueKey {
				return engine.Error{
					Type:   engine.ErrorConflict,
					Title:  "failed to flush batch",
					Detail: fmt.Sprintf("message %s with unique key %s already exists", e.Name, e.UniqueKey.String),
				}
			}
		}
	}

	for id, e := range batch.ActivityInstances {
		s.activityInstances[id] = *e
	}
	for id, e := range batch.ExternalTasks {
		c := *e
		c.Variables = internal.CopyVariables(e.Variables)
		s.externalTasks[id] = c
	}
	for id, e := range batch.Incidents {
		s.incidents[id] = *e
	}
	for id, e := range batch.Messages {
		c := *e
		c.Variables = internal.CopyVariables(e.Variables)
		s.messages[id] = c
	}
	for id, e := range batch.ProcessDefinitions {
		s.processDefinitions[id] = *e
	}
	for id, e := range batch.ProcessInstances {
		c := *e
		c.Variables = internal.CopyVariables(e.Variables)
		s.processInstances[id] = c
	}
	for id, e := range batch.Signals {
		c := *e
		c.Variables = internal.CopyVariables(e.Variables)
		s.signals[id] = c
	}
	for id, e := range batch.TimerJobs {
		s.timerJobs[id] = *e
	}
	for id, e := range batch.UserTasks {
		c := *e
		c.CandidateGroups = slices.Clone(e.CandidateGroups)
		c.CandidateUsers = slices.Clone(e.CandidateUsers)
		c.Variables = internal.CopyVariables(e.Variables)
		s.userTasks[id] = c
	}

	return nil
}

func (s *memStore) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clear()
}

func (s *memStore) clear() {
	s.activityInstances = make(map[int64]internal.ActivityInstanceEntity)
	s.externalTasks = make(map[int64]internal.ExternalTaskEntity)
	s.incidents = make(map[int64]internal.IncidentEntity)
	s.messages = make(map[int64]internal.MessageEventEntity)
	s.processDefinitions = make(map[int64]internal.ProcessDefinitionEntity)
	s.processInstances = make(map[int64]internal.ProcessInstanceEntity)
	s.signals = make(map[int64]internal.SignalEventEntity)
	s.timerJobs = make(map[int64]internal.TimerJobEntity)
	s.userTasks = make(map[int64]internal.UserTaskEntity)
}

// sortedIds returns the IDs of an entity map in ascending order.
func sortedIds[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// query applies a filter to the entities of a map, ordered by ID, and pages the results.
func query[T any, R any](m map[int64]T, o engine.QueryOptions, filter func(T) bool, mapper func(T) R) []R {
	var (
		results []R
		offset  int
	)

	for _, id := range sortedIds(m) {
		e := m[id]
		if !filter(e) {
			continue
		}

		if offset < o.Offset {
			offset++
			continue
		}

		results = append(results, mapper(e))

		if o.Limit > 0 && len(results) == o.Limit {
			break
		}
	}

	return results
}
