package internal

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
)

// instanceState is the cached state of a running process instance.
type instanceState struct {
	instance      *ProcessInstanceEntity
	open          []*ActivityInstanceEntity // ACTIVE activity instances, ordered by ID
	openIncidents int
}

// clone returns a deep copy, which a trigger can modify, without affecting the cached state.
func (s *instanceState) clone() *instanceState {
	instance := *s.instance
	instance.Variables = cloneVariables(s.instance.Variables)

	open := make([]*ActivityInstanceEntity, len(s.open))
	for i, activityInstance := range s.open {
		c := *activityInstance
		open[i] = &c
	}

	return &instanceState{
		instance:      &instance,
		open:          open,
		openIncidents: s.openIncidents,
	}
}

func (s *instanceState) openById(id int64) *ActivityInstanceEntity {
	for _, activityInstance := range s.open {
		if activityInstance.Id == id {
			return activityInstance
		}
	}
	return nil
}

func (s *instanceState) addOpen(activityInstance *ActivityInstanceEntity) {
	s.open = append(s.open, activityInstance)
}

func (s *instanceState) removeOpen(id int64) {
	s.open = slices.DeleteFunc(s.open, func(activityInstance *ActivityInstanceEntity) bool {
		return activityInstance.Id == id
	})
}

// mergeVariables merges variables into the process instance variables. A nil value deletes a variable.
func (s *instanceState) mergeVariables(variables map[string]any, batch *Batch) error {
	if len(variables) == 0 {
		return nil
	}

	normalized, err := normalizeVariables(variables)
	if err != nil {
		return fmt.Errorf("failed to normalize variables: %v", err)
	}

	if s.instance.Variables == nil {
		s.instance.Variables = make(map[string]any, len(normalized))
	}
	mergeVariables(s.instance.Variables, normalized)

	batch.PutProcessInstance(s.instance)
	return nil
}

// instanceFunc is executed with the lock of a process instance held.
// State changes must be written to the batch.
type instanceFunc func(*instanceState, *Batch) error

// InstanceStore caches the state of running process instances and serializes their execution.
//
// A trigger is executed against a clone of the cached state. The clone replaces the cached state only after
// the trigger's batch has been flushed. A failed trigger or flush leaves the cached state untouched or drops it.
type InstanceStore struct {
	mutex sync.Mutex
	slots map[int64]*instanceSlot

	store Store
	flush func(context.Context, *Batch) error
}

type instanceSlot struct {
	mutex sync.Mutex
	refs  int // guarded by the store mutex
	state *instanceState
}

func NewInstanceStore(store Store, flush func(context.Context, *Batch) error) *InstanceStore {
	return &InstanceStore{
		slots: make(map[int64]*instanceSlot),
		store: store,
		flush: flush,
	}
}

// Execute executes fn under the lock of a process instance.
//
// If the process instance does not exist, [pgx.ErrNoRows] is returned.
func (s *InstanceStore) Execute(ctx context.Context, id int64, fn instanceFunc) error {
	slot := s.acquire(id)
	defer s.release(id, slot)

	if slot.state == nil {
		state, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		slot.state = state
	}

	state := slot.state.clone()

	var batch Batch
	if err := fn(state, &batch); err != nil {
		return err
	}

	if !batch.IsEmpty() {
		if err := s.flush(ctx, &batch); err != nil {
			slot.state = nil // reload, since the store state is unknown
			return err
		}
	}

	slot.state = state
	batch.flushed()
	return nil
}

// Create executes fn for a new process instance, which is not yet stored, under the lock of the process instance.
func (s *InstanceStore) Create(ctx context.Context, state *instanceState, fn instanceFunc) error {
	id := state.instance.Id

	slot := s.acquire(id)
	defer s.release(id, slot)

	var batch Batch
	if err := fn(state, &batch); err != nil {
		return err
	}
	if err := s.flush(ctx, &batch); err != nil {
		return err
	}

	slot.state = state
	batch.flushed()
	return nil
}

// Len returns the number of cached process instances.
func (s *InstanceStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.slots)
}

func (s *InstanceStore) acquire(id int64) *instanceSlot {
	s.mutex.Lock()
	slot, ok := s.slots[id]
	if !ok {
		slot = &instanceSlot{}
		s.slots[id] = slot
	}
	slot.refs++
	s.mutex.Unlock()

	slot.mutex.Lock()
	return slot
}

func (s *InstanceStore) release(id int64, slot *instanceSlot) {
	if slot.state != nil && slot.state.instance.isEnded() {
		slot.state = nil // evict terminal instance
	}
	evict := slot.state == nil
	slot.mutex.Unlock()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	slot.refs--
	if slot.refs == 0 && evict {
		delete(s.slots, id)
	}
}

func (s *InstanceStore) load(ctx context.Context, id int64) (*instanceState, error) {
	instance, err := s.store.ProcessInstances().Select(ctx, id)
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select process instance %d: %v", id, err)
	}

	open, err := s.store.ActivityInstances().SelectOpen(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to select open activity instances of process instance %d: %v", id, err)
	}

	incidents, err := s.store.Incidents().SelectOpen(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to select open incidents of process instance %d: %v", id, err)
	}

	if instance.Variables == nil {
		instance.Variables = make(map[string]any)
	}

	return &instanceState{
		instance:      instance,
		open:          open,
		openIncidents: len(incidents),
	}, nil
}
