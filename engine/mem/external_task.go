package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type externalTaskRepository struct {
	s *memStore
}

func (r externalTaskRepository) Select(_ context.Context, id int64) (*internal.ExternalTaskEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.externalTasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	e.Variables = internal.CopyVariables(e.Variables)
	return &e, nil
}

func (r externalTaskRepository) SelectOpen(_ context.Context, processInstanceId int64) ([]*internal.ExternalTaskEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.ExternalTaskEntity
	for _, id := range sortedIds(r.s.externalTasks) {
		e := r.s.externalTasks[id]
		if e.ProcessInstanceId != processInstanceId {
			continue
		}
		if e.State == engine.ExternalTaskCreated || e.State == engine.ExternalTaskLocked {
			e.Variables = internal.CopyVariables(e.Variables)
			results = append(results, &e)
		}
	}
	return results, nil
}

func (r externalTaskRepository) Lock(_ context.Context, lock internal.ExternalTaskLock) ([]*internal.ExternalTaskEntity, error) {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	var results []*internal.ExternalTaskEntity
	for _, id := range sortedIds(r.s.externalTasks) {
		e := r.s.externalTasks[id]
		if e.Topic != lock.Topic {
			continue
		}

		switch e.State {
		case engine.ExternalTaskCreated:
		case engine.ExternalTaskLocked:
			if e.LockExpiresAt.Time.After(lock.Now) {
				continue
			}
		default:
			continue
		}

		e.LockedAt = pgtype.Timestamp{Time: lock.Now, Valid: true}
		e.LockedBy = pgtype.Text{String: lock.WorkerId, Valid: true}
		e.LockExpiresAt = pgtype.Timestamp{Time: lock.LockExpiresAt, Valid: true}
		e.State = engine.ExternalTaskLocked

		r.s.externalTasks[id] = e

		e.Variables = internal.CopyVariables(e.Variables)
		results = append(results, &e)

		if len(results) == lock.Limit {
			break
		}
	}
	return results, nil
}

func (r externalTaskRepository) Query(_ context.Context, c engine.ExternalTaskCriteria, o engine.QueryOptions) ([]engine.ExternalTask, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.externalTasks, o, func(e internal.ExternalTaskEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.ProcessInstanceId != 0 && c.ProcessInstanceId != e.ProcessInstanceId {
			return false
		}
		if c.State != 0 && c.State != e.State {
			return false
		}
		if c.Topic != "" && c.Topic != e.Topic {
			return false
		}
		return true
	}, internal.ExternalTaskEntity.ExternalTask), nil
}
