package mem

import (
	"cmp"
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type timerJobRepository struct {
	s *memStore
}

func (r timerJobRepository) Select(_ context.Context, id int64) (*internal.TimerJobEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.timerJobs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r timerJobRepository) SelectOpen(_ context.Context, processInstanceId int64) ([]*internal.TimerJobEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.TimerJobEntity
	for _, id := range sortedIds(r.s.timerJobs) {
		e := r.s.timerJobs[id]
		if e.ProcessInstanceId != processInstanceId {
			continue
		}
		if e.State == engine.TimerWaiting || e.State == engine.TimerLocked {
			results = append(results, &e)
		}
	}
	return results, nil
}

// Lock compares and sets the state of due timer jobs from WAITING to LOCKED, while the store mutex is held.
func (r timerJobRepository) Lock(_ context.Context, lock internal.TimerJobLock) ([]*internal.TimerJobEntity, error) {
	r.s.mutex.Lock()
	defer r.s.mutex.Unlock()

	var due []internal.TimerJobEntity
	for _, e := range r.s.timerJobs {
		if e.State != engine.TimerWaiting || e.DueAt.After(lock.Now) {
			continue
		}
		if lock.ProcessInstanceId != 0 && lock.ProcessInstanceId != e.ProcessInstanceId {
			continue
		}
		due = append(due, e)
	}

	slices.SortFunc(due, func(a, b internal.TimerJobEntity) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})

	if lock.Limit > 0 && len(due) > lock.Limit {
		due = due[:lock.Limit]
	}

	results := make([]*internal.TimerJobEntity, len(due))
	for i := range due {
		e := due[i]
		e.LockedAt = pgtype.Timestamp{Time: lock.Now, Valid: true}
		e.LockedBy = pgtype.Text{String: lock.EngineId, Valid: true}
		e.State = engine.TimerLocked

		r.s.timerJobs[e.Id] = e
		results[i] = &e
	}
	return results, nil
}

func (r timerJobRepository) Query(_ context.Context, c engine.TimerJobCriteria, o engine.QueryOptions) ([]engine.TimerJob, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.timerJobs, o, func(e internal.TimerJobEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.ProcessInstanceId != 0 && c.ProcessInstanceId != e.ProcessInstanceId {
			return false
		}
		if c.State != 0 && c.State != e.State {
			return false
		}
		return true
	}, internal.TimerJobEntity.TimerJob), nil
}
