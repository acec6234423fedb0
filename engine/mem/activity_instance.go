package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type activityInstanceRepository struct {
	s *memStore
}

func (r activityInstanceRepository) Select(_ context.Context, id int64) (*internal.ActivityInstanceEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.activityInstances[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r activityInstanceRepository) SelectOpen(_ context.Context, processInstanceId int64) ([]*internal.ActivityInstanceEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.ActivityInstanceEntity
	for _, id := range sortedIds(r.s.activityInstances) {
		e := r.s.activityInstances[id]
		if e.ProcessInstanceId == processInstanceId && e.State == engine.ActivityActive {
			results = append(results, &e)
		}
	}
	return results, nil
}

func (r activityInstanceRepository) SelectSubscriptions(_ context.Context) ([]*internal.ActivityInstanceEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.ActivityInstanceEntity
	for _, id := range sortedIds(r.s.activityInstances) {
		e := r.s.activityInstances[id]
		if e.State != engine.ActivityActive {
			continue
		}
		if e.MessageName.Valid || e.SignalName.Valid {
			results = append(results, &e)
		}
	}
	return results, nil
}

func (r activityInstanceRepository) Query(_ context.Context, c engine.ActivityInstanceCriteria, o engine.QueryOptions) ([]engine.ActivityInstance, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.activityInstances, o, func(e internal.ActivityInstanceEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.ProcessInstanceId != 0 && c.ProcessInstanceId != e.ProcessInstanceId {
			return false
		}
		if c.ActivityId != "" && c.ActivityId != e.ActivityId {
			return false
		}
		if c.State != 0 && c.State != e.State {
			return false
		}
		return true
	}, internal.ActivityInstanceEntity.ActivityInstance), nil
}
