package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type incidentRepository struct {
	s *memStore
}

func (r incidentRepository) Select(_ context.Context, id int64) (*internal.IncidentEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.incidents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r incidentRepository) SelectOpen(_ context.Context, processInstanceId int64) ([]*internal.IncidentEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.IncidentEntity
	for _, id := range sortedIds(r.s.incidents) {
		e := r.s.incidents[id]
		if e.ProcessInstanceId == processInstanceId && e.State == engine.IncidentOpen {
			results = append(results, &e)
		}
	}
	return results, nil
}

func (r incidentRepository) Query(_ context.Context, c engine.IncidentCriteria, o engine.QueryOptions) ([]engine.Incident, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.incidents, o, func(e internal.IncidentEntity) bool {
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
	}, internal.IncidentEntity.Incident), nil
}
