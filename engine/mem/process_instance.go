package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type processInstanceRepository struct {
	s *memStore
}

func (r processInstanceRepository) Select(_ context.Context, id int64) (*internal.ProcessInstanceEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.processInstances[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	e.Variables = internal.CopyVariables(e.Variables)
	return &e, nil
}

func (r processInstanceRepository) SelectActive(_ context.Context) ([]*internal.ProcessInstanceEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.ProcessInstanceEntity
	for _, id := range sortedIds(r.s.processInstances) {
		e := r.s.processInstances[id]
		if e.State == engine.InstanceActive || e.State == engine.InstanceSuspended {
			e.Variables = internal.CopyVariables(e.Variables)
			results = append(results, &e)
		}
	}
	return results, nil
}

func (r processInstanceRepository) Query(_ context.Context, c engine.ProcessInstanceCriteria, o engine.QueryOptions) ([]engine.ProcessInstance, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.processInstances, o, func(e internal.ProcessInstanceEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.BusinessKey != "" && c.BusinessKey != e.BusinessKey.String {
			return false
		}
		if c.DefinitionKey != "" && c.DefinitionKey != e.DefinitionKey {
			return false
		}
		if c.ProcessDefinitionId != 0 && c.ProcessDefinitionId != e.ProcessDefinitionId {
			return false
		}
		if c.State != 0 && c.State != e.State {
			return false
		}
		if c.TenantId != "" && c.TenantId != e.TenantId {
			return false
		}
		return true
	}, internal.ProcessInstanceEntity.ProcessInstance), nil
}
