package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type processDefinitionRepository struct {
	s *memStore
}

func (r processDefinitionRepository) Select(_ context.Context, id int64) (*internal.ProcessDefinitionEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.processDefinitions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r processDefinitionRepository) SelectByVersion(_ context.Context, key string, tenantId string, version int) (*internal.ProcessDefinitionEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	for _, e := range r.s.processDefinitions {
		if e.Key == key && e.TenantId == tenantId && e.Version == version {
			return &e, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r processDefinitionRepository) SelectLatest(_ context.Context, key string, tenantId string) (*internal.ProcessDefinitionEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var latest *internal.ProcessDefinitionEntity
	for _, e := range r.s.processDefinitions {
		if e.Key != key || e.TenantId != tenantId {
			continue
		}
		if latest == nil || e.Version > latest.Version {
			latest = &e
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (r processDefinitionRepository) Query(_ context.Context, c engine.ProcessDefinitionCriteria, o engine.QueryOptions) ([]engine.ProcessDefinition, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.processDefinitions, o, func(e internal.ProcessDefinitionEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.Key != "" && c.Key != e.Key {
			return false
		}
		if c.TenantId != "" && c.TenantId != e.TenantId {
			return false
		}
		return true
	}, internal.ProcessDefinitionEntity.ProcessDefinition), nil
}
