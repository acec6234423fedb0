package mem

import (
	"context"

	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type signalRepository struct {
	s *memStore
}

func (r signalRepository) Query(_ context.Context, c engine.SignalCriteria, o engine.QueryOptions) ([]engine.SignalEvent, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.signals, o, func(e internal.SignalEventEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.Name != "" && c.Name != e.Name {
			return false
		}
		return true
	}, internal.SignalEventEntity.SignalEvent), nil
}
