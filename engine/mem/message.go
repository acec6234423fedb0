package mem

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type messageRepository struct {
	s *memStore
}

func (r messageRepository) SelectByUniqueKey(_ context.Context, name string, uniqueKey string) (*internal.MessageEventEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	for _, id := range sortedIds(r.s.messages) {
		e := r.s.messages[id]
		if e.Name == name && e.UniqueKey.Valid && e.UniqueKey.String == uniqueKey {
			e.Variables = internal.CopyVariables(e.Variables)
			return &e, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r messageRepository) Query(_ context.Context, c engine.MessageCriteria, o engine.QueryOptions) ([]engine.MessageEvent, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.messages, o, func(e internal.MessageEventEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.Name != "" && c.Name != e.Name {
			return false
		}
		return true
	}, internal.MessageEventEntity.MessageEvent), nil
}
