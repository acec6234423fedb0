package internal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/model"
)

type ActivityInstanceEntity struct {
	Id int64

	ProcessDefinitionId int64
	ProcessInstanceId   int64

	ActivityId     string
	ActivityType   model.NodeType
	CorrelationKey pgtype.Text // internal field
	EndedAt        pgtype.Timestamp
	FlowId         pgtype.Text
	MessageName    pgtype.Text // internal field
	Name           string
	SignalName     pgtype.Text // internal field
	StartedAt      time.Time
	State          engine.ActivityState
}

func (e ActivityInstanceEntity) ActivityInstance() engine.ActivityInstance {
	return engine.ActivityInstance{
		Id: e.Id,

		ProcessDefinitionId: e.ProcessDefinitionId,
		ProcessInstanceId:   e.ProcessInstanceId,

		ActivityId:   e.ActivityId,
		ActivityType: e.ActivityType,
		EndedAt:      timeOrNil(e.EndedAt),
		FlowId:       e.FlowId.String,
		Name:         e.Name,
		StartedAt:    e.StartedAt,
		State:        e.State,
	}
}

// subscription returns the subscription, held by a message or signal catch event.
func (e ActivityInstanceEntity) subscription() (subscription, bool) {
	if !e.MessageName.Valid && !e.SignalName.Valid {
		return subscription{}, false
	}

	return subscription{
		ProcessInstanceId:  e.ProcessInstanceId,
		ActivityInstanceId: e.Id,

		ActivityId:     e.ActivityId,
		CorrelationKey: e.CorrelationKey.String,
		MessageName:    e.MessageName.String,
		SignalName:     e.SignalName.String,
	}, true
}

type ActivityInstanceRepository interface {
	Select(ctx context.Context, id int64) (*ActivityInstanceEntity, error)
	// SelectOpen selects all ACTIVE activity instances of a process instance, ordered by ID.
	SelectOpen(ctx context.Context, processInstanceId int64) ([]*ActivityInstanceEntity, error)
	// SelectSubscriptions selects all ACTIVE activity instances, which hold a message or signal subscription.
	SelectSubscriptions(context.Context) ([]*ActivityInstanceEntity, error)

	Query(context.Context, engine.ActivityInstanceCriteria, engine.QueryOptions) ([]engine.ActivityInstance, error)
}
