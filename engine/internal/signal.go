package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/zensgit/metasheet2-sub006/engine"
)

type SignalEventEntity struct {
	Id int64

	CreatedAt       time.Time
	CreatedBy       string
	Name            string
	State           engine.EventState
	SubscriberCount int
	Variables       map[string]any
}

func (e SignalEventEntity) SignalEvent() engine.SignalEvent {
	return engine.SignalEvent{
		Id: e.Id,

		CreatedAt:       e.CreatedAt,
		CreatedBy:       e.CreatedBy,
		Name:            e.Name,
		State:           e.State,
		SubscriberCount: e.SubscriberCount,
		Variables:       cloneVariables(e.Variables),
	}
}

type SignalRepository interface {
	Query(context.Context, engine.SignalCriteria, engine.QueryOptions) ([]engine.SignalEvent, error)
}

func (e *Engine) BroadcastSignal(ctx context.Context, cmd engine.BroadcastSignalCmd) (engine.SignalEvent, error) {
	if err := e.validateCmd("failed to broadcast signal", cmd); err != nil {
		return engine.SignalEvent{}, err
	}

	variables, err := normalizeVariables(cmd.Variables)
	if err != nil {
		return engine.SignalEvent{}, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to broadcast signal",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	var subscriberCount int
	for _, s := range e.registry.SignalSubscriptions(cmd.Name) {
		delivered, err := e.deliver(ctx, s, variables, cmd.CreatedBy)
		if err != nil {
			return engine.SignalEvent{}, err
		}
		if delivered {
			subscriberCount++
		}
	}

	signal := SignalEventEntity{
		Id: e.nextId(),

		CreatedAt:       e.now(),
		CreatedBy:       cmd.CreatedBy,
		Name:            cmd.Name,
		State:           eventState(subscriberCount),
		SubscriberCount: subscriberCount,
		Variables:       variables,
	}

	var batch Batch
	batch.PutSignal(&signal)
	if err := e.flush(ctx, &batch); err != nil {
		return engine.SignalEvent{}, err
	}

	e.logger.Debug("signal broadcasted", "id", signal.Id, "name", signal.Name, "subscriberCount", subscriberCount)
	return signal.SignalEvent(), nil
}
