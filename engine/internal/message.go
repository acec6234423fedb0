package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

type MessageEventEntity struct {
	Id int64

	CorrelationKey pgtype.Text
	CreatedAt      time.Time
	CreatedBy      string
	DeliveryCount  int
	Name           string
	State          engine.EventState
	UniqueKey      pgtype.Text
	Variables      map[string]any
}

func (e MessageEventEntity) MessageEvent() engine.MessageEvent {
	return engine.MessageEvent{
		Id: e.Id,

		CorrelationKey: e.CorrelationKey.String,
		CreatedAt:      e.CreatedAt,
		CreatedBy:      e.CreatedBy,
		DeliveryCount:  e.DeliveryCount,
		Name:           e.Name,
		State:          e.State,
		UniqueKey:      e.UniqueKey.String,
		Variables:      cloneVariables(e.Variables),
	}
}

type MessageRepository interface {
	// SelectByUniqueKey selects a message by name and unique key.
	//
	// If no such message exists, [pgx.ErrNoRows] is returned.
	SelectByUniqueKey(ctx context.Context, name string, uniqueKey string) (*MessageEventEntity, error)

	Query(context.Context, engine.MessageCriteria, engine.QueryOptions) ([]engine.MessageEvent, error)
}

func (e *Engine) SendMessage(ctx context.Context, cmd engine.SendMessageCmd) (engine.MessageEvent, error) {
	if err := e.validateCmd("failed to send message", cmd); err != nil {
		return engine.MessageEvent{}, err
	}

	variables, err := normalizeVariables(cmd.Variables)
	if err != nil {
		return engine.MessageEvent{}, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to send message",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	if cmd.UniqueKey != "" {
		// serialize messages, which could have the same unique key
		e.messageMutex.Lock()
		defer e.messageMutex.Unlock()

		existing, err := e.store.Messages().SelectByUniqueKey(ctx, cmd.Name, cmd.UniqueKey)
		if err == nil {
			return existing.MessageEvent(), nil
		}
		if err != pgx.ErrNoRows {
			return engine.MessageEvent{}, fmt.Errorf("failed to select message %s with unique key %s: %v", cmd.Name, cmd.UniqueKey, err)
		}
	}

	var deliveryCount int
	for _, s := range e.registry.MessageSubscriptions(cmd.Name, cmd.CorrelationKey) {
		delivered, err := e.deliver(ctx, s, variables, cmd.CreatedBy)
		if err != nil {
			return engine.MessageEvent{}, err
		}
		if delivered {
			deliveryCount++
		}
	}

	message := MessageEventEntity{
		Id: e.nextId(),

		CorrelationKey: text(cmd.CorrelationKey),
		CreatedAt:      e.now(),
		CreatedBy:      cmd.CreatedBy,
		DeliveryCount:  deliveryCount,
		Name:           cmd.Name,
		State:          eventState(deliveryCount),
		UniqueKey:      text(cmd.UniqueKey),
		Variables:      variables,
	}

	var batch Batch
	batch.PutMessage(&message)
	if err := e.flush(ctx, &batch); err != nil {
		return engine.MessageEvent{}, err
	}

	e.logger.Debug("message sent", "id", message.Id, "name", message.Name, "deliveryCount", deliveryCount)
	return message.MessageEvent(), nil
}

// deliver continues the catch event of a subscription, under the lock of its process instance.
//
// It reports false, if the process instance is not active or the catch event has already been continued.
func (e *Engine) deliver(ctx context.Context, s subscription, variables map[string]any, actorId string) (bool, error) {
	var delivered bool

	err := e.instances.Execute(ctx, s.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		if state.instance.State == engine.InstanceSuspended {
			return nil // keep subscription
		}

		activityInstance := state.openById(s.ActivityInstanceId)
		if activityInstance == nil || state.instance.isEnded() {
			batch.AfterFlush(func() {
				e.registry.Unsubscribe(s.ActivityInstanceId)
			})
			return nil
		}

		g, err := e.graphs.Get(ctx, e.store, state.instance.ProcessDefinitionId)
		if err != nil {
			return err
		}

		if err := state.mergeVariables(variables, batch); err != nil {
			return err
		}

		ec := e.newExecution(ctx, g, state, batch, actorId)
		if err := ec.continueActivity(activityInstance); err != nil {
			return err
		}

		delivered = true
		return nil
	})

	if err == pgx.ErrNoRows {
		e.registry.Unsubscribe(s.ActivityInstanceId)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return delivered, nil
}

func eventState(deliveryCount int) engine.EventState {
	if deliveryCount == 0 {
		return engine.EventUndelivered
	}
	return engine.EventDelivered
}
