package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
)

type IncidentEntity struct {
	Id int64

	ProcessInstanceId  int64
	ActivityInstanceId pgtype.Int8
	ExternalTaskId     pgtype.Int8

	ActivityId string
	CreatedAt  time.Time
	CreatedBy  string
	Message    string
	Notes      pgtype.Text
	ResolvedAt pgtype.Timestamp
	ResolvedBy pgtype.Text
	State      engine.IncidentState
	Type       engine.IncidentType
}

func (e IncidentEntity) Incident() engine.Incident {
	return engine.Incident{
		Id: e.Id,

		ProcessInstanceId:  e.ProcessInstanceId,
		ActivityInstanceId: int8OrZero(e.ActivityInstanceId),
		ExternalTaskId:     int8OrZero(e.ExternalTaskId),

		ActivityId: e.ActivityId,
		CreatedAt:  e.CreatedAt,
		CreatedBy:  e.CreatedBy,
		Message:    e.Message,
		Notes:      e.Notes.String,
		ResolvedAt: timeOrNil(e.ResolvedAt),
		ResolvedBy: e.ResolvedBy.String,
		State:      e.State,
		Type:       e.Type,
	}
}

type IncidentRepository interface {
	Select(ctx context.Context, id int64) (*IncidentEntity, error)
	// SelectOpen selects all OPEN incidents of a process instance.
	SelectOpen(ctx context.Context, processInstanceId int64) ([]*IncidentEntity, error)

	Query(context.Context, engine.IncidentCriteria, engine.QueryOptions) ([]engine.Incident, error)
}

func (e *Engine) ResolveIncident(ctx context.Context, cmd engine.ResolveIncidentCmd) error {
	if err := e.validateCmd("failed to resolve incident", cmd); err != nil {
		return err
	}

	incident, err := e.store.Incidents().Select(ctx, cmd.Id)
	if err == pgx.ErrNoRows {
		return engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to resolve incident",
			Detail: fmt.Sprintf("incident %d could not be found", cmd.Id),
		}
	}
	if err != nil {
		return fmt.Errorf("failed to select incident %d: %v", cmd.Id, err)
	}

	return e.executeInstance(ctx, "failed to resolve incident", incident.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		incident, err := e.store.Incidents().Select(ctx, cmd.Id)
		if err != nil {
			return fmt.Errorf("failed to select incident %d: %v", cmd.Id, err)
		}
		if incident.State == engine.IncidentResolved {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to resolve incident",
				Detail: fmt.Sprintf("incident %d is already resolved", cmd.Id),
			}
		}
		if cmd.Retry && state.instance.State != engine.InstanceActive {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to resolve incident",
				Detail: fmt.Sprintf("process instance %d is %s", state.instance.Id, state.instance.State),
			}
		}

		incident.Notes = text(cmd.Notes)
		incident.ResolvedAt = timestamp(e.now())
		incident.ResolvedBy = text(cmd.UserId)
		incident.State = engine.IncidentResolved
		batch.PutIncident(incident)

		state.openIncidents--

		e.logger.Info("incident resolved", "id", incident.Id, "processInstanceId", incident.ProcessInstanceId, "retry", cmd.Retry)

		if cmd.Retry && incident.ExternalTaskId.Valid {
			if err := e.retryExternalTask(ctx, batch, incident.ExternalTaskId.Int64); err != nil {
				return err
			}
		}
		if !cmd.Retry || incident.ExternalTaskId.Valid || !incident.ActivityInstanceId.Valid {
			if state.instance.State != engine.InstanceActive {
				return nil
			}
			// no path is continued, so the instance can complete, if all other paths have ended
			return e.newExecution(ctx, nil, state, batch, cmd.UserId).tryCompleteInstance()
		}

		failed, err := e.store.ActivityInstances().Select(ctx, incident.ActivityInstanceId.Int64)
		if err != nil {
			return fmt.Errorf("failed to select activity instance %d: %v", incident.ActivityInstanceId.Int64, err)
		}

		g, err := e.graphs.Get(ctx, e.store, state.instance.ProcessDefinitionId)
		if err != nil {
			return err
		}

		node, ok := g.nodes[failed.ActivityId]
		if !ok {
			return engine.Error{
				Type:   engine.ErrorBug,
				Title:  "failed to resolve incident",
				Detail: fmt.Sprintf("process definition %d has no node %s", g.definitionId, failed.ActivityId),
			}
		}

		ec := e.newExecution(ctx, g, state, batch, cmd.UserId)
		return ec.executeActivity(node, failed.FlowId.String)
	})
}
