package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const signalColumns = `
	id,

	created_at,
	created_by,
	name,
	state,
	subscriber_count,
	variables
`

func scanSignal(row pgx.Row) (*internal.SignalEventEntity, error) {
	var (
		entity     internal.SignalEventEntity
		stateValue string
		variables  []byte
	)

	if err := row.Scan(
		&entity.Id,

		&entity.CreatedAt,
		&entity.CreatedBy,
		&entity.Name,
		&stateValue,
		&entity.SubscriberCount,
		&variables,
	); err != nil {
		return nil, err
	}

	decoded, err := internal.DecodeVariables(variables)
	if err != nil {
		return nil, err
	}

	entity.State = engine.MapEventState(stateValue)
	entity.Variables = decoded

	return &entity, nil
}

func upsertSignal(ctx context.Context, tx pgx.Tx, entity *internal.SignalEventEntity) error {
	variables, err := internal.EncodeVariables(entity.Variables)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO signal_event (`+signalColumns+`) VALUES (
	$1,

	$2,
	$3,
	$4,
	$5,
	$6,
	$7
) ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	subscriber_count = EXCLUDED.subscriber_count
`,
		entity.Id,

		entity.CreatedAt,
		entity.CreatedBy,
		entity.Name,
		entity.State.String(),
		entity.SubscriberCount,
		variables,
	); err != nil {
		return fmt.Errorf("failed to upsert signal %d: %w", entity.Id, err)
	}

	return nil
}

type signalRepository struct {
	db db
}

func (r signalRepository) Query(ctx context.Context, c engine.SignalCriteria, o engine.QueryOptions) ([]engine.SignalEvent, error) {
	sql, err := executeQueryTemplate(sqlSignalQuery, signalColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanSignal, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute signal query: %v", err)
	}
	return mapAll(entities, internal.SignalEventEntity.SignalEvent), nil
}
