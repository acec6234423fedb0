package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const messageColumns = `
	id,

	correlation_key,
	created_at,
	created_by,
	delivery_count,
	name,
	state,
	unique_key,
	variables
`

func scanMessage(row pgx.Row) (*internal.MessageEventEntity, error) {
	var (
		entity     internal.MessageEventEntity
		stateValue string
		variables  []byte
	)

	if err := row.Scan(
		&entity.Id,

		&entity.CorrelationKey,
		&entity.CreatedAt,
		&entity.CreatedBy,
		&entity.DeliveryCount,
		&entity.Name,
		&stateValue,
		&entity.UniqueKey,
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

func upsertMessage(ctx context.Context, tx pgx.Tx, entity *internal.MessageEventEntity) error {
	variables, err := internal.EncodeVariables(entity.Variables)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO message_event (`+messageColumns+`) VALUES (
	$1,

	$2,
	$3,
	$4,
	$5,
	$6,
	$7,
	$8,
	$9
) ON CONFLICT (id) DO UPDATE SET
	delivery_count = EXCLUDED.delivery_count,
	state = EXCLUDED.state
`,
		entity.Id,

		entity.CorrelationKey,
		entity.CreatedAt,
		entity.CreatedBy,
		entity.DeliveryCount,
		entity.Name,
		entity.State.String(),
		entity.UniqueKey,
		variables,
	); err != nil {
		return fmt.Errorf("failed to upsert message %d: %w", entity.Id, err)
	}

	return nil
}

type messageRepository struct {
	db db
}

func (r messageRepository) SelectByUniqueKey(ctx context.Context, name string, uniqueKey string) (*internal.MessageEventEntity, error) {
	return selectOne(ctx, r.db, scanMessage, `
SELECT `+messageColumns+`
FROM
	message_event
WHERE
	name = $1 AND
	unique_key = $2
`, name, uniqueKey)
}

func (r messageRepository) Query(ctx context.Context, c engine.MessageCriteria, o engine.QueryOptions) ([]engine.MessageEvent, error) {
	sql, err := executeQueryTemplate(sqlMessageQuery, messageColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanMessage, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute message query: %v", err)
	}
	return mapAll(entities, internal.MessageEventEntity.MessageEvent), nil
}
