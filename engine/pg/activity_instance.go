package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
	"github.com/zensgit/metasheet2-sub006/model"
)

const activityInstanceColumns = `
	id,

	process_definition_id,
	process_instance_id,

	activity_id,
	activity_type,
	correlation_key,
	ended_at,
	flow_id,
	message_name,
	name,
	signal_name,
	started_at,
	state
`

func scanActivityInstance(row pgx.Row) (*internal.ActivityInstanceEntity, error) {
	var (
		entity            internal.ActivityInstanceEntity
		activityTypeValue string
		stateValue        string
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessDefinitionId,
		&entity.ProcessInstanceId,

		&entity.ActivityId,
		&activityTypeValue,
		&entity.CorrelationKey,
		&entity.EndedAt,
		&entity.FlowId,
		&entity.MessageName,
		&entity.Name,
		&entity.SignalName,
		&entity.StartedAt,
		&stateValue,
	); err != nil {
		return nil, err
	}

	entity.ActivityType = model.MapNodeType(activityTypeValue)
	entity.State = engine.MapActivityState(stateValue)

	return &entity, nil
}

func upsertActivityInstance(ctx context.Context, tx pgx.Tx, entity *internal.ActivityInstanceEntity) error {
	if _, err := tx.Exec(ctx, `
INSERT INTO activity_instance (`+activityInstanceColumns+`) VALUES (
	$1,

	$2,
	$3,

	$4,
	$5,
	$6,
	$7,
	$8,
	$9,
	$10,
	$11,
	$12,
	$13
) ON CONFLICT (id) DO UPDATE SET
	correlation_key = EXCLUDED.correlation_key,
	ended_at = EXCLUDED.ended_at,
	message_name = EXCLUDED.message_name,
	signal_name = EXCLUDED.signal_name,
	state = EXCLUDED.state
`,
		entity.Id,

		entity.ProcessDefinitionId,
		entity.ProcessInstanceId,

		entity.ActivityId,
		entity.ActivityType.String(),
		entity.CorrelationKey,
		entity.EndedAt,
		entity.FlowId,
		entity.MessageName,
		entity.Name,
		entity.SignalName,
		entity.StartedAt,
		entity.State.String(),
	); err != nil {
		return fmt.Errorf("failed to upsert activity instance %d: %w", entity.Id, err)
	}

	return nil
}

type activityInstanceRepository struct {
	db db
}

func (r activityInstanceRepository) Select(ctx context.Context, id int64) (*internal.ActivityInstanceEntity, error) {
	return selectOne(ctx, r.db, scanActivityInstance, `
SELECT `+activityInstanceColumns+`
FROM
	activity_instance
WHERE
	id = $1
`, id)
}

func (r activityInstanceRepository) SelectOpen(ctx context.Context, processInstanceId int64) ([]*internal.ActivityInstanceEntity, error) {
	return selectAll(ctx, r.db, scanActivityInstance, `
SELECT `+activityInstanceColumns+`
FROM
	activity_instance
WHERE
	process_instance_id = $1 AND
	state = 'ACTIVE'
ORDER BY
	id
`, processInstanceId)
}

func (r activityInstanceRepository) SelectSubscriptions(ctx context.Context) ([]*internal.ActivityInstanceEntity, error) {
	return selectAll(ctx, r.db, scanActivityInstance, `
SELECT `+activityInstanceColumns+`
FROM
	activity_instance
WHERE
	state = 'ACTIVE' AND
	(message_name IS NOT NULL OR signal_name IS NOT NULL)
ORDER BY
	id
`)
}

func (r activityInstanceRepository) Query(ctx context.Context, c engine.ActivityInstanceCriteria, o engine.QueryOptions) ([]engine.ActivityInstance, error) {
	sql, err := executeQueryTemplate(sqlActivityInstanceQuery, activityInstanceColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanActivityInstance, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute activity instance query: %v", err)
	}
	return mapAll(entities, internal.ActivityInstanceEntity.ActivityInstance), nil
}
