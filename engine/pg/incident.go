package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const incidentColumns = `
	id,

	process_instance_id,
	activity_instance_id,
	external_task_id,

	activity_id,
	created_at,
	created_by,
	message,
	notes,
	resolved_at,
	resolved_by,
	state,
	type
`

func scanIncident(row pgx.Row) (*internal.IncidentEntity, error) {
	var (
		entity     internal.IncidentEntity
		stateValue string
		typeValue  string
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessInstanceId,
		&entity.ActivityInstanceId,
		&entity.ExternalTaskId,

		&entity.ActivityId,
		&entity.CreatedAt,
		&entity.CreatedBy,
		&entity.Message,
		&entity.Notes,
		&entity.ResolvedAt,
		&entity.ResolvedBy,
		&stateValue,
		&typeValue,
	); err != nil {
		return nil, err
	}

	entity.State = engine.MapIncidentState(stateValue)
	entity.Type = engine.MapIncidentType(typeValue)

	return &entity, nil
}

func upsertIncident(ctx context.Context, tx pgx.Tx, entity *internal.IncidentEntity) error {
	if _, err := tx.Exec(ctx, `
INSERT INTO incident (`+incidentColumns+`) VALUES (
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
	notes = EXCLUDED.notes,
	resolved_at = EXCLUDED.resolved_at,
	resolved_by = EXCLUDED.resolved_by,
	state = EXCLUDED.state
`,
		entity.Id,

		entity.ProcessInstanceId,
		entity.ActivityInstanceId,
		entity.ExternalTaskId,

		entity.ActivityId,
		entity.CreatedAt,
		entity.CreatedBy,
		entity.Message,
		entity.Notes,
		entity.ResolvedAt,
		entity.ResolvedBy,
		entity.State.String(),
		entity.Type.String(),
	); err != nil {
		return fmt.Errorf("failed to upsert incident %d: %w", entity.Id, err)
	}

	return nil
}

type incidentRepository struct {
	db db
}

func (r incidentRepository) Select(ctx context.Context, id int64) (*internal.IncidentEntity, error) {
	return selectOne(ctx, r.db, scanIncident, `
SELECT `+incidentColumns+`
FROM
	incident
WHERE
	id = $1
`, id)
}

func (r incidentRepository) SelectOpen(ctx context.Context, processInstanceId int64) ([]*internal.IncidentEntity, error) {
	return selectAll(ctx, r.db, scanIncident, `
SELECT `+incidentColumns+`
FROM
	incident
WHERE
	process_instance_id = $1 AND
	state = 'OPEN'
ORDER BY
	id
`, processInstanceId)
}

func (r incidentRepository) Query(ctx context.Context, c engine.IncidentCriteria, o engine.QueryOptions) ([]engine.Incident, error) {
	sql, err := executeQueryTemplate(sqlIncidentQuery, incidentColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanIncident, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute incident query: %v", err)
	}
	return mapAll(entities, internal.IncidentEntity.Incident), nil
}
