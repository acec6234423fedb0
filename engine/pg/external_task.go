package pg

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const externalTaskColumns = `
	id,

	process_instance_id,
	activity_instance_id,

	activity_id,
	completed_at,
	created_at,
	error,
	locked_at,
	locked_by,
	lock_expires_at,
	state,
	topic,
	variables
`

func scanExternalTask(row pgx.Row) (*internal.ExternalTaskEntity, error) {
	var (
		entity     internal.ExternalTaskEntity
		stateValue string
		variables  []byte
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessInstanceId,
		&entity.ActivityInstanceId,

		&entity.ActivityId,
		&entity.CompletedAt,
		&entity.CreatedAt,
		&entity.Error,
		&entity.LockedAt,
		&entity.LockedBy,
		&entity.LockExpiresAt,
		&stateValue,
		&entity.Topic,
		&variables,
	); err != nil {
		return nil, err
	}

	decoded, err := internal.DecodeVariables(variables)
	if err != nil {
		return nil, err
	}

	entity.State = engine.MapExternalTaskState(stateValue)
	entity.Variables = decoded

	return &entity, nil
}

func upsertExternalTask(ctx context.Context, tx pgx.Tx, entity *internal.ExternalTaskEntity) error {
	variables, err := internal.EncodeVariables(entity.Variables)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO external_task (`+externalTaskColumns+`) VALUES (
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
	completed_at = EXCLUDED.completed_at,
	error = EXCLUDED.error,
	locked_at = EXCLUDED.locked_at,
	locked_by = EXCLUDED.locked_by,
	lock_expires_at = EXCLUDED.lock_expires_at,
	state = EXCLUDED.state
`,
		entity.Id,

		entity.ProcessInstanceId,
		entity.ActivityInstanceId,

		entity.ActivityId,
		entity.CompletedAt,
		entity.CreatedAt,
		entity.Error,
		entity.LockedAt,
		entity.LockedBy,
		entity.LockExpiresAt,
		entity.State.String(),
		entity.Topic,
		variables,
	); err != nil {
		return fmt.Errorf("failed to upsert external task %d: %w", entity.Id, err)
	}

	return nil
}

type externalTaskRepository struct {
	db db
}

func (r externalTaskRepository) Select(ctx context.Context, id int64) (*internal.ExternalTaskEntity, error) {
	return selectOne(ctx, r.db, scanExternalTask, `
SELECT `+externalTaskColumns+`
FROM
	external_task
WHERE
	id = $1
`, id)
}

func (r externalTaskRepository) SelectOpen(ctx context.Context, processInstanceId int64) ([]*internal.ExternalTaskEntity, error) {
	return selectAll(ctx, r.db, scanExternalTask, `
SELECT `+externalTaskColumns+`
FROM
	external_task
WHERE
	process_instance_id = $1 AND
	state IN ('CREATED', 'LOCKED')
ORDER BY
	id
`, processInstanceId)
}

func (r externalTaskRepository) Lock(ctx context.Context, lock internal.ExternalTaskLock) ([]*internal.ExternalTaskEntity, error) {
	var sql bytes.Buffer
	if err := sqlExternalTaskLock.Execute(&sql, map[string]any{
		"columns": externalTaskColumns,
		"lock":    lock,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute external task lock template: %v", err)
	}

	entities, err := selectAll(ctx, r.db, scanExternalTask, sql.String(), lock.Now, lock.WorkerId, lock.LockExpiresAt, lock.Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to lock external tasks: %v", err)
	}

	sortById(entities, func(e *internal.ExternalTaskEntity) int64 { return e.Id })
	return entities, nil
}

func (r externalTaskRepository) Query(ctx context.Context, c engine.ExternalTaskCriteria, o engine.QueryOptions) ([]engine.ExternalTask, error) {
	sql, err := executeQueryTemplate(sqlExternalTaskQuery, externalTaskColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanExternalTask, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute external task query: %v", err)
	}
	return mapAll(entities, internal.ExternalTaskEntity.ExternalTask), nil
}
