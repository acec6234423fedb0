package pg

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const timerJobColumns = `
	id,

	process_instance_id,
	activity_instance_id,

	activity_id,
	completed_at,
	created_at,
	definition,
	due_at,
	error,
	locked_at,
	locked_by,
	repetitions,
	retry_count,
	retries,
	state,
	type
`

func scanTimerJob(row pgx.Row) (*internal.TimerJobEntity, error) {
	var (
		entity     internal.TimerJobEntity
		stateValue string
		typeValue  string
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessInstanceId,
		&entity.ActivityInstanceId,

		&entity.ActivityId,
		&entity.CompletedAt,
		&entity.CreatedAt,
		&entity.Definition,
		&entity.DueAt,
		&entity.Error,
		&entity.LockedAt,
		&entity.LockedBy,
		&entity.Repetitions,
		&entity.RetryCount,
		&entity.Retries,
		&stateValue,
		&typeValue,
	); err != nil {
		return nil, err
	}

	entity.State = engine.MapTimerState(stateValue)
	entity.Type = engine.MapTimerType(typeValue)

	return &entity, nil
}

func upsertTimerJob(ctx context.Context, tx pgx.Tx, entity *internal.TimerJobEntity) error {
	if _, err := tx.Exec(ctx, `
INSERT INTO timer_job (`+timerJobColumns+`) VALUES (
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
	$13,
	$14,
	$15,
	$16
) ON CONFLICT (id) DO UPDATE SET
	completed_at = EXCLUDED.completed_at,
	due_at = EXCLUDED.due_at,
	error = EXCLUDED.error,
	locked_at = EXCLUDED.locked_at,
	locked_by = EXCLUDED.locked_by,
	retry_count = EXCLUDED.retry_count,
	state = EXCLUDED.state
`,
		entity.Id,

		entity.ProcessInstanceId,
		entity.ActivityInstanceId,

		entity.ActivityId,
		entity.CompletedAt,
		entity.CreatedAt,
		entity.Definition,
		entity.DueAt,
		entity.Error,
		entity.LockedAt,
		entity.LockedBy,
		entity.Repetitions,
		entity.RetryCount,
		entity.Retries,
		entity.State.String(),
		entity.Type.String(),
	); err != nil {
		return fmt.Errorf("failed to upsert timer job %d: %w", entity.Id, err)
	}

	return nil
}

type timerJobRepository struct {
	db db
}

func (r timerJobRepository) Select(ctx context.Context, id int64) (*internal.TimerJobEntity, error) {
	return selectOne(ctx, r.db, scanTimerJob, `
SELECT `+timerJobColumns+`
FROM
	timer_job
WHERE
	id = $1
`, id)
}

func (r timerJobRepository) SelectOpen(ctx context.Context, processInstanceId int64) ([]*internal.TimerJobEntity, error) {
	return selectAll(ctx, r.db, scanTimerJob, `
SELECT `+timerJobColumns+`
FROM
	timer_job
WHERE
	process_instance_id = $1 AND
	state IN ('WAITING', 'LOCKED')
ORDER BY
	id
`, processInstanceId)
}

func (r timerJobRepository) Lock(ctx context.Context, lock internal.TimerJobLock) ([]*internal.TimerJobEntity, error) {
	var sql bytes.Buffer
	if err := sqlTimerJobLock.Execute(&sql, map[string]any{
		"columns": timerJobColumns,
		"lock":    lock,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute timer job lock template: %v", err)
	}

	entities, err := selectAll(ctx, r.db, scanTimerJob, sql.String(), lock.Now, lock.EngineId)
	if err != nil {
		return nil, fmt.Errorf("failed to lock timer jobs: %v", err)
	}

	// RETURNING does not preserve the order of the sub select
	slices.SortFunc(entities, func(a, b *internal.TimerJobEntity) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
	return entities, nil
}

func (r timerJobRepository) Query(ctx context.Context, c engine.TimerJobCriteria, o engine.QueryOptions) ([]engine.TimerJob, error) {
	sql, err := executeQueryTemplate(sqlTimerJobQuery, timerJobColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanTimerJob, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute timer job query: %v", err)
	}
	return mapAll(entities, internal.TimerJobEntity.TimerJob), nil
}
