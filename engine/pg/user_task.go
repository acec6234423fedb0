package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const userTaskColumns = `
	id,

	process_instance_id,
	activity_instance_id,

	activity_id,
	assignee,
	candidate_groups,
	candidate_users,
	claimed_at,
	completed_at,
	completed_by,
	created_at,
	form_key,
	name,
	state,
	variables
`

func scanUserTask(row pgx.Row) (*internal.UserTaskEntity, error) {
	var (
		entity     internal.UserTaskEntity
		stateValue string
		variables  []byte
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessInstanceId,
		&entity.ActivityInstanceId,

		&entity.ActivityId,
		&entity.Assignee,
		&entity.CandidateGroups,
		&entity.CandidateUsers,
		&entity.ClaimedAt,
		&entity.CompletedAt,
		&entity.CompletedBy,
		&entity.CreatedAt,
		&entity.FormKey,
		&entity.Name,
		&stateValue,
		&variables,
	); err != nil {
		return nil, err
	}

	decoded, err := internal.DecodeVariables(variables)
	if err != nil {
		return nil, err
	}

	entity.State = engine.MapUserTaskState(stateValue)
	entity.Variables = decoded

	return &entity, nil
}

func upsertUserTask(ctx context.Context, tx pgx.Tx, entity *internal.UserTaskEntity) error {
	variables, err := internal.EncodeVariables(entity.Variables)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO user_task (`+userTaskColumns+`) VALUES (
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
	$15
) ON CONFLICT (id) DO UPDATE SET
	assignee = EXCLUDED.assignee,
	claimed_at = EXCLUDED.claimed_at,
	completed_at = EXCLUDED.completed_at,
	completed_by = EXCLUDED.completed_by,
	state = EXCLUDED.state,
	variables = EXCLUDED.variables
`,
		entity.Id,

		entity.ProcessInstanceId,
		entity.ActivityInstanceId,

		entity.ActivityId,
		entity.Assignee,
		entity.CandidateGroups,
		entity.CandidateUsers,
		entity.ClaimedAt,
		entity.CompletedAt,
		entity.CompletedBy,
		entity.CreatedAt,
		entity.FormKey,
		entity.Name,
		entity.State.String(),
		variables,
	); err != nil {
		return fmt.Errorf("failed to upsert user task %d: %w", entity.Id, err)
	}

	return nil
}

type userTaskRepository struct {
	db db
}

func (r userTaskRepository) Select(ctx context.Context, id int64) (*internal.UserTaskEntity, error) {
	return selectOne(ctx, r.db, scanUserTask, `
SELECT `+userTaskColumns+`
FROM
	user_task
WHERE
	id = $1
`, id)
}

func (r userTaskRepository) SelectOpen(ctx context.Context, processInstanceId int64) ([]*internal.UserTaskEntity, error) {
	return selectAll(ctx, r.db, scanUserTask, `
SELECT `+userTaskColumns+`
FROM
	user_task
WHERE
	process_instance_id = $1 AND
	state IN ('READY', 'RESERVED')
ORDER BY
	id
`, processInstanceId)
}

func (r userTaskRepository) Query(ctx context.Context, c engine.UserTaskCriteria, o engine.QueryOptions) ([]engine.UserTask, error) {
	sql, err := executeQueryTemplate(sqlUserTaskQuery, userTaskColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanUserTask, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute user task query: %v", err)
	}
	return mapAll(entities, internal.UserTaskEntity.UserTask), nil
}
