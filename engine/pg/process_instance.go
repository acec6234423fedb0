package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const processInstanceColumns = `
	id,

	process_definition_id,

	business_key,
	created_by,
	definition_key,
	definition_version,
	ended_at,
	started_at,
	state,
	tenant_id,
	variables
`

func scanProcessInstance(row pgx.Row) (*internal.ProcessInstanceEntity, error) {
	var (
		entity     internal.ProcessInstanceEntity
		stateValue string
		variables  []byte
	)

	if err := row.Scan(
		&entity.Id,

		&entity.ProcessDefinitionId,

		&entity.BusinessKey,
		&entity.CreatedBy,
		&entity.DefinitionKey,
		&entity.DefinitionVersion,
		&entity.EndedAt,
		&entity.StartedAt,
		&stateValue,
		&entity.TenantId,
		&variables,
	); err != nil {
		return nil, err
	}

	decoded, err := internal.DecodeVariables(variables)
	if err != nil {
		return nil, err
	}

	entity.State = engine.MapInstanceState(stateValue)
	entity.Variables = decoded

	return &entity, nil
}

func upsertProcessInstance(ctx context.Context, tx pgx.Tx, entity *internal.ProcessInstanceEntity) error {
	variables, err := internal.EncodeVariables(entity.Variables)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO process_instance (`+processInstanceColumns+`) VALUES (
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
	$11
) ON CONFLICT (id) DO UPDATE SET
	ended_at = EXCLUDED.ended_at,
	state = EXCLUDED.state,
	variables = EXCLUDED.variables
`,
		entity.Id,

		entity.ProcessDefinitionId,

		entity.BusinessKey,
		entity.CreatedBy,
		entity.DefinitionKey,
		entity.DefinitionVersion,
		entity.EndedAt,
		entity.StartedAt,
		entity.State.String(),
		entity.TenantId,
		variables,
	); err != nil {
		return fmt.Errorf("failed to upsert process instance %d: %w", entity.Id, err)
	}

	return nil
}

type processInstanceRepository struct {
	db db
}

func (r processInstanceRepository) Select(ctx context.Context, id int64) (*internal.ProcessInstanceEntity, error) {
	return selectOne(ctx, r.db, scanProcessInstance, `
SELECT `+processInstanceColumns+`
FROM
	process_instance
WHERE
	id = $1
`, id)
}

func (r processInstanceRepository) SelectActive(ctx context.Context) ([]*internal.ProcessInstanceEntity, error) {
	return selectAll(ctx, r.db, scanProcessInstance, `
SELECT `+processInstanceColumns+`
FROM
	process_instance
WHERE
	state IN ('ACTIVE', 'SUSPENDED')
ORDER BY
	id
`)
}

func (r processInstanceRepository) Query(ctx context.Context, c engine.ProcessInstanceCriteria, o engine.QueryOptions) ([]engine.ProcessInstance, error) {
	sql, err := executeQueryTemplate(sqlProcessInstanceQuery, processInstanceColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanProcessInstance, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute process instance query: %v", err)
	}
	return mapAll(entities, internal.ProcessInstanceEntity.ProcessInstance), nil
}
