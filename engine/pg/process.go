package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

const processDefinitionColumns = `
	id,

	checksum,
	created_at,
	created_by,
	key,
	name,
	source,
	tenant_id,
	version
`

func scanProcessDefinition(row pgx.Row) (*internal.ProcessDefinitionEntity, error) {
	var entity internal.ProcessDefinitionEntity

	if err := row.Scan(
		&entity.Id,

		&entity.Checksum,
		&entity.CreatedAt,
		&entity.CreatedBy,
		&entity.Key,
		&entity.Name,
		&entity.Source,
		&entity.TenantId,
		&entity.Version,
	); err != nil {
		return nil, err
	}

	return &entity, nil
}

// upsertProcessDefinition inserts a process definition. Since process definitions are immutable, nothing is updated.
func upsertProcessDefinition(ctx context.Context, tx pgx.Tx, entity *internal.ProcessDefinitionEntity) error {
	if _, err := tx.Exec(ctx, `
INSERT INTO process_definition (`+processDefinitionColumns+`) VALUES (
	$1,

	$2,
	$3,
	$4,
	$5,
	$6,
	$7,
	$8,
	$9
) ON CONFLICT (id) DO NOTHING
`,
		entity.Id,

		entity.Checksum,
		entity.CreatedAt,
		entity.CreatedBy,
		entity.Key,
		entity.Name,
		entity.Source,
		entity.TenantId,
		entity.Version,
	); err != nil {
		return fmt.Errorf("failed to insert process definition %d: %w", entity.Id, err)
	}

	return nil
}

type processDefinitionRepository struct {
	db db
}

func (r processDefinitionRepository) Select(ctx context.Context, id int64) (*internal.ProcessDefinitionEntity, error) {
	return selectOne(ctx, r.db, scanProcessDefinition, `
SELECT `+processDefinitionColumns+`
FROM
	process_definition
WHERE
	id = $1
`, id)
}

func (r processDefinitionRepository) SelectByVersion(ctx context.Context, key string, tenantId string, version int) (*internal.ProcessDefinitionEntity, error) {
	return selectOne(ctx, r.db, scanProcessDefinition, `
SELECT `+processDefinitionColumns+`
FROM
	process_definition
WHERE
	key = $1 AND
	tenant_id = $2 AND
	version = $3
`, key, tenantId, version)
}

func (r processDefinitionRepository) SelectLatest(ctx context.Context, key string, tenantId string) (*internal.ProcessDefinitionEntity, error) {
	return selectOne(ctx, r.db, scanProcessDefinition, `
SELECT `+processDefinitionColumns+`
FROM
	process_definition
WHERE
	key = $1 AND
	tenant_id = $2
ORDER BY
	version DESC
LIMIT 1
`, key, tenantId)
}

func (r processDefinitionRepository) Query(ctx context.Context, c engine.ProcessDefinitionCriteria, o engine.QueryOptions) ([]engine.ProcessDefinition, error) {
	sql, err := executeQueryTemplate(sqlProcessDefinitionQuery, processDefinitionColumns, c, o)
	if err != nil {
		return nil, err
	}

	entities, err := selectAll(ctx, r.db, scanProcessDefinition, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to execute process definition query: %v", err)
	}
	return mapAll(entities, internal.ProcessDefinitionEntity.ProcessDefinition), nil
}
