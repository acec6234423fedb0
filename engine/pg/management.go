package pg

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Tables lists all tables, created by the migration.
var Tables = []string{
	"activity_instance",
	"external_task",
	"incident",
	"message_event",
	"process_definition",
	"process_instance",
	"signal_event",
	"timer_job",
	"user_task",
}

//go:embed ddl migration sql
var resources embed.FS

// migrate creates the tables and indices within a single transaction, unless the schema version is already set.
func (s *pgStore) migrate(ctx context.Context, databaseSchema string) error {
	b, err := resources.ReadFile("migration/version.txt")
	if err != nil {
		return fmt.Errorf("failed to read resource migration/version.txt: %v", err)
	}

	var versions []string

	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		if v := scanner.Text(); v != "" {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("resource migration/version.txt is empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := migrateDatabase(ctx, tx, databaseSchema, versions[len(versions)-1]); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func migrateDatabase(ctx context.Context, tx pgx.Tx, databaseSchema string, version string) error {
	schemaVersion, err := selectSchemaVersion(ctx, tx, databaseSchema)
	if err != nil {
		return err
	}

	if schemaVersion != "" {
		return nil
	}

	ddl, err := resources.ReadDir("ddl")
	if err != nil {
		return fmt.Errorf("failed to list resources under ddl: %v", err)
	}

	for _, entry := range ddl {
		if entry.IsDir() {
			continue
		}

		name := "ddl/" + entry.Name()
		b, err := resources.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read resource %s: %v", name, err)
		}

		if _, err := tx.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("failed to execute %s: %v", name, err)
		}
	}

	idx, err := resources.ReadDir("ddl/idx")
	if err != nil {
		return fmt.Errorf("failed to list resources under ddl/idx: %v", err)
	}

	for _, entry := range idx {
		name := "ddl/idx/" + entry.Name()
		b, err := resources.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read resource %s: %v", name, err)
		}

		scanner := bufio.NewScanner(bytes.NewReader(b))
		for scanner.Scan() {
			createIndex := scanner.Text()
			if createIndex == "" {
				continue
			}
			if _, err := tx.Exec(ctx, createIndex); err != nil {
				return fmt.Errorf("failed to execute %s: %v", name, err)
			}
		}
	}

	commentOnTable := fmt.Sprintf("COMMENT ON TABLE process_definition IS %s", quoteString(version))
	if _, err := tx.Exec(ctx, commentOnTable); err != nil {
		return fmt.Errorf("failed to set schema version: %v", err)
	}

	return nil
}

func selectSchemaVersion(ctx context.Context, tx pgx.Tx, databaseSchema string) (string, error) {
	row := tx.QueryRow(ctx, `
SELECT
	description
FROM
	pg_description
INNER JOIN
	pg_class
ON
	pg_description.objoid = pg_class.oid
INNER JOIN
	pg_namespace
ON
	pg_class.relnamespace = pg_namespace.oid
WHERE
	nspname = $1 AND
	relname = $2
`, databaseSchema, "process_definition")

	var schemaVersion string
	if err := row.Scan(&schemaVersion); err != nil {
		if err != pgx.ErrNoRows {
			return "", fmt.Errorf("failed to select schema version: %v", err)
		}
	}

	return schemaVersion, nil
}
