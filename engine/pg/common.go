package pg

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
)

// selectAll executes a query and scans all rows.
func selectAll[T any](ctx context.Context, db db, scan func(pgx.Row) (*T, error), sql string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var entities []*T
	for rows.Next() {
		entity, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entities, nil
}

// selectOne executes a query, which returns at most one row.
// If no row is returned, [pgx.ErrNoRows] is returned unwrapped.
func selectOne[T any](ctx context.Context, db db, scan func(pgx.Row) (*T, error), sql string, args ...any) (*T, error) {
	entity, err := scan(db.QueryRow(ctx, sql, args...))
	if err == pgx.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %v", err)
	}
	return entity, nil
}

// mapAll maps entities to their engine representation.
func mapAll[T any, R any](entities []*T, mapper func(T) R) []R {
	results := make([]R, len(entities))
	for i, entity := range entities {
		results[i] = mapper(*entity)
	}
	return results
}

// sortById sorts entities, returned in arbitrary order (e.g. by UPDATE ... RETURNING), by ID.
func sortById[T any](entities []T, id func(T) int64) {
	slices.SortFunc(entities, func(a, b T) int {
		return cmp.Compare(id(a), id(b))
	})
}
