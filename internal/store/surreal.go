package store

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
)

// queryAll executes a raw SurrealQL query with parameters and unmarshals
// the first statement's results into a slice of T.
func queryAll[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	if len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// queryOne executes a query and returns its single result, or nil when
// nothing matched.
func queryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	results, err := queryAll[T](ctx, db, query, params)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// execute runs a query whose results are not needed.
func execute(ctx context.Context, db *surrealdb.DB, query string, params map[string]any) error {
	_, err := surrealdb.Query[any](ctx, db, query, params)
	if err != nil {
		return fmt.Errorf("query execution failed: %w", err)
	}
	return nil
}
