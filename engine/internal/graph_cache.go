package internal

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/expr"
)

// GraphCache caches compiled process graphs by process definition ID.
// Since process definitions are immutable, cached graphs never become stale.
type GraphCache struct {
	cache     *expirable.LRU[int64, *graph]
	evaluator *expr.Evaluator
}

func NewGraphCache(size int, evaluator *expr.Evaluator) *GraphCache {
	return &GraphCache{
		cache:     expirable.NewLRU[int64, *graph](size, nil, 0),
		evaluator: evaluator,
	}
}

func (c *GraphCache) Add(g *graph) {
	c.cache.Add(g.definitionId, g)
}

// Get returns a cached graph or loads and compiles the process definition.
func (c *GraphCache) Get(ctx context.Context, store Store, definitionId int64) (*graph, error) {
	if g, ok := c.cache.Get(definitionId); ok {
		return g, nil
	}

	definition, err := store.ProcessDefinitions().Select(ctx, definitionId)
	if err == pgx.ErrNoRows {
		return nil, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to load process graph",
			Detail: fmt.Sprintf("process definition %d could not be found", definitionId),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select process definition %d: %v", definitionId, err)
	}

	process, err := parseSource(definition.Source)
	if err != nil {
		return nil, err
	}

	g, err := compileGraph(definition, process, c.evaluator)
	if err != nil {
		return nil, err
	}

	c.cache.Add(definitionId, g)
	return g, nil
}

func (c *GraphCache) Len() int {
	return c.cache.Len()
}
