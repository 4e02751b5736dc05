// Package catalog caches table column metadata from information_schema.
// The guard's star expansion and ordering heuristic read from it on the hot
// path, so lookups are cached for the process lifetime and concurrent cold
// lookups for the same table are collapsed with singleflight.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// Column is one column of a physical table, in ordinal position order.
type Column struct {
	Name     string
	DataType string
}

type Catalog struct {
	pool  *pgxpool.Pool
	mu    sync.RWMutex
	cache map[string][]Column
	group singleflight.Group
}

func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool, cache: make(map[string][]Column)}
}

// Columns returns the ordered column set of schema.table.
func (c *Catalog) Columns(ctx context.Context, schema, table string) ([]Column, error) {
	key := schema + "." + table

	c.mu.RLock()
	cols, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cols, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		cols, err := c.load(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = cols
		c.mu.Unlock()
		return cols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Column), nil
}

// Invalidate drops the cache, forcing reloads on next lookup.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string][]Column)
	c.mu.Unlock()
}

func (c *Catalog) load(ctx context.Context, schema, table string) ([]Column, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT column_name, data_type
		 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2
		 ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("load columns for %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.DataType); err != nil {
			return nil, fmt.Errorf("scan column of %s.%s: %w", schema, table, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load columns for %s.%s: %w", schema, table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s has no columns or does not exist", schema, table)
	}
	return cols, nil
}
