package sync

import (
	"rostersync/internal/model"
)

// LineCache is an in-memory snapshot of the small entity tables, loaded once
// per analyze pass so the dependency cascade resolves references in O(1)
// instead of a query per lookup.
type LineCache struct {
	tables map[model.CSVTable]map[string]*model.DataSyncLine
}

// NewLineCache builds a cache from pre-loaded line maps.
func NewLineCache(tables map[model.CSVTable]map[string]*model.DataSyncLine) *LineCache {
	if tables == nil {
		tables = map[model.CSVTable]map[string]*model.DataSyncLine{}
	}
	return &LineCache{tables: tables}
}

// lineMapper loads one entity table fully into memory.
type lineMapper interface {
	LineMap(table model.CSVTable) (map[string]*model.DataSyncLine, error)
}

// BuildLineCache loads the given tables fully into memory.
func BuildLineCache(r lineMapper, tables ...model.CSVTable) (*LineCache, error) {
	c := NewLineCache(nil)
	for _, table := range tables {
		m, err := r.LineMap(table)
		if err != nil {
			return nil, err
		}
		c.tables[table] = m
	}
	return c, nil
}

// Get returns the cached line for (table, sourcedId), nil when absent.
func (c *LineCache) Get(table model.CSVTable, sourcedID string) *model.DataSyncLine {
	return c.tables[table][sourcedID]
}

// All returns the cached map for one table.
func (c *LineCache) All(table model.CSVTable) map[string]*model.DataSyncLine {
	return c.tables[table]
}
