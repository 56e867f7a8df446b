package storage

import (
	"context"
	"fmt"
	"sort"
)

// MultiCatalog serves several catalogs as one. Each database belongs to
// exactly one member; the first member listing a database owns it.
type MultiCatalog struct {
	members []Catalog
}

func NewMultiCatalog(members ...Catalog) *MultiCatalog {
	return &MultiCatalog{members: members}
}

func (m *MultiCatalog) ListDatabases(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	names := []string{}
	for _, c := range m.members {
		dbs, err := c.ListDatabases(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range dbs {
			if !seen[db] {
				seen[db] = true
				names = append(names, db)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MultiCatalog) ListContainers(ctx context.Context, database string) ([]string, error) {
	c, err := m.owner(ctx, database)
	if err != nil {
		return []string{}, nil
	}
	return c.ListContainers(ctx, database)
}

func (m *MultiCatalog) Container(ctx context.Context, database, name string) (Container, error) {
	c, err := m.owner(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrContainerNotFound, database, name)
	}
	return c.Container(ctx, database, name)
}

func (m *MultiCatalog) owner(ctx context.Context, database string) (Catalog, error) {
	for _, c := range m.members {
		dbs, err := c.ListDatabases(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range dbs {
			if db == database {
				return c, nil
			}
		}
	}
	return nil, ErrContainerNotFound
}
