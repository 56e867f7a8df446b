package storage

import (
	"context"
	"errors"
	"testing"
)

type staticCatalog struct {
	databases []string
	err       error
}

func (c *staticCatalog) ListDatabases(ctx context.Context) ([]string, error) {
	return c.databases, c.err
}

func (c *staticCatalog) ListContainers(ctx context.Context, database string) ([]string, error) {
	return []string{database + "-c"}, nil
}

func (c *staticCatalog) Container(ctx context.Context, database, name string) (Container, error) {
	return nil, errors.New("static " + database)
}

func TestMultiCatalog_Routing(t *testing.T) {
	ctx := context.Background()
	docs := &staticCatalog{databases: []string{"shop", "tables"}}
	tables := openTestTables(t)
	testTable(t, tables, "orders")

	m := NewMultiCatalog(tables, docs)

	dbs, err := m.ListDatabases(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dbs) != 2 || dbs[0] != "shop" || dbs[1] != TableDatabase {
		t.Errorf("databases = %v", dbs)
	}

	names, _ := m.ListContainers(ctx, TableDatabase)
	if len(names) != 1 || names[0] != "orders" {
		t.Errorf("tables containers = %v", names)
	}
	names, _ = m.ListContainers(ctx, "shop")
	if len(names) != 1 || names[0] != "shop-c" {
		t.Errorf("shop containers = %v", names)
	}
	names, _ = m.ListContainers(ctx, "nope")
	if len(names) != 0 {
		t.Errorf("unknown database containers = %v", names)
	}

	if _, err := m.Container(ctx, TableDatabase, "orders"); err != nil {
		t.Errorf("orders: %v", err)
	}
	if _, err := m.Container(ctx, "nope", "x"); !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("unknown database: %v", err)
	}
}

func TestMultiCatalog_ListError(t *testing.T) {
	m := NewMultiCatalog(&staticCatalog{err: errors.New("down")})
	if _, err := m.ListDatabases(context.Background()); err == nil {
		t.Error("expected error")
	}
}
