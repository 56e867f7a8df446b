package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/shard"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testNumShards = 4

var (
	pgOnce      sync.Once
	pgErr       error
	pgContainer *postgres.PostgresContainer
	pgPool      *pgxpool.Pool
	pgCat       *PostgresCatalog
)

func TestMain(m *testing.M) {
	code := m.Run()
	if pgPool != nil {
		pgPool.Close()
	}
	if pgContainer != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
	}
	os.Exit(code)
}

// pgCatalog returns the catalog backed by the shared Postgres container,
// starting it on first use. Tests calling it are skipped when no container
// runtime is available.
func pgCatalog(t *testing.T) *PostgresCatalog {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	pgOnce.Do(func() { pgErr = startPostgres(context.Background()) })
	if pgErr != nil {
		t.Fatalf("postgres: %v", pgErr)
	}
	return pgCat
}

func startPostgres(ctx context.Context) error {
	ctr, err := postgres.Run(ctx, "postgres:16",
		postgres.WithDatabase("docsync"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if ctr != nil {
		pgContainer = ctr
	}
	if err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("connection string: %w", err)
	}
	pgPool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	if err := RunCatalogMigrations(ctx, pgPool); err != nil {
		return err
	}
	if err := RunMigrationsForPool(ctx, pgPool, 0, testNumShards-1); err != nil {
		return err
	}
	router := shard.NewRouter[*pgxpool.Pool]()
	for i := 0; i < testNumShards; i++ {
		router.Register(shard.ID(i), pgPool)
	}
	pgCat = NewPostgresCatalog(pgPool, router, 5*time.Second)
	return nil
}

// freshContainer registers a container in a database no other test uses.
func freshContainer(t *testing.T, paths ...string) Container {
	t.Helper()
	cat := pgCatalog(t)
	ctx := context.Background()
	db := "db-" + uuid.NewString()[:8]
	if len(paths) == 0 {
		paths = []string{"/pk"}
	}
	if err := cat.CreateContainer(ctx, ContainerMetadata{
		Database:          db,
		Name:              "items",
		PartitionKeyPaths: paths,
	}); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	c, err := cat.Container(ctx, db, "items")
	if err != nil {
		t.Fatalf("Container: %v", err)
	}
	return c
}

func mustParse(t *testing.T, s string) *record.Record {
	t.Helper()
	r, err := record.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return r
}

func upsert(t *testing.T, c Container, doc string) {
	t.Helper()
	rec := mustParse(t, doc)
	meta, _ := c.Metadata(context.Background())
	key, err := partition.Resolve(rec, partition.MustParsePaths(meta.PartitionKeyPaths...))
	if err != nil {
		t.Fatalf("resolve key: %v", err)
	}
	res, err := c.Upsert(context.Background(), rec, key)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if res.RequestCharge < 5 {
		t.Errorf("write charge = %v, want >= 5", res.RequestCharge)
	}
}

func collect(t *testing.T, c Container, text string, pageSize int) ([]*record.Record, int) {
	t.Helper()
	it := NewQueryIterator(c, text, QueryOptions{PageSize: pageSize})
	var out []*record.Record
	pages := 0
	for it.HasMoreResults() {
		page, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if page.Count() > pageSize {
			t.Fatalf("page has %d records, page size %d", page.Count(), pageSize)
		}
		out = append(out, page.Records...)
		pages++
	}
	return out, pages
}

func TestCatalog_ListAndLookup(t *testing.T) {
	ctx := context.Background()
	c := freshContainer(t, "/tenant/region", "/userId")
	meta, _ := c.Metadata(ctx)

	dbs, err := pgCatalog(t).ListDatabases(ctx)
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	found := false
	for _, db := range dbs {
		if db == meta.Database {
			found = true
		}
	}
	if !found {
		t.Errorf("database %q not listed in %v", meta.Database, dbs)
	}

	names, err := pgCatalog(t).ListContainers(ctx, meta.Database)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(names) != 1 || names[0] != "items" {
		t.Errorf("containers = %v, want [items]", names)
	}

	if len(meta.PartitionKeyPaths) != 2 || meta.PartitionKeyPaths[1] != "/userId" {
		t.Errorf("partition key paths = %v", meta.PartitionKeyPaths)
	}
	if meta.Kind != KindDocument {
		t.Errorf("kind = %q, want document", meta.Kind)
	}

	_, err = pgCatalog(t).Container(ctx, meta.Database, "missing")
	if !errors.Is(err, ErrContainerNotFound) {
		t.Errorf("got %v, want ErrContainerNotFound", err)
	}
}

func TestCreateContainer_InvalidPath(t *testing.T) {
	err := pgCatalog(t).CreateContainer(context.Background(), ContainerMetadata{
		Database:          "bad",
		Name:              "items",
		PartitionKeyPaths: []string{"pk"},
	})
	if err == nil {
		t.Fatal("expected error for path without leading slash")
	}
}

func TestQuery_PagesAcrossShards(t *testing.T) {
	c := freshContainer(t)
	for i := 0; i < 23; i++ {
		upsert(t, c, fmt.Sprintf(`{"id":"doc-%02d","pk":"p%d","n":%d}`, i, i%7, i))
	}

	recs, pages := collect(t, c, "SELECT * FROM c", 5)
	if len(recs) != 23 {
		t.Fatalf("got %d records, want 23", len(recs))
	}
	if pages < 5 {
		t.Errorf("got %d pages, want at least 5", pages)
	}

	seen := map[string]bool{}
	for _, r := range recs {
		id, _ := r.ID("id")
		if seen[id] {
			t.Errorf("duplicate record %s", id)
		}
		seen[id] = true
	}
}

func TestQuery_TopLimitsAcrossPages(t *testing.T) {
	c := freshContainer(t)
	for i := 0; i < 12; i++ {
		upsert(t, c, fmt.Sprintf(`{"id":"%d","pk":"p%d"}`, i, i))
	}

	recs, _ := collect(t, c, "SELECT TOP 7 * FROM c", 3)
	if len(recs) != 7 {
		t.Errorf("got %d records, want 7", len(recs))
	}
}

func TestQuery_PreservesFieldOrderAndAddsSystemFields(t *testing.T) {
	c := freshContainer(t)
	upsert(t, c, `{"zeta":1,"id":"a","pk":"x","alpha":{"b":2,"a":1}}`)

	recs, _ := collect(t, c, "SELECT * FROM c", 10)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	keys := recs[0].Keys()
	want := []string{"zeta", "id", "pk", "alpha", "_rid", "_self", "_etag", "_attachments", "_ts"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, keys[i], want[i])
		}
	}
	self, _ := recs[0].Get("_self")
	if self.Str() == "" {
		t.Error("expected _self")
	}
}

func TestQuery_Predicate(t *testing.T) {
	c := freshContainer(t)
	upsert(t, c, `{"id":"1","pk":"a","status":"open","n":1}`)
	upsert(t, c, `{"id":"2","pk":"a","status":"closed","n":2}`)
	upsert(t, c, `{"id":"3","pk":"b","status":"open","n":3}`)

	recs, _ := collect(t, c, "SELECT * FROM c WHERE c.status = 'open' AND c.n > 1", 10)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if id, _ := recs[0].ID("id"); id != "3" {
		t.Errorf("id = %q, want 3", id)
	}
}

func TestQuery_Unsupported(t *testing.T) {
	c := freshContainer(t)
	_, err := c.Query(context.Background(), "SELECT c.id FROM c", QueryOptions{})
	if !errors.Is(err, ErrUnsupportedQuery) {
		t.Errorf("got %v, want ErrUnsupportedQuery", err)
	}
	_, err = c.Query(context.Background(), "SELECT * FROM c", QueryOptions{ContinuationToken: "%%%"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("got %v, want ErrInvalidToken", err)
	}
}

func TestUpsert_ReplacesAndStripsSystemFields(t *testing.T) {
	c := freshContainer(t)
	upsert(t, c, `{"id":"1","pk":"a","v":1}`)

	recs, _ := collect(t, c, "SELECT * FROM c", 10)
	recs[0].Set("v", record.Int(2))
	key := partition.Key{record.String("a")}
	if _, err := c.Upsert(context.Background(), recs[0], key); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	recs, _ = collect(t, c, "SELECT * FROM c", 10)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	v, _ := recs[0].Get("v")
	if v.IntVal() != 2 {
		t.Errorf("v = %s, want 2", v.Text())
	}
	if n := len(recs[0].Keys()); n != 8 {
		t.Errorf("got %d fields, want 8 (system fields must not be duplicated)", n)
	}
}

func TestUpsert_MissingID(t *testing.T) {
	c := freshContainer(t)
	_, err := c.Upsert(context.Background(), mustParse(t, `{"pk":"a"}`), partition.Key{record.String("a")})
	if !errors.Is(err, ErrMissingID) {
		t.Errorf("got %v, want ErrMissingID", err)
	}
}

func TestDelete(t *testing.T) {
	c := freshContainer(t)
	upsert(t, c, `{"id":"1","pk":"a"}`)
	upsert(t, c, `{"id":"1","pk":"b"}`)
	ctx := context.Background()

	if _, err := c.Delete(ctx, "1", partition.Key{record.String("a")}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, _ := collect(t, c, "SELECT * FROM c", 10)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if pk, _ := recs[0].Get("pk"); pk.Str() != "b" {
		t.Errorf("remaining pk = %q, want b", pk.Str())
	}

	_, err := c.Delete(ctx, "1", partition.Key{record.String("a")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
