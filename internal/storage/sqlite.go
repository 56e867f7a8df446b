package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// TableDatabase is the single database name a table-store account exposes.
const TableDatabase = "tables"

const entityTimestampLayout = "2006-01-02T15:04:05.000000000Z"

// formatEntityTimestamp renders t in a fixed-width form so text ordering
// matches time ordering.
func formatEntityTimestamp(t time.Time) string {
	return t.UTC().Format(entityTimestampLayout)
}

// SQLiteCatalog is a key/attribute table store backed by a local SQLite
// file. Every table shares the entities relation.
type SQLiteCatalog struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// OpenSQLite opens (creating if needed) the table store at path.
func OpenSQLite(ctx context.Context, path string, queryTimeout time.Duration) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create table store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open table store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping table store: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("table store %s: %w", pragma, err)
		}
	}

	s := &SQLiteCatalog{db: db, queryTimeout: queryTimeout}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCatalog) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS tables (
			name       TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entities (
			table_name    TEXT NOT NULL,
			partition_key TEXT NOT NULL,
			row_key       TEXT NOT NULL,
			properties    TEXT NOT NULL,
			timestamp     TEXT NOT NULL,
			etag          TEXT NOT NULL,

			PRIMARY KEY (table_name, partition_key, row_key)
		);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate table store: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// Close releases the underlying database handle.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

// DB exposes the handle for connection pool metrics.
func (s *SQLiteCatalog) DB() *sql.DB {
	return s.db
}

func (s *SQLiteCatalog) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateTable registers a table. Creating an existing table is a no-op.
func (s *SQLiteCatalog) CreateTable(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("create table: name is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tables (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, formatEntityTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteCatalog) ListDatabases(ctx context.Context) ([]string, error) {
	return []string{TableDatabase}, nil
}

func (s *SQLiteCatalog) ListContainers(ctx context.Context, database string) ([]string, error) {
	if database != TableDatabase {
		return []string{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tables ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteCatalog) Container(ctx context.Context, database, name string) (Container, error) {
	if database != TableDatabase {
		return nil, fmt.Errorf("%w: %s/%s", ErrContainerNotFound, database, name)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var found string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM tables WHERE name = ?`, name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrContainerNotFound, database, name)
		}
		return nil, fmt.Errorf("load table %s: %w", name, err)
	}
	return &SQLiteTable{
		catalog: s,
		meta: ContainerMetadata{
			Database:          TableDatabase,
			Name:              name,
			Kind:              KindTable,
			PartitionKeyPaths: []string{"/PartitionKey"},
			Layout:            TableLayout,
		},
	}, nil
}

// SQLiteTable implements Container for one table. Query text is an OData
// filter; blank text selects every entity.
type SQLiteTable struct {
	catalog *SQLiteCatalog
	meta    ContainerMetadata
}

func (t *SQLiteTable) Metadata(ctx context.Context) (*ContainerMetadata, error) {
	m := t.meta
	return &m, nil
}

// Query returns entities ordered by (PartitionKey, RowKey). opts.MaxItems
// caps the total across all pages.
func (t *SQLiteTable) Query(ctx context.Context, text string, opts QueryOptions) (*Page, error) {
	var filter *odataFilter
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		f, err := compileODataFilter(trimmed)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	cur := newCursor(opts.MaxItems)
	resuming := opts.ContinuationToken != ""
	if resuming {
		var err error
		cur, err = DecodeCursor(opts.ContinuationToken)
		if err != nil {
			return nil, err
		}
	}

	limit := pageSize
	if cur.limited() && cur.Remaining < limit {
		limit = cur.Remaining
	}
	page := &Page{Records: []*record.Record{}}
	if limit == 0 {
		return page, nil
	}

	query := `SELECT partition_key, row_key, properties, timestamp, etag FROM entities WHERE table_name = ?`
	args := []any{t.meta.Name}
	if resuming {
		query += ` AND (partition_key > ? OR (partition_key = ? AND row_key > ?))`
		args = append(args, cur.PartitionKey, cur.PartitionKey, cur.RowKey)
	}
	if filter != nil {
		query += ` AND ` + filter.SQL
		args = append(args, filter.Args...)
	}
	query += ` ORDER BY partition_key, row_key LIMIT ?`
	args = append(args, limit+1)

	ctx, cancel := t.catalog.withTimeout(ctx)
	defer cancel()

	rows, err := t.catalog.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query table %s: %w", t.meta.Name, err)
	}
	defer rows.Close()

	more := false
	bytesRead := 0
	for rows.Next() {
		if len(page.Records) == limit {
			more = true
			break
		}
		var pk, rk, props, ts, etag string
		if err := rows.Scan(&pk, &rk, &props, &ts, &etag); err != nil {
			return nil, fmt.Errorf("query table %s scan: %w", t.meta.Name, err)
		}
		rec, err := entityRecord(pk, rk, props, ts, etag)
		if err != nil {
			return nil, fmt.Errorf("query table %s: entity %s/%s: %w", t.meta.Name, pk, rk, err)
		}
		page.Records = append(page.Records, rec)
		cur.PartitionKey, cur.RowKey = pk, rk
		bytesRead += len(props)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query table %s rows: %w", t.meta.Name, err)
	}

	if cur.limited() {
		cur.Remaining -= len(page.Records)
		if cur.Remaining <= 0 {
			more = false
		}
	}
	page.RequestCharge = charge(1, bytesRead)
	if more {
		token, err := cur.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode next cursor: %w", err)
		}
		page.ContinuationToken = token
	}
	return page, nil
}

func entityRecord(pk, rk, props, ts, etag string) (*record.Record, error) {
	body, err := record.Parse([]byte(props))
	if err != nil {
		return nil, err
	}
	rec := record.New()
	rec.Set("PartitionKey", record.String(pk))
	rec.Set("RowKey", record.String(rk))
	for _, k := range body.Keys() {
		v, _ := body.Get(k)
		rec.Set(k, v)
	}
	if parsed, err := time.Parse(entityTimestampLayout, ts); err == nil {
		ts = parsed.Format(time.RFC3339Nano)
	}
	rec.Set("Timestamp", record.String(ts))
	rec.Set("ETag", record.String(etag))
	return rec, nil
}

// Upsert replaces the entity addressed by key and the record's RowKey.
func (t *SQLiteTable) Upsert(ctx context.Context, rec *record.Record, key partition.Key) (*WriteResult, error) {
	if len(key) != 1 {
		return nil, fmt.Errorf("upsert: table entities take exactly one partition key value, got %d", len(key))
	}
	rk, ok := rec.ID(t.meta.Layout.IDField)
	if !ok {
		return nil, ErrMissingID
	}
	pk := key[0].Text()
	props, err := rec.Without("PartitionKey", "RowKey", "Timestamp", "ETag").MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: marshal: %w", pk, rk, err)
	}

	ctx, cancel := t.catalog.withTimeout(ctx)
	defer cancel()

	_, err = t.catalog.db.ExecContext(ctx, `
		INSERT INTO entities (table_name, partition_key, row_key, properties, timestamp, etag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, partition_key, row_key)
		DO UPDATE SET properties = excluded.properties, timestamp = excluded.timestamp, etag = excluded.etag
	`, t.meta.Name, pk, rk, string(props), formatEntityTimestamp(time.Now()), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", pk, rk, err)
	}
	return &WriteResult{RequestCharge: charge(5, len(props))}, nil
}

func (t *SQLiteTable) Delete(ctx context.Context, id string, key partition.Key) (*WriteResult, error) {
	if len(key) != 1 {
		return nil, fmt.Errorf("delete: table entities take exactly one partition key value, got %d", len(key))
	}
	pk := key[0].Text()

	ctx, cancel := t.catalog.withTimeout(ctx)
	defer cancel()

	res, err := t.catalog.db.ExecContext(ctx,
		`DELETE FROM entities WHERE table_name = ? AND partition_key = ? AND row_key = ?`,
		t.meta.Name, pk, id)
	if err != nil {
		return nil, fmt.Errorf("delete %s/%s: %w", pk, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete %s/%s: %w", pk, id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("delete %s/%s: %w", pk, id, ErrNotFound)
	}
	return &WriteResult{RequestCharge: charge(5, 0)}, nil
}
