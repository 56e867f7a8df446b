package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/shard"
)

const defaultPageSize = 100

// PostgresCatalog serves document containers whose records are spread over
// sharded PostgreSQL tables. The container catalog lives on the primary pool.
type PostgresCatalog struct {
	primary      *pgxpool.Pool
	router       *shard.Router[*pgxpool.Pool]
	queryTimeout time.Duration
}

// NewPostgresCatalog creates a catalog over the shard pools in router.
// queryTimeout sets the per-query context deadline; zero means no timeout.
func NewPostgresCatalog(primary *pgxpool.Pool, router *shard.Router[*pgxpool.Pool], queryTimeout time.Duration) *PostgresCatalog {
	return &PostgresCatalog{
		primary:      primary,
		router:       router,
		queryTimeout: queryTimeout,
	}
}

// withTimeout derives a child context with the configured query timeout.
// If queryTimeout is zero, the parent context is returned unchanged.
func (s *PostgresCatalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return ctx, func() {}
}

// CreateContainer registers a container, replacing any previous definition
// with the same database and name.
func (s *PostgresCatalog) CreateContainer(ctx context.Context, meta ContainerMetadata) error {
	if meta.Database == "" || meta.Name == "" {
		return fmt.Errorf("create container: database and name are required")
	}
	if _, err := partition.ParsePaths(meta.PartitionKeyPaths); err != nil {
		return fmt.Errorf("create container %s/%s: %w", meta.Database, meta.Name, err)
	}
	unique := meta.UniqueKeyPaths
	if unique == nil {
		unique = []string{}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.primary.Exec(ctx, `
		INSERT INTO containers (database_name, container_name, partition_key_paths, default_ttl, unique_key_paths, indexing_policy)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (database_name, container_name)
		DO UPDATE SET partition_key_paths = $3, default_ttl = $4, unique_key_paths = $5, indexing_policy = $6
	`, meta.Database, meta.Name, meta.PartitionKeyPaths, ttlParam(meta.DefaultTTL), unique, meta.IndexingPolicy)
	if err != nil {
		return fmt.Errorf("create container %s/%s: %w", meta.Database, meta.Name, err)
	}
	return nil
}

func (s *PostgresCatalog) ListDatabases(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.primary.Query(ctx, `SELECT DISTINCT database_name FROM containers ORDER BY database_name`)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list databases scan: %w", err)
	}
	return names, nil
}

func (s *PostgresCatalog) ListContainers(ctx context.Context, database string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.primary.Query(ctx,
		`SELECT container_name FROM containers WHERE database_name = $1 ORDER BY container_name`, database)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list containers scan: %w", err)
	}
	return names, nil
}

func (s *PostgresCatalog) Container(ctx context.Context, database, name string) (Container, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	meta := ContainerMetadata{
		Database: database,
		Name:     name,
		Kind:     KindDocument,
		Layout:   DocumentLayout,
	}
	var ttl *int32
	err := s.primary.QueryRow(ctx, `
		SELECT partition_key_paths, default_ttl, unique_key_paths, indexing_policy
		FROM containers
		WHERE database_name = $1 AND container_name = $2
	`, database, name).Scan(&meta.PartitionKeyPaths, &ttl, &meta.UniqueKeyPaths, &meta.IndexingPolicy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrContainerNotFound, database, name)
		}
		return nil, fmt.Errorf("load container %s/%s: %w", database, name, err)
	}
	if ttl != nil {
		v := int(*ttl)
		meta.DefaultTTL = &v
	}
	return &PostgresContainer{catalog: s, meta: meta}, nil
}

// Ping checks the primary backend.
func (s *PostgresCatalog) Ping(ctx context.Context) error {
	return s.primary.Ping(ctx)
}

// PostgresContainer implements Container for one document container.
type PostgresContainer struct {
	catalog *PostgresCatalog
	meta    ContainerMetadata
}

func (c *PostgresContainer) Metadata(ctx context.Context) (*ContainerMetadata, error) {
	m := c.meta
	return &m, nil
}

// Query reads shards in ascending order and rows within a shard by
// added_id, so a token always resumes exactly where the last page ended.
func (c *PostgresContainer) Query(ctx context.Context, text string, opts QueryOptions) (*Page, error) {
	q, err := compileDocumentQuery(text)
	if err != nil {
		return nil, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	cur := newCursor(q.Top)
	if opts.ContinuationToken != "" {
		cur, err = DecodeCursor(opts.ContinuationToken)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := c.catalog.withTimeout(ctx)
	defer cancel()

	numShards := c.catalog.router.Len()
	page := &Page{Records: []*record.Record{}}
	bytesRead := 0
	done := false

	for !done && len(page.Records) < pageSize && cur.Shard < numShards {
		limit := pageSize - len(page.Records)
		if cur.limited() && cur.Remaining < limit {
			limit = cur.Remaining
		}

		pool, err := c.catalog.router.For(shard.ID(cur.Shard))
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}

		n, read, err := c.scanShard(ctx, pool, cur, q.Predicate, limit, page)
		if err != nil {
			return nil, err
		}
		bytesRead += read

		if cur.limited() {
			cur.Remaining -= n
			if cur.Remaining <= 0 {
				done = true
			}
		}
		if n < limit {
			cur.Shard++
			cur.AddedID = 0
		}
	}

	page.RequestCharge = charge(1, bytesRead)
	if !done && cur.Shard < numShards {
		token, err := cur.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode next cursor: %w", err)
		}
		page.ContinuationToken = token
	}
	return page, nil
}

func (c *PostgresContainer) scanShard(ctx context.Context, pool *pgxpool.Pool, cur *Cursor, predicate string, limit int, page *Page) (int, int, error) {
	query := fmt.Sprintf(`
		SELECT added_id, id, body::text, etag, updated_at
		FROM %s
		WHERE database_name = $1 AND container_name = $2 AND added_id > $3
	`, ShardTable(cur.Shard))
	args := []any{c.meta.Database, c.meta.Name, cur.AddedID}
	if predicate != "" {
		query += ` AND body::jsonb @@ $5::jsonpath`
	}
	query += ` ORDER BY added_id ASC LIMIT $4`
	args = append(args, limit)
	if predicate != "" {
		args = append(args, predicate)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("query shard %d: %w", cur.Shard, err)
	}
	defer rows.Close()

	n, read := 0, 0
	for rows.Next() {
		var (
			addedID   int64
			id        string
			body      string
			etag      uuid.UUID
			updatedAt time.Time
		)
		if err := rows.Scan(&addedID, &id, &body, &etag, &updatedAt); err != nil {
			return 0, 0, fmt.Errorf("query shard %d scan: %w", cur.Shard, err)
		}
		rec, err := record.Parse([]byte(body))
		if err != nil {
			return 0, 0, fmt.Errorf("query shard %d: document %q: %w", cur.Shard, id, err)
		}
		c.addSystemFields(rec, cur.Shard, addedID, id, etag, updatedAt)
		page.Records = append(page.Records, rec)
		cur.AddedID = addedID
		read += len(body)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("query shard %d rows: %w", cur.Shard, err)
	}
	return n, read, nil
}

func (c *PostgresContainer) addSystemFields(rec *record.Record, shardID int, addedID int64, id string, etag uuid.UUID, updatedAt time.Time) {
	rec.Set("_rid", record.String(strconv.Itoa(shardID)+"."+strconv.FormatInt(addedID, 10)))
	rec.Set("_self", record.String(fmt.Sprintf("dbs/%s/colls/%s/docs/%s", c.meta.Database, c.meta.Name, id)))
	rec.Set("_etag", record.String(`"`+etag.String()+`"`))
	rec.Set("_attachments", record.String("attachments/"))
	rec.Set("_ts", record.Int(updatedAt.Unix()))
}

func (c *PostgresContainer) Upsert(ctx context.Context, rec *record.Record, key partition.Key) (*WriteResult, error) {
	id, ok := rec.ID(c.meta.Layout.IDField)
	if !ok {
		return nil, ErrMissingID
	}
	body, err := rec.Without(c.meta.Layout.SystemColumns...).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("upsert %q: marshal: %w", id, err)
	}

	encoded := key.Encode()
	shardID := shard.ForKey(encoded, c.catalog.router.Len())
	pool, err := c.catalog.router.For(shardID)
	if err != nil {
		return nil, fmt.Errorf("upsert %q: %w", id, err)
	}

	ctx, cancel := c.catalog.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (database_name, container_name, id, partition_key, body, etag)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (database_name, container_name, partition_key, id)
		DO UPDATE SET body = EXCLUDED.body, etag = EXCLUDED.etag, updated_at = now()
	`, ShardTable(int(shardID)))

	if _, err := pool.Exec(ctx, query, c.meta.Database, c.meta.Name, id, encoded, string(body), uuid.New()); err != nil {
		return nil, fmt.Errorf("upsert %q: %w", id, err)
	}
	return &WriteResult{RequestCharge: charge(5, len(body))}, nil
}

func (c *PostgresContainer) Delete(ctx context.Context, id string, key partition.Key) (*WriteResult, error) {
	encoded := key.Encode()
	shardID := shard.ForKey(encoded, c.catalog.router.Len())
	pool, err := c.catalog.router.For(shardID)
	if err != nil {
		return nil, fmt.Errorf("delete %q: %w", id, err)
	}

	ctx, cancel := c.catalog.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE database_name = $1 AND container_name = $2 AND partition_key = $3 AND id = $4
	`, ShardTable(int(shardID)))

	tag, err := pool.Exec(ctx, query, c.meta.Database, c.meta.Name, encoded, id)
	if err != nil {
		return nil, fmt.Errorf("delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	return &WriteResult{RequestCharge: charge(5, 0)}, nil
}

func ttlParam(ttl *int) any {
	if ttl == nil {
		return nil
	}
	return int32(*ttl)
}
