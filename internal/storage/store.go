package storage

import (
	"context"
	"errors"
	"math"

	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
)

var (
	// ErrNotFound is returned when a point operation finds no matching record.
	ErrNotFound = errors.New("record not found")

	// ErrContainerNotFound is returned when a catalog lookup misses.
	ErrContainerNotFound = errors.New("container not found")

	// ErrUnsupportedQuery is returned for query text the backend cannot run.
	ErrUnsupportedQuery = errors.New("unsupported query")

	// ErrMissingID is returned when a record lacks its identifier field.
	ErrMissingID = errors.New("record has no id")
)

// Kind identifies the backend family of a container.
type Kind string

const (
	KindDocument Kind = "document"
	KindTable    Kind = "table"
)

// Layout describes how a backend's records map onto a display table.
type Layout struct {
	// IDField names the per-record identifier used for point deletes.
	IDField string
	// KeyColumns lead the table in this order when present.
	KeyColumns []string
	// SystemColumns are store-generated and trail the table.
	SystemColumns []string
	// TypedColumns makes new columns take the type of their first value
	// instead of always being strings.
	TypedColumns bool
}

var (
	DocumentLayout = Layout{
		IDField:       "id",
		SystemColumns: []string{"_rid", "_self", "_etag", "_attachments", "_ts"},
	}

	TableLayout = Layout{
		IDField:       "RowKey",
		KeyColumns:    []string{"PartitionKey", "RowKey"},
		SystemColumns: []string{"Timestamp", "ETag"},
		TypedColumns:  true,
	}
)

// ContainerMetadata is what a container declares about itself.
type ContainerMetadata struct {
	Database          string   `json:"database"`
	Name              string   `json:"name"`
	Kind              Kind     `json:"kind"`
	PartitionKeyPaths []string `json:"partition_key_paths"`
	DefaultTTL        *int     `json:"default_ttl,omitempty"`
	UniqueKeyPaths    []string `json:"unique_key_paths,omitempty"`
	IndexingPolicy    string   `json:"indexing_policy,omitempty"`
	Layout            Layout   `json:"-"`
}

// QueryOptions controls a single page request.
type QueryOptions struct {
	// PageSize caps the records returned in one page. Zero means the
	// backend default.
	PageSize int
	// MaxItems caps the records returned across the whole query for
	// backends whose query text carries no limit. Zero means unlimited.
	MaxItems int
	// ContinuationToken resumes a previous query; empty starts over.
	ContinuationToken string
}

// Page is one page of query results.
type Page struct {
	Records       []*record.Record
	RequestCharge float64
	// ContinuationToken is empty when no further pages exist.
	ContinuationToken string
}

// Count returns the number of records on the page.
func (p *Page) Count() int { return len(p.Records) }

// WriteResult reports the cost of a point write or delete.
type WriteResult struct {
	RequestCharge float64
}

// Container is a queryable collection of records with point operations
// addressed by partition key.
type Container interface {
	Metadata(ctx context.Context) (*ContainerMetadata, error)

	// Query returns one page of results for text.
	Query(ctx context.Context, text string, opts QueryOptions) (*Page, error)

	// Upsert inserts or replaces rec under key.
	Upsert(ctx context.Context, rec *record.Record, key partition.Key) (*WriteResult, error)

	// Delete removes the record with id under key. Returns ErrNotFound when
	// nothing matched.
	Delete(ctx context.Context, id string, key partition.Key) (*WriteResult, error)
}

// Catalog enumerates databases and containers of one account.
type Catalog interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListContainers(ctx context.Context, database string) ([]string, error)
	Container(ctx context.Context, database, name string) (Container, error)
}

// QueryIterator walks the pages of one query. It is not safe for
// concurrent use; pages depend on the previous page's token.
type QueryIterator struct {
	container Container
	text      string
	opts      QueryOptions
	started   bool
}

// NewQueryIterator starts at opts.ContinuationToken (empty = beginning).
func NewQueryIterator(c Container, text string, opts QueryOptions) *QueryIterator {
	return &QueryIterator{container: c, text: text, opts: opts}
}

// HasMoreResults reports whether Next may return another page.
func (it *QueryIterator) HasMoreResults() bool {
	return !it.started || it.opts.ContinuationToken != ""
}

// Next fetches the next page and advances the iterator.
func (it *QueryIterator) Next(ctx context.Context) (*Page, error) {
	page, err := it.container.Query(ctx, it.text, it.opts)
	if err != nil {
		return nil, err
	}
	it.started = true
	it.opts.ContinuationToken = page.ContinuationToken
	return page, nil
}

// charge computes the synthetic request charge for an operation touching
// the given number of payload bytes.
func charge(base float64, bytes int) float64 {
	return math.Round((base+float64(bytes)/1024)*100) / 100
}
