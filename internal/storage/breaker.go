package storage

import (
	"context"

	"github.com/ryanbastic/go-docsync/internal/circuitbreaker"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
)

// BreakerErrors lists the outcomes that do not count against backend health.
var BreakerErrors = []error{
	ErrNotFound,
	ErrContainerNotFound,
	ErrUnsupportedQuery,
	ErrMissingID,
	ErrInvalidToken,
	context.Canceled,
}

// WithBreaker routes every call on c through b.
func WithBreaker(c Container, b *circuitbreaker.Breaker) Container {
	return &breakerContainer{next: c, breaker: b}
}

type breakerContainer struct {
	next    Container
	breaker *circuitbreaker.Breaker
}

func (c *breakerContainer) Metadata(ctx context.Context) (*ContainerMetadata, error) {
	return c.next.Metadata(ctx)
}

func (c *breakerContainer) Query(ctx context.Context, text string, opts QueryOptions) (*Page, error) {
	var page *Page
	err := c.breaker.Execute(func() error {
		var err error
		page, err = c.next.Query(ctx, text, opts)
		return err
	})
	return page, err
}

func (c *breakerContainer) Upsert(ctx context.Context, rec *record.Record, key partition.Key) (*WriteResult, error) {
	var res *WriteResult
	err := c.breaker.Execute(func() error {
		var err error
		res, err = c.next.Upsert(ctx, rec, key)
		return err
	})
	return res, err
}

func (c *breakerContainer) Delete(ctx context.Context, id string, key partition.Key) (*WriteResult, error) {
	var res *WriteResult
	err := c.breaker.Execute(func() error {
		var err error
		res, err = c.next.Delete(ctx, id, key)
		return err
	})
	return res, err
}

// BreakerCatalog wraps every container a catalog hands out.
type BreakerCatalog struct {
	Catalog
	breaker *circuitbreaker.Breaker
}

func NewBreakerCatalog(c Catalog, b *circuitbreaker.Breaker) *BreakerCatalog {
	return &BreakerCatalog{Catalog: c, breaker: b}
}

func (c *BreakerCatalog) Container(ctx context.Context, database, name string) (Container, error) {
	var inner Container
	err := c.breaker.Execute(func() error {
		var err error
		inner, err = c.Catalog.Container(ctx, database, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return WithBreaker(inner, c.breaker), nil
}
