// Package pager drives a container's paged query results into tables,
// either all at once or one page at a time.
package pager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanbastic/go-docsync/internal/metrics"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/ryanbastic/go-docsync/internal/table"
)

// Metrics are accumulated per page as a fetch proceeds.
type Metrics struct {
	RequestCharge float64       `json:"request_charge"`
	RecordCount   int           `json:"record_count"`
	PageCount     int           `json:"page_count"`
	Elapsed       time.Duration `json:"elapsed"`
}

func (m *Metrics) add(page *storage.Page, d time.Duration) {
	m.RequestCharge += page.RequestCharge
	m.RecordCount += page.Count()
	m.PageCount++
	m.Elapsed += d
}

// Result is the outcome of FetchAll. When Err is set the table holds every
// record fetched before the failure.
type Result struct {
	Table   *table.Table
	Metrics Metrics
	Err     error
}

// PageResult is one page of a paged fetch.
type PageResult struct {
	Table             *table.Table
	ContinuationToken string
	Metrics           Metrics
}

// Pager fetches query results from one container. It keeps no state
// between calls.
type Pager struct {
	container  storage.Container
	normalizer *table.Normalizer
	kind       storage.Kind
	maxItems   int
	logger     *slog.Logger
}

// New creates a pager. maxItems caps results for containers whose query
// text cannot carry a limit; zero means unlimited.
func New(c storage.Container, meta *storage.ContainerMetadata, n *table.Normalizer, maxItems int, logger *slog.Logger) *Pager {
	return &Pager{
		container:  c,
		normalizer: n,
		kind:       meta.Kind,
		maxItems:   maxItems,
		logger:     logger,
	}
}

// FetchAll reads pages in sequence until the query is exhausted. A failing
// page stops the loop; the error is attached to the result, never returned.
// Metrics.PageCount tells a partial result from one that never started.
func (p *Pager) FetchAll(ctx context.Context, query string, pageSize int) *Result {
	res := &Result{}
	tbl := table.New()
	it := storage.NewQueryIterator(p.container, query, p.options(pageSize, ""))

	for it.HasMoreResults() {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		page, d, err := p.next(ctx, it)
		if err != nil {
			res.Metrics.Elapsed += d
			res.Err = fmt.Errorf("fetch page %d: %w", res.Metrics.PageCount+1, err)
			p.logger.Warn("fetch stopped with partial results",
				"pages", res.Metrics.PageCount,
				"records", res.Metrics.RecordCount,
				"error", err,
			)
			break
		}
		res.Metrics.add(page, d)
		p.append(tbl, page.Records)
	}

	p.normalizer.Finish(tbl)
	res.Table = tbl
	return res
}

// FetchPage reads exactly one page. An empty token starts from the beginning.
func (p *Pager) FetchPage(ctx context.Context, query string, pageSize int, token string) (*PageResult, error) {
	it := storage.NewQueryIterator(p.container, query, p.options(pageSize, token))
	page, d, err := p.next(ctx, it)
	if err != nil {
		return nil, err
	}

	tbl := table.New()
	p.append(tbl, page.Records)
	p.normalizer.Finish(tbl)

	res := &PageResult{Table: tbl, ContinuationToken: page.ContinuationToken}
	res.Metrics.add(page, d)
	return res, nil
}

func (p *Pager) options(pageSize int, token string) storage.QueryOptions {
	opts := storage.QueryOptions{PageSize: pageSize, ContinuationToken: token}
	if p.kind == storage.KindTable {
		opts.MaxItems = p.maxItems
	}
	return opts
}

func (p *Pager) next(ctx context.Context, it *storage.QueryIterator) (*storage.Page, time.Duration, error) {
	start := time.Now()
	page, err := it.Next(ctx)
	d := time.Since(start)
	if err != nil {
		metrics.ObservePage(string(p.kind), 0, 0, d, err)
		return nil, d, err
	}
	metrics.ObservePage(string(p.kind), page.Count(), page.RequestCharge, d, nil)
	p.logger.Debug("page fetched",
		"records", page.Count(),
		"request_charge", page.RequestCharge,
		"elapsed", d,
		"more", page.ContinuationToken != "",
	)
	return page, d, nil
}

func (p *Pager) append(tbl *table.Table, recs []*record.Record) {
	for _, rec := range recs {
		p.normalizer.Normalize(rec, tbl)
	}
}
