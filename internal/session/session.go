// Package session binds a container, its pager, a table cache and a
// mutation coordinator into the synchronized grid a client edits. All
// operations on one session are serialized.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanbastic/go-docsync/internal/hook"
	"github.com/ryanbastic/go-docsync/internal/mutation"
	"github.com/ryanbastic/go-docsync/internal/pager"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/query"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/storage"
	"github.com/ryanbastic/go-docsync/internal/table"
)

var (
	// ErrNoQuery is returned by operations that need a previous Execute.
	ErrNoQuery = errors.New("no query has been executed")

	// ErrNotPaging is returned by page navigation after a bulk fetch.
	ErrNotPaging = errors.New("session is not in paging mode")

	// ErrNoPage is returned when navigating past the first or last page.
	ErrNoPage = errors.New("no such page")
)

// Notifier receives a change after documents were written or deleted.
type Notifier interface {
	DocumentsChanged(c hook.Change)
}

// Options are the per-session defaults.
type Options struct {
	MaxCount          int
	PageSize          int
	DeleteConcurrency int
}

// Request describes one query execution. Zero MaxCount and PageSize take
// the session defaults; a negative MaxCount disables the limit.
type Request struct {
	Query    string `json:"query"`
	Paging   bool   `json:"paging"`
	MaxCount int    `json:"max_count,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// Status summarizes the session after an operation.
type Status struct {
	Query     string        `json:"query"`
	Paging    bool          `json:"paging"`
	Rows      int           `json:"rows"`
	Columns   int           `json:"columns"`
	Page      int           `json:"page,omitempty"`
	Pages     int           `json:"pages,omitempty"`
	HasMore   bool          `json:"has_more"`
	HasPrev   bool          `json:"has_prev"`
	Total     int           `json:"total"`
	Pending   int           `json:"pending"`
	Filtered  bool          `json:"filtered"`
	Metrics   pager.Metrics `json:"metrics"`
	Error     string        `json:"error,omitempty"`
	Refreshed time.Time     `json:"refreshed,omitzero"`
}

type execution struct {
	text     string
	paging   bool
	pageSize int
	maxCount int
}

// Session is one synchronized grid over one container.
type Session struct {
	id      string
	created time.Time
	meta    *storage.ContainerMetadata
	opts    Options

	mu        sync.Mutex
	container storage.Container
	norm      *table.Normalizer
	coord     *mutation.Coordinator
	cache     *table.Cache
	pages     pager.PageState
	last      *execution
	metrics   pager.Metrics
	lastErr   error
	refreshed time.Time
	touched   time.Time
	notifier  Notifier
	logger    *slog.Logger
}

// New creates a session over c. notifier may be nil.
func New(id string, c storage.Container, meta *storage.ContainerMetadata, norm *table.Normalizer, opts Options, notifier Notifier, logger *slog.Logger) (*Session, error) {
	coord, err := mutation.New(c, meta, opts.DeleteConcurrency, logger)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		id:        id,
		created:   now,
		meta:      meta,
		opts:      opts,
		container: c,
		norm:      norm,
		coord:     coord,
		cache:     table.NewCache(),
		touched:   now,
		notifier:  notifier,
		logger:    logger.With("session", id, "database", meta.Database, "container", meta.Name),
	}, nil
}

func (s *Session) ID() string                           { return s.id }
func (s *Session) Created() time.Time                   { return s.created }
func (s *Session) Metadata() *storage.ContainerMetadata { return s.meta }

// LastUsed returns the time of the most recent operation.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) lock() func() {
	s.mu.Lock()
	s.touched = time.Now()
	return s.mu.Unlock
}

// Execute runs a query and replaces the grid. In bulk mode every page is
// read; a failing page keeps the rows read so far and is reported in
// Status.Error. In paging mode only the first page is read.
func (s *Session) Execute(ctx context.Context, req Request) (*Status, error) {
	defer s.lock()()

	exec := s.prepare(req)
	if err := s.run(ctx, exec); err != nil {
		return nil, err
	}
	s.last = exec
	return s.status(), nil
}

func (s *Session) prepare(req Request) *execution {
	maxCount := req.MaxCount
	if maxCount == 0 {
		maxCount = s.opts.MaxCount
	}
	if maxCount < 0 || req.Paging {
		maxCount = 0
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.opts.PageSize
	}

	text := req.Query
	if s.meta.Kind == storage.KindDocument {
		text = query.Build(text, maxCount)
	}
	return &execution{text: text, paging: req.Paging, pageSize: pageSize, maxCount: maxCount}
}

func (s *Session) pager(exec *execution) *pager.Pager {
	maxItems := 0
	if s.meta.Kind == storage.KindTable {
		maxItems = exec.maxCount
	}
	return pager.New(s.container, s.meta, s.norm, maxItems, s.logger)
}

// run loads the first page or the whole result of exec. An error before
// any page arrives is returned and leaves the grid untouched. A bulk fetch
// that fails later keeps its partial rows and records the error.
func (s *Session) run(ctx context.Context, exec *execution) error {
	p := s.pager(exec)
	if exec.paging {
		page, err := p.FetchPage(ctx, exec.text, exec.pageSize, "")
		if err != nil {
			return fmt.Errorf("fetch first page: %w", err)
		}
		s.pages.Reset()
		s.pages.Append(page.Table, page.ContinuationToken)
		s.cache.Load(page.Table.Clone())
		s.metrics = page.Metrics
		s.lastErr = nil
	} else {
		res := p.FetchAll(ctx, exec.text, exec.pageSize)
		if res.Err != nil && res.Metrics.PageCount == 0 {
			return res.Err
		}
		s.pages.Reset()
		s.cache.Load(res.Table)
		s.metrics = res.Metrics
		s.lastErr = res.Err
	}
	s.refreshed = time.Now()
	s.logger.Info("query executed",
		"paging", exec.paging,
		"rows", s.cache.NumRows(),
		"request_charge", s.metrics.RequestCharge,
		"pages", s.metrics.PageCount,
		"elapsed", s.metrics.Elapsed,
	)
	return nil
}

// Refresh re-runs the last query. In paging mode the grid returns to the
// first page. Unsaved edits are discarded.
func (s *Session) Refresh(ctx context.Context) (*Status, error) {
	defer s.lock()()
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.status(), nil
}

func (s *Session) refresh(ctx context.Context) error {
	if s.last == nil {
		return ErrNoQuery
	}
	return s.run(ctx, s.last)
}

// NextPage moves forward one page, fetching it when it is not cached.
// Unsaved edits on the current page are discarded.
func (s *Session) NextPage(ctx context.Context) (*Status, error) {
	defer s.lock()()
	if err := s.paging(); err != nil {
		return nil, err
	}

	if tbl, ok := s.pages.Forward(); ok {
		s.cache.Load(tbl.Clone())
		return s.status(), nil
	}
	token := s.pages.LastToken()
	if token == "" {
		return nil, ErrNoPage
	}
	page, err := s.pager(s.last).FetchPage(ctx, s.last.text, s.last.pageSize, token)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", s.pages.Len()+1, err)
	}
	s.pages.Append(page.Table, page.ContinuationToken)
	s.cache.Load(page.Table.Clone())
	s.metrics = page.Metrics
	s.refreshed = time.Now()
	return s.status(), nil
}

// PrevPage moves back one cached page.
func (s *Session) PrevPage() (*Status, error) {
	defer s.lock()()
	if err := s.paging(); err != nil {
		return nil, err
	}
	tbl, ok := s.pages.Back()
	if !ok {
		return nil, ErrNoPage
	}
	s.cache.Load(tbl.Clone())
	return s.status(), nil
}

func (s *Session) paging() error {
	if s.last == nil {
		return ErrNoQuery
	}
	if !s.last.paging {
		return ErrNotPaging
	}
	return nil
}

// Status returns the current session summary.
func (s *Session) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

func (s *Session) status() *Status {
	st := &Status{
		Rows:      s.cache.NumRows(),
		Columns:   s.cache.NumColumns(),
		Pending:   s.cache.PendingCount(),
		Filtered:  s.cache.Filtered(),
		Metrics:   s.metrics,
		Refreshed: s.refreshed,
		Total:     s.cache.Table().NumRows(),
	}
	if s.last != nil {
		st.Query = s.last.text
		st.Paging = s.last.paging
	}
	if st.Paging {
		st.Page = s.pages.Index() + 1
		st.Pages = s.pages.Len()
		st.HasMore = s.pages.HasMore()
		st.HasPrev = s.pages.HasPrev()
		st.Total = s.pages.Total()
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Grid is a rendering of the current view.
type Grid struct {
	Columns []GridColumn  `json:"columns"`
	Rows    [][]string    `json:"rows"`
	Dirty   []table.Coord `json:"dirty,omitempty"`
}

type GridColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Grid renders the current view as text cells. offset and limit select a
// window of rows; limit <= 0 returns every row from offset.
func (s *Session) Grid(offset, limit int) *Grid {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl := s.cache.Table()
	g := &Grid{Dirty: s.cache.DirtyCells()}
	for _, c := range tbl.Columns() {
		g.Columns = append(g.Columns, GridColumn{Name: c.Name, Type: c.Type.String()})
	}
	end := tbl.NumRows()
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for r := max(offset, 0); r < end; r++ {
		row := make([]string, tbl.NumColumns())
		for c := range row {
			v, _ := tbl.Value(r, c)
			row[c] = v.Text()
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// Cell returns the value at row, col of the current view.
func (s *Session) Cell(row, col int) (record.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.GetCell(row, col)
}

// SetCell edits one cell. It reports whether the stored value changed.
func (s *Session) SetCell(row, col int, text string) (bool, error) {
	defer s.lock()()
	return s.cache.SetCell(row, col, text)
}

// Filter replaces the active filter; an empty filter restores every row.
func (s *Session) Filter(f table.Filter) (*Status, error) {
	defer s.lock()()
	pred, err := f.Compile()
	if err != nil {
		return nil, err
	}
	s.cache.ApplyFilter(pred)
	return s.status(), nil
}

// Sort reorders the current view.
func (s *Session) Sort(specs ...table.SortSpec) (*Status, error) {
	defer s.lock()()
	if err := s.cache.ApplySort(specs...); err != nil {
		return nil, err
	}
	return s.status(), nil
}

// Commit writes every pending edit back to the container.
func (s *Session) Commit(ctx context.Context) (*mutation.BatchResult, error) {
	defer s.lock()()
	if s.last == nil {
		return nil, ErrNoQuery
	}
	res := s.coord.BatchUpdate(ctx, s.cache, s.refresh)
	s.notify("commit", res.Succeeded, res.RequestCharge)
	return res, nil
}

// DeleteRows deletes the given rows of the current view.
func (s *Session) DeleteRows(ctx context.Context, rows []int) (*mutation.BatchResult, error) {
	defer s.lock()()
	if s.last == nil {
		return nil, ErrNoQuery
	}
	res := s.coord.BatchDelete(ctx, s.cache, rows, s.refresh)
	s.notify("delete", res.Succeeded, res.RequestCharge)
	return res, nil
}

// InsertDocument parses text as a JSON object and upserts it. A parse
// failure returns before anything is sent to the container.
func (s *Session) InsertDocument(ctx context.Context, text string) (*mutation.Outcome, error) {
	rec, err := record.Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	defer s.lock()()
	out, err := s.coord.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.notify("insert", 1, out.RequestCharge)
	s.refreshAfterWrite(ctx)
	return out, nil
}

// UpsertRow writes one row of the current view.
func (s *Session) UpsertRow(ctx context.Context, row int) (*mutation.Outcome, error) {
	defer s.lock()()
	rec, err := s.cache.RowRecord(row)
	if err != nil {
		return nil, err
	}
	out, err := s.coord.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.notify("upsert", 1, out.RequestCharge)
	s.refreshAfterWrite(ctx)
	return out, nil
}

// DeleteRow deletes one row of the current view. Pending edits on the row
// are dropped so a later commit cannot write it back.
func (s *Session) DeleteRow(ctx context.Context, row int) (*mutation.Outcome, error) {
	defer s.lock()()
	rec, err := s.cache.RowRecord(row)
	if err != nil {
		return nil, err
	}
	out, err := s.coord.DeleteRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Discard(row)
	s.notify("delete", 1, out.RequestCharge)
	s.refreshAfterWrite(ctx)
	return out, nil
}

// DescribeKey returns the confirmation text naming the row's id and
// partition key, shown before a destructive operation.
func (s *Session) DescribeKey(row int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.cache.RowRecord(row)
	if err != nil {
		return "", err
	}
	key, err := s.coord.ResolveKey(rec)
	if err != nil {
		return "", err
	}
	text := partition.Describe(s.coord.Paths(), key)
	if id, ok := rec.ID(s.meta.Layout.IDField); ok {
		text = s.meta.Layout.IDField + ": " + id + "\n" + text
	}
	return text, nil
}

// refreshAfterWrite reloads the grid after a point write. A failed reload
// is kept for Status rather than failing the write that succeeded.
func (s *Session) refreshAfterWrite(ctx context.Context) {
	if s.last == nil {
		return
	}
	if err := s.refresh(ctx); err != nil {
		s.lastErr = fmt.Errorf("refresh after write: %w", err)
		s.logger.Warn("refresh after write failed", "error", err)
	}
}

func (s *Session) notify(op string, count int, charge float64) {
	if s.notifier == nil || count == 0 {
		return
	}
	s.notifier.DocumentsChanged(hook.Change{
		Database:      s.meta.Database,
		Container:     s.meta.Name,
		Operation:     op,
		Count:         count,
		RequestCharge: charge,
	})
}
