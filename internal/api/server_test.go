package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-docsync/internal/partition"
	"github.com/ryanbastic/go-docsync/internal/record"
	"github.com/ryanbastic/go-docsync/internal/session"
	"github.com/ryanbastic/go-docsync/internal/storage"
)

type testServer struct {
	handler http.Handler
	catalog *storage.SQLiteCatalog
}

// newTestServer serves a table store holding people r0..r4 aged 20..24.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	cat, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tables.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	if err := cat.CreateTable(ctx, "people"); err != nil {
		t.Fatal(err)
	}
	c, err := cat.Container(ctx, storage.TableDatabase, "people")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		rec, _ := record.Parse([]byte(fmt.Sprintf(`{"PartitionKey":"a","RowKey":"r%d","age":%d}`, i, 20+i)))
		if _, err := c.Upsert(ctx, rec, partition.Key{record.String("a")}); err != nil {
			t.Fatal(err)
		}
	}

	sessions := session.NewManager(cat, session.Options{MaxCount: 100, PageSize: 10}, nil, nil, testLogger())
	return &testServer{
		handler: NewServer(testLogger(), cat, sessions, map[string]Pinger{"tables": cat}),
		catalog: cat,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func (ts *testServer) openSession(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/v1/sessions", map[string]string{
		"database":  storage.TableDatabase,
		"container": "people",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	return decode[SessionResponse](t, w).ID
}

func columnOf(t *testing.T, g session.Grid, name string) int {
	t.Helper()
	for i, c := range g.Columns {
		if c.Name == name {
			return i
		}
	}
	t.Fatalf("column %q not in %+v", name, g.Columns)
	return -1
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(t, http.MethodGet, "/v1/livez", nil); w.Code != http.StatusOK {
		t.Errorf("livez: %d", w.Code)
	}
	w := ts.do(t, http.MethodGet, "/v1/readyz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("readyz: %d", w.Code)
	}
	if resp := decode[readyzResponse](t, w); resp.Backends["tables"].Status != "ok" {
		t.Errorf("tables backend: %+v", resp.Backends["tables"])
	}
	if w := ts.do(t, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestServer_Catalog(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/databases/tables/containers", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list containers: %d", w.Code)
	}
	if got := decode[struct{ Containers []string }](t, w).Containers; len(got) != 1 || got[0] != "people" {
		t.Errorf("containers = %v", got)
	}

	w = ts.do(t, http.MethodGet, "/v1/databases/tables/containers/people", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get container: %d", w.Code)
	}
	if got := decode[ContainerResponse](t, w); got.Kind != "table" || got.IDField != "RowKey" {
		t.Errorf("container = %+v", got)
	}

	if w := ts.do(t, http.MethodGet, "/v1/databases/tables/containers/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing container: %d", w.Code)
	}
}

func TestServer_QueryEditCommit(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	base := "/v1/sessions/" + id

	w := ts.do(t, http.MethodPost, base+"/query", map[string]any{"query": "age ge 22"})
	if w.Code != http.StatusOK {
		t.Fatalf("query: %d %s", w.Code, w.Body.String())
	}
	if st := decode[session.Status](t, w); st.Rows != 3 || st.Query != "age ge 22" {
		t.Fatalf("status = %+v", st)
	}

	w = ts.do(t, http.MethodPost, base+"/sort", map[string]any{
		"columns": []map[string]any{{"column": "age", "descending": true}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("sort: %d %s", w.Code, w.Body.String())
	}

	grid := decode[session.Grid](t, ts.do(t, http.MethodGet, base+"/rows", nil))
	age := columnOf(t, grid, "age")
	rowKey := columnOf(t, grid, "RowKey")
	if grid.Rows[0][rowKey] != "r4" {
		t.Fatalf("first row after sort = %v", grid.Rows[0])
	}

	w = ts.do(t, http.MethodPut, fmt.Sprintf("%s/cells/0/%d", base, age), map[string]string{"text": "50"})
	if w.Code != http.StatusOK {
		t.Fatalf("set cell: %d %s", w.Code, w.Body.String())
	}
	if out := decode[struct {
		Changed bool
		Pending int
	}](t, w); !out.Changed || out.Pending != 1 {
		t.Errorf("set cell = %+v", out)
	}

	w = ts.do(t, http.MethodPost, base+"/commit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("commit: %d %s", w.Code, w.Body.String())
	}
	if res := decode[BatchResponse](t, w); res.Succeeded != 1 || res.Failed != 0 {
		t.Errorf("commit = %+v", res)
	}

	c, _ := ts.catalog.Container(context.Background(), storage.TableDatabase, "people")
	page, err := c.Query(context.Background(), "RowKey eq 'r4'", storage.QueryOptions{})
	if err != nil || page.Count() != 1 {
		t.Fatalf("Query: %v", err)
	}
	if v, _ := page.Records[0].Get("age"); v.IntVal() != 50 {
		t.Errorf("stored age = %s, want 50", v.Text())
	}
}

func TestServer_InsertAndDelete(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	base := "/v1/sessions/" + id

	if w := ts.do(t, http.MethodPost, base+"/query", map[string]any{}); w.Code != http.StatusOK {
		t.Fatalf("query: %d", w.Code)
	}

	w := ts.do(t, http.MethodPost, base+"/documents", map[string]any{
		"document": map[string]any{"PartitionKey": "b", "RowKey": "new", "age": 40},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("insert: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, base, nil)
	if sess := decode[SessionResponse](t, w); sess.Status.Rows != 6 {
		t.Fatalf("rows after insert = %d, want 6", sess.Status.Rows)
	}

	w = ts.do(t, http.MethodPost, base+"/filter", map[string]any{
		"conditions": []map[string]string{{"column": "RowKey", "op": "eq", "value": "new"}},
	})
	if st := decode[session.Status](t, w); st.Rows != 1 || !st.Filtered {
		t.Fatalf("filter = %+v", st)
	}
	w = ts.do(t, http.MethodGet, base+"/rows/0/key", nil)
	if !strings.Contains(w.Body.String(), "new") {
		t.Errorf("describe key = %s", w.Body.String())
	}

	w = ts.do(t, http.MethodPost, base+"/rows/delete", map[string]any{"rows": []int{0}})
	if w.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if res := decode[BatchResponse](t, w); res.Succeeded != 1 {
		t.Errorf("delete = %+v", res)
	}

	c, _ := ts.catalog.Container(context.Background(), storage.TableDatabase, "people")
	page, err := c.Query(context.Background(), "", storage.QueryOptions{})
	if err != nil || page.Count() != 5 {
		t.Errorf("entities after delete = %d, %v", page.Count(), err)
	}
}

func TestServer_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	base := "/v1/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/" + uuid.NewString(), nil, http.StatusNotFound},
		{"refresh before query", http.MethodPost, base + "/refresh", nil, http.StatusConflict},
		{"unknown container", http.MethodPost, "/v1/sessions", map[string]string{"database": "tables", "container": "nope"}, http.StatusNotFound},
		{"bad table filter", http.MethodPost, base + "/query", map[string]any{"query": "age ~ 3"}, http.StatusUnprocessableEntity},
		{"cell out of range", http.MethodGet, base + "/cells/99/0", nil, http.StatusUnprocessableEntity},
		{"invalid document", http.MethodPost, base + "/documents", map[string]any{"document": []int{1}}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := ts.do(t, tt.method, tt.path, tt.body); w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestServer_BulkModeHasNoNextPage(t *testing.T) {
	ts := newTestServer(t)
	base := "/v1/sessions/" + ts.openSession(t)

	if w := ts.do(t, http.MethodPost, base+"/query", map[string]any{}); w.Code != http.StatusOK {
		t.Fatalf("query: %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, base+"/pages/next", nil); w.Code != http.StatusConflict {
		t.Errorf("next page: got %d, want 409", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Errorf("close: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("closed session: got %d", w.Code)
	}
}
