package partition

import (
	"errors"
	"testing"

	"github.com/ryanbastic/go-docsync/internal/record"
)

func mustRecord(t *testing.T, s string) *record.Record {
	t.Helper()
	r, err := record.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse record: %v", err)
	}
	return r
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		raw      string
		segments []string
		wantErr  bool
	}{
		{raw: "/tenant", segments: []string{"tenant"}},
		{raw: "/tenant/region", segments: []string{"tenant", "region"}},
		{raw: `/"a/b"/c`, segments: []string{"a/b", "c"}},
		{raw: "tenant", wantErr: true},
		{raw: "/", wantErr: true},
		{raw: "/a//b", wantErr: true},
		{raw: `/"open`, wantErr: true},
		{raw: `/"x"y`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := ParsePath(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got segments %v", p.Segments())
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePath: %v", err)
			}
			got := p.Segments()
			if len(got) != len(tt.segments) {
				t.Fatalf("segments: got %v, want %v", got, tt.segments)
			}
			for i := range got {
				if got[i] != tt.segments[i] {
					t.Errorf("segment %d: got %q, want %q", i, got[i], tt.segments[i])
				}
			}
		})
	}
}

func TestResolve_Hierarchical(t *testing.T) {
	paths := MustParsePaths("/tenant/region", "/userId")
	rec := mustRecord(t, `{"id":"1","tenant":{"region":"eu"},"userId":42}`)

	key, err := Resolve(rec, paths)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key.Encode() != `["eu",42]` {
		t.Errorf("Encode: got %s", key.Encode())
	}
}

func TestResolve_Deterministic(t *testing.T) {
	paths := MustParsePaths("/pk")
	rec := mustRecord(t, `{"pk":"a"}`)

	first, err := Resolve(rec, paths)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, err := Resolve(rec, paths)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if !got.Equal(first) {
			t.Fatalf("iteration %d: got %s, want %s", i, got.Encode(), first.Encode())
		}
	}
}

func TestResolve_MissingSegment(t *testing.T) {
	paths := MustParsePaths("/a", "/b/c")

	tests := []struct {
		name string
		rec  string
		path string
	}{
		{name: "first missing", rec: `{"b":{"c":1}}`, path: "/a"},
		{name: "second missing", rec: `{"a":1}`, path: "/b/c"},
		{name: "intermediate not object", rec: `{"a":1,"b":"x"}`, path: "/b/c"},
		{name: "leaf missing", rec: `{"a":1,"b":{}}`, path: "/b/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(mustRecord(t, tt.rec), paths)
			if !errors.Is(err, ErrUnresolvable) {
				t.Fatalf("got %v, want ErrUnresolvable", err)
			}
			var ue *UnresolvableError
			if !errors.As(err, &ue) {
				t.Fatalf("expected *UnresolvableError, got %T", err)
			}
			if ue.Reason != ReasonMissingField {
				t.Errorf("reason: got %q, want %q", ue.Reason, ReasonMissingField)
			}
			if ue.Path != tt.path {
				t.Errorf("path: got %q, want %q", ue.Path, tt.path)
			}
		})
	}
}

func TestResolve_NonScalarAndNoPaths(t *testing.T) {
	_, err := Resolve(mustRecord(t, `{"pk":{"x":1}}`), MustParsePaths("/pk"))
	var ue *UnresolvableError
	if !errors.As(err, &ue) || ue.Reason != ReasonNotScalar {
		t.Errorf("object key: got %v", err)
	}

	_, err = Resolve(mustRecord(t, `{"pk":1}`), nil)
	if !errors.As(err, &ue) || ue.Reason != ReasonNoPaths {
		t.Errorf("no paths: got %v", err)
	}
}

func TestResolve_NullIsAValue(t *testing.T) {
	key, err := Resolve(mustRecord(t, `{"pk":null}`), MustParsePaths("/pk"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if key.Encode() != "[null]" {
		t.Errorf("Encode: got %s", key.Encode())
	}
}

func TestDescribe(t *testing.T) {
	paths := MustParsePaths("/tenant/region", "/userId")
	key := Key{record.String("eu"), record.Int(42)}

	got := Describe(paths, key)
	want := "tenant/region: eu\nuserId: 42"
	if got != want {
		t.Errorf("Describe: got %q, want %q", got, want)
	}
}
