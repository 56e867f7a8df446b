package storage

import (
	"errors"
	"testing"
)

func TestCompileDocumentQuery(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		top       int
		predicate string
	}{
		{name: "plain", text: "SELECT * FROM c", predicate: ""},
		{name: "top", text: "select TOP 25 * from c", top: 25},
		{name: "trailing semicolon", text: "SELECT * FROM c;", predicate: ""},
		{
			name:      "equality",
			text:      "SELECT * FROM c WHERE c.status = 'open'",
			predicate: `$."status" == "open"`,
		},
		{
			name:      "nested and bracket",
			text:      `SELECT TOP 5 * FROM d WHERE d.a.b > 3 AND d["odd key"] <> null`,
			top:       5,
			predicate: `$."a"."b" > 3 && $."odd key" != null`,
		},
		{
			name:      "or not parens",
			text:      "SELECT * FROM c WHERE NOT (c.x = true OR c.y <= -1.5)",
			predicate: `! ( $."x" == true || $."y" <= - 1.5 )`,
		},
		{
			name:      "escaped quote",
			text:      "SELECT * FROM c WHERE c.name = 'O''Brien'",
			predicate: `$."name" == "O'Brien"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := compileDocumentQuery(tt.text)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if q.Top != tt.top {
				t.Errorf("Top: got %d, want %d", q.Top, tt.top)
			}
			if q.Predicate != tt.predicate {
				t.Errorf("Predicate: got %q, want %q", q.Predicate, tt.predicate)
			}
		})
	}
}

func TestCompileDocumentQuery_Unsupported(t *testing.T) {
	queries := []string{
		"SELECT c.id FROM c",
		"DELETE FROM c",
		"SELECT * FROM c WHERE other.x = 1",
		"SELECT * FROM c WHERE c.x = 'open",
		"SELECT * FROM c WHERE c.x IN (1, 2)",
		"SELECT * FROM c WHERE c[0] = 1",
		"SELECT * FROM c WHERE c.x = 1e",
	}
	for _, text := range queries {
		if _, err := compileDocumentQuery(text); !errors.Is(err, ErrUnsupportedQuery) {
			t.Errorf("%q: got %v, want ErrUnsupportedQuery", text, err)
		}
	}
}
