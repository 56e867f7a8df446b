package query

import "testing"

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxCount int
		want     string
	}{
		{
			name:     "blank",
			text:     "   ",
			maxCount: 100,
			want:     "SELECT TOP 100 * FROM c",
		},
		{
			name:     "blank no limit",
			text:     "",
			maxCount: 0,
			want:     "SELECT * FROM c",
		},
		{
			name:     "inject",
			text:     "SELECT * FROM c WHERE 1=1",
			maxCount: 50,
			want:     "SELECT TOP 50 * FROM c WHERE 1=1",
		},
		{
			name:     "lowercase select keeps case",
			text:     "select c.id from c",
			maxCount: 5,
			want:     "select TOP 5 c.id from c",
		},
		{
			name:     "existing limit",
			text:     "SELECT top 10 * FROM c",
			maxCount: 50,
			want:     "SELECT top 10 * FROM c",
		},
		{
			name:     "leading whitespace preserved",
			text:     "\n  SELECT *\nFROM c",
			maxCount: 3,
			want:     "\n  SELECT TOP 3 *\nFROM c",
		},
		{
			name:     "no select keyword",
			text:     "PartitionKey eq 'a'",
			maxCount: 10,
			want:     "PartitionKey eq 'a'",
		},
		{
			name:     "selected is not select",
			text:     "c.selected = true",
			maxCount: 10,
			want:     "c.selected = true",
		},
		{
			name:     "top later in text is not a limit",
			text:     "SELECT * FROM c WHERE c.top = 1",
			maxCount: 2,
			want:     "SELECT TOP 2 * FROM c WHERE c.top = 1",
		},
		{
			name:     "limit disabled",
			text:     "SELECT * FROM c",
			maxCount: -1,
			want:     "SELECT * FROM c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.text, tt.maxCount)
			if got != tt.want {
				t.Errorf("Build(%q, %d): got %q, want %q", tt.text, tt.maxCount, got, tt.want)
			}
		})
	}
}

func TestBuild_Idempotent(t *testing.T) {
	queries := []string{
		"",
		"SELECT * FROM c",
		"select * from c where c.a = 'select'",
		"SELECT TOP 7 * FROM c",
		"no keyword here",
	}
	for _, q := range queries {
		once := Build(q, 25)
		twice := Build(once, 25)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", q, once, twice)
		}
	}
}
