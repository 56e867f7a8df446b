package pager

import "github.com/ryanbastic/go-docsync/internal/table"

// PageState caches fetched pages for backward navigation. Pages and tokens
// are parallel: tokens[i] resumes the query after pages[i], and an empty
// token means no page follows. Pages are only ever appended.
type PageState struct {
	pages   []*table.Table
	tokens  []string
	current int
	total   int
}

// Reset empties the cache for a new query.
func (s *PageState) Reset() {
	s.pages = nil
	s.tokens = nil
	s.current = 0
	s.total = 0
}

// Append stores a freshly fetched page and makes it current.
func (s *PageState) Append(page *table.Table, token string) {
	s.pages = append(s.pages, page)
	s.tokens = append(s.tokens, token)
	s.current = len(s.pages) - 1
	s.total += page.NumRows()
}

func (s *PageState) Len() int { return len(s.pages) }

// Index returns the zero-based current page position.
func (s *PageState) Index() int { return s.current }

// Total returns the number of records across all cached pages.
func (s *PageState) Total() int { return s.total }

// Current returns the current page, or nil before the first Append.
func (s *PageState) Current() *table.Table {
	if len(s.pages) == 0 {
		return nil
	}
	return s.pages[s.current]
}

// Back moves to the previous cached page. It reports false on the first page.
func (s *PageState) Back() (*table.Table, bool) {
	if s.current == 0 || len(s.pages) == 0 {
		return nil, false
	}
	s.current--
	return s.pages[s.current], true
}

// Forward moves to the next cached page. It reports false when the next
// page has not been fetched yet; the caller then fetches with LastToken.
func (s *PageState) Forward() (*table.Table, bool) {
	if s.current+1 >= len(s.pages) {
		return nil, false
	}
	s.current++
	return s.pages[s.current], true
}

// LastToken returns the token that resumes after the last cached page.
func (s *PageState) LastToken() string {
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

// HasMore reports whether a page exists past the current one, cached or not.
func (s *PageState) HasMore() bool {
	if len(s.pages) == 0 {
		return false
	}
	return s.current+1 < len(s.pages) || s.LastToken() != ""
}

// HasPrev reports whether Back would succeed.
func (s *PageState) HasPrev() bool { return s.current > 0 }
