// Package query prepares user-entered query text for execution.
package query

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultAlias is the container alias used for generated queries.
const DefaultAlias = "c"

var (
	selectKeyword = regexp.MustCompile(`(?i)\bselect\b`)
	limitClause   = regexp.MustCompile(`(?i)^\s+top\s+\d+\b`)
)

// Build returns the query to execute for text with at most maxCount results.
//
// Blank text becomes a select-everything query. Otherwise a TOP clause is
// inserted right after the first SELECT keyword unless one is already there.
// Text without a SELECT keyword is returned unchanged. A maxCount of zero or
// less disables the limit.
func Build(text string, maxCount int) string {
	if strings.TrimSpace(text) == "" {
		if maxCount <= 0 {
			return "SELECT * FROM " + DefaultAlias
		}
		return "SELECT TOP " + strconv.Itoa(maxCount) + " * FROM " + DefaultAlias
	}
	if maxCount <= 0 {
		return text
	}

	loc := selectKeyword.FindStringIndex(text)
	if loc == nil {
		return text
	}
	rest := text[loc[1]:]
	if limitClause.MatchString(rest) {
		return text
	}
	return text[:loc[1]] + " TOP " + strconv.Itoa(maxCount) + rest
}
