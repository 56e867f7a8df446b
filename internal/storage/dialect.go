package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// documentQuery is a document query reduced to what the Postgres store can
// execute: an optional limit and an optional jsonpath predicate.
type documentQuery struct {
	Top       int
	Predicate string
}

var documentQueryPattern = regexp.MustCompile(`(?is)^\s*select\s+(?:top\s+(\d+)\s+)?\*\s+from\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s+where\s+(.*?))?\s*;?\s*$`)

// compileDocumentQuery accepts `SELECT [TOP n] * FROM alias [WHERE pred]`
// and rewrites pred token by token into a PostgreSQL jsonpath predicate.
func compileDocumentQuery(text string) (*documentQuery, error) {
	m := documentQueryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%w: expected SELECT [TOP n] * FROM <alias> [WHERE <predicate>]", ErrUnsupportedQuery)
	}
	q := &documentQuery{}
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: invalid TOP %q", ErrUnsupportedQuery, m[1])
		}
		q.Top = n
	}
	if strings.TrimSpace(m[3]) != "" {
		pred, err := translatePredicate(m[3], m[2])
		if err != nil {
			return nil, err
		}
		q.Predicate = pred
	}
	return q, nil
}

func translatePredicate(src, alias string) (string, error) {
	var out []string
	i := 0
	for i < len(src) {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '\'' || ch == '"':
			s, n, err := scanQuoted(src[i:], byte(ch))
			if err != nil {
				return "", err
			}
			lit, _ := json.Marshal(s)
			out = append(out, string(lit))
			i += n
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && (isDigit(src[j]) || src[j] == '.' || src[j] == 'e' || src[j] == 'E' ||
				((src[j] == '+' || src[j] == '-') && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			if _, err := strconv.ParseFloat(src[i:j], 64); err != nil {
				return "", fmt.Errorf("%w: invalid number %q", ErrUnsupportedQuery, src[i:j])
			}
			out = append(out, src[i:j])
			i = j
		case ch == '_' || unicode.IsLetter(ch):
			j := i
			for j < len(src) && isIdent(src[j]) {
				j++
			}
			word := src[i:j]
			i = j
			if word == alias {
				path, n, err := scanPath(src[i:])
				if err != nil {
					return "", err
				}
				out = append(out, "$"+path)
				i += n
				continue
			}
			switch strings.ToUpper(word) {
			case "AND":
				out = append(out, "&&")
			case "OR":
				out = append(out, "||")
			case "NOT":
				out = append(out, "!")
			case "TRUE", "FALSE", "NULL":
				out = append(out, strings.ToLower(word))
			default:
				return "", fmt.Errorf("%w: unexpected identifier %q", ErrUnsupportedQuery, word)
			}
		default:
			op, n := scanOperator(src[i:])
			if op == "" {
				return "", fmt.Errorf("%w: unexpected character %q", ErrUnsupportedQuery, ch)
			}
			out = append(out, op)
			i += n
		}
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: empty predicate", ErrUnsupportedQuery)
	}
	return strings.Join(out, " "), nil
}

// scanPath reads `.field` and `["field"]` accessors following the alias and
// returns them in jsonpath form.
func scanPath(src string) (string, int, error) {
	var b strings.Builder
	i := 0
	for i < len(src) {
		switch {
		case src[i] == '.':
			j := i + 1
			for j < len(src) && isIdent(src[j]) {
				j++
			}
			if j == i+1 {
				return "", 0, fmt.Errorf("%w: empty field name", ErrUnsupportedQuery)
			}
			name, _ := json.Marshal(src[i+1 : j])
			b.WriteString("." + string(name))
			i = j
		case src[i] == '[':
			j := i + 1
			if j >= len(src) || (src[j] != '\'' && src[j] != '"') {
				return "", 0, fmt.Errorf("%w: only quoted bracket accessors are supported", ErrUnsupportedQuery)
			}
			s, n, err := scanQuoted(src[j:], src[j])
			if err != nil {
				return "", 0, err
			}
			j += n
			if j >= len(src) || src[j] != ']' {
				return "", 0, fmt.Errorf("%w: unterminated bracket accessor", ErrUnsupportedQuery)
			}
			name, _ := json.Marshal(s)
			b.WriteString("." + string(name))
			i = j + 1
		default:
			return b.String(), i, nil
		}
	}
	return b.String(), i, nil
}

// scanQuoted reads a quoted literal where a doubled quote escapes itself.
func scanQuoted(src string, quote byte) (string, int, error) {
	var b strings.Builder
	i := 1
	for i < len(src) {
		if src[i] == quote {
			if i+1 < len(src) && src[i+1] == quote {
				b.WriteByte(quote)
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		b.WriteByte(src[i])
		i++
	}
	return "", 0, fmt.Errorf("%w: unterminated string literal", ErrUnsupportedQuery)
}

func scanOperator(src string) (string, int) {
	if len(src) >= 2 {
		switch src[:2] {
		case "<>", "!=":
			return "!=", 2
		case "<=", ">=":
			return src[:2], 2
		case "==":
			return "==", 2
		}
	}
	switch src[0] {
	case '=':
		return "==", 1
	case '<', '>', '(', ')', '+', '-', '*', '/', '%':
		return string(src[0]), 1
	}
	return "", 0
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdent(b byte) bool {
	return b == '_' || isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
