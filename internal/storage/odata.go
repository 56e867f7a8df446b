package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tableColumns maps the table-store key and system properties onto their
// entity columns. All other properties live in the JSON properties column.
var tableColumns = map[string]string{
	"PartitionKey": "partition_key",
	"RowKey":       "row_key",
	"Timestamp":    "timestamp",
	"ETag":         "etag",
}

var odataOperators = map[string]string{
	"eq": "=",
	"ne": "<>",
	"gt": ">",
	"ge": ">=",
	"lt": "<",
	"le": "<=",
}

type odataTokenKind int

const (
	tokIdent odataTokenKind = iota
	tokString
	tokNumber
	tokDatetime
	tokLParen
	tokRParen
	tokEOF
)

type odataToken struct {
	kind odataTokenKind
	text string
}

// odataFilter is a compiled filter: a SQL boolean expression over the
// entities table and its positional arguments.
type odataFilter struct {
	SQL  string
	Args []any
}

// compileODataFilter translates the comparison subset of an OData $filter
// expression: eq ne gt ge lt le joined by and/or/not with parentheses.
func compileODataFilter(src string) (*odataFilter, error) {
	toks, err := tokenizeOData(src)
	if err != nil {
		return nil, err
	}
	p := &odataParser{toks: toks}
	sql, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q in filter", ErrUnsupportedQuery, p.peek().text)
	}
	return &odataFilter{SQL: sql, Args: p.args}, nil
}

func tokenizeOData(src string) ([]odataToken, error) {
	var toks []odataToken
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '(':
			toks = append(toks, odataToken{kind: tokLParen, text: "("})
			i++
		case ch == ')':
			toks = append(toks, odataToken{kind: tokRParen, text: ")"})
			i++
		case ch == '\'':
			s, n, err := scanQuoted(src[i:], '\'')
			if err != nil {
				return nil, err
			}
			toks = append(toks, odataToken{kind: tokString, text: s})
			i += n
		case isDigit(ch) || ch == '-':
			j := i + 1
			for j < len(src) && (isDigit(src[j]) || src[j] == '.' || src[j] == 'e' || src[j] == 'E' || src[j] == 'L') {
				j++
			}
			toks = append(toks, odataToken{kind: tokNumber, text: src[i:j]})
			i = j
		case isIdent(ch):
			j := i
			for j < len(src) && isIdent(src[j]) {
				j++
			}
			word := src[i:j]
			if strings.EqualFold(word, "datetime") && j < len(src) && src[j] == '\'' {
				s, n, err := scanQuoted(src[j:], '\'')
				if err != nil {
					return nil, err
				}
				toks = append(toks, odataToken{kind: tokDatetime, text: s})
				i = j + n
				continue
			}
			toks = append(toks, odataToken{kind: tokIdent, text: word})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q in filter", ErrUnsupportedQuery, ch)
		}
	}
	return append(toks, odataToken{kind: tokEOF}), nil
}

type odataParser struct {
	toks []odataToken
	pos  int
	args []any
}

func (p *odataParser) peek() odataToken { return p.toks[p.pos] }

func (p *odataParser) next() odataToken {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *odataParser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *odataParser) expr() (string, error) {
	left, err := p.term()
	if err != nil {
		return "", err
	}
	for p.keyword("or") {
		right, err := p.term()
		if err != nil {
			return "", err
		}
		left = "(" + left + " OR " + right + ")"
	}
	return left, nil
}

func (p *odataParser) term() (string, error) {
	left, err := p.factor()
	if err != nil {
		return "", err
	}
	for p.keyword("and") {
		right, err := p.factor()
		if err != nil {
			return "", err
		}
		left = "(" + left + " AND " + right + ")"
	}
	return left, nil
}

func (p *odataParser) factor() (string, error) {
	if p.keyword("not") {
		inner, err := p.factor()
		if err != nil {
			return "", err
		}
		return "NOT " + inner, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.expr()
		if err != nil {
			return "", err
		}
		if p.next().kind != tokRParen {
			return "", fmt.Errorf("%w: missing closing parenthesis", ErrUnsupportedQuery)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *odataParser) comparison() (string, error) {
	prop := p.next()
	if prop.kind != tokIdent {
		return "", fmt.Errorf("%w: expected property name, got %q", ErrUnsupportedQuery, prop.text)
	}
	opTok := p.next()
	op, ok := odataOperators[strings.ToLower(opTok.text)]
	if opTok.kind != tokIdent || !ok {
		return "", fmt.Errorf("%w: unsupported operator %q", ErrUnsupportedQuery, opTok.text)
	}

	column, isColumn := tableColumns[prop.text]
	lhs := column
	if !isColumn {
		lhs = "json_extract(properties, ?)"
		p.args = append(p.args, jsonPathFor(prop.text))
	}

	lit := p.next()
	switch lit.kind {
	case tokString:
		p.args = append(p.args, lit.text)
	case tokNumber:
		n, err := parseODataNumber(lit.text)
		if err != nil {
			return "", err
		}
		p.args = append(p.args, n)
	case tokDatetime:
		ts, err := time.Parse(time.RFC3339Nano, lit.text)
		if err != nil {
			return "", fmt.Errorf("%w: invalid datetime %q", ErrUnsupportedQuery, lit.text)
		}
		if isColumn {
			p.args = append(p.args, formatEntityTimestamp(ts))
		} else {
			p.args = append(p.args, ts.UTC().Format(time.RFC3339Nano))
		}
	case tokIdent:
		switch strings.ToLower(lit.text) {
		case "true":
			p.args = append(p.args, 1)
		case "false":
			p.args = append(p.args, 0)
		case "null":
			switch op {
			case "=":
				return lhs + " IS NULL", nil
			case "<>":
				return lhs + " IS NOT NULL", nil
			}
			return "", fmt.Errorf("%w: null only supports eq and ne", ErrUnsupportedQuery)
		default:
			return "", fmt.Errorf("%w: expected literal, got %q", ErrUnsupportedQuery, lit.text)
		}
	default:
		return "", fmt.Errorf("%w: expected literal after %s %s", ErrUnsupportedQuery, prop.text, opTok.text)
	}
	return lhs + " " + op + " ?", nil
}

func parseODataNumber(s string) (any, error) {
	s = strings.TrimSuffix(s, "L")
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid number %q", ErrUnsupportedQuery, s)
	}
	return f, nil
}

func jsonPathFor(property string) string {
	return `$."` + strings.ReplaceAll(property, `"`, `\"`) + `"`
}
