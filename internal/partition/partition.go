// Package partition resolves partition keys declared by a container against
// individual records.
package partition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ryanbastic/go-docsync/internal/record"
)

// ErrUnresolvable is returned when a record cannot be targeted by a point
// operation because its partition key cannot be extracted.
var ErrUnresolvable = errors.New("partition key unresolvable")

// Reason distinguishes why a key could not be resolved.
type Reason string

const (
	ReasonMissingField Reason = "missing field"
	ReasonNotScalar    Reason = "value is not a scalar"
	ReasonNoPaths      Reason = "container declares no partition key"
)

// UnresolvableError names the path that failed and why.
type UnresolvableError struct {
	Path   string
	Reason Reason
}

func (e *UnresolvableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrUnresolvable, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q", ErrUnresolvable, e.Reason, e.Path)
}

func (e *UnresolvableError) Unwrap() error { return ErrUnresolvable }

// Path is a parsed partition key path such as /tenant/region.
type Path struct {
	raw      string
	segments []string
}

// ParsePath parses a slash-delimited field path. Segments may be
// double-quoted to carry slashes or spaces.
func ParsePath(raw string) (Path, error) {
	if !strings.HasPrefix(raw, "/") {
		return Path{}, fmt.Errorf("partition key path %q must start with /", raw)
	}
	var segments []string
	rest := raw[1:]
	for {
		var seg string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				return Path{}, fmt.Errorf("partition key path %q: unterminated quote", raw)
			}
			seg = rest[1 : end+1]
			rest = rest[end+2:]
			if rest != "" && !strings.HasPrefix(rest, "/") {
				return Path{}, fmt.Errorf("partition key path %q: unexpected text after quoted segment", raw)
			}
		} else {
			i := strings.Index(rest, "/")
			if i < 0 {
				seg, rest = rest, ""
			} else {
				seg, rest = rest[:i], rest[i:]
			}
		}
		if seg == "" {
			return Path{}, fmt.Errorf("partition key path %q has an empty segment", raw)
		}
		segments = append(segments, seg)
		if rest == "" {
			break
		}
		rest = rest[1:]
	}
	return Path{raw: raw, segments: segments}, nil
}

// ParsePaths parses every declared path in order.
func ParsePaths(raws []string) ([]Path, error) {
	paths := make([]Path, 0, len(raws))
	for _, raw := range raws {
		p, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// MustParsePaths is ParsePaths for static declarations.
func MustParsePaths(raws ...string) []Path {
	paths, err := ParsePaths(raws)
	if err != nil {
		panic(err)
	}
	return paths
}

func (p Path) String() string { return p.raw }

// Segments returns the field names along the path.
func (p Path) Segments() []string { return p.segments }

// Lookup walks the path through nested objects in rec.
func (p Path) Lookup(rec *record.Record) (record.Value, bool) {
	cur := rec
	for i, seg := range p.segments {
		v, ok := cur.Get(seg)
		if !ok {
			return record.Value{}, false
		}
		if i == len(p.segments)-1 {
			return v, true
		}
		if v.Kind() != record.KindObject {
			return record.Value{}, false
		}
		cur = v.Obj()
	}
	return record.Value{}, false
}

// Key is a resolved partition key: one scalar per declared path.
type Key []record.Value

// Encode returns the canonical JSON array text of the key, used for routing
// and as the stored key column.
func (k Key) Encode() string {
	vals := []record.Value(k)
	if vals == nil {
		vals = []record.Value{}
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Equal compares two keys value by value.
func (k Key) Equal(o Key) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if !k[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Resolve extracts the key for rec. Any missing segment fails the whole key,
// regardless of which other paths resolved.
func Resolve(rec *record.Record, paths []Path) (Key, error) {
	if len(paths) == 0 {
		return nil, &UnresolvableError{Reason: ReasonNoPaths}
	}
	key := make(Key, 0, len(paths))
	for _, p := range paths {
		v, ok := p.Lookup(rec)
		if !ok {
			return nil, &UnresolvableError{Path: p.raw, Reason: ReasonMissingField}
		}
		if !v.IsScalar() {
			return nil, &UnresolvableError{Path: p.raw, Reason: ReasonNotScalar}
		}
		key = append(key, v)
	}
	return key, nil
}

// Describe renders one "path: value" line per path, the leading slash
// removed, for operator confirmation prompts.
func Describe(paths []Path, key Key) string {
	lines := make([]string, 0, len(paths))
	for i, p := range paths {
		val := ""
		if i < len(key) {
			val = key[i].Text()
		}
		lines = append(lines, strings.TrimPrefix(p.raw, "/")+": "+val)
	}
	return strings.Join(lines, "\n")
}
