package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned when a continuation token cannot be decoded.
var ErrInvalidToken = errors.New("invalid continuation token")

// Cursor is the decoded form of an opaque continuation token.
type Cursor struct {
	// Shard and AddedID position a document query: rows after AddedID on
	// Shard, then every later shard.
	Shard   int   `json:"shard,omitempty"`
	AddedID int64 `json:"added_id,omitempty"`

	// PartitionKey and RowKey position a table query.
	PartitionKey string `json:"pk,omitempty"`
	RowKey       string `json:"rk,omitempty"`

	// Remaining is the number of records still allowed by the query limit,
	// or -1 when the query is unlimited.
	Remaining int `json:"remaining"`
}

// Encode serializes the cursor to a base64-encoded string.
func (c *Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeCursor parses a base64-encoded cursor string.
func DecodeCursor(s string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidToken, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrInvalidToken, err)
	}
	if c.Shard < 0 || c.AddedID < 0 || c.Remaining < -1 {
		return nil, fmt.Errorf("%w: position out of range", ErrInvalidToken)
	}
	return &c, nil
}

// limited reports whether the cursor carries a finite limit.
func (c *Cursor) limited() bool { return c.Remaining >= 0 }

// newCursor starts a query with the given limit; zero or less is unlimited.
func newCursor(limit int) *Cursor {
	if limit <= 0 {
		return &Cursor{Remaining: -1}
	}
	return &Cursor{Remaining: limit}
}
