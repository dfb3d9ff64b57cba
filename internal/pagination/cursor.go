// Package pagination implements keyset paging over (timestamp, id) ordered
// listings with opaque, URL-safe cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor format")

const cursorSep = "|"

// Cursor is the position of the last item of a page.
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// String encodes c. The zero cursor encodes to "".
func (c Cursor) String() string {
	if c.LastID == "" {
		return ""
	}
	raw := c.Timestamp.UTC().Format(time.RFC3339Nano) + cursorSep + c.LastID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// EncodeCursor is Cursor{lastID, timestamp}.String().
func EncodeCursor(lastID string, timestamp time.Time) string {
	return Cursor{LastID: lastID, Timestamp: timestamp}.String()
}

// DecodeCursor parses a cursor made by EncodeCursor. "" decodes to nil, nil.
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), cursorSep)
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{LastID: id, Timestamp: at}, nil
}

// PageResult is the wire shape of one page.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Paginate turns a query result fetched with LIMIT limit+1 into a page. The
// extra row only signals that more exist and is dropped; the cursor points
// at the last kept item. Items is never nil.
func Paginate[T any](rows []T, limit int, position func(T) Cursor) PageResult[T] {
	page := PageResult[T]{Items: rows}
	if page.Items == nil {
		page.Items = []T{}
	}
	if limit > 0 && len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.HasMore = true
		page.Cursor = position(page.Items[limit-1]).String()
	}
	return page
}
