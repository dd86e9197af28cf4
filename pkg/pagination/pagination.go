// Package pagination implements keyset paging over (created_at, id), newest
// first. Cursors are opaque to clients.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor wraps every cursor decoding failure.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is a page request. An empty Cursor asks for the first page.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the sort key of the last row a client has seen.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

// NormalizeLimit clamps limit to [1, MaxLimit], with DefaultLimit for <= 0.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so Trim can tell whether another
// page follows.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// EncodeCursor returns a URL-safe token for cursor.
func EncodeCursor(cursor Cursor) string {
	cursor.CreatedAt = cursor.CreatedAt.UTC()
	raw, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes a token from EncodeCursor. A blank value yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor.CreatedAt.IsZero() || cursor.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: incomplete sort key", ErrInvalidCursor)
	}
	return &cursor, nil
}

// ApplyDesc scopes query to the page after params.Cursor. table qualifies the
// sort columns when the query joins.
func ApplyDesc(query *gorm.DB, table string, params Params) (*gorm.DB, error) {
	cursor, err := ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	qualify := func(col string) string {
		if table == "" {
			return col
		}
		return table + "." + col
	}
	createdAt, id := qualify("created_at"), qualify("id")
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("%[1]s < ? OR (%[1]s = ? AND %[2]s < ?)", createdAt, id),
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	return query.
		Order(createdAt + " DESC").
		Order(id + " DESC").
		Limit(LimitWithBuffer(params.Limit)), nil
}

// Trim drops the lookahead row fetched by ApplyDesc and returns the cursor for
// the next page, or "" on the last page.
func Trim[T any](rows []T, limit int, cursorOf func(T) Cursor) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(cursorOf(page[len(page)-1]))
}
