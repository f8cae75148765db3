package engine

import (
	"strconv"
	"strings"

	"expedientes/internal/repo"
)

// Page is one slice of a newest-first listing. NextCursor is empty on the
// last page.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func composeCursor(c *repo.Cursor) string {
	if c == nil {
		return ""
	}
	return c.CreatedAt + "|" + strconv.FormatInt(c.Seq, 10)
}

func parseCursor(raw string) (*repo.Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, invalid("cursor", "malformed cursor")
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, invalid("cursor", "malformed cursor")
	}
	return &repo.Cursor{CreatedAt: parts[0], Seq: seq}, nil
}
