package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Cursor marks the last row of a page in (created_at DESC, seq DESC) order.
// Seq is the SQLite rowid, which follows insertion order.
type Cursor struct {
	CreatedAt string
	Seq       int64
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed")
}

// escapeLike escapes LIKE wildcards so the term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// pageClause appends the keyset condition for cursor c on the given columns.
func pageClause(clauses []string, args []any, c *Cursor, tsCol, seqCol string) ([]string, []any) {
	if c == nil || c.CreatedAt == "" {
		return clauses, args
	}
	clauses = append(clauses, "("+tsCol+" < ? OR ("+tsCol+" = ? AND "+seqCol+" < ?))")
	args = append(args, c.CreatedAt, c.CreatedAt, c.Seq)
	return clauses, args
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}
