package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expedientes/internal/db"
	"expedientes/internal/domain"
)

// CaseFileFilters narrows ListCaseFiles. Zero values mean no filter.
type CaseFileFilters struct {
	Area   domain.Area
	Search string
	Status domain.CaseStatus
	Limit  int
	After  *Cursor
}

const caseFileSelect = `SELECT c.rowid,c.id,c.number,c.title,c.description,c.area,c.status,c.priority,c.article,
c.owner_id,c.created_by,c.created_at,c.updated_at,
o.username,o.name,o.area,cr.username,cr.name,cr.area
FROM case_files c
JOIN users o ON o.id=c.owner_id
JOIN users cr ON cr.id=c.created_by`

func scanCaseFile(row interface{ Scan(...any) error }) (domain.CaseFile, int64, error) {
	var (
		c     domain.CaseFile
		seq   int64
		owner domain.UserRef
		cr    domain.UserRef
	)
	err := row.Scan(&seq, &c.ID, &c.Number, &c.Title, &c.Description, &c.Area, &c.Status, &c.Priority, &c.Article,
		&c.OwnerID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&owner.Username, &owner.Name, &owner.Area, &cr.Username, &cr.Name, &cr.Area)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CaseFile{}, 0, ErrNotFound
	}
	if err != nil {
		return domain.CaseFile{}, 0, err
	}
	owner.ID = c.OwnerID
	cr.ID = c.CreatedBy
	c.Owner = &owner
	c.Creator = &cr
	return c, seq, nil
}

// InsertCaseFile stores a new case file. A taken number yields ErrDuplicate.
func (r Repo) InsertCaseFile(ctx context.Context, tx *sql.Tx, c domain.CaseFile) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO case_files(id,number,title,description,area,status,priority,article,owner_id,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.Number, c.Title, c.Description, c.Area, c.Status, c.Priority, c.Article, c.OwnerID, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("case file number %s: %w", c.Number, ErrDuplicate)
	}
	return err
}

func (r Repo) GetCaseFile(ctx context.Context, id string) (domain.CaseFile, error) {
	return r.GetCaseFileTx(ctx, nil, id)
}

func (r Repo) GetCaseFileTx(ctx context.Context, tx *sql.Tx, id string) (domain.CaseFile, error) {
	c, _, err := scanCaseFile(r.q(tx).QueryRowContext(ctx, caseFileSelect+` WHERE c.id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return c, fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	return c, err
}

func (r Repo) CaseFileExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM case_files WHERE id=?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// UpdateCaseFileCustody moves a case file to a new owner and area.
func (r Repo) UpdateCaseFileCustody(ctx context.Context, tx *sql.Tx, id, ownerID string, area domain.Area, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE case_files SET owner_id=?, area=?, updated_at=? WHERE id=?`, ownerID, area, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("case file %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListCaseFiles returns case files newest first. When more rows remain past
// the limit, the returned cursor points at the last row of the page.
func (r Repo) ListCaseFiles(ctx context.Context, f CaseFileFilters) ([]domain.CaseFile, *Cursor, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Area != "" {
		clauses = append(clauses, "c.area=?")
		args = append(args, f.Area)
	}
	if f.Status != "" {
		clauses = append(clauses, "c.status=?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		term := "%" + escapeLike(db.Fold(f.Search)) + "%"
		clauses = append(clauses, `(fold(c.number) LIKE ? ESCAPE '\' OR fold(c.title) LIKE ? ESCAPE '\' OR fold(c.description) LIKE ? ESCAPE '\')`)
		args = append(args, term, term, term)
	}
	clauses, args = pageClause(clauses, args, f.After, "c.created_at", "c.rowid")
	query := caseFileSelect + whereClause(clauses) + ` ORDER BY c.created_at DESC, c.rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit+1)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	res := []domain.CaseFile{}
	var seqs []int64
	for rows.Next() {
		c, seq, err := scanCaseFile(rows)
		if err != nil {
			return nil, nil, err
		}
		res = append(res, c)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
		last := res[len(res)-1]
		return res, &Cursor{CreatedAt: last.CreatedAt, Seq: seqs[f.Limit-1]}, nil
	}
	return res, nil, nil
}
