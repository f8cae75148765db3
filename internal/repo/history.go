package repo

import (
	"context"
	"database/sql"
	"fmt"

	"expedientes/internal/domain"
)

// InsertHistory appends a completed transfer. A second record for the same
// request yields ErrDuplicate.
func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO transfer_history(id,case_file_id,request_id,from_area,to_area,from_user_id,to_user_id,observations,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		h.ID, h.CaseFileID, h.RequestID, h.FromArea, h.ToArea, h.FromUserID, h.ToUserID, h.Observations, h.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("history for request %s: %w", h.RequestID, ErrDuplicate)
	}
	return err
}

// ListHistory returns the transfers of a case file, newest first.
func (r Repo) ListHistory(ctx context.Context, caseFileID string, limit int, after *Cursor) ([]domain.HistoryRecord, *Cursor, error) {
	clauses := []string{"h.case_file_id=?"}
	args := []any{caseFileID}
	clauses, args = pageClause(clauses, args, after, "h.created_at", "h.rowid")
	query := `SELECT h.rowid,h.id,h.case_file_id,h.request_id,h.from_area,h.to_area,h.from_user_id,h.to_user_id,h.observations,h.created_at,
fu.username,fu.name,fu.area,tu.username,tu.name,tu.area
FROM transfer_history h
JOIN users fu ON fu.id=h.from_user_id
JOIN users tu ON tu.id=h.to_user_id` + whereClause(clauses) + ` ORDER BY h.created_at DESC, h.rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit+1)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	res := []domain.HistoryRecord{}
	var seqs []int64
	for rows.Next() {
		var (
			h        domain.HistoryRecord
			seq      int64
			from, to domain.UserRef
		)
		if err := rows.Scan(&seq, &h.ID, &h.CaseFileID, &h.RequestID, &h.FromArea, &h.ToArea, &h.FromUserID, &h.ToUserID, &h.Observations, &h.CreatedAt,
			&from.Username, &from.Name, &from.Area, &to.Username, &to.Name, &to.Area); err != nil {
			return nil, nil, err
		}
		from.ID = h.FromUserID
		to.ID = h.ToUserID
		h.FromUser = &from
		h.ToUser = &to
		res = append(res, h)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if limit > 0 && len(res) > limit {
		res = res[:limit]
		return res, &Cursor{CreatedAt: res[limit-1].CreatedAt, Seq: seqs[limit-1]}, nil
	}
	return res, nil, nil
}

// CountHistory returns the number of history records for a case file.
func (r Repo) CountHistory(ctx context.Context, caseFileID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfer_history WHERE case_file_id=?`, caseFileID).Scan(&n)
	return n, err
}
