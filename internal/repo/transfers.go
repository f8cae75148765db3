package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expedientes/internal/domain"
)

const transferColumns = `t.rowid,t.id,t.case_file_id,t.from_user_id,t.to_user_id,t.to_area,t.status,t.message,t.created_at,t.updated_at,t.resolved_at`

// transferSelect resolves the case file and both identities in one pass.
const transferSelect = `SELECT ` + transferColumns + `,
c.number,c.title,c.description,c.area,c.status,c.priority,c.article,c.owner_id,c.created_by,c.created_at,c.updated_at,
fu.username,fu.name,fu.area,tu.username,tu.name,tu.area
FROM transfer_requests t
JOIN case_files c ON c.id=t.case_file_id
JOIN users fu ON fu.id=t.from_user_id
JOIN users tu ON tu.id=t.to_user_id`

func scanTransferResolved(row interface{ Scan(...any) error }) (domain.TransferRequest, int64, error) {
	var (
		t        domain.TransferRequest
		seq      int64
		resolved sql.NullString
		c        domain.CaseFile
		from, to domain.UserRef
	)
	err := row.Scan(&seq, &t.ID, &t.CaseFileID, &t.FromUserID, &t.ToUserID, &t.ToArea, &t.Status, &t.Message, &t.CreatedAt, &t.UpdatedAt, &resolved,
		&c.Number, &c.Title, &c.Description, &c.Area, &c.Status, &c.Priority, &c.Article, &c.OwnerID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&from.Username, &from.Name, &from.Area, &to.Username, &to.Name, &to.Area)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TransferRequest{}, 0, ErrNotFound
	}
	if err != nil {
		return domain.TransferRequest{}, 0, err
	}
	if resolved.Valid {
		t.ResolvedAt = &resolved.String
	}
	c.ID = t.CaseFileID
	from.ID = t.FromUserID
	to.ID = t.ToUserID
	t.CaseFile = &c
	t.FromUser = &from
	t.ToUser = &to
	return t, seq, nil
}

func (r Repo) InsertTransferRequest(ctx context.Context, tx *sql.Tx, t domain.TransferRequest) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO transfer_requests(id,case_file_id,from_user_id,to_user_id,to_area,status,message,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CaseFileID, t.FromUserID, t.ToUserID, t.ToArea, t.Status, t.Message, t.CreatedAt, t.UpdatedAt)
	return err
}

// GetTransferRequest returns a request with its case file and identities resolved.
func (r Repo) GetTransferRequest(ctx context.Context, id string) (domain.TransferRequest, error) {
	return r.GetTransferRequestTx(ctx, nil, id)
}

func (r Repo) GetTransferRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.TransferRequest, error) {
	t, _, err := scanTransferResolved(r.q(tx).QueryRowContext(ctx, transferSelect+` WHERE t.id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return t, fmt.Errorf("transfer request %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ResolveTransferRequest moves a pending request to status. It reports false
// when the request was no longer pending, leaving the row untouched.
func (r Repo) ResolveTransferRequest(ctx context.Context, tx *sql.Tx, id string, status domain.TransferStatus, at string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE transfer_requests SET status=?, updated_at=?, resolved_at=? WHERE id=? AND status=?`,
		status, at, at, id, domain.TransferPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SupersedePending rejects every other pending request on the case file and
// returns the ids it resolved.
func (r Repo) SupersedePending(ctx context.Context, tx *sql.Tx, caseFileID, keepID, at string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM transfer_requests WHERE case_file_id=? AND status=? AND id<>? ORDER BY created_at, rowid`,
		caseFileID, domain.TransferPending, keepID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, err := r.ResolveTransferRequest(ctx, tx, id, domain.TransferRejected, at); err != nil {
			return nil, fmt.Errorf("supersede %s: %w", id, err)
		}
	}
	return ids, nil
}

// ListPendingForUser returns the pending inbox of a user, newest first.
func (r Repo) ListPendingForUser(ctx context.Context, userID string, limit int, after *Cursor) ([]domain.TransferRequest, *Cursor, error) {
	clauses := []string{"t.to_user_id=?", "t.status=?"}
	args := []any{userID, domain.TransferPending}
	clauses, args = pageClause(clauses, args, after, "t.created_at", "t.rowid")
	query := transferSelect + whereClause(clauses) + ` ORDER BY t.created_at DESC, t.rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit+1)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	res := []domain.TransferRequest{}
	var seqs []int64
	for rows.Next() {
		t, seq, err := scanTransferResolved(rows)
		if err != nil {
			return nil, nil, err
		}
		res = append(res, t)
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

// CountPending returns the number of pending requests, used for metrics.
func (r Repo) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfer_requests WHERE status=?`, domain.TransferPending).Scan(&n)
	return n, err
}
