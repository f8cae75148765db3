package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expedientes/internal/domain"
)

const userColumns = `id,username,name,area,role,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Area, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// InsertUser stores a user. A taken username yields ErrDuplicate.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,username,name,area,role,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, u.Name, u.Area, u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("username %s: %w", u.Username, ErrDuplicate)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.GetUserTx(ctx, nil, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	u, err := scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return u, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, err
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
	if errors.Is(err, ErrNotFound) {
		return u, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	return u, err
}

// ListUsersByArea returns the users of an area ordered by display name.
func (r Repo) ListUsersByArea(ctx context.Context, area domain.Area) ([]domain.User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users WHERE area=? ORDER BY name COLLATE NOCASE ASC, id ASC`, area)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.listUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY area ASC, name COLLATE NOCASE ASC, id ASC`)
}

func (r Repo) listUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
