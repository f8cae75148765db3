package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"expedientes/internal/domain"
	"expedientes/internal/events"
	"expedientes/internal/repo"
)

type UserCreateOptions struct {
	Username string
	Name     string
	Area     string
	Role     string
	ActorID  string
}

// CreateUser registers an identity. Area is fixed for the life of the user.
func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	u := domain.User{
		ID:       uuid.NewString(),
		Username: strings.TrimSpace(opts.Username),
		Name:     strings.TrimSpace(opts.Name),
		Area:     domain.Area(strings.TrimSpace(opts.Area)),
		Role:     domain.Role(strings.TrimSpace(opts.Role)),
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	switch {
	case u.Username == "":
		return domain.User{}, invalid("username", "username is required")
	case !u.Area.Valid():
		return domain.User{}, invalid("area", fmt.Sprintf("unknown area %q", opts.Area))
	case !u.Role.Valid():
		return domain.User{}, invalid("role", fmt.Sprintf("unknown role %q", opts.Role))
	}
	u.CreatedAt = domain.Timestamp(e.now())
	actorID := opts.ActorID
	if actorID == "" {
		actorID = u.ID
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return invalid("username", "username already exists")
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return e.events().Append(ctx, tx, events.TypeUserCreated, "user", u.ID, actorID, events.EventPayload{
			"username": u.Username,
			"area":     u.Area,
			"role":     u.Role,
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ListUsersByArea returns the identities of an area sorted by display name.
func (e Engine) ListUsersByArea(ctx context.Context, area string) ([]domain.User, error) {
	a := domain.Area(strings.TrimSpace(area))
	if !a.Valid() {
		return nil, invalid("area", fmt.Sprintf("unknown area %q", area))
	}
	return e.Repo.ListUsersByArea(ctx, a)
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

// UserByUsername resolves a local actor, as the CLI --actor flag does.
func (e Engine) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, invalid("actor", "username is required")
	}
	return e.Repo.GetUserByUsername(ctx, username)
}

// ListAPIKeys returns stored keys, newest first; userID narrows to one user.
func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, userID)
}

// CreateAPIKey issues a new key for userID. Only the hash is stored; the
// plaintext is returned once.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate key: %w", err)
	}
	plain := "exp_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: domain.Timestamp(e.now()),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return fmt.Errorf("insert api key: %w", err)
		}
		return e.events().Append(ctx, tx, events.TypeAPIKeyCreated, "api_key", key.ID, userID, events.EventPayload{"name": key.Name})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

// LatestEvents returns the newest audit events matching f.
func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
