package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"expedientes/internal/config"
	"expedientes/internal/db"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/engine/auth"
	"expedientes/internal/migrate"
	"expedientes/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Alice domain.User // mesa_entrada
	Bob   domain.User // area_legal
	Carol domain.User // area_legal
	Admin domain.User // direccion, admin
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	eng := engine.New(conn, cfg)
	var tick atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }

	env := testEnv{Engine: eng, Ctx: context.Background()}
	env.Alice = env.mustUser(t, "alice", "Alice Acosta", domain.AreaMesaEntrada, domain.RoleUser)
	env.Bob = env.mustUser(t, "bob", "Bruno Benitez", domain.AreaLegal, domain.RoleUser)
	env.Carol = env.mustUser(t, "carol", "Carla Castro", domain.AreaLegal, domain.RoleUser)
	env.Admin = env.mustUser(t, "root", "Dora Diaz", domain.AreaDireccion, domain.RoleAdmin)
	return env
}

func (env testEnv) mustUser(t *testing.T, username, name string, area domain.Area, role domain.Role) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: username, Name: name, Area: string(area), Role: string(role)})
	require.NoError(t, err)
	return u
}

func (env testEnv) mustCase(t *testing.T, owner domain.User, number, title string) domain.CaseFile {
	t.Helper()
	c, err := env.Engine.CreateCaseFile(env.Ctx, owner, engine.CaseFileCreateOptions{Number: number, Title: title, Article: "1"})
	require.NoError(t, err)
	return c
}

func requireForbidden(t *testing.T, err error) {
	t.Helper()
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
}

func requireInvalid(t *testing.T, err error, field string) {
	t.Helper()
	var ia engine.InvalidArgumentError
	require.ErrorAs(t, err, &ia)
	require.Equal(t, field, ia.Field)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "bob", Area: "area_legal"})
	requireInvalid(t, err, "username")

	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "dan", Area: "sotano"})
	requireInvalid(t, err, "area")

	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "dan", Area: "area_legal", Role: "root"})
	requireInvalid(t, err, "role")

	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "dan", Area: "area_legal"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, u.Role)
	require.Equal(t, "dan", u.Name)
}

func TestListUsersByAreaSortedByName(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "aaron", "Zoe Zapata", domain.AreaLegal, domain.RoleUser)

	users, err := env.Engine.ListUsersByArea(env.Ctx, "area_legal")
	require.NoError(t, err)
	var names []string
	for _, u := range users {
		require.Equal(t, domain.AreaLegal, u.Area)
		names = append(names, u.Name)
	}
	require.Equal(t, []string{"Bruno Benitez", "Carla Castro", "Zoe Zapata"}, names)

	users, err = env.Engine.ListUsersByArea(env.Ctx, "area_tecnica")
	require.NoError(t, err)
	require.Empty(t, users)

	_, err = env.Engine.ListUsersByArea(env.Ctx, "sotano")
	requireInvalid(t, err, "area")
}

func TestCreateAPIKeyStoresHashOnly(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, env.Bob.ID, "ci")
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.NotEqual(t, plain, key.KeyHash)

	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	require.Equal(t, env.Bob.ID, stored.UserID)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "missing", "x")
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, env.Carol.ID, "ops")
	require.NoError(t, err)
	all, err := env.Engine.ListAPIKeys(env.Ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	bobs, err := env.Engine.ListAPIKeys(env.Ctx, env.Bob.ID)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	require.Equal(t, key.ID, bobs[0].ID)
}

func TestEventsRecordedForMutations(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-1", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.NoError(t, err)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "transfer", Limit: 10})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	require.Equal(t, "transfer.accepted", evts[0].Type)
	require.Equal(t, "transfer.requested", evts[1].Type)
	require.Equal(t, env.Bob.ID, evts[0].ActorID)
}
