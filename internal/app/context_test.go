package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expedientes/internal/config"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/migrate"
)

func TestOpenMigratesAndReopens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	ws, err := Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	v, err := migrate.Version(ws.DB)
	require.NoError(t, err)
	assert.Positive(t, v)
	_, err = ws.Engine.CreateUser(ctx, engine.UserCreateOptions{Username: "alice", Area: string(domain.AreaMesaEntrada)})
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	ws, err = Open(ctx, Options{Workspace: dir})
	require.NoError(t, err)
	defer ws.Close()
	u, err := ws.Actor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.AreaMesaEntrada, u.Area)
}

func TestActorErrors(t *testing.T) {
	ws, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer ws.Close()

	_, err = ws.Actor(context.Background(), "")
	require.ErrorContains(t, err, "--actor")
	_, err = ws.Actor(context.Background(), "nobody")
	require.ErrorContains(t, err, "unknown actor")
}

func TestLoadConfigFromWorkspaceAndOverride(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(Options{Workspace: dir})
	require.NoError(t, err)
	assert.Equal(t, config.VisibilityArea, cfg.Visibility.Mode)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte("visibility:\n  mode: elevated\n"), 0o644))
	cfg, err = LoadConfig(Options{Workspace: dir})
	require.NoError(t, err)
	assert.Equal(t, config.VisibilityElevated, cfg.Visibility.Mode)

	_, err = LoadConfig(Options{Workspace: dir, ConfigPath: dir + "/missing.yml"})
	require.Error(t, err)
}
