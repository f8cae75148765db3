package expedientessdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expedientes/internal/app"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/server"
)

func newTestAPI(t *testing.T) (string, engine.Engine) {
	t.Helper()
	ws, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	handler, err := server.New(server.Config{
		Engine: ws.Engine,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret", TokenTTL: time.Hour, AllowDevLogin: true},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.URL, ws.Engine
}

func seedUser(t *testing.T, e engine.Engine, username string, area domain.Area, role domain.Role) domain.User {
	t.Helper()
	u, err := e.CreateUser(context.Background(), engine.UserCreateOptions{Username: username, Area: string(area), Role: string(role)})
	require.NoError(t, err)
	return u
}

func TestClientTransferRoundTrip(t *testing.T) {
	baseURL, e := newTestAPI(t)
	ctx := context.Background()
	seedUser(t, e, "alice", domain.AreaMesaEntrada, domain.RoleUser)
	bobUser := seedUser(t, e, "bob", domain.AreaLegal, domain.RoleUser)

	require.NoError(t, New(baseURL).Health(ctx))

	alice := New(baseURL)
	login, err := alice.DevLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", login.User.Username)
	me, err := alice.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mesa_entrada", me.Area)

	c, err := alice.CreateCaseFile(ctx, CreateCaseFileInput{Number: "EXP-1", Title: "Reclamo", Article: "3"})
	require.NoError(t, err)
	assert.Equal(t, "pendiente", c.Status)

	req, err := alice.RequestTransfer(ctx, c.ID, bobUser.ID, "revisar")
	require.NoError(t, err)
	assert.Equal(t, "pending", req.Status)

	bob := New(baseURL)
	_, err = bob.DevLogin(ctx, "bob")
	require.NoError(t, err)
	inbox, err := bob.Notifications(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)

	accepted, err := bob.AcceptTransfer(ctx, inbox.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	_, err = bob.RejectTransfer(ctx, accepted.ID)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))

	history, err := alice.History(ctx, c.ID, 0, "")
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "area_legal", history.Items[0].ToArea)

	page, err := bob.ListCaseFiles(ctx, ListCaseFilesOptions{Search: "exp"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, bobUser.ID, page.Items[0].OwnerID)

	_, err = alice.GetCaseFile(ctx, c.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	require.NoError(t, alice.Logout(ctx))
	_, err = alice.Me(ctx)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestClientAdminAndAPIKey(t *testing.T) {
	baseURL, e := newTestAPI(t)
	ctx := context.Background()
	root := seedUser(t, e, "root", domain.AreaDireccion, domain.RoleAdmin)
	_, plain, err := e.CreateAPIKey(ctx, root.ID, "sdk")
	require.NoError(t, err)

	admin := New(baseURL)
	admin.APIKey = plain
	u, err := admin.CreateUser(ctx, CreateUserInput{Username: "tec", Name: "Tecnica Uno", Area: "area_tecnica"})
	require.NoError(t, err)
	assert.Equal(t, "user", u.Role)

	users, err := admin.UsersByArea(ctx, "area_tecnica")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Tecnica Uno", users[0].Name)

	events, err := admin.Events(ctx, EventsOptions{Type: "user.created", Limit: 1})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, u.ID, events.Items[0].EntityID)
	assert.NotEmpty(t, events.NextCursor)

	_, err = admin.CreateUser(ctx, CreateUserInput{Username: "x", Area: "sotano"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "area", apiErr.Details["field"])
}
