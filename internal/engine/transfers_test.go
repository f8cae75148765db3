package engine_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/metrics"
	"expedientes/internal/repo"
)

func TestAcceptMovesCustodyAndAppendsHistory(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-100", "Reclamo por garantía")

	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "para dictamen")
	require.NoError(t, err)
	require.Equal(t, domain.TransferPending, req.Status)
	require.Equal(t, domain.AreaLegal, req.ToArea)
	require.NotNil(t, req.CaseFile)
	require.Equal(t, "EXP-100", req.CaseFile.Number)
	require.Equal(t, "alice", req.FromUser.Username)
	require.Equal(t, "bob", req.ToUser.Username)

	inbox, err := env.Engine.ListPendingNotifications(env.Ctx, env.Bob, 0, "")
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)
	require.Equal(t, req.ID, inbox.Items[0].ID)

	accepted, err := env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferAccepted, accepted.Status)
	require.NotNil(t, accepted.ResolvedAt)

	got, err := env.Engine.Repo.GetCaseFile(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, env.Bob.ID, got.OwnerID)
	require.Equal(t, domain.AreaLegal, got.Area)
	require.Equal(t, env.Alice.ID, got.CreatedBy)

	hist, err := env.Engine.ListHistory(env.Ctx, c.ID, 0, "")
	require.NoError(t, err)
	require.Len(t, hist.Items, 1)
	h := hist.Items[0]
	require.Equal(t, req.ID, h.RequestID)
	require.Equal(t, domain.AreaMesaEntrada, h.FromArea)
	require.Equal(t, domain.AreaLegal, h.ToArea)
	require.Equal(t, env.Alice.ID, h.FromUserID)
	require.Equal(t, env.Bob.ID, h.ToUserID)
	require.Equal(t, "para dictamen", h.Observations)
	require.Equal(t, "alice", h.FromUser.Username)

	inbox, err = env.Engine.ListPendingNotifications(env.Ctx, env.Bob, 0, "")
	require.NoError(t, err)
	require.Empty(t, inbox.Items)
}

func TestRejectLeavesCaseFileUntouched(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-101", "Reclamo")

	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)
	rejected, err := env.Engine.RejectTransfer(env.Ctx, env.Bob, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferRejected, rejected.Status)

	got, err := env.Engine.Repo.GetCaseFile(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, env.Alice.ID, got.OwnerID)
	require.Equal(t, domain.AreaMesaEntrada, got.Area)

	n, err := env.Engine.Repo.CountHistory(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestOnlyRecipientMayResolve(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-102", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Carol, req.ID)
	requireForbidden(t, err)
	_, err = env.Engine.RejectTransfer(env.Ctx, env.Alice, req.ID)
	requireForbidden(t, err)

	still, err := env.Engine.Repo.GetTransferRequest(env.Ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferPending, still.Status)
	require.Nil(t, still.ResolvedAt)
}

func TestResolvedRequestCannotBeResolvedAgain(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-103", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.NoError(t, err)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.ErrorIs(t, err, engine.ErrConflict)
	_, err = env.Engine.RejectTransfer(env.Ctx, env.Bob, req.ID)
	require.ErrorIs(t, err, engine.ErrConflict)

	var ce engine.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, string(domain.TransferAccepted), ce.State)

	n, err := env.Engine.Repo.CountHistory(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestResolveUnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AcceptTransfer(env.Ctx, env.Bob, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.RejectTransfer(env.Ctx, env.Bob, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRequestTransferPreconditionOrder(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-104", "Reclamo")

	// missing target wins over a missing case file
	_, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, "missing", " ", "")
	requireInvalid(t, err, "to_user_id")

	_, err = env.Engine.RequestTransfer(env.Ctx, env.Alice, "missing", env.Bob.ID, "")
	require.ErrorIs(t, err, repo.ErrNotFound)

	// ownership is checked before the target exists
	_, err = env.Engine.RequestTransfer(env.Ctx, env.Bob, c.ID, "ghost", "")
	requireForbidden(t, err)

	_, err = env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, "ghost", "")
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Alice.ID, "")
	requireInvalid(t, err, "to_user_id")

	inbox, err := env.Engine.ListPendingNotifications(env.Ctx, env.Alice, 0, "")
	require.NoError(t, err)
	require.Empty(t, inbox.Items)
}

func TestPreviousOwnerLosesTransferRight(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-105", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.NoError(t, err)

	_, err = env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Carol.ID, "")
	requireForbidden(t, err)

	// the new owner can pass it on, and history accumulates newest first
	req2, err := env.Engine.RequestTransfer(env.Ctx, env.Bob, c.ID, env.Admin.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Admin, req2.ID)
	require.NoError(t, err)

	hist, err := env.Engine.ListHistory(env.Ctx, c.ID, 0, "")
	require.NoError(t, err)
	require.Len(t, hist.Items, 2)
	require.Equal(t, req2.ID, hist.Items[0].RequestID)
	require.Equal(t, domain.AreaLegal, hist.Items[0].FromArea)
	require.Equal(t, domain.AreaDireccion, hist.Items[0].ToArea)
	require.Equal(t, req.ID, hist.Items[1].RequestID)
}

func TestAcceptSupersedesSiblingRequests(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-107", "Reclamo")
	toBob, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)
	toAdmin, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Admin.ID, "")
	require.NoError(t, err)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, toBob.ID)
	require.NoError(t, err)

	stale, err := env.Engine.Repo.GetTransferRequest(env.Ctx, toAdmin.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferRejected, stale.Status)
	require.NotNil(t, stale.ResolvedAt)

	inbox, err := env.Engine.ListPendingNotifications(env.Ctx, env.Admin, 0, "")
	require.NoError(t, err)
	require.Empty(t, inbox.Items)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Admin, toAdmin.ID)
	require.ErrorIs(t, err, engine.ErrConflict)

	got, err := env.Engine.Repo.GetCaseFile(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, env.Bob.ID, got.OwnerID)
	require.Equal(t, domain.AreaLegal, got.Area)
	n, err := env.Engine.Repo.CountHistory(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "transfer.superseded"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	require.Equal(t, toAdmin.ID, evts[0].EntityID)
}

func TestAcceptFromFormerOwnerConflicts(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-108", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Admin.ID, "")
	require.NoError(t, err)

	// custody moved outside the transfer workflow
	_, err = env.Engine.DB.ExecContext(env.Ctx, `UPDATE case_files SET owner_id=?, area=? WHERE id=?`, env.Bob.ID, domain.AreaLegal, c.ID)
	require.NoError(t, err)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Admin, req.ID)
	var ce engine.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, string(domain.TransferPending), ce.State)

	still, err := env.Engine.Repo.GetTransferRequest(env.Ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferPending, still.Status)
	got, err := env.Engine.Repo.GetCaseFile(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, env.Bob.ID, got.OwnerID)

	// the recipient can still decline it
	_, err = env.Engine.RejectTransfer(env.Ctx, env.Admin, req.ID)
	require.NoError(t, err)
}

func TestFailedAcceptRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-106", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)

	// occupy the history slot of this request so the accept fails midway
	_, err = env.Engine.DB.ExecContext(env.Ctx, `INSERT INTO transfer_history(id,case_file_id,request_id,from_area,to_area,from_user_id,to_user_id,observations,created_at)
VALUES ('h-stale',?,?,'mesa_entrada','area_legal',?,?,'','2020-01-01T00:00:00.000000Z')`, c.ID, req.ID, env.Alice.ID, env.Bob.ID)
	require.NoError(t, err)

	_, err = env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
	require.Error(t, err)
	require.ErrorIs(t, err, repo.ErrDuplicate)

	still, err := env.Engine.Repo.GetTransferRequest(env.Ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransferPending, still.Status)

	got, err := env.Engine.Repo.GetCaseFile(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, env.Alice.ID, got.OwnerID)
	require.Equal(t, domain.AreaMesaEntrada, got.Area)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "transfer.accepted"})
	require.NoError(t, err)
	require.Empty(t, evts)
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	env := newTestEnv(t)
	c := env.mustCase(t, env.Alice, "EXP-107", "Reclamo")
	req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
	require.NoError(t, err)

	const workers = 8
	var (
		g       errgroup.Group
		results = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := env.Engine.AcceptTransfer(env.Ctx, env.Bob, req.ID)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, engine.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)

	n, err := env.Engine.Repo.CountHistory(env.Ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNotificationsPaginateNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, num := range []string{"EXP-201", "EXP-202", "EXP-203"} {
		c := env.mustCase(t, env.Alice, num, "Reclamo "+num)
		req, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, c.ID, env.Bob.ID, "")
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	page, err := env.Engine.ListPendingNotifications(env.Ctx, env.Bob, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, ids[2], page.Items[0].ID)
	require.Equal(t, ids[1], page.Items[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = env.Engine.ListPendingNotifications(env.Ctx, env.Bob, 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, ids[0], page.Items[0].ID)
	require.Empty(t, page.NextCursor)

	_, err = env.Engine.ListPendingNotifications(env.Ctx, env.Bob, 2, "garbage")
	requireInvalid(t, err, "cursor")
}

func pendingGauge(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "expedientes_transfers_pending" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("expedientes_transfers_pending not registered")
	return 0
}

func TestPendingGaugeFollowsRequests(t *testing.T) {
	env := newTestEnv(t)
	reg := prometheus.NewRegistry()
	env.Engine.Metrics = metrics.NewRecorder(reg)

	first := env.mustCase(t, env.Alice, "EXP-301", "Reclamo")
	second := env.mustCase(t, env.Alice, "EXP-302", "Denuncia")
	r1, err := env.Engine.RequestTransfer(env.Ctx, env.Alice, first.ID, env.Bob.ID, "")
	require.NoError(t, err)
	_, err = env.Engine.RequestTransfer(env.Ctx, env.Alice, second.ID, env.Carol.ID, "")
	require.NoError(t, err)
	require.Equal(t, 2.0, pendingGauge(t, reg))

	_, err = env.Engine.RejectTransfer(env.Ctx, env.Bob, r1.ID)
	require.NoError(t, err)
	require.Equal(t, 1.0, pendingGauge(t, reg))
}
