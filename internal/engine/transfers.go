package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"expedientes/internal/domain"
	"expedientes/internal/engine/auth"
	"expedientes/internal/events"
	"expedientes/internal/metrics"
	"expedientes/internal/workflow"
)

// RequestTransfer asks targetUserID to take custody of a case file owned by actor.
func (e Engine) RequestTransfer(ctx context.Context, actor domain.User, caseFileID, targetUserID, message string) (domain.TransferRequest, error) {
	ctx, span := e.startSpan(ctx, "engine.transfer.request")
	span.SetAttributes(attribute.String("case_file.id", caseFileID), attribute.String("actor.id", actor.ID))
	var err error
	defer func() { endSpan(span, err) }()

	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		err = invalid("to_user_id", "target user is required")
		return domain.TransferRequest{}, err
	}
	var id string
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		c, err := e.Repo.GetCaseFileTx(ctx, tx, caseFileID)
		if err != nil {
			return err
		}
		if err := auth.RequireOwner(actor, c, "request transfer"); err != nil {
			return err
		}
		target, err := e.Repo.GetUserTx(ctx, tx, targetUserID)
		if err != nil {
			return err
		}
		if target.ID == actor.ID {
			return invalid("to_user_id", "cannot transfer a case file to yourself")
		}
		now := domain.Timestamp(e.now())
		t := domain.TransferRequest{
			ID:         uuid.NewString(),
			CaseFileID: c.ID,
			FromUserID: actor.ID,
			ToUserID:   target.ID,
			ToArea:     target.Area,
			Status:     domain.TransferPending,
			Message:    strings.TrimSpace(message),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.Repo.InsertTransferRequest(ctx, tx, t); err != nil {
			return fmt.Errorf("insert transfer request: %w", err)
		}
		id = t.ID
		return e.events().Append(ctx, tx, events.TypeTransferRequested, "transfer", t.ID, actor.ID, events.EventPayload{
			"case_file_id": c.ID,
			"number":       c.Number,
			"from_user_id": actor.ID,
			"to_user_id":   target.ID,
			"to_area":      target.Area,
		})
	})
	if err != nil {
		return domain.TransferRequest{}, err
	}
	e.Metrics.Transfer(metrics.OutcomeRequested)
	e.refreshPending(ctx)
	e.log().Infow("transfer requested", "request_id", id, "case_file_id", caseFileID, "from", actor.ID, "to", targetUserID)
	t, err := e.Repo.GetTransferRequest(ctx, id)
	return t, err
}

// ListPendingNotifications returns the pending requests addressed to actor.
func (e Engine) ListPendingNotifications(ctx context.Context, actor domain.User, limit int, cursor string) (Page[domain.TransferRequest], error) {
	after, err := parseCursor(cursor)
	if err != nil {
		return Page[domain.TransferRequest]{}, err
	}
	items, next, err := e.Repo.ListPendingForUser(ctx, actor.ID, limit, after)
	if err != nil {
		return Page[domain.TransferRequest]{}, err
	}
	return Page[domain.TransferRequest]{Items: items, NextCursor: composeCursor(next)}, nil
}

// AcceptTransfer resolves a pending request addressed to actor and moves the
// case file into actor's custody and area. The request status, the case file,
// the history record and the audit event are written in one transaction.
func (e Engine) AcceptTransfer(ctx context.Context, actor domain.User, requestID string) (domain.TransferRequest, error) {
	return e.resolveTransfer(ctx, actor, requestID, workflow.EventAccept)
}

// RejectTransfer resolves a pending request addressed to actor without
// touching the case file.
func (e Engine) RejectTransfer(ctx context.Context, actor domain.User, requestID string) (domain.TransferRequest, error) {
	return e.resolveTransfer(ctx, actor, requestID, workflow.EventReject)
}

func (e Engine) resolveTransfer(ctx context.Context, actor domain.User, requestID string, event workflow.Event) (domain.TransferRequest, error) {
	ctx, span := e.startSpan(ctx, "engine.transfer."+string(event))
	span.SetAttributes(attribute.String("transfer.id", requestID), attribute.String("actor.id", actor.ID))
	var err error
	defer func() { endSpan(span, err) }()

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTransferRequestTx(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := auth.RequireRecipient(actor, t, string(event)+" transfer"); err != nil {
			return err
		}
		next, err := workflow.Transition(ctx, t.Status, event)
		if err != nil {
			if errors.Is(err, workflow.ErrInvalidTransition) {
				return ConflictError{Resource: "transfer request", ID: t.ID, State: string(t.Status)}
			}
			return err
		}
		now := domain.Timestamp(e.now())
		ok, err := e.Repo.ResolveTransferRequest(ctx, tx, t.ID, next, now)
		if err != nil {
			return fmt.Errorf("resolve transfer request: %w", err)
		}
		if !ok {
			return ConflictError{Resource: "transfer request", ID: t.ID}
		}
		payload := events.EventPayload{
			"case_file_id": t.CaseFileID,
			"from_user_id": t.FromUserID,
			"to_user_id":   t.ToUserID,
		}
		evtType := events.TypeTransferRejected
		if next == domain.TransferAccepted {
			evtType = events.TypeTransferAccepted
			c, err := e.Repo.GetCaseFileTx(ctx, tx, t.CaseFileID)
			if err != nil {
				return err
			}
			if c.OwnerID != t.FromUserID {
				return ConflictError{Resource: "transfer request", ID: t.ID, State: string(t.Status), Reason: "requester no longer holds the case file"}
			}
			if err := e.Repo.UpdateCaseFileCustody(ctx, tx, c.ID, actor.ID, actor.Area, now); err != nil {
				return fmt.Errorf("update case file custody: %w", err)
			}
			h := domain.HistoryRecord{
				ID:           uuid.NewString(),
				CaseFileID:   c.ID,
				RequestID:    t.ID,
				FromArea:     c.Area,
				ToArea:       actor.Area,
				FromUserID:   t.FromUserID,
				ToUserID:     actor.ID,
				Observations: t.Message,
				CreatedAt:    now,
			}
			if err := e.Repo.InsertHistory(ctx, tx, h); err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
			payload["history_id"] = h.ID
			payload["from_area"] = c.Area
			payload["to_area"] = actor.Area

			superseded, err := e.Repo.SupersedePending(ctx, tx, c.ID, t.ID, now)
			if err != nil {
				return err
			}
			for _, id := range superseded {
				if err := e.events().Append(ctx, tx, events.TypeTransferSuperseded, "transfer", id, actor.ID, events.EventPayload{
					"case_file_id":        c.ID,
					"accepted_request_id": t.ID,
					"new_owner_id":        actor.ID,
				}); err != nil {
					return err
				}
			}
		}
		return e.events().Append(ctx, tx, evtType, "transfer", t.ID, actor.ID, payload)
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.Metrics.Transfer(metrics.OutcomeConflict)
		}
		return domain.TransferRequest{}, err
	}
	outcome := metrics.OutcomeRejected
	if event == workflow.EventAccept {
		outcome = metrics.OutcomeAccepted
	}
	e.Metrics.Transfer(outcome)
	e.refreshPending(ctx)
	e.log().Infow("transfer resolved", "request_id", requestID, "outcome", outcome, "actor", actor.ID)
	t, err := e.Repo.GetTransferRequest(ctx, requestID)
	return t, err
}

func (e Engine) refreshPending(ctx context.Context) {
	if e.Metrics == nil {
		return
	}
	n, err := e.Repo.CountPending(ctx)
	if err != nil {
		e.log().Warnw("count pending transfers", "error", err)
		return
	}
	e.Metrics.PendingTransfers(n)
}
