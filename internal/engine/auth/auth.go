// Package auth holds the authorization predicates applied by the engine.
package auth

import (
	"fmt"

	"expedientes/internal/config"
	"expedientes/internal/domain"
)

// ForbiddenError indicates the actor may not perform Action.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("forbidden: %s", e.Action)
	}
	return fmt.Sprintf("forbidden: %s: %s", e.Action, e.Reason)
}

// RequireOwner allows only the current owner of the case file.
func RequireOwner(actor domain.User, c domain.CaseFile, action string) error {
	if c.OwnerID != actor.ID {
		return ForbiddenError{Action: action, Reason: "only the current owner can do this"}
	}
	return nil
}

// RequireRecipient allows only the addressee of a transfer request.
func RequireRecipient(actor domain.User, t domain.TransferRequest, action string) error {
	if t.ToUserID != actor.ID {
		return ForbiddenError{Action: action, Reason: "request is addressed to another user"}
	}
	return nil
}

func RequireAdmin(actor domain.User, action string) error {
	if actor.Role != domain.RoleAdmin {
		return ForbiddenError{Action: action, Reason: "admin role required"}
	}
	return nil
}

// CanView reports whether actor may read case file c under the visibility
// policy. Area alone decides; ownership grants nothing extra.
func CanView(cfg *config.Config, actor domain.User, c domain.CaseFile) bool {
	if cfg.Unrestricted(actor.Role, actor.Area) {
		return true
	}
	return c.Area == actor.Area
}
