package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"expedientes/internal/domain"
)

const (
	TypeUserCreated       = "user.created"
	TypeAPIKeyCreated     = "apikey.created"
	TypeCaseCreated       = "case.created"
	TypeTransferRequested = "transfer.requested"
	TypeTransferAccepted  = "transfer.accepted"
	TypeTransferRejected  = "transfer.rejected"

	// Pending requests left behind when another request on the same case file is accepted.
	TypeTransferSuperseded = "transfer.superseded"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		domain.Timestamp(now()), evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
