// Package workflow holds the transfer request state machine.
//
// A request starts pending and leaves it exactly once, by accept or reject.
// Accepted and rejected are terminal.
package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"expedientes/internal/domain"
)

type Event string

const (
	EventAccept Event = "accept"
	EventReject Event = "reject"
)

// ErrInvalidTransition is returned when event is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid transition")

var transitions = fsm.Events{
	{Name: string(EventAccept), Src: []string{string(domain.TransferPending)}, Dst: string(domain.TransferAccepted)},
	{Name: string(EventReject), Src: []string{string(domain.TransferPending)}, Dst: string(domain.TransferRejected)},
}

func newMachine(current domain.TransferStatus) *fsm.FSM {
	return fsm.NewFSM(string(current), transitions, fsm.Callbacks{})
}

// Transition returns the state reached by firing event from current.
func Transition(ctx context.Context, current domain.TransferStatus, event Event) (domain.TransferStatus, error) {
	if !current.Valid() {
		return current, fmt.Errorf("unknown state %q: %w", current, ErrInvalidTransition)
	}
	m := newMachine(current)
	if err := m.Event(ctx, string(event)); err != nil {
		var invalid fsm.InvalidEventError
		var unknown fsm.UnknownEventError
		switch {
		case errors.As(err, &invalid):
			return current, fmt.Errorf("cannot %s request in state %s: %w", event, current, ErrInvalidTransition)
		case errors.As(err, &unknown):
			return current, fmt.Errorf("unknown event %q: %w", event, ErrInvalidTransition)
		default:
			return current, err
		}
	}
	return domain.TransferStatus(m.Current()), nil
}
