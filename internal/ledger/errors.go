package ledger

import (
	"errors"
	"fmt"

	"qsmart/models"
)

// Sentinel errors for every business precondition a ledger operation can
// fail on. The HTTP layer maps these to status codes; everything else that
// comes out of a ledger operation is a storage failure.
var (
	ErrQueueNotFound         = errors.New("queue not found")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrQueueInactive         = errors.New("queue is not accepting tickets")
	ErrDuplicateActiveTicket = errors.New("user already holds an active ticket in this queue")
	ErrQueueFull             = errors.New("queue is full")
	ErrNoWaitingTickets      = errors.New("no waiting tickets in queue")
	ErrUnauthorized          = errors.New("not authorized for this queue")
)

// TransitionError reports a status change outside the transition table.
type TransitionError struct {
	From models.TicketStatus
	To   models.TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is a TransitionError.
func IsInvalidTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// NotFound reports whether err is one of the ledger's not-found errors.
func NotFound(err error) bool {
	return errors.Is(err, ErrQueueNotFound) || errors.Is(err, ErrTicketNotFound)
}

// PreconditionFailed reports whether err is a business-rule violation, as
// opposed to a missing entity, an authorization failure or a storage error.
func PreconditionFailed(err error) bool {
	return errors.Is(err, ErrQueueInactive) ||
		errors.Is(err, ErrDuplicateActiveTicket) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrNoWaitingTickets) ||
		IsInvalidTransition(err)
}
