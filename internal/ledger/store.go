package ledger

import (
	"context"

	"qsmart/models"
)

// Store is the persistence surface the ledger operates on. Lookups return
// (nil, nil) when the entity does not exist; any non-nil error is treated
// as a storage failure and surfaced to the caller unchanged.
type Store interface {
	FindQueue(ctx context.Context, id string) (*models.Queue, error)
	FindTicket(ctx context.Context, id string) (*models.Ticket, error)

	// FindTicketsByQueue returns the queue's tickets ordered by ascending
	// ticket number, optionally filtered to the given statuses.
	FindTicketsByQueue(ctx context.Context, queueID string, statuses ...models.TicketStatus) ([]*models.Ticket, error)

	// FindActiveTicket returns the user's waiting/called ticket in the
	// queue, if any.
	FindActiveTicket(ctx context.Context, queueID, userID string) (*models.Ticket, error)

	CountTickets(ctx context.Context, queueID string, status models.TicketStatus) (int, error)

	// HighestTicketNumber returns the largest ticket number ever issued for
	// the queue, 0 when none.
	HighestTicketNumber(ctx context.Context, queueID string) (int, error)

	SaveTicket(ctx context.Context, t *models.Ticket) error
	SaveQueue(ctx context.Context, q *models.Queue) error
	DeleteTicket(ctx context.Context, t *models.Ticket) error
}
