package ledger

import (
	"time"

	"qsmart/models"
)

// Lifecycle event names, emitted after a committed mutation.
const (
	EventTicketCreated   = "ticket-created"
	EventTicketCalled    = "ticket-called"
	EventTicketCompleted = "ticket-completed"
	EventTicketUpdated   = "ticket-updated"
	EventTicketRemoved   = "ticket-removed"
	EventQueueUpdated    = "queue-updated"
)

// Event is a lifecycle notification produced by the ledger. Ticket is nil
// for queue-updated events.
type Event struct {
	Name    string         `json:"name"`
	QueueID string         `json:"queue_id"`
	UserID  string         `json:"user_id,omitempty"`
	Ticket  *models.Ticket `json:"ticket,omitempty"`
	Queue   *models.Queue  `json:"queue,omitempty"`
	At      time.Time      `json:"at"`
}

// Sink receives events after the mutation they describe has been
// persisted. Implementations must not block the caller; delivery is
// best-effort and failures stay inside the sink.
type Sink interface {
	Emit(evt Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(evt Event)

func (f SinkFunc) Emit(evt Event) { f(evt) }

// NopSink discards events.
var NopSink = SinkFunc(func(Event) {})
