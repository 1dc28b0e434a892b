package notifier

import (
	"qsmart/internal/ledger"
)

// scopes flags which audiences receive an event.
type scopes struct {
	owner    bool
	viewers  bool
	managers bool
}

// routing maps every lifecycle event to its audiences. Owner and viewer
// deliveries are what the student/parent dashboards render; managers get
// everything that changes their queue.
var routing = map[string]scopes{
	ledger.EventTicketCreated:   {owner: true, viewers: true, managers: true},
	ledger.EventTicketCalled:    {owner: true, viewers: true, managers: true},
	ledger.EventTicketCompleted: {owner: true, managers: true},
	ledger.EventTicketUpdated:   {owner: true, managers: true},
	ledger.EventTicketRemoved:   {owner: true, viewers: true, managers: true},
	ledger.EventQueueUpdated:    {viewers: true, managers: true},
}

// Dispatcher receives ledger events and distributes them asynchronously.
// It implements ledger.Sink, so a mutation never waits on (or fails
// because of) the transport.
type Dispatcher struct {
	notifier *Notifier
}

func NewDispatcher(n *Notifier) *Dispatcher {
	return &Dispatcher{notifier: n}
}

func (d *Dispatcher) Emit(evt ledger.Event) {
	go d.dispatch(evt)
}

// Dispatch fans one event out to its audiences synchronously. Exported for
// call sites that already run on their own goroutine.
func (d *Dispatcher) Dispatch(evt ledger.Event) {
	d.dispatch(evt)
}

func (d *Dispatcher) dispatch(evt ledger.Event) {
	route, ok := routing[evt.Name]
	if !ok {
		return
	}

	payload := map[string]any{
		"queue_id": evt.QueueID,
		"at":       evt.At,
	}
	if evt.Ticket != nil {
		payload["ticket"] = evt.Ticket
	}
	if evt.Queue != nil {
		payload["queue"] = map[string]any{
			"id":             evt.Queue.ID,
			"name":           evt.Queue.Name,
			"current_ticket": evt.Queue.CurrentTicket,
			"is_active":      evt.Queue.IsActive,
		}
	}

	if route.owner && evt.UserID != "" {
		d.notifier.NotifyTicketOwner(evt.UserID, evt.Name, payload)
	}
	if route.viewers {
		d.notifier.NotifyQueueViewers(evt.QueueID, evt.Name, payload)
	}
	if route.managers {
		d.notifier.NotifyQueueManagers(evt.QueueID, evt.Name, payload)
	}
}
