package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"qsmart/models"
	"qsmart/utils"
)

// Actor identifies who is invoking an operation. Role comes from the auth
// layer; the ledger only derives ownership relationships from it.
type Actor struct {
	ID   string
	Role string
}

// Ledger owns ticket numbering, position computation and the ticket status
// state machine. All mutations to one queue's ticket set are serialized
// behind a per-queue lock so concurrent joins can never issue duplicate
// ticket numbers.
type Ledger struct {
	store Store
	sink  Sink
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, sink Sink) *Ledger {
	if sink == nil {
		sink = NopSink
	}
	return &Ledger{
		store: store,
		sink:  sink,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockQueue acquires the queue's mutex, creating it on first use, and
// returns the unlock func.
func (l *Ledger) lockQueue(queueID string) func() {
	l.mu.Lock()
	qmu, ok := l.locks[queueID]
	if !ok {
		qmu = &sync.Mutex{}
		l.locks[queueID] = qmu
	}
	l.mu.Unlock()

	qmu.Lock()
	return qmu.Unlock
}

func (l *Ledger) emit(name string, t *models.Ticket, q *models.Queue) {
	evt := Event{
		Name:    name,
		QueueID: q.ID,
		Queue:   q,
		Ticket:  t,
		At:      l.now(),
	}
	if t != nil {
		evt.UserID = t.UserID
	}
	l.sink.Emit(evt)
}

func (l *Ledger) queue(ctx context.Context, id string) (*models.Queue, error) {
	q, err := l.store.FindQueue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find queue %s: %w", id, err)
	}
	if q == nil {
		return nil, ErrQueueNotFound
	}
	return q, nil
}

func (l *Ledger) ticket(ctx context.Context, id string) (*models.Ticket, error) {
	t, err := l.store.FindTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find ticket %s: %w", id, err)
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// Join issues a new waiting ticket for the requester. The ticket number is
// one above the highest ever issued for the queue, so numbers strictly
// increase with join order and are never reused after cancellations.
func (l *Ledger) Join(ctx context.Context, queueID string, requester Actor, info *models.StudentInfo) (*models.Ticket, error) {
	unlock := l.lockQueue(queueID)
	defer unlock()

	q, err := l.queue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !q.IsActive {
		return nil, ErrQueueInactive
	}

	existing, err := l.store.FindActiveTicket(ctx, queueID, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("find active ticket: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateActiveTicket
	}

	waiting, err := l.store.CountTickets(ctx, queueID, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("count waiting tickets: %w", err)
	}
	if waiting >= q.Settings.MaxQueueLength {
		return nil, ErrQueueFull
	}

	highest, err := l.store.HighestTicketNumber(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("highest ticket number: %w", err)
	}

	code, err := utils.GenerateCode(3)
	if err != nil {
		return nil, fmt.Errorf("generate ticket code: %w", err)
	}

	position := waiting + 1
	t := &models.Ticket{
		TicketNumber:      highest + 1,
		Code:              code,
		QueueID:           queueID,
		UserID:            requester.ID,
		Status:            models.StatusWaiting,
		Position:          position,
		EstimatedWaitTime: EstimateWait(position, q.AverageWaitTime),
		StudentInfo:       info,
		CreatedAt:         l.now(),
	}
	if err := l.store.SaveTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	l.emit(EventTicketCreated, t, q)
	return t, nil
}

// CallNext moves the waiting ticket with the lowest number to called and
// advances the queue's current ticket.
func (l *Ledger) CallNext(ctx context.Context, queueID string, manager Actor) (*models.Ticket, error) {
	unlock := l.lockQueue(queueID)
	defer unlock()

	q, err := l.queue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if !q.ManagedBy(manager.ID, manager.Role) {
		return nil, ErrUnauthorized
	}

	t, err := l.callNextLocked(ctx, q)
	if err != nil {
		return nil, err
	}

	l.emit(EventTicketCalled, t, q)
	return t, nil
}

// callNextLocked is CallNext without locking or authorization, shared with
// the auto-call path. Caller holds the queue lock.
func (l *Ledger) callNextLocked(ctx context.Context, q *models.Queue) (*models.Ticket, error) {
	waiting, err := l.store.FindTicketsByQueue(ctx, q.ID, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("find waiting tickets: %w", err)
	}
	if len(waiting) == 0 {
		return nil, ErrNoWaitingTickets
	}

	// Store contract is ascending ticket number, but select the minimum
	// explicitly: FIFO order is the ledger's invariant, not the store's.
	next := waiting[0]
	for _, t := range waiting[1:] {
		if t.TicketNumber < next.TicketNumber {
			next = t
		}
	}

	next.Status = models.StatusCalled
	if next.CalledAt == nil {
		at := l.now()
		next.CalledAt = &at
	}
	if err := l.store.SaveTicket(ctx, next); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	// currentTicket only moves forward; calling a lower number after a
	// higher one must not rewind it.
	if next.TicketNumber > q.CurrentTicket {
		q.CurrentTicket = next.TicketNumber
		if err := l.store.SaveQueue(ctx, q); err != nil {
			return nil, fmt.Errorf("save queue: %w", err)
		}
	}
	return next, nil
}

// UpdateStatus applies a manager-initiated status transition, enforcing the
// transition table and the write-once calledAt/completedAt timestamps.
func (l *Ledger) UpdateStatus(ctx context.Context, ticketID string, manager Actor, next models.TicketStatus) (*models.Ticket, error) {
	t, err := l.ticket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	unlock := l.lockQueue(t.QueueID)
	defer unlock()

	// Re-read under the lock; a concurrent call may have moved it.
	if t, err = l.ticket(ctx, ticketID); err != nil {
		return nil, err
	}

	q, err := l.queue(ctx, t.QueueID)
	if err != nil {
		return nil, err
	}
	if !q.ManagedBy(manager.ID, manager.Role) {
		return nil, ErrUnauthorized
	}
	if !next.Valid() || !t.Status.CanTransition(next) {
		return nil, &TransitionError{From: t.Status, To: next}
	}

	t.Status = next
	switch next {
	case models.StatusCalled:
		if t.CalledAt == nil {
			at := l.now()
			t.CalledAt = &at
		}
	case models.StatusCompleted:
		if t.CompletedAt == nil {
			at := l.now()
			t.CompletedAt = &at
		}
	}
	if err := l.store.SaveTicket(ctx, t); err != nil {
		return nil, fmt.Errorf("save ticket: %w", err)
	}

	if (next == models.StatusCompleted || next == models.StatusCalled) &&
		t.TicketNumber > q.CurrentTicket {
		q.CurrentTicket = t.TicketNumber
		if err := l.store.SaveQueue(ctx, q); err != nil {
			return nil, fmt.Errorf("save queue: %w", err)
		}
	}

	switch next {
	case models.StatusCalled:
		l.emit(EventTicketCalled, t, q)
	case models.StatusCompleted:
		l.emit(EventTicketCompleted, t, q)
	default:
		l.emit(EventTicketUpdated, t, q)
	}

	if next == models.StatusCompleted && q.Settings.AutoCallNext {
		called, err := l.callNextLocked(ctx, q)
		switch {
		case errors.Is(err, ErrNoWaitingTickets):
			// nothing left to call
		case err != nil:
			slog.Error("auto call next failed", "queue", q.ID, "error", err)
		default:
			l.emit(EventTicketCalled, called, q)
		}
	}

	return t, nil
}

// Cancel marks a waiting or called ticket cancelled. Allowed for the ticket
// owner and for queue managers. A ticket already being served can only be
// closed out through UpdateStatus. Other tickets' stored positions are left
// alone: position is always recomputed live, never shifted retroactively.
func (l *Ledger) Cancel(ctx context.Context, ticketID string, actor Actor) error {
	t, err := l.ticket(ctx, ticketID)
	if err != nil {
		return err
	}

	unlock := l.lockQueue(t.QueueID)
	defer unlock()

	if t, err = l.ticket(ctx, ticketID); err != nil {
		return err
	}

	q, err := l.queue(ctx, t.QueueID)
	if err != nil {
		return err
	}
	if t.UserID != actor.ID && !q.ManagedBy(actor.ID, actor.Role) {
		return ErrUnauthorized
	}
	if !t.Status.Active() {
		return &TransitionError{From: t.Status, To: models.StatusCancelled}
	}

	t.Status = models.StatusCancelled
	if err := l.store.SaveTicket(ctx, t); err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}

	l.emit(EventTicketRemoved, t, q)
	return nil
}

// LivePosition recomputes a waiting ticket's position and wait estimate
// from current queue state. Read-only; safe to call on every display.
func (l *Ledger) LivePosition(ctx context.Context, t *models.Ticket) (position, waitMinutes int, err error) {
	q, err := l.queue(ctx, t.QueueID)
	if err != nil {
		return 0, 0, err
	}
	waiting, err := l.store.FindTicketsByQueue(ctx, t.QueueID, models.StatusWaiting)
	if err != nil {
		return 0, 0, fmt.Errorf("find waiting tickets: %w", err)
	}
	position = ComputePosition(t, waiting)
	return position, EstimateWait(position, q.AverageWaitTime), nil
}

// ComputePosition returns the 1-based rank of t among the waiting tickets:
// one more than the count of waiting tickets with a smaller number.
func ComputePosition(t *models.Ticket, waiting []*models.Ticket) int {
	ahead := 0
	for _, w := range waiting {
		if w.TicketNumber < t.TicketNumber {
			ahead++
		}
	}
	return ahead + 1
}

// EstimateWait converts a position to minutes using the queue's per-ticket
// average.
func EstimateWait(position, averageWaitTime int) int {
	return position * averageWaitTime
}
