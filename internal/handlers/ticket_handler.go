package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qsmart/internal/ledger"
	"qsmart/internal/services"
	"qsmart/internal/store"
	"qsmart/models"
	"qsmart/monitoring"
)

// positionSource serves positions pushed by the background updater so the
// read endpoints can skip a database round trip.
type positionSource interface {
	CachedPosition(ctx context.Context, queueID, userID string) (position, wait int, ok bool)
}

type TicketHandler struct {
	store     *store.Store
	ledger    *ledger.Ledger
	stats     *services.StatsCache
	positions positionSource
}

func NewTicketHandler(st *store.Store, l *ledger.Ledger, stats *services.StatsCache, positions positionSource) *TicketHandler {
	return &TicketHandler{store: st, ledger: l, stats: stats, positions: positions}
}

// ticketView attaches the position and wait estimate to waiting tickets,
// preferring the updater's cache and recomputing only on a miss. Called and
// in-progress tickets are returned as stored.
func (h *TicketHandler) ticketView(ctx context.Context, t *models.Ticket) map[string]any {
	view := map[string]any{"ticket": t}
	if t.Status != models.StatusWaiting {
		return view
	}
	if pos, wait, ok := h.positions.CachedPosition(ctx, t.QueueID, t.UserID); ok {
		t.Position = pos
		t.EstimatedWaitTime = wait
		return view
	}
	if pos, wait, err := h.ledger.LivePosition(ctx, t); err == nil {
		t.Position = pos
		t.EstimatedWaitTime = wait
	}
	return view
}

// MyTickets lists the caller's active tickets across all queues.
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	tickets, err := h.store.FindActiveTicketsForUser(e.Request.Context(), actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}

	views := make([]map[string]any, 0, len(tickets))
	for _, t := range tickets {
		views = append(views, h.ticketView(e.Request.Context(), t))
	}
	return successList(e, len(views), map[string]any{"tickets": views})
}

// MyTicket returns the caller's current ticket in one queue.
func (h *TicketHandler) MyTicket(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	queueID := e.Request.URL.Query().Get("queue")
	if queueID == "" {
		return apis.NewBadRequestError("Missing queue parameter", nil)
	}

	t, err := h.store.FindUserTicketInQueue(e.Request.Context(), queueID, actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	if t == nil {
		return apis.NewNotFoundError("No active ticket in this queue", nil)
	}
	return success(e, http.StatusOK, "", h.ticketView(e.Request.Context(), t))
}

// QueueTickets lists a queue's tickets for its manager, optionally
// narrowed by status.
func (h *TicketHandler) QueueTickets(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	q, err := h.store.FindQueue(ctx, e.Request.PathValue("queueId"))
	if err != nil {
		return mapLedgerError(err)
	}
	if q == nil {
		return apis.NewNotFoundError("Queue not found", nil)
	}
	if !q.ManagedBy(actor.ID, actor.Role) {
		return apis.NewForbiddenError("You do not manage this queue", nil)
	}

	var statuses []models.TicketStatus
	if raw := e.Request.URL.Query().Get("status"); raw != "" {
		st := models.TicketStatus(raw)
		if !st.Valid() {
			return apis.NewBadRequestError("Unknown ticket status", nil)
		}
		statuses = append(statuses, st)
	}

	tickets, err := h.store.FindTicketsByQueue(ctx, q.ID, statuses...)
	if err != nil {
		return mapLedgerError(err)
	}

	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(tickets) {
			tickets = tickets[:limit]
		}
	}
	return successList(e, len(tickets), map[string]any{"tickets": tickets})
}

// Get returns a single ticket to its owner or the queue manager.
func (h *TicketHandler) Get(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	t, err := h.store.FindTicket(ctx, e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if t == nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}

	if t.UserID != actor.ID {
		q, err := h.store.FindQueue(ctx, t.QueueID)
		if err != nil {
			return mapLedgerError(err)
		}
		if q == nil || !q.ManagedBy(actor.ID, actor.Role) {
			return apis.NewForbiddenError("Not your ticket", nil)
		}
	}
	return success(e, http.StatusOK, "", h.ticketView(e.Request.Context(), t))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus moves a ticket through the status machine on behalf of the
// queue manager.
func (h *TicketHandler) UpdateStatus(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	req := updateStatusRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	next := models.TicketStatus(req.Status)
	if !next.Valid() {
		return apis.NewBadRequestError("Unknown ticket status", nil)
	}

	t, err := h.ledger.UpdateStatus(e.Request.Context(), e.Request.PathValue("id"), actor, next)
	if err != nil {
		monitoring.RecordTicketOperation("update_status", "error")
		return mapLedgerError(err)
	}
	monitoring.RecordTicketOperation("update_status", "ok")
	h.stats.Invalidate(e.Request.Context(), t.QueueID)

	return success(e, http.StatusOK, "Ticket updated", map[string]any{"ticket": t})
}

// Cancel lets the owner or queue manager cancel an active ticket.
func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	t, err := h.store.FindTicket(ctx, e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if t == nil {
		return apis.NewNotFoundError("Ticket not found", nil)
	}

	if err := h.ledger.Cancel(ctx, t.ID, actor); err != nil {
		monitoring.RecordTicketOperation("cancel", "error")
		return mapLedgerError(err)
	}
	monitoring.RecordTicketOperation("cancel", "ok")
	h.stats.Invalidate(ctx, t.QueueID)

	return success(e, http.StatusOK, "Ticket cancelled", nil)
}
