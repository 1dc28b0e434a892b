package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qsmart/config"
	"qsmart/internal/ledger"
	"qsmart/internal/notifier"
	"qsmart/internal/services"
	"qsmart/internal/store"
	"qsmart/models"
	"qsmart/monitoring"
)

type QueueHandler struct {
	store      *store.Store
	ledger     *ledger.Ledger
	stats      *services.StatsCache
	analytics  *services.AnalyticsService
	dispatcher *notifier.Dispatcher
	cfg        *config.Config
}

func NewQueueHandler(st *store.Store, l *ledger.Ledger, stats *services.StatsCache, an *services.AnalyticsService, d *notifier.Dispatcher, cfg *config.Config) *QueueHandler {
	return &QueueHandler{store: st, ledger: l, stats: stats, analytics: an, dispatcher: d, cfg: cfg}
}

type createQueueRequest struct {
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	Location        string                `json:"location"`
	ServiceType     string                `json:"serviceType"` // id or name
	AverageWaitTime int                   `json:"averageWaitTime"`
	IsActive        *bool                 `json:"isActive"`
	Settings        *queueSettingsPayload `json:"settings"`
}

type queueSettingsPayload struct {
	MeetingDuration *int  `json:"meetingDuration"`
	MaxQueueLength  *int  `json:"maxQueueLength"`
	AutoCallNext    *bool `json:"autoCallNext"`
}

type updateQueueRequest struct {
	Name            *string               `json:"name"`
	Description     *string               `json:"description"`
	Location        *string               `json:"location"`
	AverageWaitTime *int                  `json:"averageWaitTime"`
	IsActive        *bool                 `json:"isActive"`
	Settings        *queueSettingsPayload `json:"settings"`
}

// queueView is the queue plus its live counters.
func (h *QueueHandler) queueView(e *core.RequestEvent, q *models.Queue) map[string]any {
	view := map[string]any{"queue": q}
	if stats, err := h.stats.QueueStats(e.Request.Context(), q.ID); err == nil {
		view["stats"] = stats
	} else {
		slog.Warn("queue stats unavailable", "queue", q.ID, "error", err)
	}
	return view
}

// List returns queues, optionally narrowed by service type, category or
// active flag.
func (h *QueueHandler) List(e *core.RequestEvent) error {
	if _, err := actorFrom(e); err != nil {
		return err
	}

	ctx := e.Request.Context()
	filter := store.QueueFilter{}

	if v := e.Request.URL.Query().Get("isActive"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	if v := e.Request.URL.Query().Get("serviceType"); v != "" {
		filter.ServiceTypeID = v
	}

	queues, err := h.store.ListQueues(ctx, filter)
	if err != nil {
		return mapLedgerError(err)
	}

	// Category filtering goes through the service type table.
	if category := e.Request.URL.Query().Get("category"); category != "" {
		allowed := map[string]bool{}
		types, err := h.store.ListServiceTypes(ctx, false)
		if err != nil {
			return mapLedgerError(err)
		}
		for _, st := range types {
			if st.Category == category {
				allowed[st.ID] = true
			}
		}
		filtered := queues[:0]
		for _, q := range queues {
			if allowed[q.ServiceTypeID] {
				filtered = append(filtered, q)
			}
		}
		queues = filtered
	}

	views := make([]map[string]any, 0, len(queues))
	for _, q := range queues {
		views = append(views, h.queueView(e, q))
	}
	return successList(e, len(views), map[string]any{"queues": views})
}

// MyQueues returns the queues owned by the authenticated teacher or admin.
func (h *QueueHandler) MyQueues(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	queues, err := h.store.ListQueues(e.Request.Context(), store.QueueFilter{AdminID: actor.ID})
	if err != nil {
		return mapLedgerError(err)
	}

	views := make([]map[string]any, 0, len(queues))
	for _, q := range queues {
		views = append(views, h.queueView(e, q))
	}
	return successList(e, len(views), map[string]any{"queues": views})
}

func (h *QueueHandler) Get(e *core.RequestEvent) error {
	if _, err := actorFrom(e); err != nil {
		return err
	}

	q, err := h.store.FindQueue(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if q == nil {
		return apis.NewNotFoundError("Queue not found", nil)
	}
	return success(e, http.StatusOK, "", h.queueView(e, q))
}

func (h *QueueHandler) Create(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	req := createQueueRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Name == "" {
		return apis.NewBadRequestError("Queue name is required", nil)
	}
	if req.ServiceType == "" {
		return apis.NewBadRequestError("Service type is required", nil)
	}

	ctx := e.Request.Context()
	st, err := h.resolveServiceType(e, req.ServiceType)
	if err != nil {
		return err
	}

	q := &models.Queue{
		Name:            req.Name,
		Description:     req.Description,
		Location:        req.Location,
		ServiceTypeID:   st.ID,
		AverageWaitTime: req.AverageWaitTime,
		IsActive:        true,
		AdminID:         actor.ID,
		Settings: models.QueueSettings{
			MeetingDuration: h.cfg.DefaultMeetingDuration,
			MaxQueueLength:  h.cfg.DefaultMaxQueueLength,
			AutoCallNext:    false,
		},
	}
	if q.AverageWaitTime <= 0 {
		q.AverageWaitTime = h.cfg.DefaultAverageWaitTime
	}
	if req.IsActive != nil {
		q.IsActive = *req.IsActive
	}
	applySettings(&q.Settings, req.Settings)

	if err := h.store.SaveQueue(ctx, q); err != nil {
		return mapLedgerError(err)
	}

	slog.Info("queue created", "queue", q.ID, "name", q.Name, "admin", actor.ID)
	return success(e, http.StatusCreated, "Queue created", map[string]any{"queue": q})
}

// resolveServiceType accepts an id or a name. Unknown names are created on
// the fly under the "other" category so queue creation never blocks on a
// missing lookup row.
func (h *QueueHandler) resolveServiceType(e *core.RequestEvent, ref string) (*models.ServiceType, error) {
	ctx := e.Request.Context()

	st, err := h.store.FindServiceType(ctx, ref)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if st != nil {
		return st, nil
	}

	st, err = h.store.FindServiceTypeByName(ctx, ref)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	if st != nil {
		return st, nil
	}

	st = &models.ServiceType{Name: ref, Category: models.CategoryOther, IsActive: true}
	if err := h.store.SaveServiceType(ctx, st); err != nil {
		return nil, mapLedgerError(err)
	}
	slog.Info("service type auto created", "name", ref, "id", st.ID)
	return st, nil
}

func applySettings(dst *models.QueueSettings, src *queueSettingsPayload) {
	if src == nil {
		return
	}
	if src.MeetingDuration != nil && *src.MeetingDuration > 0 {
		dst.MeetingDuration = *src.MeetingDuration
	}
	if src.MaxQueueLength != nil && *src.MaxQueueLength > 0 {
		dst.MaxQueueLength = *src.MaxQueueLength
	}
	if src.AutoCallNext != nil {
		dst.AutoCallNext = *src.AutoCallNext
	}
}

func (h *QueueHandler) Update(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	q, err := h.store.FindQueue(ctx, e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if q == nil {
		return apis.NewNotFoundError("Queue not found", nil)
	}
	if !q.ManagedBy(actor.ID, actor.Role) {
		return apis.NewForbiddenError("You do not manage this queue", nil)
	}

	req := updateQueueRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	if req.Name != nil {
		q.Name = *req.Name
	}
	if req.Description != nil {
		q.Description = *req.Description
	}
	if req.Location != nil {
		q.Location = *req.Location
	}
	if req.AverageWaitTime != nil && *req.AverageWaitTime > 0 {
		q.AverageWaitTime = *req.AverageWaitTime
	}
	if req.IsActive != nil {
		q.IsActive = *req.IsActive
	}
	applySettings(&q.Settings, req.Settings)

	if err := h.store.SaveQueue(ctx, q); err != nil {
		return mapLedgerError(err)
	}

	h.dispatcher.Emit(ledger.Event{
		Name:    ledger.EventQueueUpdated,
		QueueID: q.ID,
		Queue:   q,
		At:      time.Now(),
	})
	return success(e, http.StatusOK, "Queue updated", map[string]any{"queue": q})
}

// Delete removes a queue that has no active tickets. Finished tickets are
// removed with it by the relation cascade.
func (h *QueueHandler) Delete(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	q, err := h.store.FindQueue(ctx, e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if q == nil {
		return apis.NewNotFoundError("Queue not found", nil)
	}
	if !q.ManagedBy(actor.ID, actor.Role) {
		return apis.NewForbiddenError("You do not manage this queue", nil)
	}

	stats, err := h.store.QueueStats(ctx, q.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	if stats.TotalActive > 0 {
		return apis.NewBadRequestError("Queue still has active tickets", nil)
	}

	if err := h.store.DeleteQueue(ctx, q); err != nil {
		return mapLedgerError(err)
	}
	h.stats.Invalidate(ctx, q.ID)

	slog.Info("queue deleted", "queue", q.ID, "admin", actor.ID)
	return success(e, http.StatusOK, "Queue deleted", nil)
}

type joinRequest struct {
	StudentInfo *models.StudentInfo `json:"studentInfo"`
}

func (h *QueueHandler) Join(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	// The body is optional: only parents joining on behalf of a child
	// send student info.
	req := joinRequest{}
	if err := e.BindBody(&req); err != nil {
		req.StudentInfo = nil
	}

	t, err := h.ledger.Join(e.Request.Context(), e.Request.PathValue("id"), actor, req.StudentInfo)
	if err != nil {
		monitoring.RecordTicketOperation("join", "error")
		return mapLedgerError(err)
	}
	monitoring.RecordTicketOperation("join", "ok")
	h.stats.Invalidate(e.Request.Context(), t.QueueID)

	return success(e, http.StatusCreated, "Joined queue", map[string]any{"ticket": t})
}

func (h *QueueHandler) CallNext(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	queueID := e.Request.PathValue("id")
	t, err := h.ledger.CallNext(e.Request.Context(), queueID, actor)
	if err != nil {
		monitoring.RecordTicketOperation("call_next", "error")
		return mapLedgerError(err)
	}
	monitoring.RecordTicketOperation("call_next", "ok")
	h.stats.Invalidate(e.Request.Context(), queueID)

	return success(e, http.StatusOK, "Ticket called", map[string]any{"ticket": t})
}

func (h *QueueHandler) Analytics(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	ctx := e.Request.Context()
	q, err := h.store.FindQueue(ctx, e.Request.PathValue("id"))
	if err != nil {
		return mapLedgerError(err)
	}
	if q == nil {
		return apis.NewNotFoundError("Queue not found", nil)
	}
	if !q.ManagedBy(actor.ID, actor.Role) {
		return apis.NewForbiddenError("You do not manage this queue", nil)
	}

	report, err := h.analytics.QueueAnalytics(ctx, q)
	if err != nil {
		return mapLedgerError(err)
	}
	return success(e, http.StatusOK, "", map[string]any{"analytics": report})
}

// ServiceTypes lists the active service types for queue creation forms.
func (h *QueueHandler) ServiceTypes(e *core.RequestEvent) error {
	if _, err := actorFrom(e); err != nil {
		return err
	}

	types, err := h.store.ListServiceTypes(e.Request.Context(), true)
	if err != nil {
		return mapLedgerError(err)
	}
	return successList(e, len(types), map[string]any{"serviceTypes": types})
}
