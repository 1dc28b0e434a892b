package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"qsmart/internal/services"
	"qsmart/models"
)

// AnalyticsHandler serves the per-role dashboard summaries.
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(an *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: an}
}

// Teacher returns the per-queue overview for the authenticated teacher.
func (h *AnalyticsHandler) Teacher(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleTeacher, models.RoleAdmin)
	if err != nil {
		return err
	}

	overview, err := h.analytics.TeacherOverview(e.Request.Context(), actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	return success(e, http.StatusOK, "", map[string]any{"overview": overview})
}

// Student returns the caller's own ticket summary.
func (h *AnalyticsHandler) Student(e *core.RequestEvent) error {
	actor, err := actorFrom(e)
	if err != nil {
		return err
	}

	summary, err := h.analytics.UserSummary(e.Request.Context(), actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	return success(e, http.StatusOK, "", map[string]any{"summary": summary})
}

// Parent returns the summary of tickets the parent opened for children.
func (h *AnalyticsHandler) Parent(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleParent)
	if err != nil {
		return err
	}

	summary, err := h.analytics.ParentSummary(e.Request.Context(), actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	return success(e, http.StatusOK, "", map[string]any{"summary": summary})
}
