package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qsmart/internal/ledger"
	"qsmart/internal/services"
	"qsmart/internal/store"
	"qsmart/models"
)

// ParentHandler covers the parent-only surface: managing the children
// list and queueing on a child's behalf.
type ParentHandler struct {
	store  *store.Store
	ledger *ledger.Ledger
	stats  *services.StatsCache
}

func NewParentHandler(st *store.Store, l *ledger.Ledger, stats *services.StatsCache) *ParentHandler {
	return &ParentHandler{store: st, ledger: l, stats: stats}
}

func childrenOf(auth *core.Record) ([]models.Child, error) {
	var children []models.Child
	if err := auth.UnmarshalJSONField("children", &children); err != nil {
		return nil, err
	}
	return children, nil
}

func (h *ParentHandler) Children(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleParent); err != nil {
		return err
	}

	children, err := childrenOf(e.Auth)
	if err != nil {
		return apis.NewInternalServerError("Could not read children list", nil)
	}
	return successList(e, len(children), map[string]any{"children": children})
}

type addChildRequest struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
	Grade     string `json:"grade"`
}

func (h *ParentHandler) AddChild(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleParent); err != nil {
		return err
	}

	req := addChildRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Name == "" || req.StudentID == "" {
		return apis.NewBadRequestError("Child name and student id are required", nil)
	}

	children, err := childrenOf(e.Auth)
	if err != nil {
		return apis.NewInternalServerError("Could not read children list", nil)
	}
	for _, c := range children {
		if c.StudentID == req.StudentID {
			return apis.NewBadRequestError("Child with this student id already registered", nil)
		}
	}

	children = append(children, models.Child{Name: req.Name, StudentID: req.StudentID, Grade: req.Grade})
	e.Auth.Set("children", children)
	if err := e.App.Save(e.Auth); err != nil {
		slog.Error("saving children list failed", "user", e.Auth.Id, "error", err)
		return apis.NewInternalServerError("Something went wrong", nil)
	}
	return success(e, http.StatusCreated, "Child added", map[string]any{"children": children})
}

// ChildTickets lists the parent's active tickets that were opened for a
// child.
func (h *ParentHandler) ChildTickets(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleParent)
	if err != nil {
		return err
	}

	tickets, err := h.store.FindChildTickets(e.Request.Context(), actor.ID)
	if err != nil {
		return mapLedgerError(err)
	}
	return successList(e, len(tickets), map[string]any{"tickets": tickets})
}

type joinForChildRequest struct {
	StudentID string `json:"studentId"`
}

// JoinForChild puts the parent into a queue carrying the child's snapshot.
func (h *ParentHandler) JoinForChild(e *core.RequestEvent) error {
	actor, err := requireRole(e, models.RoleParent)
	if err != nil {
		return err
	}

	req := joinForChildRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.StudentID == "" {
		return apis.NewBadRequestError("Student id is required", nil)
	}

	children, err := childrenOf(e.Auth)
	if err != nil {
		return apis.NewInternalServerError("Could not read children list", nil)
	}
	var child *models.Child
	for i := range children {
		if children[i].StudentID == req.StudentID {
			child = &children[i]
			break
		}
	}
	if child == nil {
		return apis.NewNotFoundError("No registered child with this student id", nil)
	}

	info := &models.StudentInfo{Name: child.Name, Grade: child.Grade, StudentID: child.StudentID}
	t, err := h.ledger.Join(e.Request.Context(), e.Request.PathValue("id"), actor, info)
	if err != nil {
		return mapLedgerError(err)
	}
	h.stats.Invalidate(e.Request.Context(), t.QueueID)

	return success(e, http.StatusCreated, "Joined queue for child", map[string]any{"ticket": t})
}
