package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qsmart/internal/store"
	"qsmart/models"
)

// AdminHandler serves the platform-wide admin dashboard: global counters,
// distribution breakdowns and user management.
type AdminHandler struct {
	store *store.Store
}

func NewAdminHandler(st *store.Store) *AdminHandler {
	return &AdminHandler{store: st}
}

type distributionRow struct {
	Key   string `db:"key"`
	Total int    `db:"total"`
}

func (h *AdminHandler) distribution(app core.App, query string) (map[string]int, error) {
	var rows []distributionRow
	if err := app.DB().NewQuery(query).All(&rows); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Total
	}
	return out, nil
}

// Stats returns the platform overview counters and per-role / per-status
// distributions.
func (h *AdminHandler) Stats(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleAdmin); err != nil {
		return err
	}

	totalUsers, err := e.App.CountRecords(store.CollectionUsers, dbx.NewExp("1=1"))
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}
	totalQueues, err := e.App.CountRecords(store.CollectionQueues, dbx.NewExp("1=1"))
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}
	totalTickets, err := e.App.CountRecords(store.CollectionTickets, dbx.NewExp("1=1"))
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}
	activeTickets, err := e.App.CountRecords(store.CollectionTickets,
		dbx.Not(dbx.HashExp{"status": string(models.StatusCompleted)}))
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}

	usersByRole, err := h.distribution(e.App,
		"SELECT role AS key, COUNT(*) AS total FROM users GROUP BY role")
	if err != nil {
		slog.Error("role distribution query failed", "error", err)
		return apis.NewInternalServerError("Something went wrong", nil)
	}
	ticketsByStatus, err := h.distribution(e.App,
		"SELECT status AS key, COUNT(*) AS total FROM tickets GROUP BY status")
	if err != nil {
		slog.Error("status distribution query failed", "error", err)
		return apis.NewInternalServerError("Something went wrong", nil)
	}

	return success(e, http.StatusOK, "", map[string]any{
		"stats": map[string]any{
			"totalUsers":      totalUsers,
			"totalQueues":     totalQueues,
			"totalTickets":    totalTickets,
			"activeTickets":   activeTickets,
			"usersByRole":     usersByRole,
			"ticketsByStatus": ticketsByStatus,
		},
	})
}

// userView strips an auth record down to the fields the dashboard shows.
func userView(r *core.Record) map[string]any {
	return map[string]any{
		"id":        r.Id,
		"email":     r.Email(),
		"name":      r.GetString("name"),
		"role":      r.GetString("role"),
		"phone":     r.GetString("phone"),
		"studentId": r.GetString("student_id"),
		"grade":     r.GetString("grade"),
		"created":   r.GetDateTime("created"),
	}
}

func (h *AdminHandler) ListUsers(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleAdmin); err != nil {
		return err
	}

	filter := "1=1"
	params := dbx.Params{}
	if role := e.Request.URL.Query().Get("role"); role != "" {
		if !models.ValidRole(role) {
			return apis.NewBadRequestError("Unknown role", nil)
		}
		filter = "role = {:role}"
		params["role"] = role
	}

	records, err := e.App.FindRecordsByFilter(store.CollectionUsers, filter, "-created", 200, 0, params)
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}

	users := make([]map[string]any, len(records))
	for i, r := range records {
		users[i] = userView(r)
	}
	return successList(e, len(users), map[string]any{"users": users})
}

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
	StudentID string `json:"studentId"`
	Grade     string `json:"grade"`
}

func (h *AdminHandler) CreateUser(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleAdmin); err != nil {
		return err
	}

	req := createUserRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.Email == "" || req.Password == "" {
		return apis.NewBadRequestError("Email and password are required", nil)
	}
	if !models.ValidRole(req.Role) {
		return apis.NewBadRequestError("Unknown role", nil)
	}

	collection, err := e.App.FindCollectionByNameOrId(store.CollectionUsers)
	if err != nil {
		return apis.NewInternalServerError("Something went wrong", nil)
	}

	record := core.NewRecord(collection)
	record.SetEmail(req.Email)
	record.SetPassword(req.Password)
	record.SetVerified(true)
	record.Set("name", req.Name)
	record.Set("role", req.Role)
	record.Set("phone", req.Phone)
	record.Set("student_id", req.StudentID)
	record.Set("grade", req.Grade)

	if err := e.App.Save(record); err != nil {
		return apis.NewBadRequestError("Could not create user", err)
	}

	slog.Info("user created by admin", "user", record.Id, "role", req.Role)
	return success(e, http.StatusCreated, "User created", map[string]any{"user": userView(record)})
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Role  *string `json:"role"`
	Phone *string `json:"phone"`
	Grade *string `json:"grade"`
}

func (h *AdminHandler) UpdateUser(e *core.RequestEvent) error {
	if _, err := requireRole(e, models.RoleAdmin); err != nil {
		return err
	}

	record, err := e.App.FindRecordById(store.CollectionUsers, e.Request.PathValue("id"))
	if err != nil {
		return apis.NewNotFoundError("User not found", nil)
	}

	req := updateUserRequest{}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	if req.Role != nil {
		if !models.ValidRole(*req.Role) {
			return apis.NewBadRequestError("Unknown role", nil)
		}
		record.Set("role", *req.Role)
	}
	if req.Name != nil {
		record.Set("name", *req.Name)
	}
	if req.Phone != nil {
		record.Set("phone", *req.Phone)
	}
	if req.Grade != nil {
		record.Set("grade", *req.Grade)
	}

	if err := e.App.Save(record); err != nil {
		return apis.NewBadRequestError("Could not update user", err)
	}
	return success(e, http.StatusOK, "User updated", map[string]any{"user": userView(record)})
}
