// Package handlers is the HTTP layer: request binding, role gates and the
// mechanical mapping of ledger errors to status codes. Business rules live
// in the ledger.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"qsmart/internal/ledger"
)

// envelope is the response shape the dashboards expect.
type envelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Results int            `json:"results,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func success(e *core.RequestEvent, code int, message string, data map[string]any) error {
	return e.JSON(code, envelope{Status: "success", Message: message, Data: data})
}

func successList(e *core.RequestEvent, results int, data map[string]any) error {
	return e.JSON(http.StatusOK, envelope{Status: "success", Results: results, Data: data})
}

// actorFrom builds the ledger actor from the authenticated record.
func actorFrom(e *core.RequestEvent) (ledger.Actor, error) {
	if e.Auth == nil {
		return ledger.Actor{}, apis.NewUnauthorizedError("Authentication required", nil)
	}
	return ledger.Actor{ID: e.Auth.Id, Role: e.Auth.GetString("role")}, nil
}

// requireRole rejects callers whose role is not in the allowed set.
func requireRole(e *core.RequestEvent, roles ...string) (ledger.Actor, error) {
	actor, err := actorFrom(e)
	if err != nil {
		return actor, err
	}
	for _, r := range roles {
		if actor.Role == r {
			return actor, nil
		}
	}
	return actor, apis.NewForbiddenError("Insufficient role", nil)
}

// mapLedgerError translates the ledger's error taxonomy to HTTP responses.
// Storage errors become a generic 500 with no business detail.
func mapLedgerError(err error) error {
	switch {
	case ledger.NotFound(err):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, ledger.ErrUnauthorized):
		return apis.NewForbiddenError(err.Error(), nil)
	case ledger.PreconditionFailed(err):
		return apis.NewBadRequestError(err.Error(), nil)
	default:
		slog.Error("ledger operation failed", "error", err)
		return apis.NewInternalServerError("Something went wrong", nil)
	}
}
