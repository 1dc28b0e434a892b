package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsmart/internal/ledger"
	"qsmart/models"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	return apiErr.Status
}

func TestMapLedgerErrorStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"queue not found", ledger.ErrQueueNotFound, http.StatusNotFound},
		{"ticket not found", ledger.ErrTicketNotFound, http.StatusNotFound},
		{"inactive queue", ledger.ErrQueueInactive, http.StatusBadRequest},
		{"duplicate ticket", ledger.ErrDuplicateActiveTicket, http.StatusBadRequest},
		{"full queue", ledger.ErrQueueFull, http.StatusBadRequest},
		{"nothing waiting", ledger.ErrNoWaitingTickets, http.StatusBadRequest},
		{"bad transition", &ledger.TransitionError{From: models.StatusCompleted, To: models.StatusCalled}, http.StatusBadRequest},
		{"unauthorized", ledger.ErrUnauthorized, http.StatusForbidden},
		{"storage failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusOf(t, mapLedgerError(tc.err)))
		})
	}
}

func TestMapLedgerErrorHidesStorageDetail(t *testing.T) {
	err := mapLedgerError(errors.New("dial tcp 10.0.0.5: connection refused"))

	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.NotContains(t, apiErr.Message, "10.0.0.5")
}

func TestMapLedgerErrorWrappedSentinels(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ledger.ErrQueueFull)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, mapLedgerError(wrapped)))
}
