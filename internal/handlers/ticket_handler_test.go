package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"qsmart/models"
)

type fakePositions struct {
	position int
	wait     int
	ok       bool
	calls    int
}

func (f *fakePositions) CachedPosition(ctx context.Context, queueID, userID string) (int, int, bool) {
	f.calls++
	return f.position, f.wait, f.ok
}

func TestTicketViewPrefersCachedPosition(t *testing.T) {
	positions := &fakePositions{position: 3, wait: 30, ok: true}
	// No ledger: a cache hit must never fall through to a recompute.
	h := NewTicketHandler(nil, nil, nil, positions)

	ticket := &models.Ticket{
		ID:      "t1",
		QueueID: "queue1",
		UserID:  "student1",
		Status:  models.StatusWaiting,
	}
	view := h.ticketView(context.Background(), ticket)

	assert.Equal(t, 1, positions.calls)
	assert.Equal(t, 3, ticket.Position)
	assert.Equal(t, 30, ticket.EstimatedWaitTime)
	assert.Same(t, ticket, view["ticket"])
}

func TestTicketViewLeavesNonWaitingAlone(t *testing.T) {
	positions := &fakePositions{position: 9, wait: 90, ok: true}
	h := NewTicketHandler(nil, nil, nil, positions)

	ticket := &models.Ticket{Status: models.StatusCalled, Position: 1}
	h.ticketView(context.Background(), ticket)

	assert.Equal(t, 0, positions.calls)
	assert.Equal(t, 1, ticket.Position)
}
