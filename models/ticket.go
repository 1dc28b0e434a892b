package models

import (
	"time"
)

type TicketStatus string

const (
	StatusWaiting    TicketStatus = "waiting"
	StatusCalled     TicketStatus = "called"
	StatusInProgress TicketStatus = "in-progress"
	StatusCompleted  TicketStatus = "completed"
	StatusCancelled  TicketStatus = "cancelled"
)

// validTransitions lists, per current status, the statuses a ticket may
// move to. Terminal statuses map to an empty list.
var validTransitions = map[TicketStatus][]TicketStatus{
	StatusWaiting:    {StatusCalled, StatusCancelled},
	StatusCalled:     {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func (s TicketStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether a ticket in status s may move to next.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the status counts toward the one-active-ticket-per-
// queue rule.
func (s TicketStatus) Active() bool {
	return s == StatusWaiting || s == StatusCalled
}

func (s TicketStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// StudentInfo is a point-in-time snapshot captured when the ticket is
// created. It intentionally duplicates user profile data so later profile
// edits don't rewrite history.
type StudentInfo struct {
	Name      string `json:"name"`
	Grade     string `json:"grade"`
	StudentID string `json:"student_id"`
}

type Ticket struct {
	ID                string       `json:"id"`
	TicketNumber      int          `json:"ticket_number"`
	Code              string       `json:"code"`
	QueueID           string       `json:"queue_id"`
	UserID            string       `json:"user_id"`
	Status            TicketStatus `json:"status"`
	Position          int          `json:"position"`
	EstimatedWaitTime int          `json:"estimated_wait_time"` // minutes
	StudentInfo       *StudentInfo `json:"student_info,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	CalledAt          *time.Time   `json:"called_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}
