package models

import (
	"time"
)

// QueueSettings carries per-queue tunables. Zero values are replaced with
// the configured defaults when the queue is created.
type QueueSettings struct {
	MeetingDuration int  `json:"meeting_duration"` // minutes
	MaxQueueLength  int  `json:"max_queue_length"`
	AutoCallNext    bool `json:"auto_call_next"`
}

type Queue struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	ServiceTypeID   string        `json:"service_type_id"`
	Location        string        `json:"location"`
	CurrentTicket   int           `json:"current_ticket"`
	AverageWaitTime int           `json:"average_wait_time"` // minutes per ticket
	IsActive        bool          `json:"is_active"`
	AdminID         string        `json:"admin_id"`
	Settings        QueueSettings `json:"settings"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ManagedBy reports whether the given user may call/update tickets in this
// queue: the owning admin/teacher, or any user with the admin role.
func (q *Queue) ManagedBy(userID, role string) bool {
	return q.AdminID == userID || role == RoleAdmin
}

// QueueStats is the live counter block attached to queue list/detail
// responses.
type QueueStats struct {
	Waiting        int `json:"waiting"`
	Called         int `json:"called"`
	CompletedToday int `json:"completed_today"`
	TotalActive    int `json:"total_active"`
}
