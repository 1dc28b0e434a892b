package store

import (
	"log/slog"

	"github.com/pocketbase/pocketbase/core"

	"qsmart/models"
)

// Collection names.
const (
	CollectionQueues       = "queues"
	CollectionTickets      = "tickets"
	CollectionServiceTypes = "service_types"
	CollectionUsers        = "users"
)

func queueFromRecord(r *core.Record) *models.Queue {
	return &models.Queue{
		ID:              r.Id,
		Name:            r.GetString("name"),
		Description:     r.GetString("description"),
		ServiceTypeID:   r.GetString("service_type"),
		Location:        r.GetString("location"),
		CurrentTicket:   r.GetInt("current_ticket"),
		AverageWaitTime: r.GetInt("average_wait_time"),
		IsActive:        r.GetBool("is_active"),
		AdminID:         r.GetString("admin"),
		Settings: models.QueueSettings{
			MeetingDuration: r.GetInt("meeting_duration"),
			MaxQueueLength:  r.GetInt("max_queue_length"),
			AutoCallNext:    r.GetBool("auto_call_next"),
		},
		CreatedAt: r.GetDateTime("created").Time(),
		UpdatedAt: r.GetDateTime("updated").Time(),
	}
}

func applyQueue(r *core.Record, q *models.Queue) {
	r.Set("name", q.Name)
	r.Set("description", q.Description)
	r.Set("service_type", q.ServiceTypeID)
	r.Set("location", q.Location)
	r.Set("current_ticket", q.CurrentTicket)
	r.Set("average_wait_time", q.AverageWaitTime)
	r.Set("is_active", q.IsActive)
	r.Set("admin", q.AdminID)
	r.Set("meeting_duration", q.Settings.MeetingDuration)
	r.Set("max_queue_length", q.Settings.MaxQueueLength)
	r.Set("auto_call_next", q.Settings.AutoCallNext)
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:                r.Id,
		TicketNumber:      r.GetInt("ticket_number"),
		Code:              r.GetString("code"),
		QueueID:           r.GetString("queue"),
		UserID:            r.GetString("user"),
		Status:            models.TicketStatus(r.GetString("status")),
		Position:          r.GetInt("position"),
		EstimatedWaitTime: r.GetInt("estimated_wait_time"),
		CreatedAt:         r.GetDateTime("created").Time(),
	}
	if v := r.GetDateTime("called_at"); !v.IsZero() {
		at := v.Time()
		t.CalledAt = &at
	}
	if v := r.GetDateTime("completed_at"); !v.IsZero() {
		at := v.Time()
		t.CompletedAt = &at
	}
	var info models.StudentInfo
	if err := r.UnmarshalJSONField("student_info", &info); err == nil && info != (models.StudentInfo{}) {
		t.StudentInfo = &info
	} else if err != nil {
		slog.Debug("unreadable student_info snapshot", "ticket", r.Id, "error", err)
	}
	return t
}

func applyTicket(r *core.Record, t *models.Ticket) {
	r.Set("ticket_number", t.TicketNumber)
	r.Set("code", t.Code)
	r.Set("queue", t.QueueID)
	r.Set("user", t.UserID)
	r.Set("status", string(t.Status))
	r.Set("position", t.Position)
	r.Set("estimated_wait_time", t.EstimatedWaitTime)
	if t.CalledAt != nil {
		r.Set("called_at", *t.CalledAt)
	}
	if t.CompletedAt != nil {
		r.Set("completed_at", *t.CompletedAt)
	}
	if t.StudentInfo != nil {
		r.Set("student_info", t.StudentInfo)
	}
}

func serviceTypeFromRecord(r *core.Record) *models.ServiceType {
	return &models.ServiceType{
		ID:              r.Id,
		Name:            r.GetString("name"),
		Description:     r.GetString("description"),
		Category:        r.GetString("category"),
		DefaultDuration: r.GetInt("default_duration"),
		IsActive:        r.GetBool("is_active"),
		Icon:            r.GetString("icon"),
		CreatedByID:     r.GetString("created_by"),
		CreatedAt:       r.GetDateTime("created").Time(),
	}
}
