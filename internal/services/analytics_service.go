package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"qsmart/internal/store"
	"qsmart/models"
)

// AnalyticsService answers the dashboard aggregation queries with SQL over
// the tickets collection.
type AnalyticsService struct {
	app   core.App
	store *store.Store
}

func NewAnalyticsService(app core.App, st *store.Store) *AnalyticsService {
	return &AnalyticsService{app: app, store: st}
}

// QueueAnalytics is the per-queue block on the manager dashboard.
type QueueAnalytics struct {
	TotalTickets    int  `json:"total_tickets"`
	CompletedToday  int  `json:"completed_today"`
	AverageWaitTime int  `json:"average_wait_time"` // minutes, actual when measurable
	PeakHour        *int `json:"peak_hour"`         // hour of day with most joins
	CurrentWaiting  int  `json:"current_waiting"`
	Efficiency      int  `json:"efficiency"` // percent completed of completed+waiting
}

// StatusSummary buckets ticket counts the way the role dashboards group
// them.
type StatusSummary struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// QueueSummary is one row of the teacher overview.
type QueueSummary struct {
	Name string `json:"name"`
	StatusSummary
}

// TeacherOverview aggregates a teacher's queues.
type TeacherOverview struct {
	TotalQueues      int                      `json:"total_queues"`
	PendingTickets   int                      `json:"pending_tickets"`
	CompletedTickets int                      `json:"completed_tickets"`
	PerQueue         map[string]*QueueSummary `json:"per_queue"`
}

func (s *AnalyticsService) QueueAnalytics(ctx context.Context, q *models.Queue) (*QueueAnalytics, error) {
	stats, err := s.store.QueueStats(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	var total int
	err = s.app.DB().
		NewQuery("SELECT COUNT(*) FROM tickets WHERE queue = {:queue}").
		Bind(dbx.Params{"queue": q.ID}).
		Row(&total)
	if err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}

	// Actual wait is the span between joining and being called, in
	// minutes, averaged over completed tickets. Falls back to the queue's
	// configured estimate when nothing completed yet.
	var avgWait sql.NullFloat64
	err = s.app.DB().
		NewQuery(`SELECT AVG((julianday(called_at) - julianday(created)) * 1440)
			FROM tickets
			WHERE queue = {:queue} AND status = 'completed' AND called_at != ''`).
		Bind(dbx.Params{"queue": q.ID}).
		Row(&avgWait)
	if err != nil {
		return nil, fmt.Errorf("average wait: %w", err)
	}
	averageWait := q.AverageWaitTime
	if avgWait.Valid {
		averageWait = int(decimal.NewFromFloat(avgWait.Float64).Round(0).IntPart())
	}

	var peak struct {
		Hour  int `db:"hour"`
		Total int `db:"total"`
	}
	var peakHour *int
	err = s.app.DB().
		NewQuery(`SELECT CAST(strftime('%H', created) AS INTEGER) AS hour, COUNT(*) AS total
			FROM tickets
			WHERE queue = {:queue}
			GROUP BY hour
			ORDER BY total DESC
			LIMIT 1`).
		Bind(dbx.Params{"queue": q.ID}).
		One(&peak)
	switch err {
	case nil:
		peakHour = &peak.Hour
	case sql.ErrNoRows:
		// no tickets yet
	default:
		return nil, fmt.Errorf("peak hour: %w", err)
	}

	efficiency := 0
	if stats.CompletedToday > 0 {
		efficiency = int(decimal.NewFromInt(int64(stats.CompletedToday * 100)).
			Div(decimal.NewFromInt(int64(stats.CompletedToday + stats.Waiting))).
			Round(0).IntPart())
	}

	return &QueueAnalytics{
		TotalTickets:    total,
		CompletedToday:  stats.CompletedToday,
		AverageWaitTime: averageWait,
		PeakHour:        peakHour,
		CurrentWaiting:  stats.Waiting,
		Efficiency:      efficiency,
	}, nil
}

type statusCount struct {
	Status string `db:"status"`
	Total  int    `db:"total"`
}

// summarizeStatusCounts folds raw status counts into dashboard buckets:
// waiting → pending, called/in-progress → in progress.
func summarizeStatusCounts(counts []statusCount) *StatusSummary {
	summary := &StatusSummary{}
	for _, c := range counts {
		switch models.TicketStatus(c.Status) {
		case models.StatusWaiting:
			summary.Pending += c.Total
		case models.StatusCalled, models.StatusInProgress:
			summary.InProgress += c.Total
		case models.StatusCompleted:
			summary.Completed += c.Total
		}
		summary.Total += c.Total
	}
	return summary
}

// UserSummary buckets all tickets ever held by the user.
func (s *AnalyticsService) UserSummary(ctx context.Context, userID string) (*StatusSummary, error) {
	var counts []statusCount
	err := s.app.DB().
		NewQuery(`SELECT status, COUNT(*) AS total FROM tickets WHERE user = {:user} GROUP BY status`).
		Bind(dbx.Params{"user": userID}).
		All(&counts)
	if err != nil {
		return nil, fmt.Errorf("user summary: %w", err)
	}
	return summarizeStatusCounts(counts), nil
}

// ParentSummary buckets the tickets a parent joined on behalf of children,
// i.e. the parent's tickets carrying a student snapshot.
func (s *AnalyticsService) ParentSummary(ctx context.Context, parentID string) (*StatusSummary, error) {
	var counts []statusCount
	err := s.app.DB().
		NewQuery(`SELECT status, COUNT(*) AS total
			FROM tickets
			WHERE user = {:user} AND student_info != '' AND student_info != 'null'
			GROUP BY status`).
		Bind(dbx.Params{"user": parentID}).
		All(&counts)
	if err != nil {
		return nil, fmt.Errorf("parent summary: %w", err)
	}
	return summarizeStatusCounts(counts), nil
}

// TeacherOverview aggregates ticket counts across all queues the teacher
// administers.
func (s *AnalyticsService) TeacherOverview(ctx context.Context, teacherID string) (*TeacherOverview, error) {
	queues, err := s.store.ListQueues(ctx, store.QueueFilter{AdminID: teacherID})
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}

	overview := &TeacherOverview{
		TotalQueues: len(queues),
		PerQueue:    make(map[string]*QueueSummary, len(queues)),
	}
	for _, q := range queues {
		overview.PerQueue[q.ID] = &QueueSummary{Name: q.Name}
	}
	if len(queues) == 0 {
		return overview, nil
	}

	var rows []struct {
		Queue  string `db:"queue"`
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	err = s.app.DB().
		NewQuery(`SELECT t.queue AS queue, t.status AS status, COUNT(*) AS total
			FROM tickets t
			JOIN queues q ON q.id = t.queue
			WHERE q.admin = {:admin}
			GROUP BY t.queue, t.status`).
		Bind(dbx.Params{"admin": teacherID}).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("teacher overview: %w", err)
	}

	for _, row := range rows {
		qs, ok := overview.PerQueue[row.Queue]
		if !ok {
			continue
		}
		switch models.TicketStatus(row.Status) {
		case models.StatusWaiting:
			qs.Pending += row.Total
		case models.StatusCalled, models.StatusInProgress:
			qs.InProgress += row.Total
		case models.StatusCompleted:
			qs.Completed += row.Total
		}
		qs.Total += row.Total
	}

	for _, qs := range overview.PerQueue {
		overview.PendingTickets += qs.Pending
		overview.CompletedTickets += qs.Completed
	}
	return overview, nil
}
