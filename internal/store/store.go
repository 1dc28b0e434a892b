// Package store backs the ledger's persistence interface with PocketBase
// collections and adds the list/count queries the HTTP layer needs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"qsmart/models"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) FindQueue(ctx context.Context, id string) (*models.Queue, error) {
	r, err := s.app.FindRecordById(CollectionQueues, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return queueFromRecord(r), nil
}

func (s *Store) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	r, err := s.app.FindRecordById(CollectionTickets, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ticketFromRecord(r), nil
}

func (s *Store) FindTicketsByQueue(ctx context.Context, queueID string, statuses ...models.TicketStatus) ([]*models.Ticket, error) {
	filter := "queue = {:queue}"
	params := dbx.Params{"queue": queueID}
	if len(statuses) > 0 {
		clauses := make([]string, len(statuses))
		for i, st := range statuses {
			key := fmt.Sprintf("status%d", i)
			clauses[i] = fmt.Sprintf("status = {:%s}", key)
			params[key] = string(st)
		}
		filter += " && (" + strings.Join(clauses, " || ") + ")"
	}

	records, err := s.app.FindRecordsByFilter(CollectionTickets, filter, "ticket_number", 0, 0, params)
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.Ticket, len(records))
	for i, r := range records {
		tickets[i] = ticketFromRecord(r)
	}
	return tickets, nil
}

func (s *Store) FindActiveTicket(ctx context.Context, queueID, userID string) (*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"queue = {:queue} && user = {:user} && (status = 'waiting' || status = 'called')",
		"ticket_number",
		1,
		0,
		dbx.Params{"queue": queueID, "user": userID},
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return ticketFromRecord(records[0]), nil
}

func (s *Store) CountTickets(ctx context.Context, queueID string, status models.TicketStatus) (int, error) {
	total, err := s.app.CountRecords(CollectionTickets, dbx.HashExp{
		"queue":  queueID,
		"status": string(status),
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s *Store) HighestTicketNumber(ctx context.Context, queueID string) (int, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"queue = {:queue}",
		"-ticket_number",
		1,
		0,
		dbx.Params{"queue": queueID},
	)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return records[0].GetInt("ticket_number"), nil
}

func (s *Store) SaveTicket(ctx context.Context, t *models.Ticket) error {
	var r *core.Record
	if t.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(CollectionTickets)
		if err != nil {
			return err
		}
		r = core.NewRecord(collection)
	} else {
		var err error
		if r, err = s.app.FindRecordById(CollectionTickets, t.ID); err != nil {
			return err
		}
	}

	applyTicket(r, t)
	if err := s.app.SaveWithContext(ctx, r); err != nil {
		return err
	}
	t.ID = r.Id
	t.CreatedAt = r.GetDateTime("created").Time()
	return nil
}

func (s *Store) SaveQueue(ctx context.Context, q *models.Queue) error {
	var r *core.Record
	if q.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(CollectionQueues)
		if err != nil {
			return err
		}
		r = core.NewRecord(collection)
	} else {
		var err error
		if r, err = s.app.FindRecordById(CollectionQueues, q.ID); err != nil {
			return err
		}
	}

	applyQueue(r, q)
	if err := s.app.SaveWithContext(ctx, r); err != nil {
		return err
	}
	q.ID = r.Id
	q.CreatedAt = r.GetDateTime("created").Time()
	q.UpdatedAt = r.GetDateTime("updated").Time()
	return nil
}

func (s *Store) DeleteTicket(ctx context.Context, t *models.Ticket) error {
	r, err := s.app.FindRecordById(CollectionTickets, t.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	return s.app.DeleteWithContext(ctx, r)
}

// DeleteQueue removes the queue record; ticket records cascade through the
// relation.
func (s *Store) DeleteQueue(ctx context.Context, q *models.Queue) error {
	r, err := s.app.FindRecordById(CollectionQueues, q.ID)
	if err != nil {
		return err
	}
	return s.app.DeleteWithContext(ctx, r)
}

// QueueFilter narrows ListQueues. Zero values mean "no constraint".
type QueueFilter struct {
	AdminID       string
	ServiceTypeID string
	IsActive      *bool
}

func (s *Store) ListQueues(ctx context.Context, f QueueFilter) ([]*models.Queue, error) {
	clauses := []string{}
	params := dbx.Params{}
	if f.AdminID != "" {
		clauses = append(clauses, "admin = {:admin}")
		params["admin"] = f.AdminID
	}
	if f.ServiceTypeID != "" {
		clauses = append(clauses, "service_type = {:serviceType}")
		params["serviceType"] = f.ServiceTypeID
	}
	if f.IsActive != nil {
		clauses = append(clauses, "is_active = {:isActive}")
		params["isActive"] = *f.IsActive
	}
	filter := "id != ''"
	if len(clauses) > 0 {
		filter = strings.Join(clauses, " && ")
	}

	records, err := s.app.FindRecordsByFilter(CollectionQueues, filter, "-created", 0, 0, params)
	if err != nil {
		return nil, err
	}
	queues := make([]*models.Queue, len(records))
	for i, r := range records {
		queues[i] = queueFromRecord(r)
	}
	return queues, nil
}

// QueueStats returns the live counters rendered on queue cards and the
// manager dashboard.
func (s *Store) QueueStats(ctx context.Context, queueID string) (*models.QueueStats, error) {
	waiting, err := s.CountTickets(ctx, queueID, models.StatusWaiting)
	if err != nil {
		return nil, err
	}
	called, err := s.CountTickets(ctx, queueID, models.StatusCalled)
	if err != nil {
		return nil, err
	}

	completedToday, err := s.app.CountRecords(CollectionTickets, dbx.And(
		dbx.HashExp{"queue": queueID, "status": string(models.StatusCompleted)},
		dbx.NewExp("completed_at >= {:start}", dbx.Params{
			"start": startOfDay(time.Now()).UTC().Format(types.DefaultDateLayout),
		}),
	))
	if err != nil {
		return nil, err
	}

	return &models.QueueStats{
		Waiting:        waiting,
		Called:         called,
		CompletedToday: int(completedToday),
		TotalActive:    waiting + called,
	}, nil
}

// startOfDay returns midnight of now's day in now's location. Truncating
// against the Unix epoch would shift the boundary for non-UTC servers.
func startOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// FindActiveTicketsForUser returns the user's waiting/called tickets across
// all queues, newest first.
func (s *Store) FindActiveTicketsForUser(ctx context.Context, userID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"user = {:user} && (status = 'waiting' || status = 'called')",
		"-created",
		0,
		0,
		dbx.Params{"user": userID},
	)
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.Ticket, len(records))
	for i, r := range records {
		tickets[i] = ticketFromRecord(r)
	}
	return tickets, nil
}

// FindUserTicketInQueue returns the user's current ticket in the queue,
// counting in-progress as current, or nil when the user has none.
func (s *Store) FindUserTicketInQueue(ctx context.Context, queueID, userID string) (*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"queue = {:queue} && user = {:user} && (status = 'waiting' || status = 'called' || status = 'in-progress')",
		"-created",
		1,
		0,
		dbx.Params{"queue": queueID, "user": userID},
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return ticketFromRecord(records[0]), nil
}

// FindChildTickets returns a parent's active tickets that carry a student
// snapshot, newest first.
func (s *Store) FindChildTickets(ctx context.Context, parentID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionTickets,
		"user = {:user} && student_info != '' && student_info != 'null' && (status = 'waiting' || status = 'called' || status = 'in-progress')",
		"-created",
		0,
		0,
		dbx.Params{"user": parentID},
	)
	if err != nil {
		return nil, err
	}
	tickets := make([]*models.Ticket, len(records))
	for i, r := range records {
		tickets[i] = ticketFromRecord(r)
	}
	return tickets, nil
}

func (s *Store) FindServiceType(ctx context.Context, id string) (*models.ServiceType, error) {
	r, err := s.app.FindRecordById(CollectionServiceTypes, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return serviceTypeFromRecord(r), nil
}

func (s *Store) FindServiceTypeByName(ctx context.Context, name string) (*models.ServiceType, error) {
	records, err := s.app.FindRecordsByFilter(
		CollectionServiceTypes,
		"name:lower = {:name}",
		"",
		1,
		0,
		dbx.Params{"name": strings.ToLower(name)},
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return serviceTypeFromRecord(records[0]), nil
}

func (s *Store) ListServiceTypes(ctx context.Context, onlyActive bool) ([]*models.ServiceType, error) {
	filter := "id != ''"
	if onlyActive {
		filter = "is_active = true"
	}
	records, err := s.app.FindRecordsByFilter(CollectionServiceTypes, filter, "name", 0, 0)
	if err != nil {
		return nil, err
	}
	sts := make([]*models.ServiceType, len(records))
	for i, r := range records {
		sts[i] = serviceTypeFromRecord(r)
	}
	return sts, nil
}

func (s *Store) SaveServiceType(ctx context.Context, st *models.ServiceType) error {
	var r *core.Record
	if st.ID == "" {
		collection, err := s.app.FindCollectionByNameOrId(CollectionServiceTypes)
		if err != nil {
			return err
		}
		r = core.NewRecord(collection)
	} else {
		var err error
		if r, err = s.app.FindRecordById(CollectionServiceTypes, st.ID); err != nil {
			return err
		}
	}

	r.Set("name", st.Name)
	r.Set("description", st.Description)
	r.Set("category", st.Category)
	r.Set("default_duration", st.DefaultDuration)
	r.Set("is_active", st.IsActive)
	r.Set("icon", st.Icon)
	r.Set("created_by", st.CreatedByID)
	if err := s.app.SaveWithContext(ctx, r); err != nil {
		return err
	}
	st.ID = r.Id
	return nil
}
