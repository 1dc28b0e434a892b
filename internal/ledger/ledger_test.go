package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsmart/models"
)

// memStore is an in-memory Store with the same nil-on-miss contract as the
// persistent one.
type memStore struct {
	mu      sync.Mutex
	queues  map[string]*models.Queue
	tickets map[string]*models.Ticket
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{
		queues:  make(map[string]*models.Queue),
		tickets: make(map[string]*models.Ticket),
	}
}

func (s *memStore) addQueue(q *models.Queue) *models.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		s.nextID++
		q.ID = fmt.Sprintf("queue%d", s.nextID)
	}
	s.queues[q.ID] = q
	return q
}

func (s *memStore) FindQueue(ctx context.Context, id string) (*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[id]
	if !ok {
		return nil, nil
	}
	clone := *q
	return &clone, nil
}

func (s *memStore) FindTicket(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (s *memStore) FindTicketsByQueue(ctx context.Context, queueID string, statuses ...models.TicketStatus) ([]*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ticket
	for _, t := range s.tickets {
		if t.QueueID != queueID {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if t.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		clone := *t
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (s *memStore) FindActiveTicket(ctx context.Context, queueID, userID string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.QueueID == queueID && t.UserID == userID && t.Status.Active() {
			clone := *t
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) CountTickets(ctx context.Context, queueID string, status models.TicketStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tickets {
		if t.QueueID == queueID && t.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *memStore) HighestTicketNumber(ctx context.Context, queueID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	highest := 0
	for _, t := range s.tickets {
		if t.QueueID == queueID && t.TicketNumber > highest {
			highest = t.TicketNumber
		}
	}
	return highest, nil
}

func (s *memStore) SaveTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		s.nextID++
		t.ID = fmt.Sprintf("ticket%d", s.nextID)
	}
	clone := *t
	s.tickets[t.ID] = &clone
	return nil
}

func (s *memStore) SaveQueue(ctx context.Context, q *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == "" {
		s.nextID++
		q.ID = fmt.Sprintf("queue%d", s.nextID)
	}
	clone := *q
	s.queues[q.ID] = &clone
	return nil
}

func (s *memStore) DeleteTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, t.ID)
	return nil
}

// recordingSink captures emitted events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
	}
	return out
}

func testQueue(store *memStore) *models.Queue {
	return store.addQueue(&models.Queue{
		Name:            "Math consultations",
		AdminID:         "teacher1",
		AverageWaitTime: 10,
		IsActive:        true,
		Settings: models.QueueSettings{
			MeetingDuration: 10,
			MaxQueueLength:  50,
		},
	})
}

var (
	teacher = Actor{ID: "teacher1", Role: models.RoleTeacher}
	admin   = Actor{ID: "admin1", Role: models.RoleAdmin}
)

func student(n int) Actor {
	return Actor{ID: fmt.Sprintf("student%d", n), Role: models.RoleStudent}
}

func TestJoinIssuesSequentialNumbers(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ticket, err := l.Join(ctx, q.ID, student(i), nil)
		require.NoError(t, err)
		assert.Equal(t, i, ticket.TicketNumber)
		assert.Equal(t, i, ticket.Position)
		assert.Equal(t, i*10, ticket.EstimatedWaitTime)
		assert.Equal(t, models.StatusWaiting, ticket.Status)
		assert.NotEmpty(t, ticket.Code)
	}
}

func TestJoinConcurrentNumbersAreUnique(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	const joins = 30
	var wg sync.WaitGroup
	numbers := make(chan int, joins)
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := l.Join(ctx, q.ID, student(i), nil)
			if err == nil {
				numbers <- ticket.TicketNumber
			}
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := map[int]bool{}
	count := 0
	for n := range numbers {
		assert.False(t, seen[n], "duplicate ticket number %d", n)
		seen[n] = true
		count++
	}
	assert.Equal(t, joins, count)
}

func TestJoinNumbersNotReusedAfterCancel(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	first, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	require.NoError(t, l.Cancel(ctx, first.ID, student(1)))

	second, err := l.Join(ctx, q.ID, student(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TicketNumber)
}

func TestJoinRejectsSecondActiveTicket(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	_, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	_, err = l.Join(ctx, q.ID, student(1), nil)
	assert.ErrorIs(t, err, ErrDuplicateActiveTicket)
}

func TestJoinAllowedAgainAfterCompletion(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	_, err = l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	_, err = l.UpdateStatus(ctx, ticket.ID, teacher, models.StatusCompleted)
	require.NoError(t, err)

	again, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, again.TicketNumber)
}

func TestJoinInactiveQueue(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	q.IsActive = false
	store.addQueue(q)
	l := New(store, nil)

	_, err := l.Join(context.Background(), q.ID, student(1), nil)
	assert.ErrorIs(t, err, ErrQueueInactive)
}

func TestJoinUnknownQueue(t *testing.T) {
	l := New(newMemStore(), nil)
	_, err := l.Join(context.Background(), "missing", student(1), nil)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestJoinFullQueue(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	q.Settings.MaxQueueLength = 3
	store.addQueue(q)
	l := New(store, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := l.Join(ctx, q.ID, student(i), nil)
		require.NoError(t, err)
	}
	_, err := l.Join(ctx, q.ID, student(4), nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJoinAgainAfterCancelWhenFull(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	q.Settings.MaxQueueLength = 3
	store.addQueue(q)
	l := New(store, nil)
	ctx := context.Background()

	var first *models.Ticket
	for i := 1; i <= 3; i++ {
		ticket, err := l.Join(ctx, q.ID, student(i), nil)
		require.NoError(t, err)
		if i == 1 {
			first = ticket
		}
	}

	require.NoError(t, l.Cancel(ctx, first.ID, student(1)))

	ticket, err := l.Join(ctx, q.ID, student(4), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, ticket.TicketNumber)
}

func TestCallNextFIFOOrder(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := l.Join(ctx, q.ID, student(i), nil)
		require.NoError(t, err)
	}

	for want := 1; want <= 3; want++ {
		called, err := l.CallNext(ctx, q.ID, teacher)
		require.NoError(t, err)
		assert.Equal(t, want, called.TicketNumber)
		assert.Equal(t, models.StatusCalled, called.Status)
		require.NotNil(t, called.CalledAt)

		// Finish it so the next call picks the following ticket.
		_, err = l.UpdateStatus(ctx, called.ID, teacher, models.StatusCompleted)
		require.NoError(t, err)
	}

	_, err := l.CallNext(ctx, q.ID, teacher)
	assert.ErrorIs(t, err, ErrNoWaitingTickets)
}

func TestCallNextSkipsCancelled(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	first, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	_, err = l.Join(ctx, q.ID, student(2), nil)
	require.NoError(t, err)

	require.NoError(t, l.Cancel(ctx, first.ID, student(1)))

	called, err := l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	assert.Equal(t, 2, called.TicketNumber)
}

func TestCallNextAdvancesCurrentTicket(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	_, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	called, err := l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)

	stored, err := store.FindQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, called.TicketNumber, stored.CurrentTicket)
}

func TestCallNextRequiresManager(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	_, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	_, err = l.CallNext(ctx, q.ID, student(1))
	assert.ErrorIs(t, err, ErrUnauthorized)

	// A different teacher does not manage this queue either.
	_, err = l.CallNext(ctx, q.ID, Actor{ID: "teacher2", Role: models.RoleTeacher})
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Platform admins manage every queue.
	_, err = l.CallNext(ctx, q.ID, admin)
	assert.NoError(t, err)
}

func TestUpdateStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from    models.TicketStatus
		to      models.TicketStatus
		allowed bool
	}{
		{models.StatusWaiting, models.StatusCalled, true},
		{models.StatusWaiting, models.StatusCancelled, true},
		{models.StatusWaiting, models.StatusInProgress, false},
		{models.StatusWaiting, models.StatusCompleted, false},
		{models.StatusCalled, models.StatusInProgress, true},
		{models.StatusCalled, models.StatusCompleted, true},
		{models.StatusCalled, models.StatusCancelled, true},
		{models.StatusCalled, models.StatusWaiting, false},
		{models.StatusInProgress, models.StatusCompleted, true},
		{models.StatusInProgress, models.StatusCancelled, true},
		{models.StatusInProgress, models.StatusCalled, false},
		{models.StatusCompleted, models.StatusCalled, false},
		{models.StatusCompleted, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusWaiting, false},
		{models.StatusCancelled, models.StatusCalled, false},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			store := newMemStore()
			q := testQueue(store)
			l := New(store, nil)
			ctx := context.Background()

			ticket := &models.Ticket{
				TicketNumber: 1,
				QueueID:      q.ID,
				UserID:       "student1",
				Status:       tc.from,
			}
			require.NoError(t, store.SaveTicket(ctx, ticket))

			_, err := l.UpdateStatus(ctx, ticket.ID, teacher, tc.to)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsInvalidTransition(err), "expected transition error, got %v", err)
			}
		})
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, ticket.ID, teacher, models.TicketStatus("archived"))
	assert.True(t, IsInvalidTransition(err))
}

func TestTimestampsAreWriteOnce(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	called, err := l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	firstCalledAt := *called.CalledAt

	// Move on but keep checking calledAt never changes.
	inProgress, err := l.UpdateStatus(ctx, ticket.ID, teacher, models.StatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, inProgress.CalledAt)
	assert.Equal(t, firstCalledAt, *inProgress.CalledAt)

	done, err := l.UpdateStatus(ctx, ticket.ID, teacher, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, firstCalledAt, *done.CalledAt)
	require.NotNil(t, done.CompletedAt)
}

func TestCancelPermissions(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)

	err = l.Cancel(ctx, ticket.ID, student(2))
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, l.Cancel(ctx, ticket.ID, student(1)))

	// Terminal tickets cannot be cancelled again.
	err = l.Cancel(ctx, ticket.ID, teacher)
	assert.True(t, IsInvalidTransition(err))
}

func TestCancelRejectsInProgress(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	_, err = l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	_, err = l.UpdateStatus(ctx, ticket.ID, teacher, models.StatusInProgress)
	require.NoError(t, err)

	// Once service started, neither the owner nor the manager can cancel
	// through Cancel; only UpdateStatus may end the meeting.
	err = l.Cancel(ctx, ticket.ID, student(1))
	assert.True(t, IsInvalidTransition(err), "owner cancel of in-progress ticket, got %v", err)
	err = l.Cancel(ctx, ticket.ID, teacher)
	assert.True(t, IsInvalidTransition(err), "manager cancel of in-progress ticket, got %v", err)

	stored, err := store.FindTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// The manager-gated path still may cancel it.
	_, err = l.UpdateStatus(ctx, ticket.ID, teacher, models.StatusCancelled)
	assert.NoError(t, err)
}

func TestCurrentTicketNeverRewinds(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	first, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	second, err := l.Join(ctx, q.ID, student(2), nil)
	require.NoError(t, err)

	// Call the second ticket directly, out of order.
	_, err = l.UpdateStatus(ctx, second.ID, teacher, models.StatusCalled)
	require.NoError(t, err)
	stored, err := store.FindQueue(ctx, q.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stored.CurrentTicket)

	// Calling and completing the first ticket afterwards must not move
	// the counter backwards.
	called, err := l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	require.Equal(t, first.ID, called.ID)

	stored, err = store.FindQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentTicket)

	_, err = l.UpdateStatus(ctx, first.ID, teacher, models.StatusCompleted)
	require.NoError(t, err)

	stored, err = store.FindQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CurrentTicket)
}

func TestCancelByManager(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	ticket, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	require.NoError(t, l.Cancel(ctx, ticket.ID, teacher))

	stored, err := store.FindTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}

func TestLivePositionIgnoresFinishedTickets(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	l := New(store, nil)
	ctx := context.Background()

	var tickets []*models.Ticket
	for i := 1; i <= 4; i++ {
		ticket, err := l.Join(ctx, q.ID, student(i), nil)
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}

	// Cancel the second ticket: everyone behind moves up one.
	require.NoError(t, l.Cancel(ctx, tickets[1].ID, student(2)))

	pos, wait, err := l.LivePosition(ctx, tickets[3])
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 30, wait)

	pos, _, err = l.LivePosition(ctx, tickets[0])
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
}

// Walks a small queue end to end: three joins against a capacity of three,
// a call, a completion and a re-join.
func TestQueueLifecycleScenario(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	q.Settings.MaxQueueLength = 3
	store.addQueue(q)
	sink := &recordingSink{}
	l := New(store, sink)
	ctx := context.Background()

	a, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.TicketNumber)
	assert.Equal(t, 10, a.EstimatedWaitTime)

	b, err := l.Join(ctx, q.ID, student(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Position)
	assert.Equal(t, 20, b.EstimatedWaitTime)

	c, err := l.Join(ctx, q.ID, student(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Position)

	_, err = l.Join(ctx, q.ID, student(4), nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	called, err := l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)
	assert.Equal(t, a.ID, called.ID)

	pos, wait, err := l.LivePosition(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 10, wait)

	_, err = l.UpdateStatus(ctx, a.ID, teacher, models.StatusCompleted)
	require.NoError(t, err)

	d, err := l.Join(ctx, q.ID, student(4), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, d.TicketNumber)

	assert.Equal(t, []string{
		EventTicketCreated,
		EventTicketCreated,
		EventTicketCreated,
		EventTicketCalled,
		EventTicketCompleted,
		EventTicketCreated,
	}, sink.names())
}

func TestAutoCallNextOnCompletion(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	q.Settings.AutoCallNext = true
	store.addQueue(q)
	sink := &recordingSink{}
	l := New(store, sink)
	ctx := context.Background()

	first, err := l.Join(ctx, q.ID, student(1), nil)
	require.NoError(t, err)
	second, err := l.Join(ctx, q.ID, student(2), nil)
	require.NoError(t, err)

	_, err = l.CallNext(ctx, q.ID, teacher)
	require.NoError(t, err)

	_, err = l.UpdateStatus(ctx, first.ID, teacher, models.StatusCompleted)
	require.NoError(t, err)

	stored, err := store.FindTicket(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, stored.Status)

	names := sink.names()
	assert.Equal(t, EventTicketCalled, names[len(names)-1])

	// Completing the last ticket must not fail when nobody is waiting.
	_, err = l.UpdateStatus(ctx, second.ID, teacher, models.StatusCompleted)
	assert.NoError(t, err)
}

func TestEventPayloadCarriesTicketAndQueue(t *testing.T) {
	store := newMemStore()
	q := testQueue(store)
	sink := &recordingSink{}
	l := New(store, sink)

	ticket, err := l.Join(context.Background(), q.ID, student(1), nil)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, EventTicketCreated, evt.Name)
	assert.Equal(t, q.ID, evt.QueueID)
	assert.Equal(t, ticket.UserID, evt.UserID)
	require.NotNil(t, evt.Ticket)
	assert.Equal(t, ticket.ID, evt.Ticket.ID)
	require.NotNil(t, evt.Queue)
	assert.WithinDuration(t, time.Now(), evt.At, time.Minute)
}

func TestComputePosition(t *testing.T) {
	waiting := []*models.Ticket{
		{TicketNumber: 2},
		{TicketNumber: 5},
		{TicketNumber: 9},
	}
	assert.Equal(t, 1, ComputePosition(&models.Ticket{TicketNumber: 2}, waiting))
	assert.Equal(t, 2, ComputePosition(&models.Ticket{TicketNumber: 5}, waiting))
	assert.Equal(t, 3, ComputePosition(&models.Ticket{TicketNumber: 9}, waiting))
}

func TestEstimateWait(t *testing.T) {
	assert.Equal(t, 30, EstimateWait(3, 10))
	assert.Equal(t, 0, EstimateWait(0, 10))
}
