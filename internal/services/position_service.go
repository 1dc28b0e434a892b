package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qsmart/internal/ledger"
	"qsmart/internal/notifier"
	"qsmart/internal/store"
	"qsmart/models"
)

// PositionService periodically recomputes live positions for every waiting
// ticket and pushes changes to ticket owners. The last pushed position is
// cached in Redis so unchanged positions don't generate noise.
type PositionService struct {
	store    *store.Store
	redis    *redis.Client
	notifier *notifier.Notifier
	interval time.Duration
	cacheTTL time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPositionService(st *store.Store, redisClient *redis.Client, n *notifier.Notifier, interval time.Duration) *PositionService {
	return &PositionService{
		store:    st,
		redis:    redisClient,
		notifier: n,
		interval: interval,
		cacheTTL: 10 * interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the updater goroutine.
func (s *PositionService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("position updater started", "interval", s.interval)
		for {
			select {
			case <-ticker.C:
				s.updateAll(ctx)
			case <-s.stopChan:
				slog.Info("position updater stopping")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *PositionService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *PositionService) updateAll(ctx context.Context) {
	active := true
	queues, err := s.store.ListQueues(ctx, store.QueueFilter{IsActive: &active})
	if err != nil {
		slog.Error("position updater: list queues", "error", err)
		return
	}

	for _, q := range queues {
		waiting, err := s.store.FindTicketsByQueue(ctx, q.ID, models.StatusWaiting)
		if err != nil {
			slog.Error("position updater: list waiting tickets", "queue", q.ID, "error", err)
			continue
		}
		for _, t := range waiting {
			position := ledger.ComputePosition(t, waiting)
			s.pushIfChanged(ctx, q, t, position)
		}
	}
}

// cachedPosition is the Redis value behind positionKey. It feeds both the
// change detection below and the ticket endpoints' fast path.
type cachedPosition struct {
	Position          int `json:"position"`
	EstimatedWaitTime int `json:"estimated_wait_time"`
}

// pushIfChanged notifies the ticket owner only when the position moved
// since the last push.
func (s *PositionService) pushIfChanged(ctx context.Context, q *models.Queue, t *models.Ticket, position int) {
	key := positionKey(q.ID, t.UserID)
	entry := cachedPosition{
		Position:          position,
		EstimatedWaitTime: ledger.EstimateWait(position, q.AverageWaitTime),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	prev, err := s.redis.Get(ctx, key).Result()
	if err == nil && prev == string(raw) {
		return
	}
	if err != nil && err != redis.Nil {
		slog.Warn("position cache read", "key", key, "error", err)
	}

	if err := s.redis.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
		slog.Warn("position cache write", "key", key, "error", err)
	}

	s.notifier.NotifyTicketOwner(t.UserID, ledger.EventTicketUpdated, map[string]any{
		"queue_id":            q.ID,
		"ticket_id":           t.ID,
		"position":            entry.Position,
		"estimated_wait_time": entry.EstimatedWaitTime,
	})
}

// CachedPosition returns the last pushed position and wait estimate for the
// user in a queue, or false when nothing was cached yet.
func (s *PositionService) CachedPosition(ctx context.Context, queueID, userID string) (position, wait int, ok bool) {
	raw, err := s.redis.Get(ctx, positionKey(queueID, userID)).Result()
	if err != nil {
		return 0, 0, false
	}
	var entry cachedPosition
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return 0, 0, false
	}
	return entry.Position, entry.EstimatedWaitTime, true
}

func positionKey(queueID, userID string) string {
	return fmt.Sprintf("queue:position:%s:%s", queueID, userID)
}
