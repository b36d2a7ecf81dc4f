package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"queue-ticket/internal/broadcast"
	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"

	"github.com/google/uuid"
)

const maxQueueNameLength = 100

// QueueResetter cancels every active ticket of a queue. The engine
// implements it; Delete relies on it to leave no waiting tickets behind.
type QueueResetter interface {
	ResetQueue(ctx context.Context, queueID string) (int64, error)
}

type QueueRegistry struct {
	queues  store.QueueStore
	reset   QueueResetter
	events  broadcast.Broadcaster
	guard   *Guard
	timeout time.Duration

	now   func() time.Time
	newID func() string
}

func NewQueueRegistry(queues store.QueueStore, reset QueueResetter, events broadcast.Broadcaster, guard *Guard, timeout time.Duration) *QueueRegistry {
	if events == nil {
		events = broadcast.Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return &QueueRegistry{
		queues:  queues,
		reset:   reset,
		events:  events,
		guard:   guard,
		timeout: timeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (r *QueueRegistry) CreateQueue(ctx context.Context, name string) (q *models.Queue, err error) {
	defer track("queue_create", time.Now(), &err)

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxQueueNameLength {
		return nil, fmt.Errorf("queue name must be 1-%d characters: %w", maxQueueNameLength, status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	q = &models.Queue{
		ID:        r.newID(),
		Name:      name,
		IsActive:  true,
		CreatedAt: r.now().UTC(),
	}
	if err := r.guard.Run(ctx, func(ctx context.Context) error {
		return r.queues.InsertQueue(ctx, q)
	}); err != nil {
		slog.Error("create queue failed", "name", name, "error", err)
		return nil, fmt.Errorf("create queue: %w", err)
	}

	slog.Info("queue created", "queue_id", q.ID, "name", q.Name)
	publish(ctx, r.events, models.EventQueueUpdate, models.QueueUpdate{Type: models.QueueCreated, Queue: q})
	return q, nil
}

func (r *QueueRegistry) GetQueue(ctx context.Context, id string) (*models.Queue, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("queue id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return guarded(ctx, r.guard, func(ctx context.Context) (*models.Queue, error) {
		return r.queues.GetQueue(ctx, id)
	})
}

func (r *QueueRegistry) ListActiveQueues(ctx context.Context) ([]*models.Queue, error) {
	return r.list(ctx, true)
}

// ListQueues includes deactivated queues.
func (r *QueueRegistry) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	return r.list(ctx, false)
}

func (r *QueueRegistry) list(ctx context.Context, activeOnly bool) ([]*models.Queue, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	queues, err := guarded(ctx, r.guard, func(ctx context.Context) ([]*models.Queue, error) {
		return r.queues.ListQueues(ctx, activeOnly)
	})
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	if queues == nil {
		queues = []*models.Queue{}
	}
	return queues, nil
}

func (r *QueueRegistry) Activate(ctx context.Context, id string) (*models.Queue, error) {
	return r.setActive(ctx, id, true)
}

// Deactivate stops new joins. Tickets already in the queue keep their place
// and can still be served.
func (r *QueueRegistry) Deactivate(ctx context.Context, id string) (*models.Queue, error) {
	return r.setActive(ctx, id, false)
}

func (r *QueueRegistry) setActive(ctx context.Context, id string, active bool) (q *models.Queue, err error) {
	op := "queue_deactivate"
	if active {
		op = "queue_activate"
	}
	defer track(op, time.Now(), &err)

	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("queue id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.guard.Run(ctx, func(ctx context.Context) error {
		return r.queues.SetQueueActive(ctx, id, active)
	}); err != nil {
		return nil, fmt.Errorf("update queue %s: %w", id, err)
	}

	q, err = guarded(ctx, r.guard, func(ctx context.Context) (*models.Queue, error) {
		return r.queues.GetQueue(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("update queue %s: %w", id, err)
	}

	slog.Info("queue updated", "queue_id", id, "is_active", active)
	publish(ctx, r.events, models.EventQueueUpdate, models.QueueUpdate{Type: models.QueueUpdated, Queue: q})
	return q, nil
}

// Delete cancels the queue's active tickets, then removes the queue. Ticket
// records stay as history.
func (r *QueueRegistry) Delete(ctx context.Context, id string) (err error) {
	defer track("queue_delete", time.Now(), &err)

	if _, err := r.GetQueue(ctx, id); err != nil {
		return fmt.Errorf("delete queue: %w", err)
	}

	cancelled, err := r.reset.ResetQueue(ctx, id)
	if err != nil {
		slog.Error("delete queue: cancelling tickets failed", "queue_id", id, "error", err)
		return fmt.Errorf("delete queue %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.guard.Run(ctx, func(ctx context.Context) error {
		return r.queues.DeleteQueue(ctx, id)
	}); err != nil {
		slog.Error("delete queue failed", "queue_id", id, "error", err)
		return fmt.Errorf("delete queue %s: %w", id, err)
	}

	slog.Info("queue deleted", "queue_id", id, "cancelled_tickets", cancelled)
	publish(ctx, r.events, models.EventQueueUpdate, models.QueueUpdate{Type: models.QueueDeleted, QueueID: id})
	return nil
}
