package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"queue-ticket/internal/broadcast"
	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"
	"queue-ticket/monitoring"

	"github.com/google/uuid"
)

const (
	DefaultOperationTimeout = 5 * time.Second
	DefaultServeRetryLimit  = 16

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type EngineConfig struct {
	// OperationTimeout bounds every operation, storage round trips included.
	OperationTimeout time.Duration
	// ServeRetryLimit caps how often ServeNext re-reads the head of the queue
	// after losing a claim to a concurrent caller.
	ServeRetryLimit int
}

// QueueEngine owns the ticket lifecycle: join, serve, complete, cancel and
// reset. Every status change is a compare-and-set on the ticket's current
// status, so concurrent callers never both win the same transition.
type QueueEngine struct {
	tickets store.TicketStore
	queues  store.QueueStore
	numbers *NumberingAuthority
	events  broadcast.Broadcaster
	guard   *Guard

	timeout      time.Duration
	serveRetries int

	now   func() time.Time
	newID func() string
}

func NewQueueEngine(tickets store.TicketStore, queues store.QueueStore, numbers *NumberingAuthority, events broadcast.Broadcaster, guard *Guard, cfg EngineConfig) *QueueEngine {
	if events == nil {
		events = broadcast.Nop{}
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.ServeRetryLimit <= 0 {
		cfg.ServeRetryLimit = DefaultServeRetryLimit
	}
	return &QueueEngine{
		tickets:      tickets,
		queues:       queues,
		numbers:      numbers,
		events:       events,
		guard:        guard,
		timeout:      cfg.OperationTimeout,
		serveRetries: cfg.ServeRetryLimit,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Join issues the caller a ticket in queueID. A number issued for an insert
// that then fails is never handed out again, so numbers may have gaps.
func (e *QueueEngine) Join(ctx context.Context, userID, queueID string) (res *models.JoinResult, err error) {
	defer track("join", time.Now(), &err)

	userID, queueID = strings.TrimSpace(userID), strings.TrimSpace(queueID)
	if userID == "" || queueID == "" {
		return nil, fmt.Errorf("user id and queue id are required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	q, err := e.getQueue(ctx, queueID)
	if err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}
	// isActive is a snapshot read; a queue deactivated mid-join may take one last ticket.
	if !q.IsActive {
		return nil, fmt.Errorf("join queue %s: %w", queueID, status.ErrQueueInactive)
	}

	active := store.TicketFilter{UserID: userID, QueueID: queueID, Statuses: models.ActiveStatuses}
	if existing, err := e.findOne(ctx, active); err == nil {
		return nil, fmt.Errorf("join: ticket #%d is still %s: %w", existing.TicketNumber, existing.Status, status.ErrDuplicateActiveTicket)
	} else if !errors.Is(err, status.ErrTicketNotFound) {
		return nil, fmt.Errorf("join: %w", err)
	}

	number, err := e.numbers.IssueNumber(ctx)
	if err != nil {
		slog.Error("join: numbering failed", "queue_id", queueID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("join: %w", err)
	}

	now := e.now().UTC()
	t := &models.Ticket{
		ID:           e.newID(),
		UserID:       userID,
		QueueID:      queueID,
		TicketNumber: number,
		Status:       models.StatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.guard.Run(ctx, func(ctx context.Context) error {
		return e.tickets.Insert(ctx, t)
	}); err != nil {
		// The store re-checks the one-active-ticket rule atomically, so a
		// concurrent join by the same user lands here.
		slog.Warn("join: ticket number left unused", "ticket_number", number, "queue_id", queueID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("join: %w", err)
	}

	position, err := e.positionOf(ctx, t)
	if err != nil {
		e.rollbackJoin(ctx, t)
		return nil, fmt.Errorf("join: %w", err)
	}

	slog.Info("ticket joined", "ticket_id", t.ID, "ticket_number", number, "queue_id", queueID, "user_id", userID, "position", position)
	publish(ctx, e.events, models.EventTicketUpdate, models.TicketUpdate{Type: models.TicketJoined, Ticket: t, QueueID: queueID})

	return &models.JoinResult{TicketID: t.ID, TicketNumber: number, Position: position}, nil
}

// rollbackJoin cancels a ticket whose join could not be completed so the
// caller can join again. It runs on a fresh deadline because the join's own
// context may already be spent.
func (e *QueueEngine) rollbackJoin(ctx context.Context, t *models.Ticket) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	ok, err := guarded(ctx, e.guard, func(ctx context.Context) (bool, error) {
		return e.tickets.ConditionalUpdate(ctx, t.ID, models.StatusWaiting, models.StatusCancelled)
	})
	if err != nil || !ok {
		slog.Error("join rollback failed", "ticket_id", t.ID, "ticket_number", t.TicketNumber, "claimed", ok, "error", err)
		return
	}
	slog.Warn("join rolled back", "ticket_id", t.ID, "ticket_number", t.TicketNumber)
}

// ServeNext moves the lowest-numbered waiting ticket to serving, optionally
// only within queueID. Losing the claim to a concurrent caller re-reads the
// new head, up to the configured retry limit.
func (e *QueueEngine) ServeNext(ctx context.Context, queueID string) (t *models.Ticket, err error) {
	defer track("serve_next", time.Now(), &err)

	queueID = strings.TrimSpace(queueID)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if queueID != "" {
		if _, err := e.getQueue(ctx, queueID); err != nil {
			return nil, fmt.Errorf("serve next: %w", err)
		}
	}

	waiting := store.TicketFilter{QueueID: queueID, Statuses: []models.TicketStatus{models.StatusWaiting}}
	for attempt := 1; attempt <= e.serveRetries; attempt++ {
		head, err := e.findOne(ctx, waiting)
		if errors.Is(err, status.ErrTicketNotFound) {
			// A miss can race other claims; the queue is empty only when nothing waits.
			left, cerr := e.count(ctx, waiting)
			if cerr != nil {
				return nil, fmt.Errorf("serve next: %w", cerr)
			}
			if left == 0 {
				return nil, fmt.Errorf("serve next: %w", status.ErrEmptyQueue)
			}
			slog.Debug("serve next: head vanished, retrying", "queue_id", queueID, "waiting", left, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("serve next: %w", err)
		}

		claimed, err := e.transition(ctx, head, models.StatusServing)
		if err != nil {
			return nil, fmt.Errorf("serve next: %w", err)
		}
		if !claimed {
			slog.Debug("serve next: claim lost, retrying", "ticket_id", head.ID, "attempt", attempt)
			continue
		}

		slog.Info("ticket serving", "ticket_id", head.ID, "ticket_number", head.TicketNumber, "queue_id", head.QueueID, "attempt", attempt)
		publish(ctx, e.events, models.EventTicketUpdate, models.TicketUpdate{Type: models.TicketServed, Ticket: head, QueueID: head.QueueID})
		return head, nil
	}

	slog.Warn("serve next: retry limit reached", "queue_id", queueID, "attempts", e.serveRetries)
	return nil, fmt.Errorf("serve next after %d attempts: %w", e.serveRetries, status.ErrServeConflict)
}

func (e *QueueEngine) CompleteTicket(ctx context.Context, ticketID string) (t *models.Ticket, err error) {
	defer track("complete", time.Now(), &err)

	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, fmt.Errorf("ticket id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	t, err = e.findOne(ctx, store.TicketFilter{ID: ticketID})
	if err != nil {
		return nil, fmt.Errorf("complete ticket: %w", err)
	}
	if !t.Status.CanTransitionTo(models.StatusServed) {
		return nil, fmt.Errorf("complete ticket #%d from %s: %w", t.TicketNumber, t.Status, status.ErrInvalidTransition)
	}

	ok, err := e.transition(ctx, t, models.StatusServed)
	if err != nil {
		return nil, fmt.Errorf("complete ticket: %w", err)
	}
	if !ok {
		// Cancelled between the read and the write.
		return nil, fmt.Errorf("complete ticket #%d: status changed: %w", t.TicketNumber, status.ErrInvalidTransition)
	}

	slog.Info("ticket served", "ticket_id", t.ID, "ticket_number", t.TicketNumber, "queue_id", t.QueueID)
	publish(ctx, e.events, models.EventTicketUpdate, models.TicketUpdate{Type: models.TicketCompleted, Ticket: t, QueueID: t.QueueID})
	return t, nil
}

// CancelMyTicket cancels the caller's active ticket, the lowest-numbered one
// when queueID is empty and the caller waits in several queues.
func (e *QueueEngine) CancelMyTicket(ctx context.Context, userID, queueID string) (t *models.Ticket, err error) {
	defer track("cancel", time.Now(), &err)

	userID, queueID = strings.TrimSpace(userID), strings.TrimSpace(queueID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	active := store.TicketFilter{UserID: userID, QueueID: queueID, Statuses: models.ActiveStatuses}
	for attempt := 1; attempt <= e.serveRetries; attempt++ {
		t, err := e.findOne(ctx, active)
		if errors.Is(err, status.ErrTicketNotFound) {
			return nil, fmt.Errorf("cancel ticket: %w", status.ErrNoActiveTicket)
		}
		if err != nil {
			return nil, fmt.Errorf("cancel ticket: %w", err)
		}

		// A waiting ticket may be called while we cancel it; re-read and
		// cancel it from serving instead.
		ok, err := e.transition(ctx, t, models.StatusCancelled)
		if err != nil {
			return nil, fmt.Errorf("cancel ticket: %w", err)
		}
		if !ok {
			continue
		}

		slog.Info("ticket cancelled", "ticket_id", t.ID, "ticket_number", t.TicketNumber, "queue_id", t.QueueID, "user_id", userID)
		publish(ctx, e.events, models.EventTicketUpdate, models.TicketUpdate{Type: models.TicketCancelled, Ticket: t, QueueID: t.QueueID})
		return t, nil
	}

	return nil, fmt.Errorf("cancel ticket: status kept changing: %w", status.ErrInvalidTransition)
}

// ResetQueue cancels every waiting and serving ticket in the queue in one
// batch. The ticket number counter is left alone.
func (e *QueueEngine) ResetQueue(ctx context.Context, queueID string) (n int64, err error) {
	defer track("reset", time.Now(), &err)

	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return 0, fmt.Errorf("queue id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := e.getQueue(ctx, queueID); err != nil {
		return 0, fmt.Errorf("reset queue: %w", err)
	}

	n, err = guarded(ctx, e.guard, func(ctx context.Context) (int64, error) {
		return e.tickets.BulkUpdate(ctx, store.TicketFilter{QueueID: queueID, Statuses: models.ActiveStatuses}, models.StatusCancelled)
	})
	if err != nil {
		slog.Error("reset queue failed", "queue_id", queueID, "error", err)
		return 0, fmt.Errorf("reset queue %s: %w", queueID, err)
	}

	slog.Info("queue reset", "queue_id", queueID, "cancelled", n)
	publish(ctx, e.events, models.EventTicketUpdate, models.TicketUpdate{Type: models.TicketsReset, QueueID: queueID})
	return n, nil
}

// MyTicket returns the caller's active ticket with its live position. Having
// no active ticket is reported through Found, not as an error.
func (e *QueueEngine) MyTicket(ctx context.Context, userID, queueID string) (*models.MyTicket, error) {
	userID, queueID = strings.TrimSpace(userID), strings.TrimSpace(queueID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	t, err := e.findOne(ctx, store.TicketFilter{UserID: userID, QueueID: queueID, Statuses: models.ActiveStatuses})
	if errors.Is(err, status.ErrTicketNotFound) {
		return &models.MyTicket{Found: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("my ticket: %w", err)
	}

	position, err := e.positionOf(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("my ticket: %w", err)
	}
	return &models.MyTicket{Found: true, Ticket: t, Position: position}, nil
}

// Stats counts tickets per status, across all queues when queueID is empty,
// and lists every ticket currently being served.
func (e *QueueEngine) Stats(ctx context.Context, queueID string) (*models.TicketStats, error) {
	queueID = strings.TrimSpace(queueID)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	st := &models.TicketStats{QueueID: queueID}
	counts := map[models.TicketStatus]*int64{
		models.StatusWaiting:   &st.Waiting,
		models.StatusServing:   &st.Serving,
		models.StatusServed:    &st.Served,
		models.StatusCancelled: &st.Cancelled,
	}
	for _, s := range models.AllStatuses {
		n, err := e.count(ctx, store.TicketFilter{QueueID: queueID, Statuses: []models.TicketStatus{s}})
		if err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		*counts[s] = n
		st.Total += n
	}

	serving, err := e.findMany(ctx, store.TicketFilter{QueueID: queueID, Statuses: []models.TicketStatus{models.StatusServing}}, store.SortAscending, 0)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	st.NowServing = serving
	return st, nil
}

// ListWaiting returns the waiting line of a queue in call order with each
// ticket's position.
func (e *QueueEngine) ListWaiting(ctx context.Context, queueID string, limit int) ([]*models.TicketPosition, error) {
	queueID = strings.TrimSpace(queueID)
	if queueID == "" {
		return nil, fmt.Errorf("queue id is required: %w", status.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := e.getQueue(ctx, queueID); err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}

	tickets, err := e.findMany(ctx, store.TicketFilter{QueueID: queueID, Statuses: []models.TicketStatus{models.StatusWaiting}}, store.SortAscending, limit)
	if err != nil {
		return nil, fmt.Errorf("list waiting: %w", err)
	}

	line := make([]*models.TicketPosition, len(tickets))
	for i, t := range tickets {
		line[i] = &models.TicketPosition{Ticket: t, Position: int64(i + 1)}
	}
	return line, nil
}

// History returns the caller's tickets, newest first.
func (e *QueueEngine) History(ctx context.Context, userID string, limit int) ([]*models.Ticket, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required: %w", status.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tickets, err := e.findMany(ctx, store.TicketFilter{UserID: userID}, store.SortDescending, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return tickets, nil
}

// positionOf is 1 + the waiting tickets ahead in the same queue; a serving
// ticket is at position 0.
func (e *QueueEngine) positionOf(ctx context.Context, t *models.Ticket) (int64, error) {
	if t.Status == models.StatusServing {
		return 0, nil
	}
	ahead, err := e.count(ctx, store.TicketFilter{
		QueueID:     t.QueueID,
		Statuses:    []models.TicketStatus{models.StatusWaiting},
		NumberBelow: t.TicketNumber,
	})
	if err != nil {
		return 0, fmt.Errorf("position of ticket #%d: %w", t.TicketNumber, err)
	}
	return ahead + 1, nil
}

// transition compare-and-sets t from its current status to next and updates
// t in place on success.
func (e *QueueEngine) transition(ctx context.Context, t *models.Ticket, next models.TicketStatus) (bool, error) {
	if !t.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%s to %s: %w", t.Status, next, status.ErrInvalidTransition)
	}
	ok, err := guarded(ctx, e.guard, func(ctx context.Context) (bool, error) {
		return e.tickets.ConditionalUpdate(ctx, t.ID, t.Status, next)
	})
	if err != nil || !ok {
		return false, err
	}
	t.Status = next
	t.UpdatedAt = e.now().UTC()
	return true, nil
}

func (e *QueueEngine) getQueue(ctx context.Context, id string) (*models.Queue, error) {
	return guarded(ctx, e.guard, func(ctx context.Context) (*models.Queue, error) {
		return e.queues.GetQueue(ctx, id)
	})
}

func (e *QueueEngine) findOne(ctx context.Context, f store.TicketFilter) (*models.Ticket, error) {
	return guarded(ctx, e.guard, func(ctx context.Context) (*models.Ticket, error) {
		return e.tickets.FindOne(ctx, f)
	})
}

func (e *QueueEngine) findMany(ctx context.Context, f store.TicketFilter, order store.Sort, limit int) ([]*models.Ticket, error) {
	tickets, err := guarded(ctx, e.guard, func(ctx context.Context) ([]*models.Ticket, error) {
		return e.tickets.FindMany(ctx, f, order, limit)
	})
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	return tickets, nil
}

func (e *QueueEngine) count(ctx context.Context, f store.TicketFilter) (int64, error) {
	return guarded(ctx, e.guard, func(ctx context.Context) (int64, error) {
		return e.tickets.Count(ctx, f)
	})
}

func publish(ctx context.Context, events broadcast.Broadcaster, event string, payload any) {
	monitoring.TrackBroadcast(event)
	events.Publish(ctx, event, payload)
}

func track(operation string, start time.Time, err *error) {
	monitoring.TrackOperation(operation, *err, time.Since(start))
}
