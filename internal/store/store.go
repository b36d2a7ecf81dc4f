// Package store defines the persistence contract the queue core needs from a
// backend: durable, linearizable storage with conditional status updates and
// one atomic named counter.
package store

import (
	"context"

	"queue-ticket/models"
)

// TicketNumberCounter is the name of the global ticket number sequence.
const TicketNumberCounter = "ticketNumber"

// TicketFilter selects tickets. Zero-valued fields do not filter.
// NumberBelow, when positive, keeps tickets with TicketNumber < NumberBelow.
type TicketFilter struct {
	ID          string
	UserID      string
	QueueID     string
	Statuses    []models.TicketStatus
	NumberBelow int64
}

// Match reports whether t satisfies the filter. Backends that cannot express
// a filter natively use it to post-filter candidates.
func (f TicketFilter) Match(t *models.Ticket) bool {
	if f.ID != "" && t.ID != f.ID {
		return false
	}
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.QueueID != "" && t.QueueID != f.QueueID {
		return false
	}
	if f.NumberBelow > 0 && t.TicketNumber >= f.NumberBelow {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

// Sort orders FindMany results by ticket number.
type Sort int

const (
	SortAscending Sort = iota
	SortDescending
)

// TicketStore is the durable record of every ticket.
type TicketStore interface {
	// Insert persists a new ticket. It fails with status.ErrDuplicateActiveTicket
	// when the user already holds an active ticket in the same queue; the check
	// and the write are one atomic step.
	Insert(ctx context.Context, t *models.Ticket) error

	// FindOne returns the matching ticket with the lowest number, or
	// status.ErrTicketNotFound.
	FindOne(ctx context.Context, f TicketFilter) (*models.Ticket, error)

	// FindMany returns matching tickets ordered by number. limit <= 0 means no limit.
	FindMany(ctx context.Context, f TicketFilter, sort Sort, limit int) ([]*models.Ticket, error)

	// ConditionalUpdate moves ticket id from expected to next. It returns false,
	// without writing, when the ticket is missing or no longer in expected.
	ConditionalUpdate(ctx context.Context, id string, expected, next models.TicketStatus) (bool, error)

	Count(ctx context.Context, f TicketFilter) (int64, error)

	// BulkUpdate moves every ticket matching f (QueueID and Statuses required)
	// to next in one atomic batch and returns how many moved.
	BulkUpdate(ctx context.Context, f TicketFilter, next models.TicketStatus) (int64, error)
}

// QueueStore persists the queue registry.
type QueueStore interface {
	InsertQueue(ctx context.Context, q *models.Queue) error
	// GetQueue returns status.ErrQueueNotFound when absent.
	GetQueue(ctx context.Context, id string) (*models.Queue, error)
	ListQueues(ctx context.Context, activeOnly bool) ([]*models.Queue, error)
	SetQueueActive(ctx context.Context, id string, active bool) error
	DeleteQueue(ctx context.Context, id string) error
}

// Counter hands out values of named monotonic sequences. Increment is the
// serialization point: concurrent callers never observe the same value.
type Counter interface {
	Increment(ctx context.Context, name string) (int64, error)
}

// Backend bundles the three contracts. Both shipped backends implement it.
type Backend interface {
	TicketStore
	QueueStore
	Counter
	Ping(ctx context.Context) error
}
