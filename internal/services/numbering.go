package services

import (
	"context"
	"fmt"

	"queue-ticket/internal/store"
	"queue-ticket/monitoring"
)

// NumberingAuthority is the only source of ticket numbers. Numbers come from
// one durable counter shared by every server instance and are never reused.
type NumberingAuthority struct {
	counter store.Counter
	guard   *Guard
}

func NewNumberingAuthority(counter store.Counter, guard *Guard) *NumberingAuthority {
	return &NumberingAuthority{counter: counter, guard: guard}
}

func (n *NumberingAuthority) IssueNumber(ctx context.Context) (int64, error) {
	number, err := guarded(ctx, n.guard, func(ctx context.Context) (int64, error) {
		return n.counter.Increment(ctx, store.TicketNumberCounter)
	})
	if err != nil {
		return 0, fmt.Errorf("issue ticket number: %w", err)
	}
	monitoring.TrackTicketIssued()
	return number, nil
}
