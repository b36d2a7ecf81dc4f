package services

import (
	"context"
	"strings"
	"testing"

	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q, err := env.registry.CreateQueue(ctx, "  Billing ")
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, "Billing", q.Name)
	assert.True(t, q.IsActive)

	got, err := env.registry.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.Name, got.Name)

	updates := env.events.queueUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, models.QueueCreated, updates[0].Type)
	assert.Equal(t, q.ID, updates[0].Queue.ID)
}

func TestCreateQueue_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.registry.CreateQueue(ctx, "   ")
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.registry.CreateQueue(ctx, strings.Repeat("x", maxQueueNameLength+1))
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.registry.GetQueue(ctx, "")
	assert.ErrorIs(t, err, status.ErrValidation)

	_, err = env.registry.GetQueue(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrQueueNotFound)
}

func TestListActiveQueues_SkipsDeactivated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	billing := env.createQueue(t, "Billing")
	support := env.createQueue(t, "Support")

	q, err := env.registry.Deactivate(ctx, support.ID)
	require.NoError(t, err)
	assert.False(t, q.IsActive)

	active, err := env.registry.ListActiveQueues(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, billing.ID, active[0].ID)

	all, err := env.registry.ListQueues(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.registry.Activate(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrQueueNotFound)

	updates := env.events.queueUpdates()
	require.Len(t, updates, 3)
	assert.Equal(t, models.QueueUpdated, updates[2].Type)
	assert.False(t, updates[2].Queue.IsActive)
}

func TestDeleteQueue_CancelsTicketsFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	q := env.createQueue(t, "Billing")
	keep := env.createQueue(t, "Support")
	for _, user := range []string{"a", "b", "c"} {
		_, err := env.engine.Join(ctx, user, q.ID)
		require.NoError(t, err)
	}
	_, err := env.engine.ServeNext(ctx, q.ID)
	require.NoError(t, err)

	require.NoError(t, env.registry.Delete(ctx, q.ID))

	_, err = env.registry.GetQueue(ctx, q.ID)
	assert.ErrorIs(t, err, status.ErrQueueNotFound)

	active, err := env.registry.ListActiveQueues(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)

	// Tickets stay as history, all terminal.
	remaining, err := env.backend.Count(ctx, store.TicketFilter{QueueID: q.ID, Statuses: models.ActiveStatuses})
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
	cancelled, err := env.backend.Count(ctx, store.TicketFilter{QueueID: q.ID, Statuses: []models.TicketStatus{models.StatusCancelled}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), cancelled)

	mine, err := env.engine.MyTicket(ctx, "a", "")
	require.NoError(t, err)
	assert.False(t, mine.Found)

	updates := env.events.queueUpdates()
	last := updates[len(updates)-1]
	assert.Equal(t, models.QueueDeleted, last.Type)
	assert.Equal(t, q.ID, last.QueueID)

	assert.ErrorIs(t, env.registry.Delete(ctx, q.ID), status.ErrQueueNotFound)
}
