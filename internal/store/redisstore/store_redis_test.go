package redisstore

import (
	"context"
	"strings"
	"sync"
	"testing"

	"queue-ticket/internal/status"
	"queue-ticket/internal/store"
	"queue-ticket/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredisStore(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, prefix), mr
}

func waitingTicket(id, user, queue string, number int64) *models.Ticket {
	return &models.Ticket{
		ID: id, UserID: user, QueueID: queue, TicketNumber: number,
		Status: models.StatusWaiting, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}
}

func waitingIn(queue string) store.TicketFilter {
	return store.TicketFilter{QueueID: queue, Statuses: []models.TicketStatus{models.StatusWaiting}}
}

// claimBeforeFind runs claim once, right before the first ticket read
// reaches Redis.
type claimBeforeFind struct {
	once  sync.Once
	claim func()
	fired bool
}

func (h *claimBeforeFind) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *claimBeforeFind) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		args := cmd.Args()
		if cmd.Name() == "eval" && len(args) > 1 && args[1] == findTicketsScript {
			h.once.Do(func() {
				h.fired = true
				h.claim()
			})
		}
		return next(ctx, cmd)
	}
}

func (h *claimBeforeFind) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestStore_FindOne_HeadClaimedByAnotherClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	otherClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { otherClient.Close() })
	other := New(otherClient, "")
	hook := &claimBeforeFind{claim: func() {
		ok, err := other.ConditionalUpdate(ctx, "t1", models.StatusWaiting, models.StatusServing)
		require.NoError(t, err)
		require.True(t, ok)
	}}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdb.AddHook(hook)
	t.Cleanup(func() { rdb.Close() })
	s := New(rdb, "")

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, s.Insert(ctx, waitingTicket(id, "user-"+id, "q1", int64(i+1))))
	}

	head, err := s.FindOne(ctx, waitingIn("q1"))
	require.NoError(t, err)
	assert.True(t, hook.fired)
	assert.Equal(t, "t2", head.ID)
	assert.Equal(t, models.StatusWaiting, head.Status)

	n, err := s.Count(ctx, waitingIn("q1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_ActiveGuardAndUserActiveIndex(t *testing.T) {
	ctx := context.Background()
	s, mr := setupMiniredisStore(t, "")
	active := store.TicketFilter{UserID: "alice", Statuses: models.ActiveStatuses}

	require.NoError(t, s.Insert(ctx, waitingTicket("t1", "alice", "q1", 1)))
	err := s.Insert(ctx, waitingTicket("t2", "alice", "q1", 2))
	assert.ErrorIs(t, err, status.ErrDuplicateActiveTicket)
	assert.False(t, mr.Exists("qt:ticket:t2"))

	require.NoError(t, s.Insert(ctx, waitingTicket("t3", "alice", "q2", 3)))
	tickets, err := s.FindMany(ctx, active, store.SortDescending, 0)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "t3", tickets[0].ID)

	ok, err := s.ConditionalUpdate(ctx, "t1", models.StatusWaiting, models.StatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, mr.Exists("qt:active:q1:alice"))

	tickets, err = s.FindMany(ctx, active, store.SortDescending, 0)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "t3", tickets[0].ID)

	history, err := s.FindMany(ctx, store.TicketFilter{UserID: "alice"}, store.SortAscending, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	require.NoError(t, s.Insert(ctx, waitingTicket("t4", "alice", "q1", 4)))
	n, err := s.Count(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStore_BulkUpdateClearsActiveState(t *testing.T) {
	ctx := context.Background()
	s, mr := setupMiniredisStore(t, "")

	require.NoError(t, s.Insert(ctx, waitingTicket("t1", "alice", "q1", 1)))
	require.NoError(t, s.Insert(ctx, waitingTicket("t2", "bob", "q1", 2)))
	require.NoError(t, s.Insert(ctx, waitingTicket("t3", "carol", "q2", 3)))
	ok, err := s.ConditionalUpdate(ctx, "t1", models.StatusWaiting, models.StatusServing)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.BulkUpdate(ctx, store.TicketFilter{QueueID: "q1", Statuses: models.ActiveStatuses}, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.False(t, mr.Exists("qt:active:q1:alice"))
	assert.False(t, mr.Exists("qt:active:q1:bob"))
	assert.False(t, mr.Exists("qt:user:alice:active"))
	assert.True(t, mr.Exists("qt:active:q2:carol"))

	left, err := s.Count(ctx, store.TicketFilter{Statuses: models.ActiveStatuses})
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)

	require.NoError(t, s.Insert(ctx, waitingTicket("t4", "alice", "q1", 4)))
}

func TestStore_HashTaggedPrefixKeepsKeysInOneSlot(t *testing.T) {
	ctx := context.Background()
	s, mr := setupMiniredisStore(t, "{qt}")

	require.NoError(t, s.Insert(ctx, waitingTicket("t1", "alice", "q1", 1)))
	ok, err := s.ConditionalUpdate(ctx, "t1", models.StatusWaiting, models.StatusServed)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Insert(ctx, waitingTicket("t2", "bob", "q1", 2)))
	_, err = s.BulkUpdate(ctx, store.TicketFilter{QueueID: "q1", Statuses: models.ActiveStatuses}, models.StatusCancelled)
	require.NoError(t, err)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.Truef(t, strings.HasPrefix(k, "{qt}:"), "key %q outside the hash tag", k)
	}

	served, err := s.FindOne(ctx, store.TicketFilter{QueueID: "q1", Statuses: []models.TicketStatus{models.StatusServed}})
	require.NoError(t, err)
	assert.Equal(t, "t1", served.ID)
}
