package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"queue-ticket/internal/store"
	"queue-ticket/internal/store/redisstore"
	"queue-ticket/internal/store/sqlstore"
	"queue-ticket/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type published struct {
	event   string
	payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingBroadcaster) Publish(_ context.Context, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{event: event, payload: payload})
}

func (r *recordingBroadcaster) ticketUpdates() []models.TicketUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TicketUpdate
	for _, p := range r.events {
		if u, ok := p.payload.(models.TicketUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

func (r *recordingBroadcaster) queueUpdates() []models.QueueUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.QueueUpdate
	for _, p := range r.events {
		if u, ok := p.payload.(models.QueueUpdate); ok {
			out = append(out, u)
		}
	}
	return out
}

type testEnv struct {
	backend  store.Backend
	engine   *QueueEngine
	registry *QueueRegistry
	events   *recordingBroadcaster
}

func openTestBackend(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, db, err := sqlstore.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return s
}

func openRedisTestBackend(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return redisstore.New(rdb, "")
}

// testBackends are the stores the server can run on.
var testBackends = []struct {
	name string
	open func(t *testing.T) store.Backend
}{
	{"sqlite", func(t *testing.T) store.Backend { return openTestBackend(t) }},
	{"redis", func(t *testing.T) store.Backend { return openRedisTestBackend(t) }},
}

// forEachBackend runs fn once per backend with a fresh environment.
func forEachBackend(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	for _, b := range testBackends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, setupTestServices(t, b.open(t)))
		})
	}
}

// setupTestServices wires the engine and registry over backend the way the
// server does, with a breaker and a recording broadcaster.
func setupTestServices(t *testing.T, backend store.Backend) *testEnv {
	t.Helper()
	events := &recordingBroadcaster{}
	guard := NewGuard(NewStorageBreaker(100, 0.6, time.Minute))
	engine := NewQueueEngine(backend, backend, NewNumberingAuthority(backend, guard), events, guard, EngineConfig{
		OperationTimeout: 5 * time.Second,
		ServeRetryLimit:  DefaultServeRetryLimit,
	})
	registry := NewQueueRegistry(backend, engine, events, guard, 5*time.Second)
	return &testEnv{backend: backend, engine: engine, registry: registry, events: events}
}

func newTestEnv(t *testing.T) *testEnv {
	return setupTestServices(t, openTestBackend(t))
}

func (env *testEnv) createQueue(t *testing.T, name string) *models.Queue {
	t.Helper()
	q, err := env.registry.CreateQueue(context.Background(), name)
	require.NoError(t, err)
	return q
}
