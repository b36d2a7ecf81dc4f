package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queue-ticket/config"
	"queue-ticket/internal/broadcast"
	"queue-ticket/internal/handlers"
	"queue-ticket/internal/services"
	"queue-ticket/internal/store"
	"queue-ticket/internal/store/redisstore"
	"queue-ticket/internal/store/sqlstore"
	"queue-ticket/monitoring"
	"queue-ticket/security"
	"queue-ticket/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"
)

// queueCore is everything the HTTP routes and the CLI commands share.
type queueCore struct {
	cfg      *config.Config
	backend  store.Backend
	redis    *redis.Client
	events   broadcast.Multi
	engine   *services.QueueEngine
	registry *services.QueueRegistry
}

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	var qc *queueCore
	ensureCore := func() (*queueCore, error) {
		if qc != nil {
			return qc, nil
		}
		c, err := newQueueCore(app, cfg)
		if err != nil {
			return nil, err
		}
		qc = c
		return qc, nil
	}

	app.RootCmd.AddCommand(newQueueCommand(ensureCore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	go handleShutdown(cancel)

	var metricsServer *monitoring.Server

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		c, err := ensureCore()
		if err != nil {
			return err
		}

		if err := c.seedQueues(ctx); err != nil {
			return err
		}

		routes := &handlers.Routes{
			Queues:  handlers.NewQueueHandler(c.registry, c.engine),
			Tickets: handlers.NewTicketHandler(c.engine),
			Health:  c.backend.Ping,
		}
		if c.redis != nil {
			limiter := security.NewRateLimiter(c.redis, cfg.JoinRateLimit)
			routes.JoinLimit = limiter.JoinRateLimit()
			routes.Middlewares = append(routes.Middlewares, limiter.AntiBot(cfg.AntiBotRateLimit))
		}
		routes.Register(e)

		if cfg.EnableMetrics {
			go monitoring.NewMonitor(c.registry, c.engine, cfg.MetricsInterval).Run(ctx)

			metricsServer = monitoring.NewServer(cfg.MetricsPort, c.backend.Ping)
			go func() {
				if err := metricsServer.Start(); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		if metricsServer != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown", "error", err)
			}
		}
		if qc != nil {
			qc.close()
		}
		return e.Next()
	})

	// Start server
	return app.Start()
}

func newQueueCore(app core.App, cfg *config.Config) (*queueCore, error) {
	c := &queueCore{cfg: cfg}

	if cfg.StoreBackend == config.BackendRedis || cfg.RedisEventsChannel != "" {
		rdb, err := utils.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.redis = rdb
	}

	switch cfg.StoreBackend {
	case config.BackendRedis:
		c.backend = redisstore.New(c.redis, cfg.RedisKeyPrefix)
	default:
		// The queue tables live next to the PocketBase collections. The
		// nonconcurrent pool serializes writes the way SQLite expects.
		db := app.NonconcurrentDB()
		if err := sqlstore.Migrate(db); err != nil {
			c.close()
			return nil, err
		}
		c.backend = sqlstore.New(db)
	}
	slog.Info("queue store ready", "backend", cfg.StoreBackend)

	if cfg.RealtimeEnabled {
		c.events = append(c.events, broadcast.NewRealtime(app.SubscriptionsBroker()))
	}
	if cfg.PubNubEnabled() {
		pn := broadcast.NewPubNubClient(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID)
		c.events = append(c.events, broadcast.NewPubNub(pn, cfg.PubNubChannel))
	}
	if cfg.RedisEventsChannel != "" {
		c.events = append(c.events, broadcast.NewRedis(c.redis, cfg.RedisEventsChannel))
	}

	guard := services.NewGuard(services.NewStorageBreaker(cfg.BreakerMaxRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenTimeout))
	numbers := services.NewNumberingAuthority(c.backend, guard)

	c.engine = services.NewQueueEngine(c.backend, c.backend, numbers, c.events, guard, services.EngineConfig{
		OperationTimeout: cfg.OperationTimeout,
		ServeRetryLimit:  cfg.ServeRetryLimit,
	})
	c.registry = services.NewQueueRegistry(c.backend, c.engine, c.events, guard, cfg.OperationTimeout)

	return c, nil
}

// seedQueues creates the queues named in QUEUE_SEED_FILE that do not exist yet.
func (c *queueCore) seedQueues(ctx context.Context) error {
	seed, err := config.LoadQueueSeed(c.cfg.QueueSeedFile)
	if err != nil {
		return err
	}
	if len(seed.Queues) == 0 {
		return nil
	}

	existing, err := c.registry.ListQueues(ctx)
	if err != nil {
		return fmt.Errorf("seed queues: %w", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, q := range existing {
		names[q.Name] = struct{}{}
	}

	for _, sq := range seed.Queues {
		if _, ok := names[sq.Name]; ok {
			continue
		}
		q, err := c.registry.CreateQueue(ctx, sq.Name)
		if err != nil {
			return fmt.Errorf("seed queue %q: %w", sq.Name, err)
		}
		if sq.Inactive {
			if _, err := c.registry.Deactivate(ctx, q.ID); err != nil {
				return fmt.Errorf("seed queue %q: %w", sq.Name, err)
			}
		}
		names[sq.Name] = struct{}{}
		slog.Info("seeded queue", "queue_id", q.ID, "name", q.Name, "active", !sq.Inactive)
	}
	return nil
}

// close flushes pending broadcasts before the Redis client goes away.
func (c *queueCore) close() {
	c.events.Close()
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			slog.Warn("redis close", "error", err)
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
