package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/hook"
)

// HealthFunc reports whether the backing store answers.
type HealthFunc func(ctx context.Context) error

type Routes struct {
	Queues  *QueueHandler
	Tickets *TicketHandler
	Health  HealthFunc

	// JoinLimit guards POST /tickets/join when set.
	JoinLimit *hook.Handler[*core.RequestEvent]
	// Middlewares run on every /api/v1 route.
	Middlewares []*hook.Handler[*core.RequestEvent]
}

// Register mounts the API under /api/v1. Every route requires an
// authenticated record; administrative routes require a superuser.
func (r *Routes) Register(se *core.ServeEvent) {
	g := se.Router.Group("/api/v1")
	g.Bind(apis.RequireAuth())
	for _, m := range r.Middlewares {
		g.Bind(m)
	}

	admin := apis.RequireSuperuserAuth()

	// Queue endpoints
	g.GET("/queues", r.Queues.ListQueues)
	g.POST("/queues", r.Queues.CreateQueue).Bind(admin)
	g.GET("/queues/{id}", r.Queues.GetQueue)
	g.DELETE("/queues/{id}", r.Queues.DeleteQueue).Bind(admin)
	g.POST("/queues/{id}/reset", r.Queues.ResetQueue).Bind(admin)
	g.POST("/queues/{id}/activate", r.Queues.ActivateQueue).Bind(admin)
	g.POST("/queues/{id}/deactivate", r.Queues.DeactivateQueue).Bind(admin)
	g.GET("/queues/{id}/waiting", r.Queues.GetWaiting)

	// Ticket endpoints
	join := g.POST("/tickets/join", r.Tickets.Join)
	if r.JoinLimit != nil {
		join.Bind(r.JoinLimit)
	}
	g.PATCH("/tickets/next", r.Tickets.ServeNext).Bind(admin)
	g.PATCH("/tickets/{id}/complete", r.Tickets.Complete).Bind(admin)
	g.PUT("/tickets/cancel", r.Tickets.Cancel)
	g.GET("/tickets/my-ticket", r.Tickets.MyTicket)
	g.GET("/tickets/history", r.Tickets.History)
	g.GET("/tickets/stats", r.Tickets.Stats).Bind(admin)

	// Health check
	se.Router.GET("/health", r.health)

	slog.Info("queue routes registered")
}

func (r *Routes) health(e *core.RequestEvent) error {
	if r.Health == nil {
		return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}

	ctx, cancel := context.WithTimeout(e.Request.Context(), 2*time.Second)
	defer cancel()

	if err := r.Health(ctx); err != nil {
		return e.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
