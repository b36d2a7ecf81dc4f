package handlers

import (
	"context"
	"net/http"

	"queue-ticket/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type QueueRegistry interface {
	CreateQueue(ctx context.Context, name string) (*models.Queue, error)
	GetQueue(ctx context.Context, id string) (*models.Queue, error)
	ListActiveQueues(ctx context.Context) ([]*models.Queue, error)
	ListQueues(ctx context.Context) ([]*models.Queue, error)
	Activate(ctx context.Context, id string) (*models.Queue, error)
	Deactivate(ctx context.Context, id string) (*models.Queue, error)
	Delete(ctx context.Context, id string) error
}

type QueueHandler struct {
	registry QueueRegistry
	engine   QueueEngine
}

func NewQueueHandler(registry QueueRegistry, engine QueueEngine) *QueueHandler {
	return &QueueHandler{
		registry: registry,
		engine:   engine,
	}
}

// ListQueues returns active queues; superusers may pass ?all=true.
func (h *QueueHandler) ListQueues(e *core.RequestEvent) error {
	list := h.registry.ListActiveQueues
	if e.Request.URL.Query().Get("all") == "true" && e.HasSuperuserAuth() {
		list = h.registry.ListQueues
	}

	queues, err := list(e.Request.Context())
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, queues)
}

func (h *QueueHandler) CreateQueue(e *core.RequestEvent) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	q, err := h.registry.CreateQueue(e.Request.Context(), req.Name)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusCreated, q)
}

func (h *QueueHandler) GetQueue(e *core.RequestEvent) error {
	q, err := h.registry.GetQueue(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, q)
}

func (h *QueueHandler) DeleteQueue(e *core.RequestEvent) error {
	if err := h.registry.Delete(e.Request.Context(), e.Request.PathValue("id")); err != nil {
		return toAPIError(e, err)
	}
	return e.NoContent(http.StatusNoContent)
}

func (h *QueueHandler) ActivateQueue(e *core.RequestEvent) error {
	q, err := h.registry.Activate(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, q)
}

func (h *QueueHandler) DeactivateQueue(e *core.RequestEvent) error {
	q, err := h.registry.Deactivate(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, q)
}

func (h *QueueHandler) ResetQueue(e *core.RequestEvent) error {
	queueID := e.Request.PathValue("id")
	n, err := h.engine.ResetQueue(e.Request.Context(), queueID)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{"queue_id": queueID, "cancelled": n})
}

// GetWaiting lists the waiting line of a queue, ?limit= caps its length.
func (h *QueueHandler) GetWaiting(e *core.RequestEvent) error {
	limit, err := queryInt(e, "limit")
	if err != nil {
		return err
	}

	line, err := h.engine.ListWaiting(e.Request.Context(), e.Request.PathValue("id"), limit)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, line)
}
