package handlers

import (
	"context"
	"net/http"
	"strconv"

	"queue-ticket/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type QueueEngine interface {
	Join(ctx context.Context, userID, queueID string) (*models.JoinResult, error)
	ServeNext(ctx context.Context, queueID string) (*models.Ticket, error)
	CompleteTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	CancelMyTicket(ctx context.Context, userID, queueID string) (*models.Ticket, error)
	ResetQueue(ctx context.Context, queueID string) (int64, error)
	MyTicket(ctx context.Context, userID, queueID string) (*models.MyTicket, error)
	Stats(ctx context.Context, queueID string) (*models.TicketStats, error)
	ListWaiting(ctx context.Context, queueID string, limit int) ([]*models.TicketPosition, error)
	History(ctx context.Context, userID string, limit int) ([]*models.Ticket, error)
}

type TicketHandler struct {
	engine QueueEngine
}

func NewTicketHandler(engine QueueEngine) *TicketHandler {
	return &TicketHandler{engine: engine}
}

type queueRequest struct {
	QueueID string `json:"queue_id"`
}

// Join - take a ticket in a queue
func (h *TicketHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req queueRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	res, err := h.engine.Join(e.Request.Context(), e.Auth.Id, req.QueueID)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusCreated, res)
}

// ServeNext - call the next waiting ticket, optionally within one queue
func (h *TicketHandler) ServeNext(e *core.RequestEvent) error {
	var req queueRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	t, err := h.engine.ServeNext(e.Request.Context(), req.QueueID)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, t)
}

func (h *TicketHandler) Complete(e *core.RequestEvent) error {
	t, err := h.engine.CompleteTicket(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, t)
}

// Cancel - cancel the caller's active ticket
func (h *TicketHandler) Cancel(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req queueRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	t, err := h.engine.CancelMyTicket(e.Request.Context(), e.Auth.Id, req.QueueID)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, t)
}

// MyTicket - the caller's active ticket and live position
func (h *TicketHandler) MyTicket(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	mine, err := h.engine.MyTicket(e.Request.Context(), e.Auth.Id, e.Request.URL.Query().Get("queue_id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, mine)
}

func (h *TicketHandler) History(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	limit, err := queryInt(e, "limit")
	if err != nil {
		return err
	}

	tickets, err := h.engine.History(e.Request.Context(), e.Auth.Id, limit)
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) Stats(e *core.RequestEvent) error {
	st, err := h.engine.Stats(e.Request.Context(), e.Request.URL.Query().Get("queue_id"))
	if err != nil {
		return toAPIError(e, err)
	}
	return e.JSON(http.StatusOK, st)
}

func queryInt(e *core.RequestEvent, name string) (int, error) {
	raw := e.Request.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apis.NewBadRequestError("Invalid "+name, nil)
	}
	return v, nil
}
