package models

// Event names published on every state change. Subscribers treat them as a
// hint to re-query; payloads are never authoritative.
const (
	EventQueueUpdate  = "queue:update"
	EventTicketUpdate = "ticket:update"
)

type QueueUpdateType string

const (
	QueueCreated QueueUpdateType = "create"
	QueueUpdated QueueUpdateType = "update"
	QueueDeleted QueueUpdateType = "delete"
)

type TicketUpdateType string

const (
	TicketJoined    TicketUpdateType = "join"
	TicketServed    TicketUpdateType = "serve"
	TicketCompleted TicketUpdateType = "complete"
	TicketCancelled TicketUpdateType = "cancel"
	TicketsReset    TicketUpdateType = "reset"
)

type QueueUpdate struct {
	Type    QueueUpdateType `json:"type"`
	Queue   *Queue          `json:"queue,omitempty"`
	QueueID string          `json:"queue_id,omitempty"`
}

type TicketUpdate struct {
	Type    TicketUpdateType `json:"type"`
	Ticket  *Ticket          `json:"ticket,omitempty"`
	QueueID string           `json:"queue_id,omitempty"`
}
