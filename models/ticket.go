package models

import (
	"time"
)

type TicketStatus string

const (
	StatusWaiting   TicketStatus = "waiting"
	StatusServing   TicketStatus = "serving"
	StatusServed    TicketStatus = "served"
	StatusCancelled TicketStatus = "cancelled"
)

// AllStatuses lists every ticket status in lifecycle order.
var AllStatuses = []TicketStatus{StatusWaiting, StatusServing, StatusServed, StatusCancelled}

// ActiveStatuses are the non-terminal statuses. A user holds at most one
// ticket in these statuses per queue.
var ActiveStatuses = []TicketStatus{StatusWaiting, StatusServing}

// transitions is the whole lifecycle graph; served and cancelled have no
// outgoing edges.
var transitions = map[TicketStatus][]TicketStatus{
	StatusWaiting: {StatusServing, StatusCancelled},
	StatusServing: {StatusServed, StatusCancelled},
}

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusServing, StatusServed, StatusCancelled:
		return true
	}
	return false
}

func (s TicketStatus) IsTerminal() bool {
	return s == StatusServed || s == StatusCancelled
}

func (s TicketStatus) IsActive() bool {
	return s == StatusWaiting || s == StatusServing
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TicketStatus) String() string {
	return string(s)
}

type Ticket struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	QueueID      string       `json:"queue_id"`
	TicketNumber int64        `json:"ticket_number"`
	Status       TicketStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TicketPosition is a ticket together with its live place in line.
// Position is 1-based for waiting tickets and 0 for a ticket being served.
type TicketPosition struct {
	Ticket   *Ticket `json:"ticket"`
	Position int64   `json:"position"`
}

// JoinResult is returned to a user who just joined a queue.
type JoinResult struct {
	TicketID     string `json:"ticket_id"`
	TicketNumber int64  `json:"ticket_number"`
	Position     int64  `json:"position"`
}

// MyTicket is the answer to "where am I?". Found is false when the user has
// no active ticket, which is a normal state rather than an error.
type MyTicket struct {
	Found    bool    `json:"found"`
	Ticket   *Ticket `json:"ticket,omitempty"`
	Position int64   `json:"position"`
}

type TicketStats struct {
	QueueID    string    `json:"queue_id,omitempty"`
	Total      int64     `json:"total"`
	Waiting    int64     `json:"waiting"`
	Serving    int64     `json:"serving"`
	Served     int64     `json:"served"`
	Cancelled  int64     `json:"cancelled"`
	NowServing []*Ticket `json:"now_serving"`
}
