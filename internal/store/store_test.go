package store

import (
	"testing"

	"queue-ticket/models"

	"github.com/stretchr/testify/assert"
)

func TestTicketFilter_Match(t *testing.T) {
	ticket := &models.Ticket{ID: "t1", UserID: "alice", QueueID: "q1", TicketNumber: 5, Status: models.StatusWaiting}

	tests := []struct {
		name   string
		filter TicketFilter
		want   bool
	}{
		{"empty filter matches everything", TicketFilter{}, true},
		{"by id", TicketFilter{ID: "t1"}, true},
		{"other id", TicketFilter{ID: "t2"}, false},
		{"by user and queue", TicketFilter{UserID: "alice", QueueID: "q1"}, true},
		{"other queue", TicketFilter{UserID: "alice", QueueID: "q2"}, false},
		{"active statuses", TicketFilter{Statuses: models.ActiveStatuses}, true},
		{"terminal statuses", TicketFilter{Statuses: []models.TicketStatus{models.StatusServed, models.StatusCancelled}}, false},
		{"number below", TicketFilter{NumberBelow: 6}, true},
		{"number not below", TicketFilter{NumberBelow: 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(ticket))
		})
	}
}
