package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to TicketStatus
		want     bool
	}{
		{StatusWaiting, StatusServing, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusWaiting, StatusServed, false},
		{StatusServing, StatusServed, true},
		{StatusServing, StatusCancelled, true},
		{StatusServing, StatusWaiting, false},
		{StatusServed, StatusCancelled, false},
		{StatusServed, StatusWaiting, false},
		{StatusCancelled, StatusWaiting, false},
		{StatusCancelled, StatusServing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTicketStatus_Classification(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.Valid(), s)
		assert.NotEqual(t, s.IsActive(), s.IsTerminal(), s)
	}

	assert.False(t, TicketStatus("done").Valid())
	assert.ElementsMatch(t, []TicketStatus{StatusWaiting, StatusServing}, ActiveStatuses)
}

func TestTicketUpdate_JSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(TicketUpdate{Type: TicketsReset, QueueID: "q1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reset","queue_id":"q1"}`, string(data))

	data, err = json.Marshal(QueueUpdate{Type: QueueDeleted, QueueID: "q1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete","queue_id":"q1"}`, string(data))
}

func TestMyTicket_NotFoundOmitsTicket(t *testing.T) {
	data, err := json.Marshal(MyTicket{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"found":false,"position":0}`, string(data))
}
