package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pocketbase/pocketbase/tools/subscriptions"
)

// Realtime pushes events to PocketBase realtime (SSE) clients subscribed to
// the event name, e.g. "ticket:update".
type Realtime struct {
	broker *subscriptions.Broker
	*dispatcher
}

func NewRealtime(broker *subscriptions.Broker) *Realtime {
	r := &Realtime{broker: broker}
	r.dispatcher = newDispatcher("realtime", r.send)
	return r
}

func (r *Realtime) Publish(_ context.Context, event string, payload any) {
	r.enqueue(event, payload)
}

func (r *Realtime) send(_ context.Context, m message) error {
	data, err := json.Marshal(m.payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.event, err)
	}

	msg := subscriptions.Message{Name: m.event, Data: data}
	for _, client := range r.broker.Clients() {
		if client.IsDiscarded() || !client.HasSubscription(m.event) {
			continue
		}
		client.Send(msg)
	}
	return nil
}
