// Package broadcast fans queue and ticket events out to observers. Delivery is
// best effort: failures are logged and never reach the caller, and a
// subscriber that misses an event reconciles by querying again.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type Broadcaster interface {
	Publish(ctx context.Context, event string, payload any)
}

// Envelope is the JSON body sent over channels that carry every event type.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Nop struct{}

func (Nop) Publish(context.Context, string, any) {}

// Multi publishes each event to every broadcaster in order.
type Multi []Broadcaster

func (m Multi) Publish(ctx context.Context, event string, payload any) {
	for _, b := range m {
		b.Publish(ctx, event, payload)
	}
}

type message struct {
	event   string
	payload any
}

// dispatcher serializes deliveries for one transport on a single goroutine,
// which keeps publish order per subscriber and keeps slow network calls off
// the request path.
type dispatcher struct {
	name    string
	queue   chan message
	deliver func(ctx context.Context, m message) error
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

const (
	defaultBuffer      = 256
	defaultSendTimeout = 5 * time.Second
)

func newDispatcher(name string, deliver func(ctx context.Context, m message) error) *dispatcher {
	d := &dispatcher{
		name:    name,
		queue:   make(chan message, defaultBuffer),
		deliver: deliver,
		timeout: defaultSendTimeout,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(event string, payload any) {
	defer func() {
		// Publishing after Close is a no-op.
		if recover() != nil {
			slog.Warn("broadcast after close dropped", "transport", d.name, "event", event)
		}
	}()

	select {
	case d.queue <- message{event: event, payload: payload}:
	default:
		slog.Warn("broadcast queue full, event dropped", "transport", d.name, "event", event)
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for m := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.deliver(ctx, m); err != nil {
			slog.Error("broadcast failed", "transport", d.name, "event", m.event, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.queue) })
	<-d.done
}

func marshalEnvelope(m message) ([]byte, error) {
	return json.Marshal(Envelope{Event: m.event, Data: m.payload})
}

// Close flushes every member that buffers events.
func (m Multi) Close() {
	for _, b := range m {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
