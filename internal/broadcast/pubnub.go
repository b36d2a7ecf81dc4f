package broadcast

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go"
)

// PubNub publishes every event as an Envelope on one channel.
type PubNub struct {
	channel string
	publish func(channel string, msg any) error
	*dispatcher
}

func NewPubNub(pn *pubnub.PubNub, channel string) *PubNub {
	return newPubNub(channel, func(ch string, msg any) error {
		_, st, err := pn.Publish().
			Channel(ch).
			Message(msg).
			Execute()
		if err != nil {
			return err
		}
		if st.Error != nil {
			return st.Error
		}
		return nil
	})
}

func newPubNub(channel string, publish func(channel string, msg any) error) *PubNub {
	p := &PubNub{channel: channel, publish: publish}
	p.dispatcher = newDispatcher("pubnub", p.send)
	return p
}

func (p *PubNub) Publish(_ context.Context, event string, payload any) {
	p.enqueue(event, payload)
}

func (p *PubNub) send(_ context.Context, m message) error {
	if err := p.publish(p.channel, Envelope{Event: m.event, Data: m.payload}); err != nil {
		return fmt.Errorf("pubnub publish to %s: %w", p.channel, err)
	}
	return nil
}

// NewPubNubClient builds a PubNub client the way the server config describes it.
func NewPubNubClient(publishKey, subscribeKey, secretKey, userID string) *pubnub.PubNub {
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = publishKey
	pnConfig.SubscribeKey = subscribeKey
	pnConfig.SecretKey = secretKey
	pnConfig.UUID = userID

	return pubnub.NewPubNub(pnConfig)
}
