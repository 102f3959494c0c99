package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-live/chat-core/internal/delivery"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/pubsub"
)

// Relay fans deliveries out across instances. Publish delivers to local
// subscribers at once and forwards the payload on the bus; Run feeds the
// events published by other instances into the local broker.
//
// Only deliveries cross instances, not presence. A member viewing a room
// through another instance is passive to this one's router and may get a
// notify next to the relayed room broadcast.
type Relay struct {
	bus      pubsub.PubSub
	local    delivery.Broker
	instance string
	doneCh   chan struct{}
}

func New(bus pubsub.PubSub, local delivery.Broker, instance string) *Relay {
	return &Relay{
		bus:      bus,
		local:    local,
		instance: instance,
		doneCh:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run exits.
func (r *Relay) Done() <-chan struct{} { return r.doneCh }

func (r *Relay) Publish(ctx context.Context, destination string, payload []byte) error {
	channel, eventType, err := channelFor(destination)
	if err != nil {
		return err
	}
	if err := r.local.Publish(ctx, destination, payload); err != nil {
		return err
	}

	evt, err := pubsub.NewEvent(eventType, destination, json.RawMessage(payload))
	if err != nil {
		return err
	}
	evt.Origin = r.instance
	if err := r.bus.Publish(ctx, channel, evt); err != nil {
		return fmt.Errorf("failed to relay %s: %w", destination, err)
	}
	return nil
}

// Run relays remote events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	defer close(r.doneCh)

	rooms, err := r.bus.SubscribePattern(ctx, pubsub.PatternRoom)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room channels: %w", err)
	}
	notifications, err := r.bus.SubscribePattern(ctx, pubsub.PatternNotify)
	if err != nil {
		return fmt.Errorf("failed to subscribe to notify channels: %w", err)
	}

	l := log.L()
	l.Info().Str("instance", r.instance).Msg("relay started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-rooms:
			if !ok {
				return nil
			}
			r.deliver(ctx, evt)
		case evt, ok := <-notifications:
			if !ok {
				return nil
			}
			r.deliver(ctx, evt)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, evt *pubsub.Event) {
	if evt == nil || evt.Origin == r.instance {
		return
	}
	if err := r.local.Publish(ctx, evt.Destination, evt.Payload); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldDestination, evt.Destination).Str("origin", evt.Origin).Msg("failed to deliver relayed event")
	}
}

func channelFor(destination string) (channel, eventType string, err error) {
	dest, err := domain.ParseDestination(destination)
	if err != nil {
		return "", "", err
	}
	switch dest.Kind {
	case domain.DestinationRoom:
		return pubsub.RoomChannel(dest.RoomID.String()), pubsub.EventRoomMessage, nil
	case domain.DestinationNotify:
		return pubsub.NotifyChannel(dest.MemberID.String()), pubsub.EventNotification, nil
	default:
		return "", "", domain.ErrInvalidDestination
	}
}
