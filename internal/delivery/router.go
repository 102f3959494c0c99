package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/metrics"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

const defaultNotifyTimeout = 2 * time.Second

// Broker publishes a payload to every subscriber of a destination.
type Broker interface {
	Publish(ctx context.Context, destination string, payload []byte) error
}

// RoomDirectory resolves the member set of a room.
type RoomDirectory interface {
	MemberIDs(ctx context.Context, id domain.RoomID) ([]domain.MemberID, error)
}

// Presence answers whether a member is currently viewing a room.
type Presence interface {
	IsActiveIn(member domain.MemberID, room domain.RoomID) bool
}

// EventProducer emits persisted messages to downstream consumers.
type EventProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
}

// Result describes what happened to one inbound message.
type Result struct {
	Message       *domain.Message
	Active        []domain.MemberID
	Passive       []domain.MemberID
	Failed        []domain.MemberID
	RoomDelivered bool
}

// Router persists inbound messages and fans them out: the full message to
// the room stream, and a notification to members not viewing the room.
type Router struct {
	rooms         RoomDirectory
	messages      repository.MessageRepository
	presence      Presence
	broker        Broker
	events        EventProducer
	notifyTimeout time.Duration
	now           func() time.Time
}

func NewRouter(
	rooms RoomDirectory,
	messages repository.MessageRepository,
	presence Presence,
	broker Broker,
	events EventProducer,
	notifyTimeout time.Duration,
) *Router {
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &Router{
		rooms:         rooms,
		messages:      messages,
		presence:      presence,
		broker:        broker,
		events:        events,
		notifyTimeout: notifyTimeout,
		now:           time.Now,
	}
}

// HandleInboundMessage stores the message and then delivers it. Errors are
// returned only when nothing was stored; delivery failures end up in the
// result and the log.
func (r *Router) HandleInboundMessage(ctx context.Context, in domain.InboundMessage) (*Result, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	members, err := r.rooms.MemberIDs(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}
	if !contains(members, in.SenderID) {
		return nil, domain.ErrNotRoomMember
	}

	msg := &domain.Message{
		RoomID:   in.RoomID,
		SenderID: in.SenderID,
		Body:     in.Body,
		Type:     in.Type,
		SentAt:   r.now().UTC(),
	}
	if err := r.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.WithLabelValues(string(domain.KindFor(len(members)))).Inc()

	ctx = log.With(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Int64(log.FieldRoomID, int64(msg.RoomID)).Int64(log.FieldMessageID, int64(msg.ID))
	})
	l := log.Ctx(ctx)

	result := &Result{Message: msg}
	payload, err := json.Marshal(msg)
	if err != nil {
		l.Error().Err(err).Msg("failed to encode message payload")
		return result, nil
	}
	result.RoomDelivered = r.broadcast(ctx, msg.RoomID, payload)

	result.Active, result.Passive = Partition(members, msg.SenderID, func(m domain.MemberID) bool {
		return r.presence.IsActiveIn(m, msg.RoomID)
	})
	result.Failed = r.notify(ctx, payload, result.Passive)

	if r.events != nil {
		if err := r.events.ProduceMessage(ctx, msg); err != nil {
			l.Warn().Err(err).Msg("failed to emit message event")
		}
	}

	metrics.DeliveryLatency.Observe(time.Since(start).Seconds())
	l.Debug().
		Int("active", len(result.Active)).
		Int("passive", len(result.Passive)).
		Int("failed", len(result.Failed)).
		Msg("message delivered")
	return result, nil
}

func (r *Router) broadcast(ctx context.Context, room domain.RoomID, payload []byte) bool {
	if err := r.broker.Publish(ctx, domain.RoomDestination(room), payload); err != nil {
		metrics.Deliveries.WithLabelValues(metrics.TargetRoom, metrics.OutcomeFailed).Inc()
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("room broadcast failed")
		return false
	}
	metrics.Deliveries.WithLabelValues(metrics.TargetRoom, metrics.OutcomeOK).Inc()
	return true
}

// notify signals every passive member concurrently, each bounded by its own
// timeout, and returns the members that were not reached. The payload has
// the shape of the room message; clients treat it as an unread signal.
func (r *Router) notify(ctx context.Context, payload []byte, passive []domain.MemberID) []domain.MemberID {
	if len(passive) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		failed []domain.MemberID
		wg     sync.WaitGroup
	)
	for _, member := range passive {
		wg.Add(1)
		go func(member domain.MemberID) {
			defer wg.Done()
			if err := r.notifyOne(ctx, member, payload); err != nil {
				mu.Lock()
				failed = append(failed, member)
				mu.Unlock()
			}
		}(member)
	}
	wg.Wait()
	return failed
}

func (r *Router) notifyOne(ctx context.Context, member domain.MemberID, payload []byte) error {
	nctx, cancel := context.WithTimeout(ctx, r.notifyTimeout)
	defer cancel()

	err := r.broker.Publish(nctx, domain.NotifyDestination(member), payload)
	if err == nil {
		metrics.Deliveries.WithLabelValues(metrics.TargetNotify, metrics.OutcomeOK).Inc()
		return nil
	}

	outcome := metrics.OutcomeFailed
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = metrics.OutcomeTimeout
	}
	metrics.Deliveries.WithLabelValues(metrics.TargetNotify, outcome).Inc()

	err = fmt.Errorf("%w: %v", domain.ErrDeliveryFailure, err)
	l := log.Ctx(ctx)
	l.Warn().Err(err).Int64(log.FieldMemberID, int64(member)).Str("outcome", outcome).Msg("notification not delivered")
	return err
}

// Partition splits the room members other than sender into those active in
// the room and those that are not. The two sets are disjoint and together
// cover every member except the sender.
func Partition(members []domain.MemberID, sender domain.MemberID, isActive func(domain.MemberID) bool) (active, passive []domain.MemberID) {
	seen := make(map[domain.MemberID]struct{}, len(members))
	for _, m := range members {
		if m == sender {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		if isActive(m) {
			active = append(active, m)
		} else {
			passive = append(passive, m)
		}
	}
	return active, passive
}

func contains(ids []domain.MemberID, id domain.MemberID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
