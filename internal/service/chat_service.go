package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/chat-core/internal/audit"
	"github.com/weiawesome/wes-io-live/chat-core/internal/delivery"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-core/internal/identity"
	"github.com/weiawesome/wes-io-live/chat-core/internal/kafka"
	"github.com/weiawesome/wes-io-live/chat-core/internal/metrics"
	"github.com/weiawesome/wes-io-live/chat-core/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-core/internal/registry"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

// IdentityResolver verifies CONNECT credentials.
type IdentityResolver interface {
	Resolve(ctx context.Context, creds identity.Credentials) (domain.MemberID, error)
}

type chatService struct {
	identity IdentityResolver
	rooms    repository.RoomRepository
	presence *presence.Registry
	router   *delivery.Router
	producer kafka.MessageProducer
	registry registry.Registry
	now      func() time.Time
}

func NewChatService(
	resolver IdentityResolver,
	rooms repository.RoomRepository,
	reg *presence.Registry,
	router *delivery.Router,
	producer kafka.MessageProducer,
	online registry.Registry,
) ChatService {
	return &chatService{
		identity: resolver,
		rooms:    rooms,
		presence: reg,
		router:   router,
		producer: producer,
		registry: online,
		now:      time.Now,
	}
}

func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client, frame *domain.Frame) error {
	if c.Session.IsAuthenticated() {
		return s.sendError(ctx, c, domain.ErrAlreadyConnected)
	}

	header := frame.Header(domain.HeaderMemberID)
	if header == "" {
		return s.reject(ctx, c, domain.ErrMissingCredential)
	}

	memberID, err := s.identity.Resolve(ctx, identity.Credentials{
		MemberID: header,
		Token:    frame.Header(domain.HeaderAuthorization),
	})
	if err != nil {
		return s.reject(ctx, c, err)
	}

	if err := c.Session.Authenticate(memberID); err != nil {
		return s.sendError(ctx, c, err)
	}
	c.BindMember(memberID)
	ctx = c.Context()

	if err := s.registry.MarkOnline(ctx, memberID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to mark member online")
	}

	audit.Log(ctx, audit.ActionConnect, memberID, "connection authenticated")

	body, err := json.Marshal(domain.ConnectedBody{ConnectionID: c.ID, MemberID: memberID})
	if err != nil {
		return err
	}
	return c.SendFrame(&domain.Frame{Command: domain.CommandConnected, Body: body})
}

// reject answers a failed CONNECT with an ERROR frame and terminates the
// connection without ever authenticating the session.
func (s *chatService) reject(ctx context.Context, c *hub.Client, err error) error {
	code, _ := domain.ErrorCode(err)
	metrics.ConnectRejected.WithLabelValues(code).Inc()
	audit.LogWithDetail(ctx, audit.ActionConnectRejected, 0, code, "connection rejected")

	if sendErr := c.SendFrame(domain.NewErrorFrame(err)); sendErr != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(sendErr).Msg("failed to send connect error")
	}
	c.Session.Close()
	c.Close()
	return err
}

func (s *chatService) HandleSubscribe(ctx context.Context, c *hub.Client, frame *domain.Frame) error {
	if !c.Session.IsAuthenticated() {
		return s.sendError(ctx, c, domain.ErrNotAuthenticated)
	}
	dest, err := domain.ParseDestination(frame.Destination)
	if err != nil {
		return s.sendError(ctx, c, err)
	}
	member := c.Session.MemberID()

	switch dest.Kind {
	case domain.DestinationRoom:
		members, err := s.rooms.MemberIDs(ctx, dest.RoomID)
		if err != nil {
			return s.sendError(ctx, c, err)
		}
		if !containsMember(members, member) {
			return s.sendError(ctx, c, domain.ErrNotRoomMember)
		}
	case domain.DestinationNotify:
		if dest.MemberID != member {
			return s.sendError(ctx, c, domain.ErrForbidden)
		}
	}

	subID := frame.ID
	if subID == "" {
		subID = dest.String()
	}
	if !c.Session.AddSubscription(subID, dest) {
		return s.sendError(ctx, c, fmt.Errorf("%w: subscription %q already exists", domain.ErrInvalidFrame, subID))
	}
	c.Hub.Subscribe(c, dest.String())

	if dest.Kind == domain.DestinationRoom {
		s.presence.Subscribe(member, c.ID, dest.RoomID)
		s.observePresence()
	}

	audit.LogWithDetail(ctx, audit.ActionSubscribe, member, dest.String(), "subscribed")
	return nil
}

func (s *chatService) HandleUnsubscribe(ctx context.Context, c *hub.Client, frame *domain.Frame) error {
	if !c.Session.IsAuthenticated() {
		return s.sendError(ctx, c, domain.ErrNotAuthenticated)
	}

	subID := frame.ID
	if subID == "" && frame.Destination != "" {
		dest, err := domain.ParseDestination(frame.Destination)
		if err != nil {
			return s.sendError(ctx, c, err)
		}
		subID, _ = c.Session.FindSubscription(dest)
	}
	dest, ok := c.Session.RemoveSubscription(subID)
	if !ok {
		// Unknown subscriptions are ignored
		return nil
	}
	if c.Session.SubscribedTo(dest) {
		return nil
	}

	c.Hub.Unsubscribe(c, dest.String())
	member := c.Session.MemberID()

	if dest.Kind == domain.DestinationRoom {
		stillActive := s.presence.Unsubscribe(member, c.ID, dest.RoomID)
		s.observePresence()
		if !stillActive {
			s.markLeft(ctx, dest.RoomID, member)
		}
	}

	audit.LogWithDetail(ctx, audit.ActionUnsubscribe, member, dest.String(), "unsubscribed")
	return nil
}

func (s *chatService) HandleMessage(ctx context.Context, c *hub.Client, frame *domain.Frame) error {
	if !c.Session.IsAuthenticated() {
		return s.sendError(ctx, c, domain.ErrNotAuthenticated)
	}
	if frame.Destination != domain.DestinationSend {
		return s.sendError(ctx, c, fmt.Errorf("%w: %s", domain.ErrInvalidDestination, frame.Destination))
	}

	var in domain.InboundMessage
	if err := json.Unmarshal(frame.Body, &in); err != nil {
		return s.sendError(ctx, c, fmt.Errorf("%w: %v", domain.ErrInvalidFrame, err))
	}
	member := c.Session.MemberID()
	if in.SenderID != member {
		return s.sendError(ctx, c, domain.ErrForbidden)
	}

	result, err := s.router.HandleInboundMessage(ctx, in)
	if err != nil {
		return s.sendError(ctx, c, err)
	}

	audit.LogWithDetail(ctx, audit.ActionSendMessage, member, result.Message.ID.String(), "message sent")
	return nil
}

// HandleDisconnect runs for an explicit DISCONNECT and for a dropped
// transport alike. Only the first call for a connection has any effect.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	closed, _ := c.Session.Close()
	if !closed {
		return nil
	}
	member := c.Session.MemberID()
	if member == 0 {
		return nil
	}

	for _, room := range s.presence.Disconnect(member, c.ID) {
		s.markLeft(ctx, room, member)
	}
	s.observePresence()

	if err := s.registry.MarkOffline(ctx, member); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to mark member offline")
	}

	audit.Log(ctx, audit.ActionDisconnect, member, "connection closed")
	return nil
}

// markLeft moves the read marker once the member stops viewing the room.
func (s *chatService) markLeft(ctx context.Context, room domain.RoomID, member domain.MemberID) {
	if err := s.rooms.MarkLeft(ctx, room, member, s.now().UTC()); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Int64(log.FieldRoomID, int64(room)).Msg("failed to update read marker")
	}
}

func (s *chatService) sendError(ctx context.Context, c *hub.Client, err error) error {
	if sendErr := c.SendFrame(domain.NewErrorFrame(err)); sendErr != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(sendErr).Msg("failed to send error frame")
	}
	return err
}

func (s *chatService) observePresence() {
	stats := s.presence.Stats()
	metrics.PresenceMembers.Set(float64(stats.Members))
	metrics.PresenceSubscriptions.Set(float64(stats.Subscriptions))
}

func (s *chatService) Start(ctx context.Context) error {
	if err := s.registry.StartHeartbeat(ctx); err != nil {
		return fmt.Errorf("failed to start registry heartbeat: %w", err)
	}
	l := log.L()
	l.Info().Msg("chat service started")
	return nil
}

func (s *chatService) Stop() error {
	s.registry.StopHeartbeat()
	if err := s.producer.Close(); err != nil {
		l := log.L()
		l.Error().Err(err).Msg("failed to close kafka producer")
	}
	return nil
}
