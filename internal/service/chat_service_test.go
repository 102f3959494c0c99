package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/delivery"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-core/internal/identity"
	"github.com/weiawesome/wes-io-live/chat-core/internal/kafka"
	"github.com/weiawesome/wes-io-live/chat-core/internal/presence"
	"github.com/weiawesome/wes-io-live/chat-core/internal/registry"
	"github.com/weiawesome/wes-io-live/chat-core/internal/service"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
)

type chatEnv struct {
	*testEnv
	hub      *hub.Hub
	presence *presence.Registry
	online   *registry.LocalRegistry
	chat     service.ChatService
	room     domain.RoomID
}

// newChatEnv seeds members 1, 2 and 3 and a room shared by 1 and 2.
func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()
	env := &chatEnv{testEnv: newTestEnv(t, 1, 2, 3)}

	env.hub = hub.NewHub(config.WebSocketConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go env.hub.Run(ctx)
	t.Cleanup(cancel)

	manager, err := jwt.NewManager(time.Minute, time.Hour, "chat-core")
	require.NoError(t, err)
	resolver := identity.NewResolver(manager, env.members, false)

	env.presence = presence.NewRegistry(4)
	env.online = registry.NewLocalRegistry("node-a")
	router := delivery.NewRouter(env.rooms, env.messages, env.presence, env.hub, kafka.NoopProducer{}, time.Second)
	env.chat = service.NewChatService(resolver, env.rooms, env.presence, router, kafka.NoopProducer{}, env.online)

	room, err := env.roomService(nil).ResolveOrCreateRoom(context.Background(), 0, []domain.MemberID{1, 2})
	require.NoError(t, err)
	env.room = room.RoomID
	return env
}

func (e *chatEnv) newClient(id string) *hub.Client {
	c := hub.NewClient(context.Background(), id, e.hub, nil)
	e.hub.Register(c)
	return c
}

func (e *chatEnv) connect(t *testing.T, c *hub.Client, member string) {
	t.Helper()
	require.NoError(t, e.chat.HandleConnect(c.Context(), c, &domain.Frame{
		Command: domain.CommandConnect,
		Headers: map[string]string{domain.HeaderMemberID: member},
	}))
	f := nextFrame(t, c)
	require.Equal(t, domain.CommandConnected, f.Command)
}

func nextFrame(t *testing.T, c *hub.Client) *domain.Frame {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		var f domain.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return &f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func errorCode(t *testing.T, f *domain.Frame) string {
	t.Helper()
	require.Equal(t, domain.CommandError, f.Command)
	var body domain.ErrorBody
	require.NoError(t, json.Unmarshal(f.Body, &body))
	return body.Code
}

func Test_ChatService_connect_without_member_id_is_rejected(t *testing.T) {
	// Given
	env := newChatEnv(t)
	c := env.newClient("c1")

	// When
	err := env.chat.HandleConnect(c.Context(), c, &domain.Frame{Command: domain.CommandConnect})

	// Then
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Equal(t, domain.CodeMissingCredential, errorCode(t, nextFrame(t, c)))
	assert.True(t, c.Session.IsClosed())
	require.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func Test_ChatService_connect_unknown_member_is_rejected(t *testing.T) {
	env := newChatEnv(t)
	c := env.newClient("c1")

	err := env.chat.HandleConnect(c.Context(), c, &domain.Frame{
		Command: domain.CommandConnect,
		Headers: map[string]string{domain.HeaderMemberID: "77"},
	})

	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Equal(t, domain.CodeMemberNotFound, errorCode(t, nextFrame(t, c)))
	assert.True(t, c.Session.IsClosed())
}

func Test_ChatService_connect_binds_member(t *testing.T) {
	env := newChatEnv(t)
	c := env.newClient("c1")

	env.connect(t, c, "1")

	assert.True(t, c.Session.IsAuthenticated())
	assert.Equal(t, domain.MemberID(1), c.Session.MemberID())
	instance, err := env.online.Lookup(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "node-a", instance)

	// a second CONNECT on the same connection is refused
	_ = env.chat.HandleConnect(c.Context(), c, &domain.Frame{
		Command: domain.CommandConnect,
		Headers: map[string]string{domain.HeaderMemberID: "1"},
	})
	assert.Equal(t, domain.CodeBadRequest, errorCode(t, nextFrame(t, c)))
}

func Test_ChatService_subscribe_requires_authentication(t *testing.T) {
	env := newChatEnv(t)
	c := env.newClient("c1")

	err := env.chat.HandleSubscribe(c.Context(), c, &domain.Frame{
		Command:     domain.CommandSubscribe,
		Destination: domain.RoomDestination(env.room),
	})

	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, domain.CodeUnauthorized, errorCode(t, nextFrame(t, c)))
}

func Test_ChatService_subscribe_authorisation(t *testing.T) {
	env := newChatEnv(t)
	c := env.newClient("c3")
	env.connect(t, c, "3")
	ctx := c.Context()

	err := env.chat.HandleSubscribe(ctx, c, &domain.Frame{Destination: domain.RoomDestination(env.room), ID: "s1"})
	assert.ErrorIs(t, err, domain.ErrNotRoomMember)
	assert.Equal(t, domain.CodeNotRoomMember, errorCode(t, nextFrame(t, c)))

	err = env.chat.HandleSubscribe(ctx, c, &domain.Frame{Destination: "/room/999", ID: "s2"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, domain.CodeRoomNotFound, errorCode(t, nextFrame(t, c)))

	err = env.chat.HandleSubscribe(ctx, c, &domain.Frame{Destination: domain.NotifyDestination(1), ID: "s3"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.CodeForbidden, errorCode(t, nextFrame(t, c)))

	require.NoError(t, env.chat.HandleSubscribe(ctx, c, &domain.Frame{Destination: domain.NotifyDestination(3), ID: "s4"}))
	assert.Equal(t, 1, env.hub.SubscriberCount("/notify/3"))
}

func Test_ChatService_message_reaches_active_and_passive_members(t *testing.T) {
	// Given member 1 viewing the room and member 2 only on its notify stream
	env := newChatEnv(t)
	one := env.newClient("c1")
	two := env.newClient("c2")
	env.connect(t, one, "1")
	env.connect(t, two, "2")
	require.NoError(t, env.chat.HandleSubscribe(one.Context(), one, &domain.Frame{Destination: domain.RoomDestination(env.room), ID: "r"}))
	require.NoError(t, env.chat.HandleSubscribe(two.Context(), two, &domain.Frame{Destination: domain.NotifyDestination(2), ID: "n"}))

	// When member 1 sends
	body, err := json.Marshal(domain.InboundMessage{RoomID: env.room, SenderID: 1, Body: "hi"})
	require.NoError(t, err)
	require.NoError(t, env.chat.HandleMessage(one.Context(), one, &domain.Frame{
		Command:     domain.CommandMessage,
		Destination: domain.DestinationSend,
		Body:        body,
	}))

	// Then the room stream carries it and member 2 is notified
	f := nextFrame(t, one)
	assert.Equal(t, domain.RoomDestination(env.room), f.Destination)
	var msg domain.Message
	require.NoError(t, json.Unmarshal(f.Body, &msg))
	assert.Equal(t, "hi", msg.Body)

	f = nextFrame(t, two)
	assert.Equal(t, domain.NotifyDestination(2), f.Destination)

	history, err := env.messages.ListByRoom(context.Background(), env.room)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func Test_ChatService_message_sender_must_be_bound_member(t *testing.T) {
	env := newChatEnv(t)
	c := env.newClient("c1")
	env.connect(t, c, "1")

	body, err := json.Marshal(domain.InboundMessage{RoomID: env.room, SenderID: 2, Body: "spoof"})
	require.NoError(t, err)
	err = env.chat.HandleMessage(c.Context(), c, &domain.Frame{Destination: domain.DestinationSend, Body: body})

	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.CodeForbidden, errorCode(t, nextFrame(t, c)))
	history, err := env.messages.ListByRoom(context.Background(), env.room)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func Test_ChatService_disconnect_releases_presence_and_marks_read(t *testing.T) {
	// Given member 2 viewing the room from one connection
	env := newChatEnv(t)
	c := env.newClient("c2")
	env.connect(t, c, "2")
	require.NoError(t, env.chat.HandleSubscribe(c.Context(), c, &domain.Frame{Destination: domain.RoomDestination(env.room), ID: "r"}))
	env.send(t, env.room, 1, "while viewing")
	require.True(t, env.presence.IsActiveIn(2, env.room))

	// When the transport drops, twice
	require.NoError(t, env.chat.HandleDisconnect(c.Context(), c))
	require.NoError(t, env.chat.HandleDisconnect(c.Context(), c))

	// Then
	assert.False(t, env.presence.IsActiveIn(2, env.room))
	assert.True(t, c.Session.IsClosed())
	unread, err := env.messages.HasUnread(context.Background(), env.room, 2)
	require.NoError(t, err)
	assert.False(t, unread)
	_, err = env.online.Lookup(context.Background(), 2)
	assert.ErrorIs(t, err, registry.ErrNotOnline)
}

func Test_ChatService_unsubscribe_keeps_presence_of_other_connection(t *testing.T) {
	env := newChatEnv(t)
	a := env.newClient("a")
	b := env.newClient("b")
	env.connect(t, a, "2")
	env.connect(t, b, "2")
	dest := domain.RoomDestination(env.room)
	require.NoError(t, env.chat.HandleSubscribe(a.Context(), a, &domain.Frame{Destination: dest, ID: "r"}))
	require.NoError(t, env.chat.HandleSubscribe(b.Context(), b, &domain.Frame{Destination: dest, ID: "r"}))

	require.NoError(t, env.chat.HandleUnsubscribe(a.Context(), a, &domain.Frame{ID: "r"}))
	assert.True(t, env.presence.IsActiveIn(2, env.room))

	require.NoError(t, env.chat.HandleUnsubscribe(b.Context(), b, &domain.Frame{Destination: dest}))
	assert.False(t, env.presence.IsActiveIn(2, env.room))
	assert.Equal(t, 0, env.hub.SubscriberCount(dest))
}
