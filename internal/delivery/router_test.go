package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/internal/delivery"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/presence"
)

type fakeRooms map[domain.RoomID][]domain.MemberID

func (f fakeRooms) MemberIDs(_ context.Context, id domain.RoomID) ([]domain.MemberID, error) {
	ids, ok := f[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return ids, nil
}

type fakeMessages struct {
	mu     sync.Mutex
	stored []domain.Message
	err    error
}

func (f *fakeMessages) Append(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	msg.ID = domain.MessageID(len(f.stored) + 1)
	f.stored = append(f.stored, *msg)
	return nil
}

func (f *fakeMessages) ListByRoom(context.Context, domain.RoomID) ([]domain.Message, error) {
	return f.stored, nil
}

func (f *fakeMessages) LastByRoom(context.Context, domain.RoomID) (*domain.Message, error) {
	return nil, domain.ErrMessageNotFound
}

func (f *fakeMessages) UnreadByMember(context.Context, domain.MemberID) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMessages) HasUnread(context.Context, domain.RoomID, domain.MemberID) (bool, error) {
	return false, nil
}

// recordingBroker records every publish. Destinations listed in block wait
// for the context to expire; those in fail return an error at once.
type recordingBroker struct {
	mu        sync.Mutex
	published map[string][][]byte
	order     []string
	block     map[string]bool
	fail      map[string]bool
}

func newBroker() *recordingBroker {
	return &recordingBroker{
		published: make(map[string][][]byte),
		block:     make(map[string]bool),
		fail:      make(map[string]bool),
	}
}

func (b *recordingBroker) Publish(ctx context.Context, destination string, payload []byte) error {
	b.mu.Lock()
	block, fail := b.block[destination], b.fail[destination]
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail {
		return errors.New("broker unavailable")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[destination] = append(b.published[destination], payload)
	b.order = append(b.order, destination)
	return nil
}

func (b *recordingBroker) count(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[destination])
}

type recordingEvents struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (e *recordingEvents) ProduceMessage(_ context.Context, msg *domain.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, *msg)
	return nil
}

type fixture struct {
	router   *delivery.Router
	messages *fakeMessages
	broker   *recordingBroker
	presence *presence.Registry
	events   *recordingEvents
}

func newFixture(rooms fakeRooms, timeout time.Duration) *fixture {
	f := &fixture{
		messages: &fakeMessages{},
		broker:   newBroker(),
		presence: presence.NewRegistry(4),
		events:   &recordingEvents{},
	}
	f.router = delivery.NewRouter(rooms, f.messages, f.presence, f.broker, f.events, timeout)
	return f
}

func Test_Router_persists_then_broadcasts_and_notifies_passive_members(t *testing.T) {
	// Given room 1 with members 1, 2, 3 where 2 is viewing the room
	f := newFixture(fakeRooms{1: {1, 2, 3}}, time.Second)
	f.presence.Subscribe(2, "conn-2", 1)

	// When member 1 sends a message
	res, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{
		RoomID:   1,
		SenderID: 1,
		Body:     "hello",
	})

	// Then
	require.NoError(t, err)
	require.Len(t, f.messages.stored, 1)
	assert.Equal(t, domain.MessageID(1), res.Message.ID)
	assert.Equal(t, domain.MessageTypeText, res.Message.Type)
	assert.False(t, res.Message.SentAt.IsZero())

	assert.True(t, res.RoomDelivered)
	require.Equal(t, 1, f.broker.count("/room/1"))
	var broadcast domain.Message
	require.NoError(t, json.Unmarshal(f.broker.published["/room/1"][0], &broadcast))
	assert.Equal(t, "hello", broadcast.Body)
	assert.Equal(t, domain.MemberID(1), broadcast.SenderID)

	assert.Equal(t, []domain.MemberID{2}, res.Active)
	assert.Equal(t, []domain.MemberID{3}, res.Passive)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 0, f.broker.count("/notify/1"))
	assert.Equal(t, 0, f.broker.count("/notify/2"))
	require.Equal(t, 1, f.broker.count("/notify/3"))

	var note domain.Message
	require.NoError(t, json.Unmarshal(f.broker.published["/notify/3"][0], &note))
	assert.Equal(t, domain.RoomID(1), note.RoomID)
	assert.Equal(t, res.Message.ID, note.ID)
	assert.Equal(t, "hello", note.Body)

	assert.Equal(t, "/room/1", f.broker.order[0])
	require.Len(t, f.events.msgs, 1)
}

func Test_Router_rejects_sender_outside_room(t *testing.T) {
	f := newFixture(fakeRooms{1: {1, 2}}, time.Second)

	_, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{RoomID: 1, SenderID: 9, Body: "x"})

	assert.ErrorIs(t, err, domain.ErrNotRoomMember)
	assert.Empty(t, f.messages.stored)
	assert.Empty(t, f.broker.order)
}

func Test_Router_unknown_room(t *testing.T) {
	f := newFixture(fakeRooms{}, time.Second)

	_, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{RoomID: 4, SenderID: 1, Body: "x"})

	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Empty(t, f.broker.order)
}

func Test_Router_does_not_deliver_when_persist_fails(t *testing.T) {
	f := newFixture(fakeRooms{1: {1, 2}}, time.Second)
	f.messages.err = errors.New("disk full")

	_, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{RoomID: 1, SenderID: 1, Body: "x"})

	require.Error(t, err)
	assert.Empty(t, f.broker.order)
	assert.Empty(t, f.events.msgs)
}

func Test_Router_notification_failures_are_not_returned(t *testing.T) {
	// Given member 2 cannot be reached and member 3 never acknowledges
	f := newFixture(fakeRooms{1: {1, 2, 3, 4}}, 50*time.Millisecond)
	f.broker.fail["/notify/2"] = true
	f.broker.block["/notify/3"] = true

	// When
	start := time.Now()
	res, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{RoomID: 1, SenderID: 1, Body: "x"})

	// Then the message is stored and the failures are only reported in the result
	require.NoError(t, err)
	assert.Len(t, f.messages.stored, 1)
	assert.ElementsMatch(t, []domain.MemberID{2, 3}, res.Failed)
	assert.Equal(t, 1, f.broker.count("/notify/4"))
	assert.Less(t, time.Since(start), time.Second)
}

func Test_Router_room_broadcast_failure_keeps_message(t *testing.T) {
	f := newFixture(fakeRooms{1: {1, 2}}, time.Second)
	f.broker.fail["/room/1"] = true

	res, err := f.router.HandleInboundMessage(context.Background(), domain.InboundMessage{RoomID: 1, SenderID: 1, Body: "x"})

	require.NoError(t, err)
	assert.False(t, res.RoomDelivered)
	assert.Len(t, f.messages.stored, 1)
	assert.Equal(t, 1, f.broker.count("/notify/2"))
}

func Test_Partition_covers_members_except_sender(t *testing.T) {
	active, passive := delivery.Partition(
		[]domain.MemberID{1, 2, 3, 4, 3},
		1,
		func(m domain.MemberID) bool { return m%2 == 0 },
	)

	assert.Equal(t, []domain.MemberID{2, 4}, active)
	assert.Equal(t, []domain.MemberID{3}, passive)
}

func Test_Partition_sender_only(t *testing.T) {
	active, passive := delivery.Partition([]domain.MemberID{1}, 1, func(domain.MemberID) bool { return true })

	assert.Empty(t, active)
	assert.Empty(t, passive)
}
