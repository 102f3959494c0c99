package presence_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/presence"
)

func Test_Registry_is_empty_on_start(t *testing.T) {
	r := presence.NewRegistry(4)

	assert.False(t, r.IsActiveIn(1, 1))
	assert.Empty(t, r.ActiveRooms(1))
	assert.Equal(t, presence.Stats{}, r.Stats())
}

func Test_Registry_subscribe_then_disconnect(t *testing.T) {
	// Given
	r := presence.NewRegistry(4)
	r.Subscribe(1, "c1", 10)
	r.Subscribe(1, "c1", 11)
	require.True(t, r.IsActiveIn(1, 10))

	// When
	released := r.Disconnect(1, "c1")

	// Then
	assert.ElementsMatch(t, []domain.RoomID{10, 11}, released)
	assert.False(t, r.IsActiveIn(1, 10))
	assert.False(t, r.IsActiveIn(1, 11))
}

func Test_Registry_counts_references_per_connection(t *testing.T) {
	// Given two connections of one member on the same room
	r := presence.NewRegistry(4)
	r.Subscribe(1, "phone", 10)
	r.Subscribe(1, "laptop", 10)

	// When the first one goes away
	released := r.Disconnect(1, "phone")

	// Then the member stays active
	assert.Empty(t, released)
	assert.True(t, r.IsActiveIn(1, 10))

	// When the second unsubscribes
	stillActive := r.Unsubscribe(1, "laptop", 10)

	// Then
	assert.False(t, stillActive)
	assert.False(t, r.IsActiveIn(1, 10))
}

func Test_Registry_unsubscribe_reports_remaining_activity(t *testing.T) {
	r := presence.NewRegistry(4)
	r.Subscribe(1, "a", 10)
	r.Subscribe(1, "b", 10)

	assert.True(t, r.Unsubscribe(1, "a", 10))
	assert.False(t, r.Unsubscribe(1, "b", 10))
	assert.False(t, r.Unsubscribe(1, "b", 10))
}

func Test_Registry_disconnect_is_idempotent(t *testing.T) {
	r := presence.NewRegistry(4)
	r.Subscribe(1, "c1", 10)

	assert.Len(t, r.Disconnect(1, "c1"), 1)
	assert.Empty(t, r.Disconnect(1, "c1"))
	assert.Empty(t, r.Disconnect(99, "unknown"))
	assert.Equal(t, presence.Stats{}, r.Stats())
}

func Test_Registry_isolates_members(t *testing.T) {
	r := presence.NewRegistry(1)
	r.Subscribe(1, "c1", 10)
	r.Subscribe(2, "c2", 20)

	assert.True(t, r.IsActiveIn(1, 10))
	assert.False(t, r.IsActiveIn(1, 20))
	assert.False(t, r.IsActiveIn(2, 10))
	assert.Equal(t, presence.Stats{Members: 2, Connections: 2, Subscriptions: 2}, r.Stats())
}

func Test_Registry_survives_concurrent_use(t *testing.T) {
	r := presence.NewRegistry(8)
	var wg sync.WaitGroup
	for m := 1; m <= 50; m++ {
		wg.Add(1)
		go func(member domain.MemberID) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", member)
			for room := domain.RoomID(1); room <= 20; room++ {
				r.Subscribe(member, conn, room)
				_ = r.IsActiveIn(member, room)
			}
			r.Unsubscribe(member, conn, 1)
			r.Disconnect(member, conn)
		}(domain.MemberID(m))
	}
	wg.Wait()

	assert.Equal(t, presence.Stats{}, r.Stats())
}
