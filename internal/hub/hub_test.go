package hub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
)

func startHub(t *testing.T, cfg config.WebSocketConfig) *hub.Hub {
	t.Helper()
	h := hub.NewHub(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func receive(t *testing.T, c *hub.Client) *domain.Frame {
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

func Test_Hub_publishes_only_to_subscribers_of_destination(t *testing.T) {
	// Given
	h := startHub(t, config.WebSocketConfig{})
	ctx := context.Background()
	a := hub.NewClient(ctx, "a", h, nil)
	b := hub.NewClient(ctx, "b", h, nil)
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, "/room/1")
	h.Subscribe(b, "/room/2")

	// When
	require.NoError(t, h.Publish(ctx, "/room/1", []byte(`{"body":"hi"}`)))

	// Then
	f := receive(t, a)
	assert.Equal(t, domain.CommandMessage, f.Command)
	assert.Equal(t, "/room/1", f.Destination)
	assert.JSONEq(t, `{"body":"hi"}`, string(f.Body))
	assert.Empty(t, b.Send)
	assert.Equal(t, 1, h.SubscriberCount("/room/1"))
}

func Test_Hub_unregister_drops_subscriptions_and_closes_queue(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{})
	ctx := context.Background()
	c := hub.NewClient(ctx, "c", h, nil)
	h.Register(c)
	h.Subscribe(c, "/notify/5")
	require.NoError(t, c.SendFrame(&domain.Frame{Command: domain.CommandPong}))

	c.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.SubscriberCount("/notify/5"))

	// queued frames survive the close
	f := receive(t, c)
	assert.Equal(t, domain.CommandPong, f.Command)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.ErrorIs(t, c.SendFrame(&domain.Frame{Command: domain.CommandPong}), hub.ErrClientClosed)
}

func Test_Hub_drops_slow_clients(t *testing.T) {
	h := startHub(t, config.WebSocketConfig{SendBuffer: 1})
	ctx := context.Background()
	slow := hub.NewClient(ctx, "slow", h, nil)
	h.Register(slow)
	h.Subscribe(slow, "/room/1")

	require.NoError(t, h.Publish(ctx, "/room/1", []byte(`1`)))
	require.NoError(t, h.Publish(ctx, "/room/1", []byte(`2`)))

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func Test_Hub_publish_after_stop(t *testing.T) {
	h := hub.NewHub(config.WebSocketConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	err := h.Publish(context.Background(), "/room/1", []byte(`{}`))
	assert.ErrorIs(t, err, hub.ErrHubStopped)
}
