package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-live/chat-core/internal/config"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

var ErrHubStopped = errors.New("hub stopped")

// Hub owns the live connections of this instance and fans frames out to
// every client subscribed to a destination.
type Hub struct {
	clients      map[string]*Client            // clientID -> client
	destinations map[string]map[string]*Client // destination -> clientID -> client
	unregister   chan *Client
	broadcast    chan *DestinationMessage
	done         chan struct{}
	mu           sync.RWMutex
	config       config.WebSocketConfig
}

type DestinationMessage struct {
	Destination string
	Message     []byte
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		destinations: make(map[string]map[string]*Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *DestinationMessage, 256),
		done:         make(chan struct{}),
		config:       cfg,
	}
}

// Run processes unregistrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.destinations[msg.Destination] {
				if !client.enqueue(msg.Message) {
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				l := log.L()
				l.Warn().Str(log.FieldConnectionID, client.ID).Str(log.FieldDestination, msg.Destination).Msg("dropping slow client")
				h.remove(client)
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		for dest, subs := range h.destinations {
			delete(subs, client.ID)
			if len(subs) == 0 {
				delete(h.destinations, dest)
			}
		}
		delete(h.clients, client.ID)
		client.closeSend()
	}
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	h.destinations = make(map[string]map[string]*Client)
}

// Register adds the client. It is synchronous so that a subscription made
// right after registration is never lost.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		client.closeSend()
		return
	default:
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

// Unregister detaches the client and closes its send queue. Frames already
// queued are still written before the connection closes.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe attaches the client to a destination.
func (h *Hub) Subscribe(client *Client, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.destinations[destination]; !ok {
		h.destinations[destination] = make(map[string]*Client)
	}
	h.destinations[destination][client.ID] = client
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Str(log.FieldDestination, destination).Msg("client subscribed")
}

// Unsubscribe detaches the client from a destination.
func (h *Hub) Unsubscribe(client *Client, destination string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.destinations[destination]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.destinations, destination)
		}
	}
}

// Publish sends payload as a MESSAGE frame to every local subscriber of
// destination. It blocks only while the broadcast queue is full.
func (h *Hub) Publish(ctx context.Context, destination string, payload []byte) error {
	data, err := json.Marshal(domain.NewMessageFrame(destination, payload))
	if err != nil {
		return err
	}
	return h.BroadcastRaw(ctx, destination, data)
}

// BroadcastRaw enqueues an already encoded frame.
func (h *Hub) BroadcastRaw(ctx context.Context, destination string, data []byte) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- &DestinationMessage{Destination: destination, Message: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) SubscriberCount(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.destinations[destination])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
