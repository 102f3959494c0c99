package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/hub"
	"github.com/weiawesome/wes-io-live/chat-core/internal/metrics"
	"github.com/weiawesome/wes-io-live/chat-core/internal/service"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var knownCommands = map[string]bool{
	domain.CommandConnect:     true,
	domain.CommandSubscribe:   true,
	domain.CommandUnsubscribe: true,
	domain.CommandMessage:     true,
	domain.CommandDisconnect:  true,
	domain.CommandPing:        true,
}

type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
}

func NewWSHandler(h *hub.Hub, svc service.ChatService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends with this handler; the connection outlives it.
	ctx := log.WithLogger(context.Background(), l)
	client := hub.NewClient(ctx, uuid.New().String(), h.hub, conn)

	h.hub.Register(client)
	metrics.ConnectionsActive.Inc()

	go client.WritePump()
	go client.ReadPump(h.handleFrame, h.handleClose)
}

func (h *WSHandler) handleFrame(client *hub.Client, data []byte) {
	ctx := client.Context()
	l := log.Ctx(ctx)

	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		metrics.FramesReceived.WithLabelValues("INVALID").Inc()
		h.sendError(client, fmt.Errorf("%w: %v", domain.ErrInvalidFrame, err))
		return
	}

	label := frame.Command
	if !knownCommands[label] {
		label = "UNKNOWN"
	}
	metrics.FramesReceived.WithLabelValues(label).Inc()

	var err error
	switch frame.Command {
	case domain.CommandConnect:
		err = h.service.HandleConnect(ctx, client, &frame)
	case domain.CommandSubscribe:
		err = h.service.HandleSubscribe(ctx, client, &frame)
	case domain.CommandUnsubscribe:
		err = h.service.HandleUnsubscribe(ctx, client, &frame)
	case domain.CommandMessage:
		err = h.service.HandleMessage(ctx, client, &frame)
	case domain.CommandDisconnect:
		err = h.service.HandleDisconnect(ctx, client)
		client.Close()
	case domain.CommandPing:
		err = client.SendFrame(&domain.Frame{Command: domain.CommandPong})
	default:
		h.sendError(client, fmt.Errorf("%w: unknown command %q", domain.ErrInvalidFrame, frame.Command))
		return
	}

	if err != nil {
		l.Debug().Err(err).Str(log.FieldCommand, frame.Command).Msg("frame rejected")
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	metrics.ConnectionsActive.Dec()
	if err := h.service.HandleDisconnect(client.Context(), client); err != nil {
		l := log.Ctx(client.Context())
		l.Warn().Err(err).Msg("disconnect cleanup failed")
	}
}

func (h *WSHandler) sendError(client *hub.Client, err error) {
	if sendErr := client.SendFrame(domain.NewErrorFrame(err)); sendErr != nil {
		l := log.Ctx(client.Context())
		l.Debug().Err(sendErr).Msg("failed to send error frame")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/chat/ws", gin.WrapF(h.HandleWebSocket))
}
