package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/service"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/middleware"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/response"
)

// Handler handles HTTP requests for the chat core.
type Handler struct {
	rooms          service.RoomService
	messages       service.MessageService
	members        service.MemberService
	tokens         service.TokenService
	authMiddleware *middleware.AuthMiddleware
	operatorKey    string
}

// NewHandler creates a new HTTP handler. tokens may be nil, in which case
// the token routes are not registered. Member registration and token
// issuance require operatorKey; an empty key disables both.
func NewHandler(
	rooms service.RoomService,
	messages service.MessageService,
	members service.MemberService,
	tokens service.TokenService,
	authMiddleware *middleware.AuthMiddleware,
	operatorKey string,
) *Handler {
	return &Handler{
		rooms:          rooms,
		messages:       messages,
		members:        members,
		tokens:         tokens,
		authMiddleware: authMiddleware,
		operatorKey:    operatorKey,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		chat := api.Group("/chat", h.authMiddleware.RequireAuth())
		{
			chat.GET("/rooms", h.ListRooms)
			chat.POST("/rooms", h.ResolveRoom)
			chat.GET("/rooms/:roomId/messages", h.ListMessages)
			chat.GET("/unread", h.ListUnread)
		}

		members := api.Group("/members")
		{
			members.POST("", RequireOperator(h.operatorKey), h.RegisterMember)
			members.GET("/:memberId/online", h.authMiddleware.RequireAuth(), h.GetOnlineStatus)
		}

		if h.tokens != nil {
			tokens := api.Group("/tokens")
			{
				tokens.POST("", RequireOperator(h.operatorKey), h.IssueTokens)
				tokens.POST("/refresh", h.RefreshTokens)
			}
		}
	}
}

// RenderError writes the {code, message} response for err and aborts the
// chain. Errors without a domain code are logged and reported as internal.
func RenderError(c *gin.Context, err error) {
	code, status := domain.ErrorCode(err)
	if status == http.StatusInternalServerError {
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("request failed")
	}
	response.Abort(c, status, code, domain.PublicMessage(err))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRooms lists the caller's rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	caller := domain.MemberID(middleware.GetMemberID(c))

	rooms, err := h.rooms.ListRoomsForMember(c.Request.Context(), caller)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, rooms)
}

// ResolveRoom returns the room of an exact member set, creating it on first
// use. The caller must be part of the set.
func (h *Handler) ResolveRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	caller := domain.MemberID(middleware.GetMemberID(c))

	var req domain.ResolveRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind resolve room request")
		response.BadRequest(c, err.Error())
		return
	}

	ids := make([]domain.MemberID, len(req.MemberIDs))
	included := false
	for i, id := range req.MemberIDs {
		ids[i] = domain.MemberID(id)
		if ids[i] == caller {
			included = true
		}
	}
	if !included {
		RenderError(c, domain.ErrForbidden)
		return
	}

	room, err := h.rooms.ResolveOrCreateRoom(ctx, caller, ids)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, room)
}

// ListMessages returns the history of a room the caller belongs to.
func (h *Handler) ListMessages(c *gin.Context) {
	caller := domain.MemberID(middleware.GetMemberID(c))
	roomID, err := domain.ParseRoomID(c.Param("roomId"))
	if err != nil {
		RenderError(c, domain.ErrRoomNotFound)
		return
	}

	messages, err := h.messages.ListMessages(c.Request.Context(), caller, roomID)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, messages)
}

// ListUnread returns the caller's unread messages across rooms.
func (h *Handler) ListUnread(c *gin.Context) {
	caller := domain.MemberID(middleware.GetMemberID(c))

	messages, err := h.messages.ListUnread(c.Request.Context(), caller)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, messages)
}

func (h *Handler) RegisterMember(c *gin.Context) {
	var req domain.RegisterMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	member, err := h.members.Register(c.Request.Context(), domain.MemberID(req.MemberID))
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Created(c, member)
}

func (h *Handler) GetOnlineStatus(c *gin.Context) {
	id, err := domain.ParseMemberID(c.Param("memberId"))
	if err != nil {
		RenderError(c, domain.ErrMemberNotFound)
		return
	}

	status, err := h.members.OnlineStatus(c.Request.Context(), id)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, status)
}

func (h *Handler) IssueTokens(c *gin.Context) {
	var req domain.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.tokens.Issue(c.Request.Context(), domain.MemberID(req.MemberID))
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Created(c, pair)
}

func (h *Handler) RefreshTokens(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RenderError(c, err)
		return
	}
	response.Success(c, pair)
}
