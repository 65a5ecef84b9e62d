package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/coderoom-server/internal/core"
	"github.com/vovakirdan/coderoom-server/internal/store"
	"github.com/vovakirdan/coderoom-server/internal/voice"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomHandlers provides HTTP handlers for room endpoints.
type RoomHandlers struct {
	relay    *core.Relay
	sessions store.SessionStore
	voice    voice.Engine
	log      *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance. sessions may be nil,
// in which case the history endpoint answers 503.
func NewRoomHandlers(relay *core.Relay, sessions store.SessionStore, engine voice.Engine, logger *zerolog.Logger) *RoomHandlers {
	if engine == nil {
		engine = voice.Disabled{}
	}
	return &RoomHandlers{
		relay:    relay,
		sessions: sessions,
		voice:    engine,
		log:      logger,
	}
}

// RoomResponse represents an active room in API responses.
type RoomResponse struct {
	RoomID    string `json:"room_id"`
	UserCount int    `json:"user_count"`
	CreatedAt string `json:"created_at"`
}

// MemberResponse represents one live participant.
type MemberResponse struct {
	ConnID   string `json:"conn_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// RoomDetailResponse is an active room with its members.
type RoomDetailResponse struct {
	RoomID    string           `json:"room_id"`
	UserCount int              `json:"user_count"`
	Members   []MemberResponse `json:"members"`
}

// SessionResponse represents one recorded session.
type SessionResponse struct {
	ID         int64   `json:"id"`
	RoomID     string  `json:"room_id"`
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	JoinedAt   string  `json:"joined_at"`
	LeftAt     *string `json:"left_at,omitempty"`
	DurationMS int64   `json:"duration_ms"`
}

// ListRooms handles listing active rooms.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms := h.relay.Rooms()
	response := lo.Map(rooms, func(r core.RoomInfo, _ int) RoomResponse {
		return RoomResponse{
			RoomID:    r.Room,
			UserCount: r.UserCount,
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		}
	})

	h.log.Debug().Int("room_count", len(response)).Msg("rooms listed")
	c.JSON(http.StatusOK, response)
}

// GetRoom handles fetching the live members of a room.
// GET /api/rooms/:roomId
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	members, ok := h.relay.Members(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not active"})
		return
	}

	c.JSON(http.StatusOK, RoomDetailResponse{
		RoomID:    roomID,
		UserCount: len(members),
		Members: lo.Map(members, func(p core.Participant, _ int) MemberResponse {
			return MemberResponse{ConnID: p.Conn.ID, UserID: p.UserID, Username: p.Username}
		}),
	})
}

// ListSessions handles listing the participation history of a room.
// GET /api/rooms/:roomId/sessions?limit=N
func (h *RoomHandlers) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "session history is not available"})
		return
	}

	limit := defaultSessionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSessionLimit)
	}

	roomID := c.Param("roomId")
	sessions, err := h.sessions.ListSessions(c.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	now := time.Now()
	c.JSON(http.StatusOK, lo.Map(sessions, func(s *store.Session, _ int) SessionResponse {
		resp := SessionResponse{
			ID:         s.ID,
			RoomID:     s.RoomID,
			UserID:     s.UserID,
			Username:   s.Username,
			JoinedAt:   s.JoinedAt.UTC().Format(time.RFC3339),
			DurationMS: s.Duration(now).Milliseconds(),
		}
		if s.LeftAt != nil {
			resp.LeftAt = lo.ToPtr(s.LeftAt.UTC().Format(time.RFC3339))
		}
		return resp
	}))
}

// JoinVoice issues voice channel credentials for the caller.
// POST /api/rooms/:roomId/voice
func (h *RoomHandlers) JoinVoice(c *gin.Context) {
	claims, ok := claimsFrom(c)
	if !ok {
		h.log.Error().Msg("claims not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID := c.Param("roomId")
	info, err := h.voice.JoinInfo(c.Request.Context(), roomID, claims.UserKey(), claims.Username)
	if err != nil {
		if errors.Is(err, voice.ErrDisabled) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "voice is not enabled"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to issue voice token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", roomID).Int64("user_id", claims.UserID).Msg("voice token issued")
	c.JSON(http.StatusOK, info)
}
