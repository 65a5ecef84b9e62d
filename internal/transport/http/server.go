package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coderoom-server/internal/auth"
	"github.com/vovakirdan/coderoom-server/internal/config"
	"github.com/vovakirdan/coderoom-server/internal/core"
	"github.com/vovakirdan/coderoom-server/internal/metrics"
	"github.com/vovakirdan/coderoom-server/internal/store"
	"github.com/vovakirdan/coderoom-server/internal/voice"
)

// Deps are the collaborators the HTTP layer serves. Only Relay is required.
type Deps struct {
	Relay    *core.Relay
	Recorder ActivityRecorder
	Sessions store.SessionStore
	Voice    voice.Engine
	Metrics  *metrics.Metrics
}

// NewServer builds an HTTP server with the WebSocket, REST and ops routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Relay, deps.Recorder, deps.Metrics, cfg, logger)))

	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}
	rooms := NewRoomHandlers(deps.Relay, deps.Sessions, deps.Voice, logger)

	api := router.Group("/api", AuthMiddleware(jwtCfg, logger))
	{
		api.GET("/rooms", rooms.ListRooms)
		api.GET("/rooms/:roomId", rooms.GetRoom)
		api.GET("/rooms/:roomId/sessions", rooms.ListSessions)
		api.POST("/rooms/:roomId/voice", rooms.JoinVoice)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
