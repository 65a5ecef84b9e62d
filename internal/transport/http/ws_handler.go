package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/coderoom-server/internal/config"
	"github.com/vovakirdan/coderoom-server/internal/core"
	"github.com/vovakirdan/coderoom-server/internal/metrics"
	"github.com/vovakirdan/coderoom-server/internal/proto"
	"github.com/vovakirdan/coderoom-server/internal/store"
)

// ActivityRecorder receives session boundaries. Implementations must not block.
type ActivityRecorder interface {
	Joined(s store.Session) bool
	Left(connID string, at time.Time) bool
}

// WSHandler upgrades HTTP connections and bridges them to the relay.
type WSHandler struct {
	relay    *core.Relay
	recorder ActivityRecorder
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time

	maxMessageBytes int64
	sendBuffer      int
	pingInterval    time.Duration
	rateLimit       int
	accept          websocket.AcceptOptions
}

// NewWSHandler builds a new WebSocket handler. recorder and m may be nil.
func NewWSHandler(relay *core.Relay, recorder ActivityRecorder, m *metrics.Metrics, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	h := &WSHandler{
		relay:           relay,
		recorder:        recorder,
		metrics:         m,
		log:             logger,
		now:             time.Now,
		maxMessageBytes: cfg.MaxMessageBytes,
		sendBuffer:      cfg.SendBuffer,
		pingInterval:    cfg.PingInterval,
		rateLimit:       cfg.RateLimitPerMinute,
	}
	if len(cfg.AllowedOrigins) == 0 || lo.Contains(cfg.AllowedOrigins, "*") {
		h.accept.InsecureSkipVerify = true
	} else {
		h.accept.OriginPatterns = cfg.AllowedOrigins
	}
	return h
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	ws, err := websocket.Accept(w, r, &h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		ws.SetReadLimit(h.maxMessageBytes)
	}

	c := core.NewConn(uuid.NewString(), h.sendBuffer)
	h.log.Debug().Str("conn_id", c.ID).Str("remote", r.RemoteAddr).Msg("ws connected")
	if h.metrics != nil {
		h.metrics.ConnOpened()
		defer h.metrics.ConnClosed()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, ws, c)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, ws, c)
	}()

	err = <-errCh
	// Cancelling aborts the pending read, so no dispatch can run after Leave.
	cancel()
	<-errCh
	h.relay.Leave(c)
	c.Close()
	if h.recorder != nil {
		h.recorder.Left(c.ID, h.now())
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("ws connection closed with error")
		}
	}
	h.log.Debug().Str("conn_id", c.ID).Msg("ws disconnected")

	ws.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *core.Conn) error {
	limiter := newRateLimiter(h.rateLimit)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.allow() {
			h.log.Warn().Str("conn_id", c.ID).Msg("rate limit exceeded, frame dropped")
			h.frame("", "rate_limited")
			continue
		}

		in, err := proto.Decode(data)
		if err != nil {
			h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("dropping inbound frame")
			h.frame("", frameResult(err))
			continue
		}

		err = h.dispatch(c, in)
		h.frame(in.Type, frameResult(err))
		if err != nil {
			h.log.Debug().
				Err(err).
				Str("conn_id", c.ID).
				Str("type", in.Type).
				Str("room_id", in.RoomID).
				Str("code", core.Code(err)).
				Msg("inbound frame ignored")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, ws *websocket.Conn, c *core.Conn) error {
	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return nil
			}
			out, err := proto.Outbound(ev)
			if err != nil {
				h.log.Error().Err(err).Str("conn_id", c.ID).Msg("encode ws event")
				continue
			}
			if err := wsjson.Write(ctx, ws, out); err != nil {
				h.log.Debug().Err(err).Str("conn_id", c.ID).Msg("write ws event")
				return err
			}
		case <-ping:
			pingCtx, cancel := context.WithTimeout(ctx, h.pingInterval)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) frame(frameType, result string) {
	if h.metrics != nil {
		h.metrics.Frame(frameType, result)
	}
}
