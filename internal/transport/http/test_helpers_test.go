package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/coderoom-server/internal/activity"
	"github.com/vovakirdan/coderoom-server/internal/auth"
	"github.com/vovakirdan/coderoom-server/internal/config"
	"github.com/vovakirdan/coderoom-server/internal/core"
	"github.com/vovakirdan/coderoom-server/internal/metrics"
	"github.com/vovakirdan/coderoom-server/internal/store"
	"github.com/vovakirdan/coderoom-server/internal/store/sqlite"
	"github.com/vovakirdan/coderoom-server/internal/voice"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	ts      *httptest.Server
	relay   *core.Relay
	store   store.Store
	metrics *metrics.Metrics
	cfg     config.Config
}

type envOption func(*config.Config, *Deps)

func withVoice(e voice.Engine) envOption {
	return func(_ *config.Config, d *Deps) { d.Voice = e }
}

func withRateLimit(perMinute int) envOption {
	return func(c *config.Config, _ *Deps) { c.RateLimitPerMinute = perMinute }
}

func withMaxMessageBytes(n int64) envOption {
	return func(c *config.Config, _ *Deps) { c.MaxMessageBytes = n }
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startTestServer(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testJWTSecret
	cfg.PingInterval = 0

	st := createTestStore(t)
	m := metrics.New()
	relay := core.NewRelay(core.WithLogger(&logger), core.WithObserver(m))
	recorder := activity.NewRecorder(st, 64, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go recorder.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-recorder.Done()
	})

	deps := Deps{
		Relay:    relay,
		Recorder: recorder,
		Sessions: st,
		Metrics:  m,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	server := NewServer(deps, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, relay: relay, store: st, metrics: m, cfg: cfg}
}

func (e *testEnv) token(t *testing.T, userID int64, username string) string {
	t.Helper()

	token, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(e.cfg.JWTSecret),
		Issuer:   e.cfg.JWTIssuer,
		Audience: e.cfg.JWTAudience,
		TTL:      time.Hour,
	}, userID, username, "student")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) dial(ctx context.Context, t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(ctx context.Context, t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	var out map[string]any
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}
