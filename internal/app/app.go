package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/coderoom-server/internal/activity"
	"github.com/vovakirdan/coderoom-server/internal/config"
	"github.com/vovakirdan/coderoom-server/internal/core"
	applog "github.com/vovakirdan/coderoom-server/internal/log"
	"github.com/vovakirdan/coderoom-server/internal/metrics"
	"github.com/vovakirdan/coderoom-server/internal/store"
	"github.com/vovakirdan/coderoom-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/coderoom-server/internal/transport/http"
	"github.com/vovakirdan/coderoom-server/internal/voice"
	"github.com/vovakirdan/coderoom-server/internal/voice/livekit"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	relay           *core.Relay
	recorder        *activity.Recorder
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	// Sessions still open belong to connections from a previous process.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	closed, err := st.CloseDangling(ctx, time.Now())
	cancel()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("close dangling sessions: %w", err)
	}
	if closed > 0 {
		logger.Info().Int64("sessions", closed).Msg("closed dangling sessions")
	}

	m := metrics.New()
	relay := core.NewRelay(
		core.WithLogger(applog.Component(logger, "relay")),
		core.WithObserver(m),
	)
	recorder := activity.NewRecorder(st, cfg.RecorderBuffer, applog.Component(logger, "activity"))

	var engine voice.Engine = voice.Disabled{}
	if cfg.LiveKit.Enabled {
		engine = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)
		logger.Info().Str("url", cfg.LiveKit.URL).Msg("voice enabled")
	}

	server := transporthttp.NewServer(transporthttp.Deps{
		Relay:    relay,
		Recorder: recorder,
		Sessions: st,
		Voice:    engine,
		Metrics:  m,
	}, cfg, applog.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		relay:           relay,
		recorder:        recorder,
		store:           st,
		log:             logger,
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	go a.recorder.Run(recorderCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(stopRecorder)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup(stopRecorder)
			return err
		}

		a.cleanup(stopRecorder)
		return <-serverErr
	}
}

// cleanup drains the activity recorder, then closes the database.
func (a *App) cleanup(stopRecorder context.CancelFunc) {
	stopRecorder()
	<-a.recorder.Done()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
