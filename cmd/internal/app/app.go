// Package app wires the opchat runtime: config, logging, HTTP routes, the
// relay, and both transport adapters.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"opchat/cmd/internal/bot"
	"opchat/cmd/internal/push"
	"opchat/cmd/internal/relay"
)

// App owns the wired runtime: the store, the relay, and both transports.
type App struct {
	cfg Config
	log Logger

	store *relay.Store
	relay *relay.Relay
	gw    *push.Gateway
	bot   *bot.Adapter
}

// New constructs a fully wired App instance from config and logger.
//
// Construction order matters: the relay is built with an unbound outbound
// port, and the bot adapter is bound into that slot last. Neither transport
// adapter ever references the other's concrete type.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN environment variable is required")
	}

	store := relay.NewStore()
	hub := push.NewHub(log)
	rl := relay.New(log, store, hub)

	gw := push.NewGateway(log, hub, rl, push.Options{
		OriginRequired:    cfg.WSOriginRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		WriteTimeout:      cfg.WSWriteTimeout,
		ReadIdleTimeout:   cfg.WSReadIdleTimeout,
		SendQueueSize:     cfg.WSSendQueue,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		RateEvents:        cfg.WSRateEvents,
		RateWindow:        cfg.WSRateWindow,
	})

	ba, err := bot.New(log, cfg.BotToken, rl, cfg.BotPollTimeout)
	if err != nil {
		return nil, err
	}
	rl.BindOutbound(ba)

	return &App{
		cfg:   cfg,
		log:   log,
		store: store,
		relay: rl,
		gw:    gw,
		bot:   ba,
	}, nil
}

// Run starts the bot polling loop and the HTTP server, and blocks until
// context cancellation or a fatal transport error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	registerHTTP(mux, a.gw)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 2)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		if err := a.bot.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	a.log.Info("server.stopped")
	return runErr
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
