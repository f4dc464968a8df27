// Command server runs the blind relay: a store-and-forward and real-time
// fan-out server for end-to-end encrypted chat clients. Every payload it
// handles is ciphertext; the only state that survives a restart is the
// usage-totals database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/blind-relay/internal/config"
	httpapi "github.com/tbourn/blind-relay/internal/http"
	"github.com/tbourn/blind-relay/internal/http/handlers"
	"github.com/tbourn/blind-relay/internal/observability"
	"github.com/tbourn/blind-relay/internal/store"
	"github.com/tbourn/blind-relay/internal/sysutil"
	"github.com/tbourn/blind-relay/internal/totals"
	"github.com/tbourn/blind-relay/internal/ws"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	// Totals sink: the only durable state. Absent configuration runs the
	// relay with a nil sink (increments no-op, /metrics answers 503).
	var sink *totals.Sink
	if cfg.TotalsDBPath != "" {
		sink, err = totals.Open(cfg.TotalsDBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TotalsDBPath).Msg("totals sink open failed")
		}
		log.Info().Str("path", cfg.TotalsDBPath).Msg("totals sink ready")
	} else {
		log.Warn().Msg("totals sink not configured; metrics disabled")
	}

	// In-memory stores with their sweepers.
	otm := store.NewOneTime(cfg.OTMTTL)
	files := store.NewOneTime(cfg.FileTTL)
	invites := store.NewInvites(cfg.InviteTTL)
	mbox := store.NewMailbox(cfg.MailboxTTL)
	otm.StartSweeper(ctx, cfg.SweepInterval)
	files.StartSweeper(ctx, cfg.SweepInterval)
	invites.StartSweeper(ctx, cfg.SweepInterval)
	mbox.StartSweeper(ctx, cfg.SweepInterval)

	// Real-time layer. The chat registry is the mailbox's live-push target.
	rooms := ws.NewRooms(cfg.RoomGrace, sink)
	chat := ws.NewChat(mbox)
	mbox.SetNotifier(chat)

	guard := rate.NewLimiter(rate.Limit(cfg.WSGuardRPS), cfg.WSGuardBurst)

	r := gin.New()
	api := handlers.New(otm, files, invites, mbox, sink)
	httpapi.RegisterRoutes(r, api, ws.Handler(rooms, chat, guard), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	// Upgraded websocket connections are hijacked and not subject to the
	// server timeouts above.

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	if err := sink.Close(); err != nil {
		log.Error().Err(err).Msg("totals sink close failed")
	}
}
