package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/digitorchestra/server/internal/app"
	"github.com/digitorchestra/server/internal/broadcast"
	"github.com/digitorchestra/server/internal/config"
	"github.com/digitorchestra/server/internal/dispatch"
	"github.com/digitorchestra/server/internal/logging"
	"github.com/digitorchestra/server/internal/osc"
	"github.com/digitorchestra/server/internal/ratelimit"
	"github.com/digitorchestra/server/internal/server"
	"github.com/digitorchestra/server/internal/show"
	"github.com/digitorchestra/server/internal/version"
)

func runGracefulShutdown(srv *server.Server, reaper *app.Reaper, hub *broadcast.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		reaper.Stop()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", build.Version, "commit", build.Commit)

	clock := clockwork.NewRealClock()

	state := show.NewState(clock)
	limiter := ratelimit.New(clock, map[ratelimit.Class]time.Duration{
		ratelimit.ClassCanvas:  cfg.CanvasCooldown,
		ratelimit.ClassTrigger: cfg.TriggerCooldown,
	})
	sound := osc.NewSender(cfg.OscHost, cfg.OscPort)
	slog.Info("Sound control ready", "host", cfg.OscHost, "port", cfg.OscPort)

	hub := broadcast.NewHub(clock)
	dispatcher := dispatch.New(state, limiter, sound, hub)

	reaper := app.NewReaper(state, hub, clock, cfg.ReaperInterval, cfg.InactivityTimeout)
	go reaper.Run(context.Background())

	srv := server.NewServer(cfg, state, hub, dispatcher)
	done := runGracefulShutdown(srv, reaper, hub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
