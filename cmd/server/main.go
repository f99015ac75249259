package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/urosperisic/chatapp/internal/app"
	httpx "github.com/urosperisic/chatapp/internal/http"
	store "github.com/urosperisic/chatapp/internal/store"
	ws "github.com/urosperisic/chatapp/internal/ws"
	"github.com/urosperisic/chatapp/pkg/auth"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env, os.Stdout)

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Redis-backed presence for the online-users endpoint
	presence, err := ws.NewRedisPresence(ctx, cfg, logger)
	if err != nil {
		logger.Error("redis connect", "err", err)
		log.Fatal(err)
	}
	defer presence.Close()

	// Token verification against the same user store that issues tokens
	verifier := ws.NewStoreVerifier(auth.New(cfg.JWTSecret), pg)

	// WebSocket hub
	hub := ws.NewHub(logger, verifier, pg, presence)

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, pg, presence)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown: stop accepting, then drop live chat connections
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	hub.Shutdown()

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
