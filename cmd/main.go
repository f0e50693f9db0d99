package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinocount/session-service/config"
	"github.com/vinocount/session-service/internal/coordinator"
	"github.com/vinocount/session-service/internal/logging"
	"github.com/vinocount/session-service/internal/permission"
	"github.com/vinocount/session-service/internal/postgres"
	"github.com/vinocount/session-service/internal/realtime"
	"github.com/vinocount/session-service/internal/security"
	"github.com/vinocount/session-service/internal/service"
	httpx "github.com/vinocount/session-service/internal/transport/http"
	"github.com/vinocount/session-service/internal/transport/ws"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Init(cfg.Logging)
	slog.Info("starting session-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- postgres ---
	if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	// --- repos ---
	sessionRepo := postgres.NewSessionRepository(db.Pool)
	auditRepo := postgres.NewAuditRepository(db.Pool)
	roleRepo := postgres.NewRoleRepository(db.Pool)

	// --- permissions ---
	engine := permission.NewEngine()

	// --- services ---
	sessionSvc := service.NewSessionService(sessionRepo)
	auditSvc := service.NewAuditService(auditRepo)
	roleSvc := service.NewRoleService(roleRepo, engine)
	if err := roleSvc.Load(ctx); err != nil {
		log.Fatalf("load roles: %v", err)
	}

	// --- realtime ---
	hub := realtime.NewHub()
	listener := realtime.NewPGListener(cfg.Postgres.DSN, cfg.Realtime.ListenChannel, cfg.ReconnectBackoff())
	go listener.Run(ctx)
	notifier := realtime.NewNotifier(listener)

	// --- coordinator ---
	coord := coordinator.New(hub, notifier, engine, sessionSvc, auditSvc)

	// --- transports ---
	verifier := security.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.ClockSkew())
	wsServer := ws.NewServer(hub, notifier, verifier, cfg.PingEvery())
	handler := httpx.NewHandler(sessionSvc, auditSvc, roleSvc, coord, engine, hub)
	router := httpx.NewRouter(handler, verifier, wsServer)

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = httpSrv.Shutdown(ctxShutdown)
	cancel() // гасит listener и все подписки
	slog.Info("stopped")
}
