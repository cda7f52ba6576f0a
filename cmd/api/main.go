package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/memberhub/internal/auth"
	"github.com/geocoder89/memberhub/internal/config"
	"github.com/geocoder89/memberhub/internal/db"
	httpx "github.com/geocoder89/memberhub/internal/http"
	"github.com/geocoder89/memberhub/internal/http/handlers"
	"github.com/geocoder89/memberhub/internal/observability"
	"github.com/geocoder89/memberhub/internal/security"
	"github.com/geocoder89/memberhub/internal/session"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	startCtx, cancelStart := config.WithTimeout(30 * time.Second)
	defer cancelStart()

	shutdownTracer, err := observability.InitTracer(startCtx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	stores, err := db.Open(startCtx, cfg, log, prom)
	if err != nil {
		log.Error("store setup failed", "err", err)
		os.Exit(1)
	}

	hasher := security.NewHasher()

	if err := db.EnsureAdminUser(startCtx, stores.Users, hasher, cfg); err != nil {
		log.Error("admin bootstrap failed", "err", err)
		os.Exit(1)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret = throwawaySecret()
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}

	sessions := session.NewManager(stores.Sessions, session.NewSigner(secret), cfg.SessionTTL)
	svc := auth.NewService(stores.Users, hasher, sessions, log).WithEvents(prom)

	var shuttingDown atomic.Bool

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Auth:     svc,
		Sessions: sessions,
		Prom:     prom,
		Checks: map[string]handlers.Pinger{
			"users":    stores.Users.Ping,
			"sessions": stores.Sessions.Ping,
		},
		ShuttingDown: shuttingDown.Load,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env,
			"user_store", cfg.UserStore, "session_store", cfg.SessionStore)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")
	shuttingDown.Store(true)

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := stores.Close(ctx); err != nil {
			log.Error("closing stores failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

// throwawaySecret is only used in dev and test, where Validate lets
// SESSION_SECRET be empty.
func throwawaySecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

