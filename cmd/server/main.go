package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/pokopt/fuer-assignment/internal/config"
	"github.com/pokopt/fuer-assignment/internal/controller"
	"github.com/pokopt/fuer-assignment/internal/metrics"
	"github.com/pokopt/fuer-assignment/internal/registry"
	"github.com/pokopt/fuer-assignment/internal/repository"
	"github.com/pokopt/fuer-assignment/internal/routes"
	"github.com/pokopt/fuer-assignment/internal/service"
	"github.com/pokopt/fuer-assignment/internal/validation"
	"github.com/pokopt/fuer-assignment/pkg/logger"
	"github.com/rs/cors"
)

func main() {
	// Load configuration; the positional arguments are the kinds to enable
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		logger.NewDefault("server").WithError(err).Fatal("error loading configuration")
	}

	newLog := func(component string) *logger.Logger {
		return logger.New(component, cfg.LogLevel, cfg.LogFormat)
	}
	log := newLog("server")

	// An unknown kind on the command line is a startup error
	reg, err := registry.New(cfg.Kinds)
	if err != nil {
		log.WithError(err).Fatal("invalid measurement kinds")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo repository.Repository
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, records will not survive a restart")
		repo = repository.NewMemoryRepository(reg.Enabled())
	default:
		repo, err = repository.NewPostgresRepository(ctx, repository.Options{
			DSN:      cfg.DSN(),
			Kinds:    reg.Enabled(),
			MaxConns: cfg.MaxConns,
			Reset:    cfg.StorageReset,
		}, newLog("storage"))
		if err != nil {
			log.WithError(err).Fatal("error initializing storage")
		}
	}
	defer repo.Close()

	// Initialize validator, service, and controller
	m := metrics.New()
	validator := validation.New(reg)
	svc := service.NewMeasurementService(reg, validator, repo, newLog("service"))
	ctrl := controller.NewMeasurementController(svc, m, newLog("controller"))
	router := routes.NewRouter(ctrl, m)

	// CORS setup
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
	handler := handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, corsHandler))

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).
			WithField("kinds", strings.Join(cfg.Kinds, ",")).
			Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("error starting server")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}
