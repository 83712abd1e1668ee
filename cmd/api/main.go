package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/auth"
	"github.com/octobees/lead-capture/internal/config"
	"github.com/octobees/lead-capture/internal/database"
	"github.com/octobees/lead-capture/internal/entity"
	"github.com/octobees/lead-capture/internal/handler"
	middlewarepkg "github.com/octobees/lead-capture/internal/middleware"
	"github.com/octobees/lead-capture/internal/repository"
	"github.com/octobees/lead-capture/internal/router"
	"github.com/octobees/lead-capture/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := newLogger(cfg)

	startCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	selection := database.NewSelector(cfg.Mongo, logger).Select(startCtx)
	stop()

	var (
		leadRepo       repository.LeadRepository
		subscriberRepo repository.SubscriberRepository
		mongoPinger    handler.MongoPinger
	)
	if selection.UsingMongo() {
		leadRepo = repository.NewMongoLeadRepository(selection.DB.Collection(cfg.Mongo.LeadsCollection), cfg.Mongo.Timeout, logger)

		subscribers := selection.DB.Collection(cfg.Mongo.SubscribersCollection)
		indexCtx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
		if err := repository.EnsureSubscriberIndexes(indexCtx, subscribers); err != nil {
			logger.WithError(err).Warn("failed to ensure subscriber indexes")
		}
		cancel()
		subscriberRepo = repository.NewMongoSubscriberRepository(subscribers, cfg.Mongo.Timeout, logger)
		mongoPinger = selection.Client

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := selection.Client.Disconnect(ctx); err != nil {
				logger.WithError(err).Warn("mongodb disconnect failed")
			}
		}()
	} else {
		fileLeads := repository.NewFileLeadRepository(
			repository.NewJournal[entity.Lead](cfg.Backup.LeadsPath, cfg.Backup.Enabled, logger), logger)
		if n, err := fileLeads.Load(); err != nil {
			logger.WithError(err).Warn("failed to load leads backup, starting empty")
		} else {
			logger.WithField("count", n).Info("leads loaded from backup")
		}
		leadRepo = fileLeads

		fileSubscribers := repository.NewFileSubscriberRepository(
			repository.NewJournal[entity.Subscriber](cfg.Backup.SubscribersPath, cfg.Backup.Enabled, logger), logger)
		if _, err := fileSubscribers.Load(); err != nil {
			logger.WithError(err).Warn("failed to load subscribers backup, starting empty")
		}
		subscriberRepo = fileSubscribers
	}
	middlewarepkg.RecordBackend(selection.Backend)

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithRecorder(middlewarepkg.PrometheusRecorder{}),
	}
	validator := service.NewContactValidator(cfg.PhoneRegion)
	sessions := auth.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL)

	leadService := service.NewLeadService(leadRepo, validator, opts...)
	dashboardService := service.NewDashboardService(leadRepo, opts...)
	subscriberService := service.NewSubscriberService(subscriberRepo, validator, opts...)
	authService := service.NewAuthService(cfg.AdminUsername, cfg.AdminPasswordHash, sessions, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging(logger))
	e.Use(middlewarepkg.Metrics())
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, sessions, router.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Leads:       handler.NewLeadHandler(leadService, cfg.RequireCompanyFields),
		Admin:       handler.NewAdminHandler(leadService, dashboardService),
		Subscribers: handler.NewSubscriberHandler(subscriberService, logger),
		Health:      handler.NewHealthHandler(selection.Backend, mongoPinger, cfg.Mongo.Timeout),
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "backend": selection.Backend}).Info("http server listening")
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}
