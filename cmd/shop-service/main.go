package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/online-shop/internal/auth"
	"github.com/vasiliy-maslov/online-shop/internal/catalog"
	"github.com/vasiliy-maslov/online-shop/internal/config"
	"github.com/vasiliy-maslov/online-shop/internal/db"
	"github.com/vasiliy-maslov/online-shop/internal/handler"
	"github.com/vasiliy-maslov/online-shop/internal/lock"
	"github.com/vasiliy-maslov/online-shop/internal/metrics"
	"github.com/vasiliy-maslov/online-shop/internal/order"
	"github.com/vasiliy-maslov/online-shop/internal/payment"
	"github.com/vasiliy-maslov/online-shop/internal/transport"
	"github.com/vasiliy-maslov/online-shop/internal/webhook"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.App.LogLevel).Msg("Unknown log level, falling back to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()

	log.Info().Msg("Shop service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	dbConn, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	locker := lock.NewNoop()
	if cfg.Redis.Addr != "" {
		rdb := lock.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, payment issuance lock may fail")
		}
		locker = lock.NewRedisLocker(rdb, cfg.Payment.LockExpiry, cfg.Payment.LockTries)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Payment issuance lock backed by Redis")
	}

	pageBaseURL := cfg.Payment.PageBaseURL
	if pageBaseURL == "" {
		pageBaseURL = "http://localhost:" + cfg.App.Port
	}

	lifecycle := order.Lifecycle{Created: cfg.Order.CreatedStatus, Paid: cfg.Order.PaidStatus}
	m := metrics.New("shop")

	statuses := order.NewStatusRegistry(dbConn.SQL)
	for _, name := range []string{lifecycle.Created, lifecycle.Paid} {
		if _, err := statuses.Resolve(ctx, name); err != nil {
			log.Fatal().Err(err).Str("status", name).Msg("Failed to resolve order status")
		}
	}

	orderRepository := order.NewRepository(dbConn.Pool)
	productRepository := catalog.NewRepository(dbConn.Pool)
	paymentRepository := payment.NewRepository(dbConn.Pool)

	orderSvc := order.NewService(orderRepository, productRepository, statuses, lifecycle, m)
	paymentSvc := payment.NewService(paymentRepository, orderSvc, locker, lifecycle, pageBaseURL, m)
	webhookSvc := webhook.NewService(webhook.NewStore(dbConn.Pool), statuses, lifecycle, m)

	router := transport.NewRouter(transport.Handlers{
		Orders:   handler.NewOrderHandler(orderSvc),
		Payments: handler.NewPaymentHandler(paymentSvc),
		Webhooks: handler.NewWebhookHandler(webhookSvc),
	}, auth.NewAuthenticator(auth.NewRepository(dbConn.Pool)), m)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}

	log.Info().Msg("Shop service stopped gracefully")
}
