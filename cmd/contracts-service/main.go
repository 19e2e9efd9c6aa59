package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nurpe/agro-contracts/internal/auth"
	"github.com/nurpe/agro-contracts/internal/config"
	"github.com/nurpe/agro-contracts/internal/db"
	"github.com/nurpe/agro-contracts/internal/excel"
	httphandler "github.com/nurpe/agro-contracts/internal/http"
	"github.com/nurpe/agro-contracts/internal/http/middleware"
	"github.com/nurpe/agro-contracts/internal/logger"
	"github.com/nurpe/agro-contracts/internal/metrics"
	"github.com/nurpe/agro-contracts/internal/payment"
	"github.com/nurpe/agro-contracts/internal/pdf"
	"github.com/nurpe/agro-contracts/internal/realtime"
	"github.com/nurpe/agro-contracts/internal/repository"
	"github.com/nurpe/agro-contracts/internal/service"
	"github.com/nurpe/agro-contracts/internal/sweeper"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	contractRepo := repository.NewContractRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)
	listingRepo := repository.NewListingRepository(database)
	userRepo := repository.NewUserRepository(database)
	messageRepo := repository.NewMessageRepository(database)

	connections := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(connections, log, m)
	hub := realtime.NewHub(connections, realtime.NewPresence(), dispatcher, messageRepo, userRepo, cfg.HTTP.AllowedOrigins, log, m)

	gateway := payment.NewRazorpayClient(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret, cfg.Payment.Timeout)

	notificationService := service.NewNotificationService(notificationRepo, contractRepo)
	contractService := service.NewContractService(service.ContractServiceDeps{
		DB:            database,
		Contracts:     contractRepo,
		Listings:      listingRepo,
		Users:         userRepo,
		Notifications: notificationService,
		Gateway:       gateway,
		Dispatcher:    dispatcher,
		Metrics:       m,
		Log:           log,
	}, cfg)
	listingService := service.NewListingService(listingRepo)
	documentService := service.NewDocumentService(contractService, userRepo, pdf.NewGenerator(), excel.NewGenerator())

	var locker sweeper.Locker
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		locker = sweeper.NewRedisLocker(client)
	}
	sweep := sweeper.New(contractService, locker, sweeper.Options{
		Schedule: cfg.Sweeper.Schedule,
		MaxAge:   cfg.Sweeper.MaxAge,
		LockTTL:  cfg.Sweeper.LockTTL,
	}, log, m)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, notificationService, listingService, documentService, log)
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Handler:        handler,
		Auth:           middleware.Auth(tokenParser, cfg.Auth.CookieName),
		WebSocket:      hub.Serve,
		Gatherer:       registry,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Environment:    cfg.Environment,
		Log:            log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("addr", addr).Msg("starting contracts service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Sweeper.Enabled {
		if err := sweep.Start(groupCtx); err != nil {
			log.Fatal().Err(err).Msg("failed to start dissolution sweeper")
		}
	}
	group.Go(func() error {
		<-groupCtx.Done()
		sweep.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down contracts service")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
