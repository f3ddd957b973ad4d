package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-digital-library/internal/config"
	"github.com/ariefcatur/go-digital-library/internal/httpx"
	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/logger"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/ariefcatur/go-digital-library/internal/postgres"
	"github.com/ariefcatur/go-digital-library/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("error", "console").Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("service", cfg.ServiceName))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	pChanged := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
	pGranted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicEntitlementsGranted, 1024, log)
	producers := []*kafkax.Producer{pCreated, pChanged, pGranted}
	for _, p := range producers {
		p.Start(ctx)
	}
	events := kafkax.NewRouter(log).
		Route(orders.EventOrderCreated, pCreated).
		Route(orders.EventOrderStatusChanged, pChanged).
		Route(orders.EventEntitlementsGranted, pGranted)

	if cfg.Demo.Enabled {
		log.Warn("demo identity fallback enabled", zap.String("demo_user_id", cfg.Demo.UserID))
	}

	// Services & handlers
	repo := &orders.Repo{DB: db}
	svc := &library.Service{
		Orders:  repo,
		Catalog: &library.CatalogRepo{DB: db},
		Store:   &library.EntitlementRepo{DB: db},
		Cache:   &library.RedisCache{RDB: rdb, Log: log},
		Notifiers: []library.Notifier{
			&library.RedisNotifier{RDB: rdb},
			&library.EventNotifier{Producer: events, Service: cfg.ServiceName},
		},
		Resolver: library.Resolver{Demo: cfg.Demo},
		Log:      log.Named("library"),
	}

	router := httpx.NewRouter(log)
	validate := httpx.NewValidator()
	oh := &httpx.OrdersHandler{
		Repo:      repo,
		Fulfiller: svc,
		Producer:  events,
		Cache:     &redisx.StatusCache{RDB: rdb},
		Validate:  validate,
		Service:   cfg.ServiceName,
		Log:       log,
	}
	oh.Register(router)
	lh := &httpx.LibraryHandler{
		Svc:        svc,
		Subscriber: &library.RedisSubscriber{RDB: rdb},
		Validate:   validate,
		Log:        log,
	}
	lh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	for _, p := range producers {
		p.Close()
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
