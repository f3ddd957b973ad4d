package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-digital-library/internal/config"
	kafkax "github.com/ariefcatur/go-digital-library/internal/kafka"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/logger"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/ariefcatur/go-digital-library/internal/postgres"
	"github.com/ariefcatur/go-digital-library/internal/reconciler"
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
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With(zap.String("service", cfg.ServiceName+"-reconciler"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pGranted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicEntitlementsGranted, 1024, log)
	pGranted.Start(ctx)

	resolver := library.Resolver{Demo: cfg.Demo}
	svc := &library.Service{
		Orders:  &orders.Repo{DB: db},
		Catalog: &library.CatalogRepo{DB: db},
		Store:   &library.EntitlementRepo{DB: db},
		Notifiers: []library.Notifier{
			&library.RedisNotifier{RDB: rdb},
			&library.EventNotifier{Producer: pGranted, Service: cfg.ServiceName + "-reconciler"},
		},
		Resolver: resolver,
		Log:      log.Named("library"),
	}
	rec := &reconciler.Service{
		Library:  svc,
		Dedup:    &redisx.Dedup{RDB: rdb},
		Resolver: resolver,
		Log:      log.Named("reconciler"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicOrderStatusChanged, cfg.ReconcilerWorkers, log)
	done := make(chan struct{})
	var consErr error
	go func() {
		defer close(done)
		log.Info("reconciler consumer started",
			zap.String("group", cfg.ReconcilerGroup),
			zap.String("topic", orders.TopicOrderStatusChanged),
			zap.Int("workers", cfg.ReconcilerWorkers),
		)
		if consErr = cons.Start(ctx, rec.HandleStatusChanged); consErr != nil {
			log.Error("consumer exit", zap.Error(consErr))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-done // workers may still publish until the consumer returns
	pGranted.Close()
	pGranted.WaitClosed()

	if consErr != nil {
		// uncommitted offsets are redelivered once the process is restarted
		_ = log.Sync()
		os.Exit(1)
	}
}
