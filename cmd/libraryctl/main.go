package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ariefcatur/go-digital-library/internal/cli"
	"github.com/ariefcatur/go-digital-library/internal/config"
	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/ariefcatur/go-digital-library/internal/logger"
	"github.com/ariefcatur/go-digital-library/internal/orders"
	"github.com/ariefcatur/go-digital-library/internal/postgres"
	"github.com/ariefcatur/go-digital-library/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cmd := cli.NewRootCommand(open)
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}

// open wires the library service straight onto Postgres and Redis. Grants made
// from the CLI still invalidate cached listings and wake SSE clients.
func open(ctx context.Context) (cli.Library, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat).Named("libraryctl")

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	rdb := redisx.New(cfg.RedisAddr)

	svc := &library.Service{
		Orders:    &orders.Repo{DB: db},
		Catalog:   &library.CatalogRepo{DB: db},
		Store:     &library.EntitlementRepo{DB: db},
		Notifiers: []library.Notifier{&library.RedisNotifier{RDB: rdb}},
		Resolver:  library.Resolver{Demo: cfg.Demo},
		Log:       log,
	}
	return svc, func() {
		_ = rdb.Close()
		db.Close()
		_ = log.Sync()
	}, nil
}
