package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "storefront API: catalog, cart, orders and order chat",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "migrate",
						Usage:   "apply the schema before serving",
						Value:   true,
						EnvVars: []string{"AUTO_MIGRATE"},
					},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply the database schema and exit",
				Action: migrate,
			},
			{
				Name:   "reindex",
				Usage:  "push every product into the search index",
				Action: reindex,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)
	return logger
}

func openDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	gdb, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	return gdb, nil
}

func migrate(c *cli.Context) error {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	logger := newLogger(cfg)

	gdb, err := openDB(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrate_success")
	return nil
}

func reindex(c *cli.Context) error {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(cfg.ESURL, "ES_URL")
	logger := newLogger(cfg)

	gdb, err := openDB(c.Context, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	idx, err := openSearch(cfg)
	if err != nil {
		return err
	}
	catalog := &service.CatalogService{Repo: repo.New(gdb), Search: idx}
	n, err := catalog.Reindex(c.Context)
	if err != nil {
		return fmt.Errorf("reindex after %d products: %w", n, err)
	}
	logger.Info("reindex_success", "products", n)
	return nil
}
