package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/authclient"
	"github.com/Skotchmaster/storefront/internal/config"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/httpserver"
	"github.com/Skotchmaster/storefront/internal/middleware/csrf"
	"github.com/Skotchmaster/storefront/internal/middleware/requestlog"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/search"
	"github.com/Skotchmaster/storefront/internal/service"
	"github.com/Skotchmaster/storefront/internal/store"
)

const shutdownTimeout = 10 * time.Second

// runner is a background consumer that feeds the local hub.
type runner interface {
	Run(ctx context.Context) error
}

func serve(c *cli.Context) error {
	cfg := config.Load()
	cfg.Validate()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	if c.Bool("migrate") {
		if err := db.Migrate(gdb); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	r := repo.New(gdb)
	hub := realtime.NewHub(realtime.DefaultBuffer)
	defer hub.Close()

	persister, closePersister, err := openPersister(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePersister()

	events, relay, closeEvents, err := openEvents(cfg, gdb, hub, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	catalog := &service.CatalogService{Repo: r, Events: events}
	if cfg.ESURL != "" {
		idx, err := openSearch(cfg)
		if err != nil {
			logger.Warn("search_disabled", "error", err)
		} else {
			catalog.Search = idx
		}
	}
	orders := &service.OrderService{Repo: r, Events: events, Hub: hub}
	settings := &service.SettingsService{Repo: r, Events: events, Hub: hub}

	authProxy, err := httpserver.NewProxy(cfg.AuthHTTPURL, httpserver.AuthPrefix)
	if err != nil {
		return fmt.Errorf("auth proxy: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestlog.Middleware(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowCredentials: true}))
	if cfg.CSRF {
		e.Use(csrf.Middleware(csrf.Config{SkipPrefixes: []string{"/health", httpserver.AuthPrefix}}))
	}

	httpserver.Register(e, &httpserver.Deps{
		Catalog: &httpserver.CatalogHTTP{Svc: catalog},
		Cart: &httpserver.CartHTTP{
			Sessions: store.NewSessions(persister),
			Catalog:  catalog,
			Orders:   orders,
			Settings: settings,
		},
		Orders:    &httpserver.OrderHTTP{Svc: orders},
		Chat:      &httpserver.ChatHTTP{Svc: &service.ChatService{Repo: r, Events: events, Hub: hub}},
		Affiliate: &httpserver.AffiliateHTTP{Svc: &service.AffiliateService{Repo: r}, BaseURL: cfg.PublicURL},
		Settings:  &httpserver.SettingsHTTP{Svc: settings},
		Auth:      auth.NewMiddleware(cfg.JWTAccessSecret, authclient.NewClient(cfg.AuthHTTPURL), r),
		AuthProxy: authProxy,
		Ready:     r.Ping,
	})

	// no WriteTimeout: event streams stay open for as long as the client
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.StoreBackend, "events", cfg.EventsTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// closing the hub ends open streams so Shutdown does not wait on them
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

func openPersister(ctx context.Context, cfg config.Config) (store.Persister, func(), error) {
	switch cfg.StoreBackend {
	case "file":
		fp, err := store.NewFilePersister(cfg.StoreDir)
		if err != nil {
			return nil, nil, fmt.Errorf("file store: %w", err)
		}
		return fp, func() {}, nil
	case "redis":
		client := store.NewRedisClient(cfg.RedisAddr, store.WithPassword(cfg.RedisPassword), store.WithDB(cfg.RedisDB))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		return store.NewRedisPersister(client, cfg.StoreTTL), func() { _ = client.Close() }, nil
	default:
		return store.NewMemoryPersister(), func() {}, nil
	}
}

// openEvents picks the change transport. With an external transport services
// publish outward only and the relay feeds the local hub, so every instance
// sees every change exactly once.
func openEvents(cfg config.Config, gdb *gorm.DB, hub *realtime.Hub, logger *slog.Logger) (realtime.Publisher, runner, func(), error) {
	switch cfg.EventsTransport {
	case "kafka":
		pub := realtime.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		relay := realtime.NewKafkaRelay(cfg.KafkaBrokers, cfg.KafkaTopic, realtime.RelayGroupID(cfg.ServiceName, cfg.InstanceID), hub, logger)
		return pub, relay, func() { _ = pub.Close() }, nil
	case "postgres":
		if db.IsSQLite(cfg.DatabaseURL) {
			return nil, nil, nil, errors.New("EVENTS_TRANSPORT=postgres requires a postgres DATABASE_URL")
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		pub := realtime.NewPGNotifyPublisher(sqlDB, realtime.DefaultChannel)
		relay := realtime.NewPGRelay(cfg.DatabaseURL, realtime.DefaultChannel, hub, logger)
		return pub, relay, func() {}, nil
	default:
		return hub, nil, func() {}, nil
	}
}

func openSearch(cfg config.Config) (*search.Index, error) {
	es, err := search.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: %w", err)
	}
	return search.NewIndex(es, cfg.ESIndex), nil
}
