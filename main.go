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

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Peap0ds-23/collaborative-todo-1/api"
	"github.com/Peap0ds-23/collaborative-todo-1/config"
	"github.com/Peap0ds-23/collaborative-todo-1/gateway"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
	"github.com/Peap0ds-23/collaborative-todo-1/storage"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "todo",
		Short:        "Shared to-do list service",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initStorageCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and change stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.StandardLogger()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warnf("shutdown tracer provider: %v", err)
		}
	}()

	store, err := storage.New(cfg.Storage.ConnectionString, storage.Tables{
		Tasks:         cfg.Storage.TasksTable,
		Shares:        cfg.Storage.SharesTable,
		Order:         cfg.Storage.OrderTable,
		Notifications: cfg.Storage.NotificationsTable,
		Audit:         cfg.Storage.AuditTable,
		Users:         cfg.Storage.UsersTable,
	}, cfg.Storage.NotificationQueue, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		opts, err := config.RedisOptions(cfg.Redis.ConnectionString)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set; changes stay in-process and caching is off")
	}

	hub := realtime.NewHub(logger)
	defer hub.Close()
	bus := realtime.NewBus(rc, cfg.Redis.Channel, hub, logger)
	go bus.Run(ctx)

	dispatcher := realtime.NewDispatcher(bus, realtime.PoolConfig{
		Workers:        cfg.Publish.Workers,
		Buffer:         cfg.Publish.Buffer,
		PublishTimeout: cfg.Publish.Timeout,
	}, logger)
	defer dispatcher.Close()

	opts := []gateway.Option{}
	var deduper api.Deduper
	if rc != nil {
		opts = append(opts, gateway.WithCache(storage.NewListCache(rc, cfg.CacheTTL)))
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}
	svc := gateway.New(store, dispatcher, logger, opts...)

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowCredentials: false,
	}))
	e.Use(session.Middleware(api.NewSessionStore([]byte(cfg.SessionSecret))))
	e.Use(api.GzipRequestMiddleware())
	api.Register(e, svc, auth, bus, deduper, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newAuth(cfg config.Auth) (*api.Auth, error) {
	ac := api.AuthConfig{
		LocalMode:   cfg.LocalMode,
		LocalSecret: cfg.SharedSecret,
		KeyCacheTTL: cfg.JWKSCacheTTL,
		TokenTTL:    cfg.TokenTTL,
	}
	if cfg.LocalMode != "" {
		return api.NewAuth(nil, ac)
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	ac.Audience = cfg.Audience
	ac.Issuer = cfg.IssuerURL()
	return api.NewAuth(jwks, ac)
}
