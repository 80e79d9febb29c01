package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdusco/shrinkly/internal/handler"
	"github.com/abdusco/shrinkly/internal/kv"
	"github.com/abdusco/shrinkly/internal/logger"
	"github.com/abdusco/shrinkly/internal/notify"
	"github.com/abdusco/shrinkly/internal/store"
	"github.com/abdusco/shrinkly/web"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type Config struct {
	Host        string
	Port        string
	DatabaseURL string
	BaseURL     string
	UniqueCodes bool
	NATSURL     string
	NATSSubject string
	LogLevel    string
	Debug       bool
}

func newConfigFromEnv() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	return Config{
		Host:        cmp.Or(os.Getenv("HOST"), "localhost"),
		Port:        cmp.Or(os.Getenv("PORT"), "8080"),
		DatabaseURL: cmp.Or(os.Getenv("DATABASE_URL"), "shrinkly.db"),
		BaseURL:     cmp.Or(os.Getenv("BASE_URL"), store.DefaultBaseURL),
		UniqueCodes: os.Getenv("UNIQUE_CODES") == "1",
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: cmp.Or(os.Getenv("NATS_SUBJECT"), "shrinkly.links"),
		LogLevel:    cmp.Or(os.Getenv("LOG_LEVEL"), "info"),
		Debug:       os.Getenv("DEBUG") == "1",
	}
}

func main() {
	cfg := newConfigFromEnv()

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}

	log.Info().
		Interface("config", cfg).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	snapshots, err := kv.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer snapshots.Close()

	links, err := store.New(ctx, snapshots,
		store.WithBaseURL(cfg.BaseURL),
		store.WithUniqueCodes(cfg.UniqueCodes),
	)
	if err != nil {
		return fmt.Errorf("failed to load links: %w", err)
	}

	notifiers := notify.Multi{notify.Log{}}
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL,
			nats.Name("shrinkly"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer conn.Drain()
		notifiers = append(notifiers, notify.NewNATS(conn, cfg.NATSSubject))
		log.Info().Str("subject", cfg.NATSSubject).Msg("publishing notices to nats")
	}
	unsubscribe := links.Subscribe(notify.Forward(ctx, notifiers))
	defer unsubscribe()

	e := echo.New()
	defer e.Close()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	var files fs.FS = web.FS
	if cfg.Debug {
		log.Info().Msg("serving static files from disk")
		files = os.DirFS("web")
	} else {
		log.Info().Msg("serving static files from embedded filesystem")
	}
	handler.Register(e, links, files)

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	log.Info().Str("address", addr).Msg("server starting")

	runServer(ctx, e, addr)

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, addr string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
		return
	}

	log.Info().Msg("shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
