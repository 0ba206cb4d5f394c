// Package main our entry point.
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

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/chatrooms/internal/auth"
	"github.com/johndosdos/chatrooms/internal/broker"
	"github.com/johndosdos/chatrooms/internal/cache"
	"github.com/johndosdos/chatrooms/internal/config"
	"github.com/johndosdos/chatrooms/internal/handler"
	"github.com/johndosdos/chatrooms/internal/logging"
	ratelimiter "github.com/johndosdos/chatrooms/internal/rate_limiter"
	"github.com/johndosdos/chatrooms/internal/store"
	ws "github.com/johndosdos/chatrooms/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(os.Stdout, "info")
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting application...")

	// Init DB
	dbPool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("could not connect to the postgresql database: %w", err)
	}
	defer dbPool.Close()

	if err := store.Migrate(ctx, dbPool); err != nil {
		return err
	}

	db := store.NewPostgres(dbPool)
	ready := map[string]handler.Pinger{"postgres": db}

	// Init cache
	var recent cache.Cache = cache.NewMemory(cfg.CacheCapacity)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		rc := cache.NewRedis(rdb, cfg.CacheCapacity)
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		recent = rc
		ready["redis"] = rc
		slog.Info("using redis message cache", "addr", cfg.RedisAddr)
	}

	registry := ws.NewRegistry()

	g, gctx := errgroup.WithContext(ctx)

	// Init NATS
	var dispatcher ws.Dispatcher
	if cfg.NatsURL != "" {
		nc, err := connectNats(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				slog.Warn("couldn't drain NATS conn", "error", err)
			}
		}()

		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("failed to create jetstream instance: %w", err)
		}

		stream, err := broker.EnsureStream(ctx, js)
		if err != nil {
			return err
		}

		dispatcher = broker.NewPublisher(js)
		g.Go(func() error {
			return broker.Subscribe(gctx, stream, registry)
		})
		slog.Info("cross-replica fan-out enabled", "stream", broker.StreamName)
	}

	engine := ws.NewEngine(ws.Deps{
		Verifier:   auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Members:    db,
		Messages:   db,
		Cache:      recent,
		Registry:   registry,
		Dispatcher: dispatcher,
	}, ws.Options{
		WriteTimeout:  cfg.WriteTimeout,
		PingInterval:  cfg.PingInterval,
		CacheTimeout:  cfg.CacheTimeout,
		SendQueue:     cfg.SendQueue,
		ReadLimit:     cfg.ReadLimit,
		MessageRate:   cfg.MessageRate,
		MessageWindow: cfg.MessageWindow,
	})

	authLimiter := ratelimiter.NewIPRateLimiter(cfg.AuthRate, cfg.AuthWindow, ratelimiter.CleanupOpts{
		TTL:      10 * time.Minute,
		Interval: time.Minute,
	})
	defer authLimiter.Cancel()

	// WriteTimeout does not apply to hijacked WebSocket connections.
	server := &http.Server{
		Addr: "0.0.0.0:" + cfg.Port,
		Handler: handler.NewRouter(handler.RouterConfig{
			Accounts:       db,
			Chats:          db,
			Cache:          recent,
			HistoryLimit:   cfg.CacheCapacity,
			Engine:         engine,
			JWTSecret:      cfg.JWTSecret,
			JWTIssuer:      cfg.JWTIssuer,
			AccessTokenTTL: cfg.AccessTokenTTL,
			AllowedOrigins: cfg.AllowedOrigins,
			AuthLimiter:    authLimiter,
			Ready:          ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	g.Go(func() error {
		slog.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received; shutting down...")

		closed := registry.CloseAll(websocket.StatusGoingAway, "server shutting down")
		slog.Info("closed websocket connections", "count", closed)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func connectNats(cfg config.Config) (*nats.Conn, error) {
	opts := []nats.Option{nats.Name("chatrooms"), nats.Timeout(5 * time.Second)}

	if cfg.NatsCred != "" {
		opts = append(opts, nats.UserCredentials(cfg.NatsCred))
	} else if cfg.NatsUser != "" && cfg.NatsPassword != "" {
		opts = append(opts, nats.UserInfo(cfg.NatsUser, cfg.NatsPassword))
	}

	nc, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}
