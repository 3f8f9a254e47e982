// Package main is the entry point of the messenger service.
//
// main only wires things together:
//
//	config → logger → database → repositories → hub → cache → event sink
//	→ services → hub callbacks → handlers → routes → CORS → HTTP server
//
// followed by graceful shutdown. There are no package-level singletons
// besides the global zap logger.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/akinalp/messenger/config"
	"github.com/akinalp/messenger/database"
	"github.com/akinalp/messenger/events"
	"github.com/akinalp/messenger/middleware"
	"github.com/akinalp/messenger/pkg/cache"
	"github.com/akinalp/messenger/pkg/crypto"
	"github.com/akinalp/messenger/pkg/logger"
	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sugar, err := logger.New(logger.Config{Development: cfg.Log.Development, Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	zap.ReplaceGlobals(sugar.Desugar())
	defer sugar.Sync() //nolint:errcheck

	if err := run(cfg, sugar.Named("main")); err != nil {
		sugar.Fatalw("messenger stopped with error", "error", err)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	// ─── Database ───
	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	db, err := database.New(cfg.Database.Path, migrations)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	sealer, err := crypto.NewSealer(cfg.Crypto.ContentKey)
	if err != nil {
		return fmt.Errorf("content sealer: %w", err)
	}
	if len(cfg.Crypto.ContentKey) == 0 {
		log.Warnf("%s not set, message content is stored unencrypted", config.ContentKeyEnv)
	}

	repos := initRepositories(db.Conn, sealer)

	// ─── WebSocket hub ───
	hub := ws.NewHub()
	go hub.Run()

	// ─── Unread cache ───
	unread, err := initUnreadCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer unread.Close()

	// ─── Event sink ───
	var sink events.Sink = events.NopSink{}
	if len(cfg.Kafka.Brokers) > 0 {
		sink = events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Infow("publishing events to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	defer sink.Close()

	// ─── Services ───
	svcs, limiters := initServices(repos, hub, unread, sink, cfg)
	defer limiters.Message.Close()

	registerHubCallbacks(hub, svcs)

	if cfg.Retention.Enabled {
		if err := svcs.Retention.Start(ctx); err != nil {
			return fmt.Errorf("retention: %w", err)
		}
	}

	// ─── HTTP ───
	h := initHandlers(svcs, limiters, hub, db.Conn, cfg)

	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Auth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      middleware.RequestLog(corsHandler.Handler(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")

	// close sockets first so clients learn the server is going away
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func initUnreadCache(ctx context.Context, cfg config.CacheConfig) (cache.UnreadCache, error) {
	switch cfg.Driver {
	case "redis":
		c, err := cache.NewRedisUnreadCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("unread cache: %w", err)
		}
		return c, nil
	case "memory", "":
		return cache.NewMemoryUnreadCache(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
