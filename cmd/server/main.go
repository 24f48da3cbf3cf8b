package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"notes-sync-server/internal/config"
	"notes-sync-server/internal/handler"
	"notes-sync-server/internal/repository"
	"notes-sync-server/internal/service"
	"notes-sync-server/internal/websocket"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore builds the configured record store. The returned closer is never
// nil.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (repository.RecordStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; notes are lost on restart")
		return repository.NewMemoryStore(), nopCloser{}, nil

	case config.BackendFile:
		s, err := repository.NewFileStore(cfg.NotesDir, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file store", "dir", cfg.NotesDir)
		return s, nopCloser{}, nil

	case config.BackendSQLite:
		s, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, s, nil

	case config.BackendCouchDB:
		s, err := repository.OpenCouchDB(ctx, cfg.CouchDB.URL(), cfg.CouchDB.Name)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using couchdb store", "host", cfg.CouchDB.Host, "port", cfg.CouchDB.Port, "db", cfg.CouchDB.Name)
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closer.Close()

	authService, err := service.NewAuthService(
		cfg.Auth.Username,
		cfg.Auth.Password,
		cfg.Auth.JWTSecret,
		cfg.Auth.Expiration,
		cfg.Auth.RefreshTokenExpiration,
	)
	if err != nil {
		return err
	}

	var (
		wsManager   *websocket.Manager
		broadcaster service.Broadcaster
	)
	if cfg.WebSocket.Enabled {
		wsManager = websocket.NewManager(websocket.Options{
			MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
			WriteWait:      cfg.WebSocket.WriteWait,
			PongWait:       cfg.WebSocket.PongWait,
			PingPeriod:     cfg.WebSocket.PingPeriod,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		}, logger)
		broadcaster = wsManager
	}

	// Push and the REST note routes must serialize on the same per-id locks.
	locks := service.NewKeyedMutex()
	syncService := service.NewSyncService(store, locks, broadcaster, logger)
	noteService := service.NewNoteService(store, locks, broadcaster, logger)

	handlers := handler.Handlers{
		Auth:  handler.NewAuthHandler(authService, logger),
		Notes: handler.NewNoteHandler(noteService, logger),
		Sync:  handler.NewSyncHandler(syncService, logger),
	}
	if wsManager != nil {
		wsManager.SetMessageHandler(handler.NewWebSocketMessageHandler(syncService, wsManager))
		handlers.WebSocket = handler.NewWebSocketHandler(
			wsManager,
			authService,
			cfg.WebSocket.ReadBufferSize,
			cfg.WebSocket.WriteBufferSize,
			logger,
		)
	}

	router := handler.NewRouter(handlers, authService, handler.CORSOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	}, logger)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if wsManager != nil {
		g.Go(func() error {
			return wsManager.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("starting notes sync server", "addr", addr, "env", cfg.Server.Env, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
