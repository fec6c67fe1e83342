package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"nlsql/internal/adapter/httpserver"
	mcpadapter "nlsql/internal/adapter/mcp"
	"nlsql/internal/adapter/mysql"
	openaiadapter "nlsql/internal/adapter/openai"
	"nlsql/internal/adapter/postgres"
	"nlsql/internal/adapter/sqlite"
	"nlsql/internal/cache"
	"nlsql/internal/config"
	"nlsql/internal/core/domain"
	"nlsql/internal/core/port"
	"nlsql/internal/core/service"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// On stdio transport stdout belongs to the protocol, so logs go to
	// stderr.
	logOut := os.Stdout
	if cfg.Transport == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting nlsql-server",
		slog.String("version", version),
		slog.String("transport", cfg.Transport),
		slog.String("log_level", cfg.LogLevel.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Result and schema cache, fail-open: when Redis is unreachable every
	// request simply goes to the database.
	qcache := cache.NewQueryCache(cfg.CacheURL, cfg.CacheTTL, logger)
	if cfg.CacheEnabled {
		if !qcache.Connect(ctx) {
			logger.Warn("cache unavailable, continuing without caching")
		}
	}
	defer qcache.Disconnect()
	schemaCache := cache.NewSchemaCache(qcache)

	factories := map[port.Backend]service.ManagerFactory{
		port.BackendPostgres: func(cc port.ConnConfig) port.DatabaseManager {
			return postgres.NewManager(cc, postgres.Options{
				MaxConns:       int32(cfg.DBMaxConns),
				ConnectTimeout: cfg.ConnectTimeout,
				QueryTimeout:   cfg.QueryTimeout,
			}, logger)
		},
		port.BackendMySQL: func(cc port.ConnConfig) port.DatabaseManager {
			return mysql.NewManager(cc, mysql.Options{
				MaxConns:       cfg.DBMaxConns,
				ConnectTimeout: cfg.ConnectTimeout,
				QueryTimeout:   cfg.QueryTimeout,
			}, logger)
		},
		port.BackendSQLite: func(cc port.ConnConfig) port.DatabaseManager {
			return sqlite.NewManager(cc, sqlite.Options{
				QueryTimeout: cfg.QueryTimeout,
			}, logger)
		},
	}

	registry := service.NewRegistry(factories, logger)
	defer registry.CloseAll(context.Background())

	translator := openaiadapter.NewTranslator(openaiadapter.Options{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
	}, logger)
	if !translator.Available() {
		logger.Warn("no LLM API key configured, natural language tools will fail")
	}

	schemaSvc := service.NewSchemaService(registry, schemaCache, logger)
	history := service.NewHistoryService(cfg.HistoryLimit, logger)
	users := service.NewUserManager(cfg.AuthEnabled, cfg.AdminPassword, logger)
	querySvc := service.NewQueryService(
		registry,
		translator,
		domain.NewStatementValidator(),
		schemaSvc,
		history,
		users,
		qcache,
		service.Limits{MaxRows: cfg.MaxRows, MaxSchemaTables: cfg.MaxSchemaTables},
		logger,
	)

	mcpSrv := mcpadapter.NewServer(version, mcpadapter.Services{
		Registry: registry,
		Schema:   schemaSvc,
		Query:    querySvc,
		History:  history,
		Users:    users,
		Export:   service.NewExportService(logger),
		Chart:    service.NewChartService(logger),
		Cache:    qcache,
		Defaults: cfg.Database,
		Debug:    cfg.Debug,
	}, logger)

	switch cfg.Transport {
	case "stdio":
		return runStdio(ctx, mcpSrv, logger)
	case "http":
		return runHTTP(ctx, cfg, mcpSrv, translator, logger)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func runStdio(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	logger.Info("serving MCP on stdio")

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(mcpSrv)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, mcpSrv *mcpserver.MCPServer, translator *openaiadapter.Translator, logger *slog.Logger) error {
	srv := httpserver.New(httpserver.Config{
		ListenAddr: cfg.ListenAddr,
		RateLimit:  cfg.HTTPRateLimit,
	}, mcpSrv, func() error {
		if !translator.Available() {
			return errors.New("translator not configured")
		}
		return nil
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Second signal during shutdown = hard exit.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigCh:
			logger.Warn("forced shutdown", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	return nil
}
