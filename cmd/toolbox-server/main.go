package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/triage-ai/toolbox/internal/api"
	"github.com/triage-ai/toolbox/internal/auth"
	"github.com/triage-ai/toolbox/internal/chread"
	"github.com/triage-ai/toolbox/internal/config"
	"github.com/triage-ai/toolbox/internal/engine"
	"github.com/triage-ai/toolbox/internal/server"
	"github.com/triage-ai/toolbox/internal/storage"
	"github.com/triage-ai/toolbox/internal/store"
	"github.com/triage-ai/toolbox/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (default $TOOLBOX_CONFIG)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := mustBuildLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting toolbox server",
		zap.String("http_addr", cfg.HTTPAddr()),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Duration("invoke_timeout", cfg.InvokeTimeout()),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("config_file", cfg.Source),
	)

	// Tool registry
	reg, err := tools.NewRegistry(nil)
	if err != nil {
		logger.Fatal("failed to build tool registry", zap.Error(err))
	}
	logger.Info("tool registry built", zap.Int("tools", reg.Len()))

	// Storage: ClickHouse, or LogWriter fallback
	var writer storage.EventWriter
	var reader api.InvocationReader
	if cfg.ClickHouseDSN != "" {
		conn, chWriter, err := openClickHouse(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			defer func() { _ = conn.Close() }()
			writer = chWriter
			reader = chread.NewReader(conn, logger)
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Authentication
	var authenticator auth.Authenticator
	switch cfg.AuthMode {
	case config.AuthStatic:
		authenticator = auth.NewStaticAuthenticator(cfg.APIKeys)
		logger.Info("static authenticator enabled", zap.Int("keys", len(cfg.APIKeys)))
	case config.AuthPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := store.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			cancel()
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		pgStore := store.NewStore(db)
		err = pgStore.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal("failed to migrate postgres", zap.Error(err))
		}
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			Store:    pgStore,
			CacheTTL: cfg.AuthCacheTTL(),
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	default:
		logger.Info("authentication disabled")
	}

	dispatcher := engine.NewDispatcher(reg, writer, cfg.InvokeTimeout(), logger)

	// HTTP API server
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: api.NewRouter(&api.Dependencies{
			Dispatcher: dispatcher,
			Reader:     reader,
			Auth:       authenticator,
			Logger:     logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// gRPC server (optional)
	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.GRPCPort != "" {
		grpcServer, healthServer = server.NewGRPCServer(server.NewToolServer(dispatcher, authenticator, logger))
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Fatal("failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
		}
		go func() {
			logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Fatal("grpc server failed", zap.Error(err))
			}
		}()
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	if grpcServer != nil {
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("toolbox server stopped")
}

// openClickHouse connects and starts the batch writer. The connection is
// shared by the writer and the history reader.
func openClickHouse(dsn string, logger *zap.Logger) (driver.Conn, *storage.ClickHouseWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := storage.OpenClickHouse(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	w, err := storage.NewClickHouseWriter(conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, w, nil
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
