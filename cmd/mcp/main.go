package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"signal-relay/internal/bot"
	"signal-relay/internal/cache"
	"signal-relay/internal/chat"
	"signal-relay/internal/config"
	"signal-relay/internal/db"
	mcpserver "signal-relay/internal/mcp"
	"signal-relay/internal/registry"
	"signal-relay/internal/repository"
	"signal-relay/internal/service"
	"signal-relay/pkg/logger"
	"signal-relay/pkg/tracing"

	"github.com/joho/godotenv"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const defaultMCPHTTPMaxBodyBytes int64 = 1 << 20

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initLoggerFunc       = logger.Init
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	initTracerFunc       = tracing.InitTracer
	newTelegramBotFunc   = bot.NewTelegramBot
	newAccountRepoFunc   = repository.NewAccountRepository
	newSignalArchiveFunc = repository.NewSignalArchive
	newMCPServerFunc     = mcpserver.NewServer
	newMCPHandlerFunc    = mcpserver.NewHTTPTransportHandler
	runStdioFunc         = func(ctx context.Context, server *sdkmcp.Server) error {
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}
	startHTTPServerFunc  = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFn = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	zl := initLoggerFunc(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Postgres")
	}
	defer db.Close()
	if cfg.RegistryBackend == config.BackendRedis {
		if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Redis")
		}
	}

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	signalService := buildSignalService(ctx, cfg, tracer)

	mcpSrv := newMCPServerFunc(tracer, signalService, mcpserver.ServerConfig{
		RequestTimeout: time.Duration(cfg.MCPRequestTimeoutSecs) * time.Second,
		Logger:         logger.Slog(zl),
	})

	transport := strings.ToLower(strings.TrimSpace(cfg.MCPTransport))
	switch transport {
	case "", "stdio":
		if err := runStdioFunc(ctx, mcpSrv); err != nil {
			log.Fatal().Err(err).Msg("mcp stdio server failed")
		}
	case "http":
		if err := runHTTPMode(ctx, cancel, cfg, mcpSrv); err != nil {
			log.Fatal().Err(err).Msg("mcp http server failed")
		}
	default:
		log.Fatal().Str("transport", cfg.MCPTransport).Msg("unsupported MCP_TRANSPORT")
	}
}

// buildSignalService wires a send-only distributor: the bot is never started here, so
// button presses stay with the server process. Without a bot token, signals_submit
// reports the service as not initialized while the read tools keep working.
func buildSignalService(ctx context.Context, cfg *config.Config, tracer trace.Tracer) *service.SignalService {
	var (
		reg        bot.SignalRegistry = registry.NewMemory()
		resolver   bot.SubscriberSource
		deliveries bot.DeliveryArchive
		archive    service.SignalArchive
	)
	if cfg.RegistryBackend == config.BackendRedis && cache.Client != nil {
		reg = cache.NewSignalRegistry(cache.Client, tracer, cfg.RegistryTTL())
	}
	if db.Pool != nil {
		accounts := newAccountRepoFunc(db.Pool, tracer)
		signals := newSignalArchiveFunc(db.Pool, tracer)
		if err := signals.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run signal archive migrations")
		}
		resolver = service.NewSubscriberResolver(tracer, accounts)
		deliveries, archive = signals, signals
	}

	b, err := newTelegramBotFunc(cfg.TelegramBotToken)
	if errors.Is(err, bot.ErrNoToken) {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, signals_submit is disabled")
		return service.NewSignalService(tracer, nil, archive)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram bot")
	}

	sender := chat.NewRenderer(bot.NewTelegramTransport(b), log.Logger, cfg.SendTimeout())
	distributor := bot.NewSignalDistributor(tracer, sender, resolver, reg, deliveries, bot.DistributorConfig{
		Operators:   cfg.OperatorChatIDs,
		Concurrency: cfg.DistributionConcurrency,
		SendTimeout: cfg.SendTimeout(),
	})
	return service.NewSignalService(tracer, distributor, archive)
}

func runHTTPMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, mcpSrv *sdkmcp.Server) error {
	if !cfg.MCPHTTPEnabled {
		return fmt.Errorf("MCP_HTTP_ENABLED must be true when MCP_TRANSPORT=http")
	}
	if strings.TrimSpace(cfg.MCPAuthToken) == "" {
		return fmt.Errorf("MCP_AUTH_TOKEN is required when MCP_TRANSPORT=http")
	}

	handler := newMCPHandlerFunc(mcpSrv, mcpserver.HTTPHandlerConfig{
		AuthToken:       cfg.MCPAuthToken,
		RateLimitPerMin: cfg.MCPRateLimitPerMin,
		MaxBodyBytes:    defaultMCPHTTPMaxBodyBytes,
	})

	addr := net.JoinHostPort(cfg.MCPHTTPBind, fmt.Sprintf("%d", cfg.MCPHTTPPort))
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("mcp http server listening")
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("mcp http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFn(srv, shutdownCtx); err != nil {
		return fmt.Errorf("mcp server forced to shutdown: %w", err)
	}
	return nil
}
