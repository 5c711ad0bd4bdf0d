package main

import (
	"context"
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
	"signal-relay/internal/handler"
	"signal-relay/internal/job"
	"signal-relay/internal/provider"
	"signal-relay/internal/registry"
	"signal-relay/internal/repository"
	"signal-relay/internal/service"
	"signal-relay/internal/session"
	"signal-relay/pkg/logger"
	"signal-relay/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	tele "gopkg.in/telebot.v3"

	_ "signal-relay/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initLoggerFunc         = logger.Init
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newAccountRepoFunc     = repository.NewAccountRepository
	newSignalArchiveFunc   = repository.NewSignalArchive
	newTelegramBotFunc     = bot.NewTelegramBot
	startTelegramBotFunc   = func(b *tele.Bot) { go b.Start() }
	stopTelegramBotFunc    = func(b *tele.Bot) { b.Stop() }
	startSessionSweepFunc  = func(j *job.SessionSweeper, ctx context.Context) { go j.Start(ctx) }
	startRetentionFunc     = func(j *job.DeliveryRetention, ctx context.Context) { go j.Start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Signal Relay API
// @version         1.0
// @description     Trading signal webhook intake and distribution to Telegram subscribers.

// @host      localhost:8080
// @BasePath  /
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	initLoggerFunc(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Postgres")
	}
	defer db.Close()
	if needsRedis(cfg) {
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

	st := buildStores(ctx, cfg, tracer)
	providers := buildProviders(cfg, tracer)

	b, err := newTelegramBotFunc(cfg.TelegramBotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Telegram bot")
	}
	renderer := chat.NewRenderer(bot.NewTelegramTransport(b), log.Logger, cfg.SendTimeout())

	distributor := bot.NewSignalDistributor(tracer, renderer, st.resolver, st.registry, st.deliveries, bot.DistributorConfig{
		Operators:   cfg.OperatorChatIDs,
		Concurrency: cfg.DistributionConcurrency,
		SendTimeout: cfg.SendTimeout(),
	})
	signalService := service.NewSignalService(tracer, distributor, st.archive)

	machine := bot.NewMachine(bot.MachineDeps{
		Tracer:              tracer,
		Logger:              log.Logger,
		Sessions:            st.sessions,
		Locker:              session.NewLocker(),
		Screen:              renderer,
		Registry:            st.registry,
		Providers:           providers,
		Subscriptions:       st.subscriptions,
		Gate:                st.gate,
		Users:               st.users,
		RequireSubscription: cfg.RequireSubscription,
		SubscribeURL:        cfg.SubscribeURL,
		ProviderTimeout:     cfg.ProviderTimeout(),
		LoadingAnimationURL: cfg.LoadingAnimationURL,
	})
	if st.accounts != nil {
		bot.RegisterHandlers(b, machine, bot.NewOperator(st.accounts, renderer, cfg.OperatorChatIDs, cfg.ReactivateURL, log.Logger))
	} else {
		bot.RegisterHandlers(b, machine, nil)
	}
	startTelegramBotFunc(b)

	startSessionSweepFunc(job.NewSessionSweeper(tracer, st.sweepable, cfg.SessionTTL()), ctx)
	startRetentionFunc(job.NewDeliveryRetention(tracer, st.pruner, cfg.DeliveryRetention()), ctx)

	h := handler.New(tracer, signalService, handler.WebhookConfig{
		Secret:          cfg.WebhookSecret,
		RateLimitPerMin: cfg.WebhookRateLimitPerMin,
	})

	r := newRouterFunc()
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "X-Webhook-Secret", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(otelgin.Middleware(tracing.ServiceName))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              httpAddrFromEnv(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()
	stopTelegramBotFunc(b)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// stores groups the storage-backed collaborators. Fields stay nil interfaces when
// their backend is not configured.
type stores struct {
	sessions      bot.SessionStore
	sweepable     job.SessionSweepable
	registry      bot.SignalRegistry
	resolver      bot.SubscriberSource
	gate          bot.Gate
	subscriptions bot.SubscriptionStore
	users         bot.UserRegistrar
	accounts      bot.AccountAdmin
	deliveries    bot.DeliveryArchive
	archive       service.SignalArchive
	pruner        job.DeliveryPruner
}

func buildStores(ctx context.Context, cfg *config.Config, tracer trace.Tracer) stores {
	var st stores

	if cfg.SessionBackend == config.BackendRedis && cache.Client != nil {
		st.sessions = cache.NewSessionStore(cache.Client, cfg.SessionTTL())
	} else {
		mem := session.NewMemoryStore()
		st.sessions, st.sweepable = mem, mem
	}

	if cfg.RegistryBackend == config.BackendRedis && cache.Client != nil {
		st.registry = cache.NewSignalRegistry(cache.Client, tracer, cfg.RegistryTTL())
	} else {
		st.registry = registry.NewMemory()
	}

	if db.Pool == nil {
		return st
	}

	accounts := newAccountRepoFunc(db.Pool, tracer)
	if err := accounts.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run account migrations")
	}
	archive := newSignalArchiveFunc(db.Pool, tracer)
	if err := archive.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run signal archive migrations")
	}

	resolver := service.NewSubscriberResolver(tracer, accounts)
	st.resolver, st.gate, st.subscriptions = resolver, resolver, accounts
	st.users, st.accounts = accounts, accounts
	st.deliveries, st.archive, st.pruner = archive, archive, archive
	return st
}

func buildProviders(cfg *config.Config, tracer trace.Tracer) bot.Providers {
	var p bot.Providers

	var sentiment cache.SentimentSource
	if cfg.OpenAIAPIKey != "" {
		analyst := provider.NewAnalyst(tracer, cfg.OpenAIAPIKey, cfg.OpenAIModel)
		p.Technical = analyst
		sentiment = analyst
	}
	if cfg.ChartImgAPIKey != "" {
		p.Chart = provider.NewChartImg(tracer, cfg.ChartImgBaseURL, cfg.ChartImgAPIKey, cfg.ProviderTimeout())
	}
	var calendar cache.CalendarSource = provider.NewTradingViewCalendar(tracer, cfg.CalendarBaseURL, cfg.ProviderTimeout())

	if cache.Client != nil {
		cached := cache.NewProviderCache(cache.Client, cfg.ProviderCacheTTL(), sentiment, calendar)
		p.Calendar = cached
		if sentiment != nil {
			p.Sentiment = cached
		}
		return p
	}

	p.Calendar = calendar
	if sentiment != nil {
		p.Sentiment = sentiment
	}
	return p
}

// needsRedis reports whether anything will use the shared client. The provider cache
// piggybacks on it when another component already requires Redis.
func needsRedis(cfg *config.Config) bool {
	return cfg.SessionBackend == config.BackendRedis || cfg.RegistryBackend == config.BackendRedis
}

func httpAddrFromEnv() string {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		return ":8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
