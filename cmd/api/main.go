package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/msourial/platefull/api/controllers"
	"github.com/msourial/platefull/api/middleware"
	"github.com/msourial/platefull/api/routes"
	"github.com/msourial/platefull/internal/catalog"
	"github.com/msourial/platefull/internal/conversation"
	"github.com/msourial/platefull/internal/customization"
	"github.com/msourial/platefull/internal/gateway/telegram"
	"github.com/msourial/platefull/internal/history"
	"github.com/msourial/platefull/internal/intent"
	"github.com/msourial/platefull/internal/orders"
	"github.com/msourial/platefull/internal/settlement"
	"github.com/msourial/platefull/internal/upsell"
	"github.com/msourial/platefull/pkg/config"
	"github.com/msourial/platefull/pkg/db"
	"github.com/msourial/platefull/pkg/enums"
	"github.com/msourial/platefull/pkg/idempotency"
	"github.com/msourial/platefull/pkg/logger"
	"github.com/msourial/platefull/pkg/metrics"
	"github.com/msourial/platefull/pkg/migrate"
	"github.com/msourial/platefull/pkg/outbox"
	"github.com/msourial/platefull/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured; using in-process turn locks without deduplication")
	}

	convMetrics := metrics.NewConversationMetrics(prometheus.DefaultRegisterer)

	engine, historySvc, err := buildEngine(cfg, logg, dbClient, redisClient, convMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to build conversation engine", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	var (
		redisPinger controllers.Pinger
		replayStore middleware.IdempotencyStore
	)
	if redisClient != nil {
		redisPinger = redisClient
		replayStore = redisClient
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisPinger, replayStore, engine, historySvc, promhttp.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.FeatureFlags.TelegramPoller {
		poller, err := buildPoller(cfg, logg, engine)
		if err != nil {
			logg.Error(ctx, "failed to start telegram poller", err)
			os.Exit(1)
		}
		group.Go(func() error {
			logg.Info(groupCtx, "starting telegram poller")
			return poller.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down gracefully")
}

func buildEngine(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, convMetrics *metrics.ConversationMetrics) (*conversation.Engine, history.Service, error) {
	conn := dbClient.DB()
	catRepo := catalog.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	fee, err := cfg.Conversation.DeliveryFee()
	if err != nil {
		return nil, nil, err
	}
	orderSvc, err := orders.NewService(orderRepo, catRepo, dbClient, emitter, fee)
	if err != nil {
		return nil, nil, err
	}
	flow, err := customization.NewFlow(catRepo, orderSvc)
	if err != nil {
		return nil, nil, err
	}
	upsells, err := upsell.NewPipeline(catRepo, cfg.Upsell)
	if err != nil {
		return nil, nil, err
	}
	historySvc, err := history.NewService(orderRepo, catRepo, history.Options{
		RecommendationCount: cfg.Conversation.RecommendationCount,
		Location:            cfg.Conversation.Location(),
	})
	if err != nil {
		return nil, nil, err
	}

	resolver, err := buildResolver(cfg, logg)
	if err != nil {
		return nil, nil, err
	}
	intents, err := intent.NewPipeline(resolver)
	if err != nil {
		return nil, nil, err
	}

	settlers := map[enums.PaymentMethod]settlement.Settler{
		enums.PaymentMethodCash:       settlement.CashSettler{},
		enums.PaymentMethodStablecoin: settlement.Unconfigured{Method: string(enums.PaymentMethodStablecoin)},
	}
	if cfg.Settlement.Endpoint != "" {
		httpSettler, err := settlement.NewHTTPSettler(cfg.Settlement.Endpoint, cfg.Settlement.RequestTimeout, settlement.WithAPIKey(cfg.Settlement.APIKey))
		if err != nil {
			return nil, nil, err
		}
		settlers[enums.PaymentMethodStablecoin] = httpSettler
	}
	settle, err := settlement.NewService(settlers, settlement.PolicyFromConfig(cfg.Settlement), convMetrics, logg)
	if err != nil {
		return nil, nil, err
	}

	deps := conversation.Deps{
		Catalog:    catRepo,
		Orders:     orderSvc,
		Customizer: flow,
		Upsell:     upsells,
		History:    historySvc,
		Intents:    intents,
		Settlement: settle,
		Sessions:   conversation.NewSessionStore(conn),
		Locker:     conversation.NewKeyedMutex(),
		Metrics:    convMetrics,
		Logger:     logg,
		LockWait:   cfg.Conversation.LockWait,
		Location:   cfg.Conversation.Location(),
	}
	if redisClient != nil {
		locker, err := conversation.NewRedisLocker(redisClient, cfg.Conversation.LockTTL)
		if err != nil {
			return nil, nil, err
		}
		dedupe, err := idempotency.NewManager(redisClient, cfg.Conversation.DedupeTTL)
		if err != nil {
			return nil, nil, err
		}
		deps.Locker = locker
		deps.Dedupe = dedupe
	}

	engine, err := conversation.NewEngine(deps)
	if err != nil {
		return nil, nil, err
	}
	return engine, historySvc, nil
}

func buildResolver(cfg *config.Config, logg *logger.Logger) (intent.Resolver, error) {
	if cfg.OpenAI.APIKey == "" {
		logg.Warn(context.Background(), "openai api key not set; free-text orders will get the fallback reply")
		return intent.Unavailable{}, nil
	}
	model, err := intent.NewOpenAIModel(cfg.OpenAI)
	if err != nil {
		return nil, err
	}
	return intent.NewLLMResolver(model, cfg.OpenAI)
}

func buildPoller(cfg *config.Config, logg *logger.Logger, engine *conversation.Engine) (*telegram.Poller, error) {
	if cfg.Telegram.BotToken == "" {
		return nil, errors.New("telegram bot token required when the poller is enabled")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = cfg.Telegram.Debug
	gateway, err := telegram.NewGateway(bot, logg)
	if err != nil {
		return nil, err
	}
	return telegram.NewPoller(telegram.PollerParams{
		API:            bot,
		Handler:        engine,
		Gateway:        gateway,
		Logger:         logg,
		PollTimeoutSec: cfg.Telegram.PollTimeoutSec,
	})
}
