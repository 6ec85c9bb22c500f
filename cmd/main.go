package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"civicdesk/backend/internal/analysis"
	"civicdesk/backend/internal/api/handler"
	"civicdesk/backend/internal/auth"
	"civicdesk/backend/internal/categorizer"
	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/events"
	"civicdesk/backend/internal/lifecycle"
	"civicdesk/backend/internal/localization"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"
	"civicdesk/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("could not read .env file", zap.Error(err))
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, revoker, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub(logger.Named("hub"))
	go hub.Run(ctx)

	// With Redis, events go through the shared channel so every instance's
	// hub sees them. Without it the local hub is the publisher.
	var publisher lifecycle.Publisher = hub
	var cache analysis.Cache
	if cfg.Redis.Addr != "" {
		rs := storage.NewRedisService(storage.NewRedisClient(cfg.Redis), logger.Named("redis"))
		if err := rs.Ping(ctx); err != nil {
			return err
		}
		bridge := events.NewRedisBridge(rs, hub, logger.Named("bridge"))
		go bridge.Listen(ctx)
		publisher = bridge
		revoker = rs
		cache = rs
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	cat, err := setupCategorizer(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Telegram.BotToken != "" {
		if err := startTelegram(ctx, cfg, store, hub, logger.Named("telegram")); err != nil {
			return err
		}
	}

	manager := lifecycle.NewManager(store, cat,
		lifecycle.WithPublisher(publisher),
		lifecycle.WithLogger(logger.Named("lifecycle")))

	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(handler.Deps{
		Manager:     manager,
		Store:       store,
		Categorizer: cat,
		Stats:       analysis.NewService(store, cache, logger.Named("stats")),
		Tokens:      auth.NewTokenService(cfg.Auth),
		Revoker:     revoker,
		Hub:         hub,
		DevTokens:   cfg.Auth.DevTokens,
		Logger:      logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.StorageDriver))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, storage.TokenRevoker, error) {
	if cfg.StorageDriver == config.DriverMemory {
		mem := storage.NewMemoryStore()
		if err := seedDemoUsers(ctx, mem, logger); err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory storage; data is lost on restart")
		return mem, mem, nil
	}

	db, err := storage.Open(cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}
	svc := storage.NewStorageService(db, logger.Named("storage"))
	if err := svc.Migrate(); err != nil {
		return nil, nil, err
	}
	logger.Info("database connected, migrations complete")
	// Revocation needs Redis in this mode; run() swaps it in when configured.
	return svc, nil, nil
}

func seedDemoUsers(ctx context.Context, store storage.Storage, logger *zap.Logger) error {
	for i, role := range models.Roles {
		u := &models.User{
			PhoneNumber: "+1555000000" + strconv.Itoa(i),
			Name:        "Demo " + string(role),
			Role:        role,
			IsActive:    true,
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return err
		}
		logger.Info("demo user", zap.String("role", string(role)), zap.String("id", u.ID))
	}
	return nil
}

func setupCategorizer(cfg *config.Config, logger *zap.Logger) (*categorizer.Service, error) {
	opts := []categorizer.Option{
		categorizer.WithKeywordFallback(cfg.Classifier.KeywordFallback),
		categorizer.WithMinConfidence(cfg.Classifier.MinConfidence),
		categorizer.WithLogger(logger.Named("categorizer")),
	}
	if cfg.Classifier.ModelPath != "" {
		model, err := categorizer.Load(cfg.Classifier.ModelPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, categorizer.WithModel(model))
		logger.Info("classifier loaded", zap.String("path", cfg.Classifier.ModelPath))
	} else {
		logger.Info("no classifier model configured, using keyword rules")
	}
	return categorizer.NewService(opts...), nil
}

func startTelegram(ctx context.Context, cfg *config.Config, store storage.Storage, hub *events.Hub, logger *zap.Logger) error {
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return err
	}
	localizer, err := localization.NewLocalizer(cfg.LocalesDir)
	if err != nil {
		return err
	}

	notifier := telegram.NewNotifier(bot, cfg.Telegram.ChatID, localizer, cfg.Locale, logger)
	if err := hub.Register(notifier); err != nil {
		return err
	}
	go notifier.Run(ctx)

	commands := telegram.NewCommandService(bot, store, cfg.Telegram.ChatID, localizer, cfg.Locale, logger)
	go commands.Run(ctx)

	logger.Info("telegram bot authorized", zap.String("account", bot.Self.UserName))
	return nil
}
