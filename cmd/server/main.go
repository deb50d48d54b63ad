package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"khqrgw/internal/bakong"
	"khqrgw/internal/config"
	"khqrgw/internal/domain"
	"khqrgw/internal/handlers"
	"khqrgw/internal/ledger"
	"khqrgw/internal/metrics"
	"khqrgw/internal/reconcile"
)

func main() {
	settings := config.Load()

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := newLedger(settings, logger)
	if err != nil {
		logger.Fatal("failed to initialize ledger", zap.Error(err))
	}

	client := bakong.NewClient(bakong.Config{
		BaseURL: settings.BakongAPIURL,
		Token:   settings.BakongToken,
		Timeout: settings.HTTPTimeout,
		Retries: settings.HTTPRetries,
		SourceInfo: bakong.SourceInfo{
			AppName:             settings.DeeplinkAppName,
			AppIconURL:          settings.DeeplinkAppIcon,
			AppDeepLinkCallback: settings.DeeplinkCallback,
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := reconcile.New(store, client, logger, reconcile.Options{
		Interval: settings.ReconcileInterval,
		Lookback: settings.ReconcileLookback,
		Workers:  settings.ReconcileWorkers,
		Queue:    settings.ReconcileQueue,
	})
	reconciler.Start(ctx)

	if settings.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(settings.MetricsAddr); err != nil {
				logger.Error("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	app := fiber.New(fiber.Config{
		AppName:      "khqr-checkout",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	})
	app.Use(fiberrecover.New())
	app.Use(fiberlogger.New())

	handler := handlers.NewPaymentHandler(store, client, reconciler, handlers.Merchant{
		AccountID:     settings.MerchantAccountID,
		Name:          settings.MerchantName,
		City:          settings.MerchantCity,
		AcquiringBank: settings.AcquiringBank,
		MCC:           settings.MerchantMCC,
	}, settings.AdminToken, logger)
	handler.Register(app)
	app.Static("/", "./web")

	go func() {
		logger.Info("listening",
			zap.String("port", settings.ServerPort),
			zap.String("ledger", store.Name()))
		if err := app.Listen(":" + settings.ServerPort); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func newLedger(settings *config.Settings, logger *zap.Logger) (domain.Ledger, error) {
	if settings.LedgerRedisURL == "" {
		return ledger.NewMemory(), nil
	}
	store, err := ledger.NewRedis(settings.LedgerRedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("using redis ledger", zap.String("addr", settings.LedgerRedisURL))
	return store, nil
}
