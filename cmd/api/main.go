package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/dailydose/internal/config"
	"github.com/kursadbilgin/dailydose/internal/handler"
	"github.com/kursadbilgin/dailydose/internal/infra/postgresql"
	"github.com/kursadbilgin/dailydose/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/dailydose/internal/infra/redis"
	"github.com/kursadbilgin/dailydose/internal/observability"
	"github.com/kursadbilgin/dailydose/internal/provider"
	"github.com/kursadbilgin/dailydose/internal/ratelimit"
	"github.com/kursadbilgin/dailydose/internal/repository"
	"github.com/kursadbilgin/dailydose/internal/service"
	"github.com/kursadbilgin/dailydose/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	users := repository.NewGormUserRepo(db)
	affirmations := repository.NewGormAffirmationRepo(db)
	deliveries := repository.NewGormDeliveryRepo(db)

	transportMailer, err := newMailer(cfg)
	if err != nil {
		logger.Fatal("mailer initialization failed", zap.Error(err))
	}
	mailer, err := provider.NewBreakerMailer(transportMailer, provider.BreakerSettings{
		Name:                cfg.MailProvider,
		ConsecutiveFailures: uint32(cfg.MailBreakerFailures),
		OpenTimeout:         cfg.MailBreakerOpenTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("mail circuit breaker initialization failed", zap.Error(err))
	}

	selector, err := service.NewDailyAffirmationSelector(affirmations, logger)
	if err != nil {
		logger.Fatal("affirmation selector initialization failed", zap.Error(err))
	}
	selector.SetMetrics(metrics)

	mailLimiter, err := newMailLimiter(cfg, rdb)
	if err != nil {
		logger.Fatal("mail rate limiter initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewDailyMailDispatcher(
		selector,
		users,
		deliveries,
		mailer,
		mailLimiter,
		service.DispatcherOptions{
			SendTimeout: cfg.MailSendTimeout,
			Concurrency: cfg.DispatchConcurrency,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	tasks, err := service.NewDailyTasks(dispatcher, selector, cfg.Location(), logger)
	if err != nil {
		logger.Fatal("daily tasks initialization failed", zap.Error(err))
	}
	tasks.SetMetrics(metrics)

	randomCooldown, err := infraredis.NewRedisCooldown(rdb, "ratelimit:random", cfg.RandomCooldown)
	if err != nil {
		logger.Fatal("random cooldown initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "dailydose",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, mailer.State)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterDailyRoutes(
		app,
		tasks,
		service.NewAffirmationService(affirmations, deliveries),
		randomCooldown,
	); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		logger.Info("dailydose api started", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down http server")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if cfg.SchedulerEnabled {
		scheduler, err := service.NewDailyScheduler(
			tasks,
			cfg.DailySendHour,
			cfg.DailySendMinute,
			cfg.Location(),
			logger,
		)
		if err != nil {
			logger.Fatal("scheduler initialization failed", zap.Error(err))
		}
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	} else {
		logger.Info("daily scheduler disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("dailydose stopped with error", zap.Error(err))
		return
	}
	logger.Info("dailydose stopped")
}

func newMailer(cfg *config.Config) (provider.Mailer, error) {
	switch cfg.MailProvider {
	case config.MailProviderWebhook:
		return provider.NewWebhookMailer(provider.WebhookConfig{
			Endpoint: cfg.MailWebhookURL,
			Token:    cfg.MailWebhookToken,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		})
	default:
		return provider.NewSMTPMailer(provider.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			ImplicitTLS: cfg.SMTPImplicitTLS,
			From:        cfg.MailFrom,
			FromName:    cfg.MailFromName,
		})
	}
}

// newMailLimiter paces outbound mail in process, or across every replica
// through Redis when MAIL_RATE_LIMIT_SHARED is set.
func newMailLimiter(cfg *config.Config, rdb *goredis.Client) (ratelimit.RateLimiter, error) {
	if cfg.MailRateLimitShared && cfg.MailRateLimitPerSec > 0 {
		limiter, err := infraredis.NewRedisRateLimiter(rdb, "ratelimit:mail", cfg.MailRateLimitPerSec, time.Second)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}
	return ratelimit.NewLocalRateLimiter(float64(cfg.MailRateLimitPerSec), 1), nil
}
