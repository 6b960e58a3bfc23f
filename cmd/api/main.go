package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/repository/memory"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/storage"
	"github.com/spec-kit/ticket-engine/internal/ticketcode"
	"github.com/spec-kit/ticket-engine/internal/vault"
	"github.com/spec-kit/ticket-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.Pool)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	secrets, err := vault.New(cfg.Vault.Key)
	if err != nil {
		logger.Fatal("failed to init vault", zap.Error(err))
	}
	files, err := storage.NewFilesystem(cfg.Storage.AttachmentDir)
	if err != nil {
		logger.Fatal("failed to init attachment storage", zap.Error(err))
	}
	codes, err := ticketcode.New(cfg.Ticket.CodeDigits)
	if err != nil {
		logger.Fatal("invalid ticket code width", zap.Error(err))
	}

	deps := service.Dependencies{
		Store:       store,
		Dispatcher:  dispatcher,
		Attachments: files,
		Vault:       secrets,
		Codes:       codes,
		Logger:      logger,
		Metrics:     metrics,
	}
	ticketService := service.NewTicketService(deps)
	threadService := service.NewThreadService(deps)
	mergeService := service.NewMergeService(deps)
	automationService := service.NewAutomationService(deps)
	authService := service.NewAuthService(cfg.Auth, store.Staff(), logger)

	transport, delivery, closeTransports := buildTransports(cfg.Notification, redis, logger)
	defer closeTransports()

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Store:      store,
		Matcher:    service.NewAvailabilityMatcher(store.Staff(), store.Departments(), cfg.Ticket.Location()),
		Transport:  transport,
		Logger:     logger,
		Metrics:    metrics,
	})
	notificationService.RegisterHandlers()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Staff:          handlers.NewStaffHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Threads:        handlers.NewStaffTicketsHandler(threadService, mergeService),
		Automation:     handlers.NewAutomationHandler(automationService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Staff()),
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Automation.Enabled {
		automationWorker := worker.NewAutomationWorker(automationService, redis, worker.AutomationOptions{
			Schedule:    cfg.Automation.Schedule,
			Concurrency: cfg.Automation.Concurrency,
			LockTTL:     cfg.Automation.LockTTL(),
			Location:    cfg.Ticket.Location(),
		}, logger)
		g.Go(func() error { return automationWorker.Run(gctx) })
	}
	if queue, ok := transport.(*notify.RedisQueue); ok {
		notificationWorker := worker.NewNotificationWorker(queue, delivery, logger)
		g.Go(func() error { return notificationWorker.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
	}
}

// buildTransports returns the transport services publish to and, for the redis queue,
// the transport the queue worker delivers to.
func buildTransports(cfg config.NotificationConfig, redis *persistence.Redis, logger *zap.Logger) (notify.Transport, notify.Transport, func()) {
	var closers []func() error
	deliveryFor := func(name string) notify.Transport {
		if name == "kafka" {
			kafka := notify.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
			closers = append(closers, kafka.Close)
			return kafka
		}
		return notify.NewLogTransport(logger, cfg.EmailFrom)
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("closing notification transport", zap.Error(err))
			}
		}
	}

	if cfg.Transport == "redis" {
		return notify.NewRedisQueue(redis.Client, cfg.RedisQueue, logger), deliveryFor(cfg.Delivery), closeAll
	}
	return deliveryFor(cfg.Transport), nil, closeAll
}
