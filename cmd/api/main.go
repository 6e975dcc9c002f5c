package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/sla-engine/internal/api/http"
	"github.com/spec-kit/sla-engine/internal/api/http/handlers"
	"github.com/spec-kit/sla-engine/internal/automation"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/service"
	"github.com/spec-kit/sla-engine/internal/sla"
	"github.com/spec-kit/sla-engine/internal/sweep"
	"github.com/spec-kit/sla-engine/internal/tenant"
	"github.com/spec-kit/sla-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	tenantRepo := repository.NewTenantRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	calendarRepo := repository.NewCalendarRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	overrideRepo := repository.NewContractOverrideRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)
	recordRepo := repository.NewExecutionRecordRepository(pool)
	thresholdRepo := repository.NewThresholdRepository(pool)
	flagRepo := repository.NewFlagRepository(pool)

	guard := tenant.NewGuard(repository.NewReferenceRepository(pool))
	resolver := sla.NewResolver(sla.Dependencies{
		PolicyRepo:   policyRepo,
		OverrideRepo: overrideRepo,
		CalendarRepo: calendarRepo,
	})

	webhooks := service.NewWebhookDispatcher(cfg.Webhook, logger)
	publisher := service.NewCommandPublisher(dispatcher, webhooks, logger)

	engine := automation.NewEngine(automation.Dependencies{
		RuleRepo:      ruleRepo,
		RecordRepo:    recordRepo,
		FlagRepo:      flagRepo,
		Guard:         guard,
		Claimer:       redis,
		Effector:      publisher,
		Logger:        logger,
		Metrics:       metrics,
		MaxChainDepth: cfg.Automation.MaxChainDepth,
		DedupeTTL:     cfg.Automation.DedupeTTL(),
	})

	ingest := service.NewIngestService(service.IngestDependencies{
		TicketRepo:         ticketRepo,
		ThresholdRepo:      thresholdRepo,
		OverrideRepo:       overrideRepo,
		FlagRepo:           flagRepo,
		Resolver:           resolver,
		Engine:             engine,
		Guard:              guard,
		Logger:             logger,
		ConflictRetryLimit: cfg.SLA.ConflictRetryLimit,
	})

	bridge := service.NewAutomationBridge(service.BridgeDependencies{
		TenantRepo: tenantRepo,
		TicketRepo: ticketRepo,
		RecordRepo: recordRepo,
		Engine:     engine,
		Logger:     logger,
		BatchSize:  cfg.SLA.SweepBatchSize,
	})
	bridge.RegisterSubscriptions(dispatcher)

	sweeper := sweep.NewSweeper(sweep.Dependencies{
		TenantRepo:    tenantRepo,
		TicketRepo:    ticketRepo,
		ThresholdRepo: thresholdRepo,
		FlagRepo:      flagRepo,
		Resolver:      resolver,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       metrics,
		WarningRatio:  cfg.SLA.WarningRatio,
		BatchSize:     cfg.SLA.SweepBatchSize,
	})

	runner := cron.New()
	if err := worker.StartSweepWorker(runner, sweeper, cfg.SLA.SweepInterval(), logger); err != nil {
		logger.Fatal("failed to schedule sweep worker", zap.Error(err))
	}
	if err := worker.StartScheduleWorker(runner, bridge, cfg.Automation.ScheduleCadence(), logger); err != nil {
		logger.Fatal("failed to schedule automation worker", zap.Error(err))
	}
	runner.Start()
	defer runner.Stop()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Events:   handlers.NewEventsHandler(ingest),
		Settings: handlers.NewSettingsHandler(guard),
		Admin:    handlers.NewAdminHandler(flagRepo),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
