package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	httptransport "github.com/spec-kit/pqrs-service/internal/api/http"
	"github.com/spec-kit/pqrs-service/internal/api/http/handlers"
	"github.com/spec-kit/pqrs-service/internal/api/ws"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/clock"
	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/notify"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/persistence"
	"github.com/spec-kit/pqrs-service/internal/repository"
	"github.com/spec-kit/pqrs-service/internal/repository/memstore"
	"github.com/spec-kit/pqrs-service/internal/service"
	"github.com/spec-kit/pqrs-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Store
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pg.Pool)
	} else {
		store = memstore.New()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	redisUp := redis.Reachable()

	broker, err := newBroker(cfg.Fanout, redis, redisUp, logger)
	if err != nil {
		logger.Fatal("failed to init fanout broker", zap.Error(err))
	}
	defer broker.Close() //nolint:errcheck
	topics := events.NewTopics(cfg.Fanout.TopicPrefix)
	fanout := events.NewFanout(broker, topics, logger)

	sysClock := clock.System{}
	sequences := service.NewSequenceGenerator(store, logger)
	if err := sequences.Bootstrap(ctx); err != nil {
		logger.Fatal("failed to bootstrap filing sequences", zap.Error(err))
	}

	audit := service.NewAuditService(service.AuditDependencies{
		Store:     store,
		Sequences: sequences,
		Clock:     sysClock,
		Logger:    logger,
	})
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Store:    store,
		Mailer:   notify.NewMailer(cfg.Notification, logger),
		Renderer: notify.MustRenderer(),
		Logger:   logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		Store:         store,
		Sequences:     sequences,
		Assigner:      service.NewRoundRobinAssigner(logger),
		Audit:         audit,
		Notifications: notifications,
		Fanout:        fanout,
		Clock:         sysClock,
		Logger:        logger,
	})
	inboxService := service.NewInboxService(store, fanout, logger)
	externalService := service.NewExternalRequestService(service.ExternalRequestDependencies{
		Store:     store,
		Sequences: sequences,
		Clock:     sysClock,
		Logger:    logger,
	})
	reportLocation, err := cfg.Sweeper.Location()
	if err != nil {
		logger.Fatal("invalid report timezone", zap.Error(err))
	}
	reportService := service.NewReportService(service.ReportDependencies{
		Store:    store,
		Location: reportLocation,
		Clock:    sysClock,
		Logger:   logger,
	})

	var locker worker.Locker = worker.LocalLocker{}
	if redisUp {
		hostname, _ := os.Hostname()
		locker = worker.NewRedisLocker(redis.Client, hostname)
	}
	sweeper, err := worker.NewOverdueSweeper(worker.SweeperDependencies{
		Store:    store,
		Audit:    audit,
		Notifier: notifications,
		Fanout:   fanout,
		Locker:   locker,
		Clock:    sysClock,
		Config:   cfg.Sweeper,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to init sweeper", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Repos().Users)
	validator := dto.NewValidator()

	checks := map[string]handlers.Pinger{}
	if pg.Enabled() {
		checks["postgres"] = pg
	}
	if broker.Name() == config.FanoutDriverRedis {
		checks["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, observability.NewMetrics(), cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:           handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks),
		Requests:         handlers.NewRequestsHandler(requestService, inboxService, validator),
		ExternalRequests: handlers.NewExternalRequestsHandler(externalService, validator),
		Reports:          handlers.NewReportsHandler(reportService),
		AuthMiddleware:   authMiddleware,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})

	if cfg.Sweeper.Enabled {
		g.Go(func() error { return sweeper.Start(gctx) })
	}

	var wsServer *http.Server
	if cfg.Realtime.Enabled {
		gateway := ws.NewGateway(ws.GatewayDependencies{
			Subscriber:     broker,
			Topics:         topics,
			Resolver:       authMiddleware,
			Store:          store,
			OriginPatterns: cfg.Realtime.OriginPatterns,
			Logger:         logger,
		})
		wsServer = &http.Server{Addr: cfg.Realtime.Addr, Handler: gateway.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("websocket gateway listening", zap.String("addr", cfg.Realtime.Addr))
			if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if wsServer != nil {
			_ = wsServer.Shutdown(shutdownCtx)
		}
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
}

func newBroker(cfg config.FanoutConfig, redis *persistence.Redis, redisUp bool, logger *zap.Logger) (events.Broker, error) {
	switch cfg.Driver {
	case config.FanoutDriverNATS:
		return events.DialNATS(cfg.NATSURL, logger)
	case config.FanoutDriverRedis:
		if redisUp {
			return events.NewRedisBroker(redis.Client, logger), nil
		}
		logger.Warn("redis unreachable, falling back to in-process fanout")
		return events.NewLocalBus(), nil
	default:
		return events.NewLocalBus(), nil
	}
}
