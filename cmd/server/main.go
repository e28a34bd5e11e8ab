package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/workshop-seat-booking/internal/config"
	"github.com/iliyamo/workshop-seat-booking/internal/database"
	"github.com/iliyamo/workshop-seat-booking/internal/gateway/payos"
	"github.com/iliyamo/workshop-seat-booking/internal/handler"
	"github.com/iliyamo/workshop-seat-booking/internal/middleware"
	"github.com/iliyamo/workshop-seat-booking/internal/notify"
	"github.com/iliyamo/workshop-seat-booking/internal/queue"
	"github.com/iliyamo/workshop-seat-booking/internal/repository"
	"github.com/iliyamo/workshop-seat-booking/internal/router"
	"github.com/iliyamo/workshop-seat-booking/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	log := logrus.New()
	cfg := config.Load()
	if cfg.Env == "prod" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	if err := database.SeedSeats(ctx, db, cfg.SeatCount); err != nil {
		return err
	}
	store := repository.NewMySQLStore(db)

	// Notifications go through RabbitMQ when a broker is configured and are
	// dispatched in-process otherwise.
	dispatcher := notify.NewDispatcher(store.Repos().Reservations, notify.LogSender{StaffEmail: cfg.StaffEmail, Log: log}, log)
	var notifier service.Notifier = notify.Inline{D: dispatcher}
	var consumer *queue.Consumer
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		if err := pub.Connect(); err != nil {
			log.WithError(err).Warn("rabbitmq not reachable yet; publisher will redial")
		}
		defer pub.Close()
		notifier = pub
		consumer = queue.NewConsumer(cfg.RabbitURL, dispatcher.Handle, log)
	}

	payments := payos.New(payos.Config{
		ClientID:    cfg.PayOSClientID,
		APIKey:      cfg.PayOSAPIKey,
		ChecksumKey: cfg.PayOSChecksumKey,
		BaseURL:     cfg.PayOSBaseURL,
	}, payos.WithLogger(log))

	locks := service.NewSeatLockManager(store, cfg.HoldTTL, service.WithLogger(log))
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	reconciler := service.NewReconciler(store, payments, notifier, service.ReconcilerConfig{
		TicketPrice:     cfg.TicketPrice,
		ReturnURL:       base + "/payment/success",
		CancelURL:       base + "/payment/cancel",
		GatewayAttempts: cfg.GatewayMaxAttempts,
	}, service.WithLogger(log))

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadSeatMapCacheConfig(cfg.HoldTTL)
	mw := router.Middlewares{
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cache:      middleware.NewRedisCache(cacheCfg, rdb, log),
		Invalidate: middleware.InvalidateCache(cacheCfg, rdb, log),
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echoMw.Recover())
	e.Use(echoMw.BodyLimit("1M"))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(handler.StaffAccount{
		Email:        cfg.StaffEmail,
		PasswordHash: cfg.StaffPasswordHash,
	}, cfg.JWTSecret, cfg.AccessTTLMin, log), mw)
	router.RegisterCustomer(e, handler.NewSeatHandler(locks, cfg.HoldTTL, log), handler.NewPaymentHandler(reconciler, log), mw)
	router.RegisterWebhooks(e, handler.NewWebhookHandler(payments, reconciler, log), mw)
	router.RegisterStaff(e, handler.NewAdminHandler(reconciler, locks, log), cfg.JWTSecret, mw)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	g.Go(func() error {
		return service.RunSweeper(gctx, locks, cfg.SweepInterval, log)
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}
