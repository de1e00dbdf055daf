package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/checkout-credits/internal/checkout"
	"github.com/iliyamo/checkout-credits/internal/clients"
	"github.com/iliyamo/checkout-credits/internal/collab"
	"github.com/iliyamo/checkout-credits/internal/config"
	"github.com/iliyamo/checkout-credits/internal/database"
	"github.com/iliyamo/checkout-credits/internal/floorcache"
	"github.com/iliyamo/checkout-credits/internal/handler"
	"github.com/iliyamo/checkout-credits/internal/logging"
	"github.com/iliyamo/checkout-credits/internal/middleware"
	"github.com/iliyamo/checkout-credits/internal/preview"
	"github.com/iliyamo/checkout-credits/internal/queue"
	"github.com/iliyamo/checkout-credits/internal/repository"
	"github.com/iliyamo/checkout-credits/internal/router"
	"github.com/iliyamo/checkout-credits/internal/service"
)

func main() {
	cfg := config.Load()
	co := config.LoadCheckoutConfig()
	log := logging.NewLogger("checkout-credits", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// MySQL only feeds the advisory floor hint; checkout works without it.
	var db *sql.DB
	if d, err := database.Open(cfg); err != nil {
		log.WithError(err).Warn("mysql unavailable, floor hints disabled")
	} else {
		db = d
		defer db.Close()
	}

	var rdb redis.UniversalClient
	if c := config.NewRedisClient(log); c != nil {
		rdb = c
		defer c.Close()
	}

	var floors *floorcache.Cache
	if db != nil {
		fc := config.LoadFloorCacheConfig()
		var cacheRedis redis.UniversalClient
		if fc.Enabled {
			cacheRedis = rdb
		}
		floors = floorcache.New(cacheRedis, repository.NewFloorRepo(db), fc.Prefix, fc.TTL, log)
	}

	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = co.PreviewMaxRetries
	sessions := service.NewSessions(service.SessionConfig{
		Namespace:      co.Namespace,
		SessionTTL:     co.SessionTTL,
		Debounce:       co.Debounce,
		FeeBasisPoints: co.FeeBasisPoints,
		Preview:        preview.HTTPConfig{BaseURL: co.PreviewURL, Timeout: co.PreviewTimeout, Retry: retry},
		Wallet:         collab.Config{BaseURL: co.WalletURL, Retry: clients.DefaultRetryConfig()},
		Booking:        collab.Config{BaseURL: co.BookingURL, Retry: clients.DefaultRetryConfig()},
	}, service.Deps{
		Redis:   rdb,
		Floors:  floors,
		Events:  service.NewPublisher(co.AMQPURL, log),
		Metrics: checkout.NewMetrics(prometheus.DefaultRegisterer),
		Logger:  log,
	})
	defer sessions.Close()
	go sessions.Run(ctx, time.Minute)

	consumer := &queue.Consumer{URL: co.AMQPURL, LogDir: "logs", Log: log}
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("credits consumer stopped")
		}
	}()

	checks := map[string]handler.Pinger{}
	if db != nil {
		checks["mysql"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.Ready(checks), echo.WrapHandler(promhttp.Handler()))
	var limiter echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	}
	router.RegisterCheckout(e, handler.NewCheckoutHandler(sessions, log), cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
}
