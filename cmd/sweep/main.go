// Command sweep runs a single maintenance pass and exits. It is meant for a
// cron schedule when the in-process sweeper is not wanted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"storefront-service/app/domain"
	"storefront-service/app/repository/broker"
	"storefront-service/app/repository/cache"
	"storefront-service/app/repository/db"
	"storefront-service/app/usecase"
	"storefront-service/app/worker"
	"storefront-service/config"
	"storefront-service/pkg/clock"
	"storefront-service/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger.InitLogger(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.InitConfig(ctx)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		return 1
	}
	logger.InitLogger(cfg.LogLevel)

	dbConn, err := db.NewPostgres(cfg.Db)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		return 1
	}
	defer dbConn.Close()

	var stockBroker domain.BrokerPublisher
	nc, err := nats.Connect(cfg.Nats.Url)
	if err != nil {
		// Expiry must not wait for the broker; availability is recomputed on read.
		slog.Warn("NATS unavailable, sweeping without availability events", "error", err)
	} else {
		defer nc.Drain()
		js, err := jetstream.New(nc)
		if err != nil {
			slog.Error("Error creating JetStream context", "error", err)
			return 1
		}
		stockBroker = broker.NewStockBrokerPublisher(js, cfg.Nats.StreamName)
	}

	var locker domain.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		locker = cache.NewRedisLocker(rdb)
	}

	clk := clock.New()
	productRepo := db.NewProductRepository(dbConn)
	reservationRepo := db.NewReservationRepository(dbConn)
	cartRepo := db.NewCartRepository(dbConn)

	reservationUsecase := usecase.NewReservationUsecase(productRepo, reservationRepo, stockBroker, clk, cfg)
	cartUsecase := usecase.NewCartUsecase(cartRepo, productRepo, reservationRepo, clk, cfg)
	sweeper := worker.NewSweeper(reservationUsecase, cartUsecase, locker, cfg.Sweep.Interval(), cfg.Sweep.LockTTL())

	report, err := sweeper.SweepOnce(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return 1
	}

	slog.Info("sweep finished",
		"expired_reservations", report.ExpiredReservations,
		"deleted_carts", report.DeletedCarts,
		"skipped", report.Skipped)
	return 0
}
