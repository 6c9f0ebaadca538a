package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"storefront-service/app/domain"
	handler "storefront-service/app/handler/api"
	"storefront-service/app/middleware"
	"storefront-service/app/repository/broker"
	"storefront-service/app/repository/cache"
	"storefront-service/app/repository/db"
	"storefront-service/app/usecase"
	"storefront-service/app/worker"
	"storefront-service/config"
	"storefront-service/pkg/clock"
	"storefront-service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	slogfiber "github.com/samber/slog-fiber"
)

func main() {
	// init logger
	logger.InitLogger(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init config
	cfg, err := config.InitConfig(ctx)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		return
	}
	logger.InitLogger(cfg.LogLevel)

	// init database
	dbConn, err := db.NewPostgres(cfg.Db)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		return
	}
	defer dbConn.Close()

	if cfg.Db.Migrate {
		if err := db.RunMigrations(dbConn); err != nil {
			slog.Error("DB migration failed", "error", err)
			return
		}
	}

	// Connect to NATS server
	nc, err := nats.Connect(cfg.Nats.Url)
	if err != nil {
		slog.Error("Error connecting to NATS", "error", err)
		return
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		slog.Error("Error creating JetStream context", "error", err)
		return
	}
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     strings.ToUpper(cfg.Nats.StreamName),
		Subjects: []string{fmt.Sprintf("%s.*", strings.ToLower(cfg.Nats.StreamName))},
		Storage:  jetstream.FileStorage,
	})
	if err != nil && !errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		slog.Error("create stock stream failed", "error", err)
		return
	}

	// Redis only coordinates the sweeper across replicas
	var locker domain.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Redis connection failed", "error", err)
			return
		}
		locker = cache.NewRedisLocker(rdb)
	}

	clk := clock.New()
	reqValidator := validator.New()

	productRepo := db.NewProductRepository(dbConn)
	reservationRepo := db.NewReservationRepository(dbConn)
	cartRepo := db.NewCartRepository(dbConn)
	orderRepo := db.NewOrderRepository(dbConn)
	stockBroker := broker.NewStockBrokerPublisher(js, cfg.Nats.StreamName)

	stockUsecase := usecase.NewStockUsecase(productRepo, reservationRepo, stockBroker, clk)
	reservationUsecase := usecase.NewReservationUsecase(productRepo, reservationRepo, stockBroker, clk, cfg)
	cartUsecase := usecase.NewCartUsecase(cartRepo, productRepo, reservationRepo, clk, cfg)
	mergeUsecase := usecase.NewCartMergeUsecase(cartRepo, productRepo, clk, cfg)
	orderUsecase := usecase.NewOrderUsecase(orderRepo, cartRepo, reservationUsecase, clk, cfg)
	sweeper := worker.NewSweeper(reservationUsecase, cartUsecase, locker, cfg.Sweep.Interval(), cfg.Sweep.LockTTL())

	handlers := handler.Handlers{
		Stock:       handler.NewStockHandler(stockUsecase, reqValidator),
		Reservation: handler.NewReservationHandler(reservationUsecase, reqValidator),
		Cart:        handler.NewCartHandler(cartUsecase, mergeUsecase, reqValidator),
		Order:       handler.NewOrderHandler(orderUsecase, reqValidator),
		Maintenance: handler.NewMaintenanceHandler(sweeper),
	}

	// Initialize HTTP web framework
	app := fiber.New()
	app.Use(healthcheck.New(healthcheck.Config{
		LivenessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		LivenessEndpoint: "/live",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return dbConn.PingContext(c.Context()) == nil && nc.IsConnected()
		},
		ReadinessEndpoint: "/ready",
	}))
	app.Use(middleware.AssignRequestID())
	app.Use(slogfiber.New(logger.New(os.Stdout, cfg.LogLevel)))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		ExposeHeaders: middleware.SessionIDHeader + "," + middleware.RequestIDHeader,
	}))

	handler.SetupRouter(app, handlers, cfg)

	go sweeper.Run(ctx)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("Failed to listen", "port", cfg.Port, "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Gracefully shutdown")
	if err := app.Shutdown(); err != nil {
		slog.Warn("Unfortunately the shutdown wasn't smooth", "err", err)
	}
}
