package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/voyago/booking-flow/internal/adapters/crdb"
	mongoadapter "github.com/voyago/booking-flow/internal/adapters/mongo"
	"github.com/voyago/booking-flow/internal/adapters/rabbit"
	redisadapter "github.com/voyago/booking-flow/internal/adapters/redis"
	"github.com/voyago/booking-flow/internal/config"
	"github.com/voyago/booking-flow/internal/flow"
	"github.com/voyago/booking-flow/internal/gateway"
	httphandler "github.com/voyago/booking-flow/internal/http"
	"github.com/voyago/booking-flow/internal/inflight"
	"github.com/voyago/booking-flow/internal/observability"
	"github.com/voyago/booking-flow/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	receipts := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditTrail(mongoClient.Database("bookingflow"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	store := redisadapter.NewFlowStore(redisClient)
	guard := inflight.NewGuard(redisClient, cfg.GuardTTL)
	rl := ratelimit.NewRateLimiter(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	bookingAPI := gateway.NewBookingClient(cfg.BookingAPIBaseURL)
	collector := gateway.NewHostedCheckout(cfg.GatewayKeyID, cfg.GatewayBaseURL)

	ctrl := flow.NewController(store, guard, bookingAPI, collector, receipts, audit, rabbitPub, logger, cfg.FlowTTL)

	handlers := httphandler.NewHandlers(cfg, ctrl, receipts)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
