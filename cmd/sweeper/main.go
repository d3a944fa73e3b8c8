package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	mongoadapter "github.com/voyago/booking-flow/internal/adapters/mongo"
	"github.com/voyago/booking-flow/internal/adapters/rabbit"
	redisadapter "github.com/voyago/booking-flow/internal/adapters/redis"
	"github.com/voyago/booking-flow/internal/config"
	"github.com/voyago/booking-flow/internal/domain"
	"github.com/voyago/booking-flow/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	store := redisadapter.NewFlowStore(redisClient)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditTrail(mongoClient.Database("bookingflow"), logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	sweeper := NewSweeper(store, audit, rabbitPub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Run(ctx, time.Minute)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweeper")
}

// Sweeper reaps booking attempts whose deadline passed without reaching a
// terminal state. It only discards local flow state and announces the
// abandonment; the server-side ticket lock and the payment-surface lease
// are both left to expire on their own.
type Sweeper struct {
	store     *redisadapter.FlowStore
	audit     *mongoadapter.AuditTrail
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewSweeper(store *redisadapter.FlowStore, audit *mongoadapter.AuditTrail, rabbitPub *rabbit.Publisher, logger observability.Logger) *Sweeper {
	return &Sweeper{store: store, audit: audit, rabbitPub: rabbitPub, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			ids, err := s.store.DueFlowIDs(ctx, now, 100)
			if err != nil {
				s.logger.WithError(err).Error("failed to scan due flows")
				continue
			}
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(8)
			for _, id := range ids {
				id := id
				g.Go(func() error {
					if err := s.reapWithRetry(gctx, id); err != nil {
						s.logger.WithError(err).WithField("flow_id", id.String()).Error("failed to reap flow after retries")
					}
					return nil
				})
			}
			g.Wait()
		}
	}
}

func (s *Sweeper) reapWithRetry(ctx context.Context, id uuid.UUID) error {
	maxRetries := 3
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if err := s.reap(ctx, id); err != nil {
			lastErr = err
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func (s *Sweeper) reap(ctx context.Context, id uuid.UUID) error {
	f, err := s.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		// the value already expired; drop the index entry
		return s.store.Delete(ctx, id)
	}
	if err != nil {
		return err
	}
	if f.State.Terminal() {
		return s.store.Delete(ctx, id)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	observability.FlowsAbandoned.Inc()
	s.audit.Record(ctx, "flow.abandoned", f.Identity.CustomerID, map[string]any{
		"flow_id": f.ID.String(),
		"state":   string(f.State),
	})
	return s.rabbitPub.PublishJSON(ctx, "flow.abandoned", map[string]any{
		"flow_id":     f.ID.String(),
		"customer_id": f.Identity.CustomerID,
		"event_id":    f.EventID,
		"state":       string(f.State),
	})
}
