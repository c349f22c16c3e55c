package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nadermx/heroesandmore/internal/config"
	"github.com/nadermx/heroesandmore/internal/services"
)

// Task types for the periodic sweeps.
const (
	TypeAuctionSweep     = "sweep:auctions"
	TypeUnpaidOrderSweep = "sweep:unpaid_orders"
	TypeOfferExpirySweep = "sweep:offer_expiry"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg       *config.Config
	lifecycle services.ILifecycleService
}

func NewTaskProcessor(cfg *config.Config, lifecycle services.ILifecycleService) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		lifecycle: lifecycle,
	}
}

// NewServer configures and returns an Asynq server with the sweep handlers
// registered. The caller runs it.
func NewServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr: rdb.Options().Addr,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAuctionSweep, processor.HandleAuctionSweepTask)
	mux.HandleFunc(TypeUnpaidOrderSweep, processor.HandleUnpaidOrderSweepTask)
	mux.HandleFunc(TypeOfferExpirySweep, processor.HandleOfferExpirySweepTask)

	return srv, mux
}

// NewScheduler returns an Asynq scheduler with the three sweeps registered at
// their configured cadences. Re-running a sweep early is harmless; every
// per-item transition is conditional.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: rdb.Options().Addr},
		&asynq.SchedulerOpts{Location: time.UTC},
	)

	entries := []struct {
		spec     string
		taskType string
	}{
		{everySpec(cfg.AuctionSweepInterval), TypeAuctionSweep},
		{everySpec(cfg.UnpaidOrderSweepInterval), TypeUnpaidOrderSweep},
		{everySpec(cfg.OfferExpirySweepInterval), TypeOfferExpirySweep},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, asynq.NewTask(e.taskType, nil)); err != nil {
			return nil, fmt.Errorf("failed to register %s schedule: %w", e.taskType, err)
		}
	}
	return scheduler, nil
}

func everySpec(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}

// --- Task Handlers ---

// HandleAuctionSweepTask closes ended auctions.
func (p *TaskProcessor) HandleAuctionSweepTask(ctx context.Context, t *asynq.Task) error {
	closed, err := p.lifecycle.RunAuctionSweep(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("auction sweep failed: %w", err)
	}
	if closed > 0 {
		log.Printf("Auction sweep closed %d auctions.", closed)
	}
	return nil
}

// HandleUnpaidOrderSweepTask cancels stale unpaid orders.
func (p *TaskProcessor) HandleUnpaidOrderSweepTask(ctx context.Context, t *asynq.Task) error {
	cancelled, err := p.lifecycle.RunUnpaidOrderSweep(ctx, time.Now().UTC(), p.cfg.OrderPaymentTimeout)
	if err != nil {
		return fmt.Errorf("unpaid order sweep failed: %w", err)
	}
	if cancelled > 0 {
		log.Printf("Unpaid order sweep cancelled %d orders.", cancelled)
	}
	return nil
}

// HandleOfferExpirySweepTask expires stale offers.
func (p *TaskProcessor) HandleOfferExpirySweepTask(ctx context.Context, t *asynq.Task) error {
	expired, err := p.lifecycle.RunOfferExpirySweep(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("offer expiry sweep failed: %w", err)
	}
	if expired > 0 {
		log.Printf("Offer expiry sweep expired %d offers.", expired)
	}
	return nil
}
