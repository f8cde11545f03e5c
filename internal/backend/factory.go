package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"expensehub/internal/amqp"
	"expensehub/internal/log"
	"expensehub/internal/sequence"
	"expensehub/internal/storage"
)

// Build opens the store, the bill sequencer and, when configured, the AMQP
// client. On error everything opened so far is closed again.
func Build(ctx context.Context, cfg Config, logger *log.Logger) (_ *Dependencies, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	logger = logger.WithComponent(log.ComponentApp)

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = cleanup()
		}
	}()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	closers = append(closers, repo.Close)

	deps := &Dependencies{
		Store:  repo,
		Checks: map[string]Checker{"sqlite": repo},
	}

	switch cfg.SequenceBackend {
	case SequenceRedis:
		var rdb *redis.Client
		rdb, err = sequence.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, rdb.Close)
		seq := sequence.NewRedisSequencer(rdb, repo)
		deps.Sequencer = seq
		deps.Checks["redis"] = seq
	default:
		deps.Sequencer = sequence.NewStoreSequencer(repo)
	}
	deps.SequencerName = string(cfg.SequenceBackend)

	if cfg.AMQPURL != "" {
		client, aerr := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		switch {
		case aerr != nil && cfg.RequireAMQP:
			err = fmt.Errorf("failed to initialize AMQP client: %w", aerr)
			return nil, err
		case aerr != nil:
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without publishing", log.FieldError, aerr)
		default:
			closers = append(closers, client.Close)
			deps.AMQP = client
			logger.InfoContext(ctx, "Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	logger.InfoContext(ctx, "Initialized backend",
		"db_path", cfg.SQLiteDBPath,
		"bill_sequence", deps.SequencerName,
		"amqp_enabled", deps.AMQP != nil)

	deps.Cleanup = cleanup
	return deps, nil
}
