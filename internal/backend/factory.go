package backend

import (
	"context"
	"errors"
	"fmt"

	"tracker/internal/amqp"
	"tracker/internal/log"
	"tracker/internal/storage"
	"tracker/internal/store"
	"tracker/internal/store/boltdb"
	"tracker/internal/store/memory"
	"tracker/internal/store/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	// dialAMQP is replaced in tests.
	dialAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger:   logger.WithComponent(log.ComponentBackend),
		dialAMQP: amqp.NewClient,
	}
}

// CreateBackend opens the configured store and, when AMQP is configured,
// connects the event publisher. A broker that cannot be reached is logged and
// the backend runs without events.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	backend, err := f.openStore(ctx, config)
	if err != nil {
		return nil, err
	}

	var publisher *amqp.Client
	if config.AMQPURL != "" {
		publisher, err = f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err.Error())
			publisher = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	return &BackendResult{
		Backend:   backend,
		Publisher: publisher,
		Cleanup:   cleanup(backend, publisher),
	}, nil
}

func (f *DefaultFactory) openStore(ctx context.Context, config Config) (store.Backend, error) {
	switch config.Type {
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		f.logger.Info("Initialized memory backend", "data_directory", dataDir)
		return memory.NewFromFiles(dataDir), nil

	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil

	case PostgresBackend:
		pg, err := postgres.Connect(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL backend: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend")
		return pg, nil

	case BoltBackend:
		db, err := boltdb.Open(config.BoltDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Bolt backend: %w", err)
		}
		f.logger.Info("Initialized Bolt backend", "db_path", config.BoltDBPath)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// cleanup closes the publisher first so no event is sent against a closed
// store, then the store.
func cleanup(backend store.Backend, publisher *amqp.Client) CleanupFunc {
	return func() error {
		var errs []error
		if publisher != nil {
			if err := publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close amqp client: %w", err))
			}
		}
		if err := backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend: %w", err))
		}
		return errors.Join(errs...)
	}
}
