package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"famledger/internal/amqp"
	"famledger/internal/events"
	"famledger/internal/kafka"
	"famledger/internal/storage"
	"famledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Backend: repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()

	f.logger.Warn("Initialized memory backend, ledger data will not survive a restart")

	return &BackendResult{
		Backend: store,
		Cleanup: store.Close,
	}, nil
}

// CreateTransport implements Factory.CreateTransport
func (f *DefaultFactory) CreateTransport(ctx context.Context, config TransportConfig) (*TransportResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case AMQPTransport:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Info("Initialized AMQP transport",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return &TransportResult{Publisher: client, Consumer: client, Cleanup: client.Close}, nil

	case KafkaTransport:
		publisher := kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		consumer := kafka.NewConsumer(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID)
		f.logger.Info("Initialized Kafka transport",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic,
			"group_id", config.KafkaGroupID)
		return &TransportResult{
			Publisher: publisher,
			Consumer:  consumer,
			Cleanup: func() error {
				return errors.Join(publisher.Close(), consumer.Close())
			},
		}, nil

	default:
		f.logger.Info("Event transport disabled, outbox events are logged only")
		return &TransportResult{Publisher: events.LogPublisher{}}, nil
	}
}
