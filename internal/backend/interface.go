package backend

import (
	"context"

	"famledger/internal/events"
	"famledger/internal/ledger"
)

// Backend is a ledger store that also serves the outbox relay.
type Backend interface {
	ledger.Store
	ledger.Outbox
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// TransportResult holds the event publisher and consumer for the configured
// broker. Both are nil when events are not relayed.
type TransportResult struct {
	Publisher events.Publisher
	Consumer  events.Consumer
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateTransport(ctx context.Context, config TransportConfig) (*TransportResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// TransportConfig selects and configures the event broker.
type TransportConfig struct {
	Type TransportType

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

type TransportType string

const (
	AMQPTransport  TransportType = "amqp"
	KafkaTransport TransportType = "kafka"
	NoTransport    TransportType = "none"
)

func (tt TransportType) IsValid() bool {
	switch tt {
	case AMQPTransport, KafkaTransport, NoTransport:
		return true
	default:
		return false
	}
}
