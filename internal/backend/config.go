package backend

import (
	"fmt"

	"famledger/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
	}, nil
}

// TransportFromAppConfig converts the application config to transport config
func TransportFromAppConfig(appConfig *config.Config) (TransportConfig, error) {
	if appConfig == nil {
		return TransportConfig{}, fmt.Errorf("app config is nil")
	}

	transportType := TransportType(appConfig.EventTransport)
	if !transportType.IsValid() {
		return TransportConfig{}, fmt.Errorf("invalid event transport in config: %s", appConfig.EventTransport)
	}

	return TransportConfig{
		Type:         transportType,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
		KafkaGroupID: appConfig.KafkaGroupID,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}

// Validate validates the transport configuration
func (c TransportConfig) Validate() error {
	switch c.Type {
	case AMQPTransport:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for amqp transport")
		}
	case KafkaTransport:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("Kafka brokers and topic are required for kafka transport")
		}
	case NoTransport:
	default:
		return fmt.Errorf("invalid event transport: %s", c.Type)
	}
	return nil
}
