package backend

import (
	"context"
	"path/filepath"
	"testing"

	"famledger/internal/config"
	"famledger/internal/events"
)

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db")}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer res.Cleanup()
			if err := res.Backend.Ping(ctx); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}
}

func TestCreateTransport(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()

	res, err := f.CreateTransport(ctx, TransportConfig{Type: NoTransport})
	if err != nil {
		t.Fatalf("CreateTransport(none) error = %v", err)
	}
	if _, ok := res.Publisher.(events.LogPublisher); !ok || res.Consumer != nil {
		t.Errorf("none transport = %+v", res)
	}

	res, err = f.CreateTransport(ctx, TransportConfig{Type: KafkaTransport, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "ledger-events", KafkaGroupID: "g"})
	if err != nil {
		t.Fatalf("CreateTransport(kafka) error = %v", err)
	}
	if res.Publisher == nil || res.Consumer == nil {
		t.Error("kafka transport should provide a publisher and a consumer")
	}
	res.Cleanup()

	if _, err := f.CreateTransport(ctx, TransportConfig{Type: AMQPTransport}); err == nil {
		t.Error("amqp transport without URL should fail validation")
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{DataBackend: "memory", EventTransport: "kafka", KafkaBrokers: []string{"b:9092"}, KafkaTopic: "t"}

	bc, err := FromAppConfig(cfg)
	if err != nil || bc.Type != MemoryBackend {
		t.Fatalf("FromAppConfig() = %+v, %v", bc, err)
	}
	tc, err := TransportFromAppConfig(cfg)
	if err != nil || tc.Type != KafkaTransport || tc.KafkaTopic != "t" {
		t.Fatalf("TransportFromAppConfig() = %+v, %v", tc, err)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config should fail")
	}
	if _, err := TransportFromAppConfig(&config.Config{EventTransport: "nats"}); err == nil {
		t.Error("unknown transport should fail")
	}
}
