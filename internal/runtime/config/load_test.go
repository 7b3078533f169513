package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, "kafka-1:9092, kafka-2:9092,")
	t.Setenv(EnvClientID, "order-service")
	t.Setenv(EnvCallTimeout, "5000")
	t.Setenv(EnvMetricsEnabled, "true")
	t.Setenv(EnvMetricsPort, "9100")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.ClientID != "order-service" {
		t.Errorf("ClientID = %q", cfg.ClientID)
	}
	if cfg.DefaultCallTimeout != 5*time.Second {
		t.Errorf("DefaultCallTimeout = %s, want 5s", cfg.DefaultCallTimeout)
	}
	if !cfg.MetricsEnabled || cfg.MetricsPort != 9100 {
		t.Errorf("metrics settings not applied: %+v", cfg)
	}
}

func TestLoadFromEnvReportsParseErrors(t *testing.T) {
	t.Setenv(EnvCallTimeout, "soon")
	t.Setenv(EnvWebUIPort, "eighty")

	_, err := LoadFromEnv()
	assertErrorContains(t, err, EnvCallTimeout)
	assertErrorContains(t, err, EnvWebUIPort)
}

func TestApplyEnvIgnoresEmptyValues(t *testing.T) {
	cfg := Default()
	env := map[string]string{EnvKafkaBrokers: "", EnvPubSubSystem: "channel", EnvCallTimeout: "250ms"}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	if err := applyEnv(cfg, lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.PubSubSystem != "channel" {
		t.Errorf("PubSubSystem = %q", cfg.PubSubSystem)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != DefaultKafkaBroker {
		t.Errorf("empty env value must keep default brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.DefaultCallTimeout != 250*time.Millisecond {
		t.Errorf("DefaultCallTimeout = %s", cfg.DefaultCallTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "callflow.yaml", `
pubsub_system: nats
nats_url: nats://localhost:4222
default_call_timeout: 2s
webui_enabled: true
webui_port: 8081
webui_cors_allowed_origins: ["https://admin.example.com"]
`)
	t.Setenv(EnvClientID, "from-env")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PubSubSystem != "nats" || cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("unexpected transport settings: %+v", cfg)
	}
	if cfg.DefaultCallTimeout != 2*time.Second {
		t.Errorf("DefaultCallTimeout = %s", cfg.DefaultCallTimeout)
	}
	if cfg.ResponseGroupPrefix != DefaultResponseGroupPrefix {
		t.Errorf("expected defaults to survive file load, got %q", cfg.ResponseGroupPrefix)
	}
	if cfg.ClientID != "from-env" {
		t.Errorf("expected env override, got %q", cfg.ClientID)
	}
	if len(cfg.WebUICORSAllowedOrigins) != 1 {
		t.Errorf("WebUICORSAllowedOrigins = %v", cfg.WebUICORSAllowedOrigins)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "callflow.yml", "kafka_consumer_group: legacy\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadFileRejectsNonYAML(t *testing.T) {
	path := writeFile(t, "callflow.json", "{}")
	assertErrorContains(t, func() error { _, err := LoadFile(path); return err }(), "only YAML supported")
}

func TestLoadFileEmptyUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.PubSubSystem != DefaultPubSubSystem {
		t.Errorf("PubSubSystem = %q", cfg.PubSubSystem)
	}
}

func TestLoadFileValidates(t *testing.T) {
	path := writeFile(t, "bad.yaml", "pubsub_system: rabbitmq\n")
	assertErrorContains(t, func() error { _, err := LoadFile(path); return err }(), "rabbitmq: URL is required")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
