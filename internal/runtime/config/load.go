package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by LoadFromEnv.
const (
	EnvPubSubSystem        = "CALLFLOW_PUBSUB_SYSTEM"
	EnvKafkaBrokers        = "KAFKA_BROKERS"
	EnvClientID            = "KAFKA_CLIENT_ID"
	EnvCallTimeout         = "CALLFLOW_CALL_TIMEOUT"
	EnvResponseGroupPrefix = "CALLFLOW_RESPONSE_GROUP_PREFIX"
	EnvNATSURL             = "NATS_URL"
	EnvRabbitMQURL         = "RABBITMQ_URL"
	EnvAWSRegion           = "AWS_REGION"
	EnvAWSAccountID        = "AWS_ACCOUNT_ID"
	EnvAWSAccessKeyID      = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
	EnvAWSEndpoint         = "AWS_ENDPOINT"
	EnvMetricsEnabled      = "CALLFLOW_METRICS_ENABLED"
	EnvMetricsPort         = "CALLFLOW_METRICS_PORT"
	EnvWebUIEnabled        = "CALLFLOW_WEBUI_ENABLED"
	EnvWebUIPort           = "CALLFLOW_WEBUI_PORT"
	EnvWebUICORSOrigins    = "CALLFLOW_WEBUI_CORS_ORIGINS"
)

// LoadFromEnv builds a Config from Default overlaid with the process
// environment, then validates it.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file strictly, applies environment overrides and
// validates the result. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	path = filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format %q (only YAML supported)", ext)
	}

	// #nosec G304 -- the path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := parseYAML(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse config file: multiple documents or trailing content")
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	setInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	setString(EnvPubSubSystem, &cfg.PubSubSystem)
	if v, ok := lookup(EnvKafkaBrokers); ok && v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(EnvClientID, &cfg.ClientID)
	if v, ok := lookup(EnvCallTimeout); ok && v != "" {
		timeout, err := parseTimeout(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvCallTimeout, err))
		} else {
			cfg.DefaultCallTimeout = timeout
		}
	}
	setString(EnvResponseGroupPrefix, &cfg.ResponseGroupPrefix)
	setString(EnvNATSURL, &cfg.NATSURL)
	setString(EnvRabbitMQURL, &cfg.RabbitMQURL)
	setString(EnvAWSRegion, &cfg.AWSRegion)
	setString(EnvAWSAccountID, &cfg.AWSAccountID)
	setString(EnvAWSAccessKeyID, &cfg.AWSAccessKeyID)
	setString(EnvAWSSecretAccessKey, &cfg.AWSSecretAccessKey)
	setString(EnvAWSEndpoint, &cfg.AWSEndpoint)
	setBool(EnvMetricsEnabled, &cfg.MetricsEnabled)
	setInt(EnvMetricsPort, &cfg.MetricsPort)
	setBool(EnvWebUIEnabled, &cfg.WebUIEnabled)
	setInt(EnvWebUIPort, &cfg.WebUIPort)
	if v, ok := lookup(EnvWebUICORSOrigins); ok && v != "" {
		cfg.WebUICORSAllowedOrigins = splitList(v)
	}

	return errors.Join(errs...)
}

// parseTimeout accepts a Go duration ("5s") or a bare integer in milliseconds.
func parseTimeout(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
