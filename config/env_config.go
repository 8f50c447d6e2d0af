package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tnqbao/gau-vm-session-service/entity"
)

type EnvConfig struct {
	Postgres struct {
		HOST     string `envconfig:"PGPOOL_HOST" default:"localhost"`
		Database string `envconfig:"PGPOOL_DB" default:"gau_sessions"`
		Username string `envconfig:"PGPOOL_USER" default:"postgres"`
		Password string `envconfig:"PGPOOL_PASSWORD"`
		Port     string `envconfig:"PGPOOL_PORT" default:"5432"`
		SSLMode  string `envconfig:"PGPOOL_SSLMODE" default:"disable"`
	}
	JWT struct {
		SecretKey string `envconfig:"JWT_SECRET_KEY"`
		Algorithm string `envconfig:"JWT_ALGORITHM" default:"HS256"`
		Expire    int    `envconfig:"JWT_EXPIRE" default:"604800"`
	}
	CORS struct {
		AllowDomains string `envconfig:"ALLOWED_DOMAINS"`
		GlobalDomain string `envconfig:"GLOBAL_DOMAIN"`
	}
	Redis struct {
		Password  string `envconfig:"REDIS_PASSWORD"`
		Database  int    `envconfig:"REDIS_DB" default:"0"`
		RedisHost string `envconfig:"REDIS_HOST" default:"localhost"`
		RedisPort string `envconfig:"REDIS_PORT" default:"6379"`
	}
	RabbitMQ struct {
		Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
		Port     string `envconfig:"RABBITMQ_PORT" default:"5672"`
		Username string `envconfig:"RABBITMQ_USER" default:"guest"`
		Password string `envconfig:"RABBITMQ_PASSWORD" default:"guest"`
	}
	Minio struct {
		Endpoint         string `envconfig:"MINIO_ENDPOINT"`
		RootUser         string `envconfig:"MINIO_ROOT_USER"`
		RootPassword     string `envconfig:"MINIO_ROOT_PASSWORD"`
		Secure           bool   `envconfig:"MINIO_SECURE" default:"false"`
		HeartbeatArchive string `envconfig:"HEARTBEAT_ARCHIVE_BUCKET" default:"session-heartbeats"`
	}
	ExternalService struct {
		CreditServiceURL string `envconfig:"CREDIT_SERVICE_URL" default:"http://localhost:8083"`
	}
	Grafana struct {
		OTLPEndpoint string `envconfig:"GRAFANA_OTLP_ENDPOINT"`
		ServiceName  string `envconfig:"SERVICE_NAME" default:"gau-vm-session-service"`
	}
	Session struct {
		HeartbeatTimeout     time.Duration `envconfig:"SESSION_HEARTBEAT_TIMEOUT" default:"2m"`
		HeartbeatCheck       time.Duration `envconfig:"SESSION_HEARTBEAT_CHECK_INTERVAL" default:"10s"`
		MaxDuration          time.Duration `envconfig:"SESSION_MAX_DURATION" default:"8h"`
		MaxDurationCheck     time.Duration `envconfig:"SESSION_MAX_DURATION_CHECK_INTERVAL" default:"10m"`
		TerminatingTimeout   time.Duration `envconfig:"SESSION_TERMINATING_TIMEOUT" default:"5m"`
		MinimumCreditSeconds int64         `envconfig:"SESSION_MIN_CREDIT_SECONDS" default:"60"`
		CandidateLimit       int           `envconfig:"SESSION_CANDIDATE_LIMIT" default:"5"`
		CreditsPerMinute     string        `envconfig:"CREDITS_PER_MINUTE" default:"small=2,medium=4,large=8,xlarge=16,gpu=40"`
		HeartbeatRetention   time.Duration `envconfig:"HEARTBEAT_RETENTION" default:"720h"`
		ArchiveInterval      time.Duration `envconfig:"HEARTBEAT_ARCHIVE_INTERVAL" default:"24h"`
	}
	Reconcile struct {
		FastInterval time.Duration `envconfig:"RECONCILE_FAST_INTERVAL" default:"30s"`
		FullInterval time.Duration `envconfig:"RECONCILE_FULL_INTERVAL" default:"5m"`
		BatchSize    int           `envconfig:"RECONCILE_BATCH_SIZE" default:"10"`
		BatchPause   time.Duration `envconfig:"RECONCILE_BATCH_PAUSE" default:"2s"`
		UseLease     bool          `envconfig:"RECONCILE_USE_LEASE" default:"true"`
	}
	Cloud struct {
		CallTimeout   time.Duration `envconfig:"CLOUD_CALL_TIMEOUT" default:"30s"`
		ClientPoolMax int64         `envconfig:"CLOUD_CLIENT_POOL_SIZE" default:"256"`
	}
	PrivateKey string `envconfig:"PRIVATE_KEY"`

	Environment struct {
		Mode  string `envconfig:"DEPLOY_ENV" default:"development"`
		Group string `envconfig:"GROUP_NAME" default:"local"`
	}
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`
}

func LoadEnvConfig() (*EnvConfig, error) {
	var config EnvConfig
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	// Remove protocol for OpenTelemetry client to avoid duplicate protocols
	config.Grafana.OTLPEndpoint = strings.TrimPrefix(config.Grafana.OTLPEndpoint, "https://")
	config.Grafana.OTLPEndpoint = strings.TrimPrefix(config.Grafana.OTLPEndpoint, "http://")

	if config.Reconcile.BatchSize <= 0 {
		config.Reconcile.BatchSize = 10
	}
	if config.Session.CandidateLimit <= 0 {
		config.Session.CandidateLimit = 5
	}

	return &config, nil
}

// CreditRates parses CREDITS_PER_MINUTE ("small=2,medium=4") into a rate table.
func (c *EnvConfig) CreditRates() (map[entity.VMType]float64, error) {
	rates := make(map[entity.VMType]float64)
	for _, pair := range strings.Split(c.Session.CreditsPerMinute, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid credit rate %q", pair)
		}
		vmType := entity.VMType(strings.TrimSpace(name))
		if !vmType.Valid() {
			return nil, fmt.Errorf("unknown vm type %q in credit rates", name)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || rate < 0 {
			return nil, fmt.Errorf("invalid credit rate for %s: %q", vmType, value)
		}
		rates[vmType] = rate
	}
	return rates, nil
}

func (c *EnvConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Postgres.HOST, c.Postgres.Username, c.Postgres.Password, c.Postgres.Database, c.Postgres.Port, c.Postgres.SSLMode)
}
