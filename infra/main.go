package infra

import (
	"context"
	"log"

	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/infra/cloud"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
)

type Infra struct {
	Redis         *RedisClient
	Postgres      *PostgresClient
	Logger        *LoggerClient
	RabbitMQ      *RabbitMQClient
	Produce       *produce.Produce
	Minio         *MinioClient
	CreditService *CreditService
	CloudPool     *cloud.ClientPool
	Cloud         *cloud.Gateway
	Metrics       *MetricsClient
	Telemetry     *TelemetryClient
}

var infraInstance *Infra

func InitInfra(cfg *config.Config) *Infra {
	if infraInstance != nil {
		return infraInstance
	}

	// Telemetry goes first so the logger can bridge into the global log provider.
	telemetry, err := InitTelemetry(context.Background(), cfg.EnvConfig)
	if err != nil {
		log.Printf("Warning: Failed to initialize telemetry: %v (continuing without OTLP export)", err)
		telemetry = &TelemetryClient{}
	}

	logger := InitLoggerClient(cfg.EnvConfig)
	if logger == nil {
		panic("Failed to initialize Logger service")
	}

	redis := InitRedisClient(cfg.EnvConfig)
	if redis == nil {
		panic("Failed to initialize Redis service")
	}

	postgres := InitPostgresClient(cfg.EnvConfig)
	if postgres == nil {
		panic("Failed to initialize Postgres service")
	}

	rabbitMQ := InitRabbitMQClient(cfg.EnvConfig)
	if rabbitMQ == nil {
		panic("Failed to initialize RabbitMQ service")
	}

	produceService := produce.InitProduce(rabbitMQ.Channel)
	if produceService == nil {
		panic("Failed to initialize Produce service")
	}

	creditService := InitCreditService(cfg.EnvConfig)
	if creditService == nil {
		panic("Failed to initialize Credit service")
	}

	metrics := NewMetricsClient()

	cloudPool, err := cloud.NewClientPool(cfg.EnvConfig.Cloud.ClientPoolMax, cloud.DefaultFactories())
	if err != nil {
		panic("Failed to initialize cloud client pool: " + err.Error())
	}
	gateway := cloud.NewGateway(cloudPool, cfg.EnvConfig.Cloud.CallTimeout, metrics)

	// MinIO is optional; without it the heartbeat archive sweep is not scheduled.
	minio := InitMinioClient(cfg.EnvConfig)
	if minio == nil {
		log.Println("Warning: MinIO is not configured, heartbeat archive disabled")
	}

	infraInstance = &Infra{
		Redis:         redis,
		Postgres:      postgres,
		Logger:        logger,
		RabbitMQ:      rabbitMQ,
		Produce:       produceService,
		Minio:         minio,
		CreditService: creditService,
		CloudPool:     cloudPool,
		Cloud:         gateway,
		Metrics:       metrics,
		Telemetry:     telemetry,
	}

	return infraInstance
}

// Close releases connections in reverse dependency order.
func (i *Infra) Close(ctx context.Context) {
	if i.CloudPool != nil {
		i.CloudPool.Close()
	}
	if i.RabbitMQ != nil {
		_ = i.RabbitMQ.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.Postgres != nil {
		if sqlDB, err := i.Postgres.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if i.Telemetry != nil {
		if err := i.Telemetry.Shutdown(ctx); err != nil {
			log.Printf("Warning: telemetry shutdown: %v", err)
		}
	}
}
