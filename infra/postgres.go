package infra

import (
	"fmt"
	"log"
	"time"

	"github.com/tnqbao/gau-vm-session-service/config"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PostgresClient struct {
	DB *gorm.DB
}

func InitPostgresClient(cfg *config.EnvConfig) *PostgresClient {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("Postgres connection failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("Postgres pool unavailable: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := AutoMigrate(db); err != nil {
		log.Fatalf("Postgres migration failed: %v", err)
	}

	log.Println("Connected to Postgres:", cfg.Postgres.Port+" on "+cfg.Postgres.HOST)

	return &PostgresClient{DB: db}
}

// partialIndexes back the assignment invariants at the storage layer.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_user_open ON sessions (user_id) WHERE status IN ('starting', 'active', 'terminating')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_vm_open ON sessions (vm_id) WHERE status IN ('starting', 'active', 'terminating')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_vms_assigned_session ON vms (current_session_id) WHERE current_session_id IS NOT NULL`,
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entity.Project{},
		&entity.Workspace{},
		&entity.VM{},
		&entity.Session{},
		&entity.Heartbeat{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
