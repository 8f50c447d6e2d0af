package repository

import (
	"github.com/tnqbao/gau-vm-session-service/infra"
	"gorm.io/gorm"
)

type Repository struct {
	VMRepo        *VMRepository
	SessionRepo   *SessionRepository
	HeartbeatRepo *HeartbeatRepository
	DirectoryRepo *DirectoryRepository
}

func InitRepository(infra *infra.Infra) *Repository {
	return NewRepository(infra.Postgres.DB)
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		VMRepo:        NewVMRepository(db),
		SessionRepo:   NewSessionRepository(db),
		HeartbeatRepo: NewHeartbeatRepository(db),
		DirectoryRepo: NewDirectoryRepository(db),
	}
}
