package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/gorm"
)

type HeartbeatRepository struct {
	db *gorm.DB
}

func NewHeartbeatRepository(db *gorm.DB) *HeartbeatRepository {
	return &HeartbeatRepository{db: db}
}

func (r *HeartbeatRepository) Append(ctx context.Context, heartbeat *entity.Heartbeat) error {
	if heartbeat.ID == uuid.Nil {
		heartbeat.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(heartbeat).Error
}

func (r *HeartbeatRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]entity.Heartbeat, error) {
	var heartbeats []entity.Heartbeat
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("recorded_at ASC").
		Find(&heartbeats).Error
	return heartbeats, err
}

func (r *HeartbeatRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&entity.Heartbeat{})
	return result.RowsAffected, result.Error
}
