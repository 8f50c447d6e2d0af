package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *entity.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	var session entity.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindNonTerminalByUser returns the user's open session, or nil when there is none
func (r *SessionRepository) FindNonTerminalByUser(ctx context.Context, userID uuid.UUID) (*entity.Session, error) {
	var session entity.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, entity.NonTerminalSessionStatuses).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) ExistsNonTerminalForVM(ctx context.Context, vmID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Session{}).
		Where("vm_id = ? AND status IN ?", vmID, entity.NonTerminalSessionStatuses).
		Count(&count).Error
	return count > 0, err
}

// MarkTerminating moves a starting or active session to terminating and
// records at as the provisional end. Exactly one concurrent caller observes true.
func (r *SessionRepository) MarkTerminating(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":   entity.SessionStatusTerminating,
		"ended_at": at,
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	return r.transition(ctx, id, entity.ActiveSessionStatuses, updates)
}

// Complete records the terminal status and billing outcome of a terminating session.
func (r *SessionRepository) Complete(ctx context.Context, id uuid.UUID, status entity.SessionStatus, endedAt time.Time, credits float64, billingRef string) (bool, error) {
	return r.transition(ctx, id, []entity.SessionStatus{entity.SessionStatusTerminating}, map[string]interface{}{
		"status":                 status,
		"ended_at":               endedAt,
		"credits_used":           credits,
		"billing_transaction_id": billingRef,
	})
}

func (r *SessionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error) {
	return r.transition(ctx, id, []entity.SessionStatus{entity.SessionStatusStarting}, map[string]interface{}{
		"status":         entity.SessionStatusFailed,
		"failure_reason": reason,
		"ended_at":       endedAt,
	})
}

func (r *SessionRepository) Activate(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, []entity.SessionStatus{entity.SessionStatusStarting}, map[string]interface{}{
		"status": entity.SessionStatusActive,
	})
}

func (r *SessionRepository) TouchHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, entity.ActiveSessionStatuses, map[string]interface{}{
		"last_heartbeat_at": at,
	})
}

func (r *SessionRepository) transition(ctx context.Context, id uuid.UUID, from []entity.SessionStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.Session{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *SessionRepository) FindByStatuses(ctx context.Context, statuses []entity.SessionStatus) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// FindStaleHeartbeats returns starting/active sessions that have been silent since before cutoff.
// A session that never reported is measured from its start.
func (r *SessionRepository) FindStaleHeartbeats(ctx context.Context, cutoff time.Time) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ? AND COALESCE(last_heartbeat_at, started_at) < ?",
			entity.ActiveSessionStatuses, cutoff, cutoff).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindStartedBefore(ctx context.Context, cutoff time.Time) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?", entity.ActiveSessionStatuses, cutoff).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// FindStuckTerminating returns sessions whose close-out began before cutoff
// and never reached a terminal status.
func (r *SessionRepository) FindStuckTerminating(ctx context.Context, cutoff time.Time) ([]entity.Session, error) {
	var sessions []entity.Session
	err := r.db.WithContext(ctx).
		Where("status = ? AND ended_at < ?", entity.SessionStatusTerminating, cutoff).
		Order("ended_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// FindArchivableIDs lists ended sessions older than endedBefore that still have heartbeat rows.
func (r *SessionRepository) FindArchivableIDs(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&entity.Session{}).
		Where("ended_at IS NOT NULL AND ended_at < ? AND status IN ?", endedBefore,
			[]entity.SessionStatus{entity.SessionStatusCompleted, entity.SessionStatusTerminated, entity.SessionStatusFailed}).
		Where("EXISTS (SELECT 1 FROM session_heartbeats h WHERE h.session_id = sessions.id)").
		Order("ended_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
