package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, infra.AutoMigrate(db))
	return db
}

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedVM(t *testing.T, repo *VMRepository, projectID uuid.UUID, vmType entity.VMType, status entity.VMStatus) *entity.VM {
	t.Helper()
	vm := &entity.VM{
		ID:           uuid.New(),
		Name:         "vm-" + uuid.NewString()[:8],
		VMType:       vmType,
		Provider:     entity.CloudProviderAzure,
		ResourceName: "res",
		ProjectID:    projectID,
		Status:       status,
	}
	require.NoError(t, repo.Create(t.Context(), vm))
	return vm
}

func seedSession(t *testing.T, repo *SessionRepository, vmID, userID uuid.UUID, status entity.SessionStatus, startedAt time.Time) *entity.Session {
	t.Helper()
	s := &entity.Session{
		ID:          uuid.New(),
		VMID:        vmID,
		ProjectID:   uuid.New(),
		WorkspaceID: uuid.New(),
		UserID:      userID,
		VMType:      entity.VMTypeSmall,
		Status:      status,
		StartedAt:   startedAt,
	}
	require.NoError(t, repo.Create(t.Context(), s))
	return s
}
