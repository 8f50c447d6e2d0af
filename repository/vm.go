package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/gorm"
)

type VMRepository struct {
	db *gorm.DB
}

func NewVMRepository(db *gorm.DB) *VMRepository {
	return &VMRepository{db: db}
}

func (r *VMRepository) Create(ctx context.Context, vm *entity.VM) error {
	if vm.ID == uuid.Nil {
		vm.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(vm).Error
}

func (r *VMRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VM, error) {
	var vm entity.VM
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vm).Error
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

// FindAll returns every registered VM ordered by id so sweeps batch deterministically
func (r *VMRepository) FindAll(ctx context.Context) ([]entity.VM, error) {
	var vms []entity.VM
	err := r.db.WithContext(ctx).Order("id ASC").Find(&vms).Error
	return vms, err
}

// FindAvailable lists unassigned, startable VMs of a type in a project,
// least recently touched first
func (r *VMRepository) FindAvailable(ctx context.Context, projectID uuid.UUID, vmType entity.VMType, limit int) ([]entity.VM, error) {
	var vms []entity.VM
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND vm_type = ? AND current_session_id IS NULL AND is_busy = ? AND status IN ?",
			projectID, vmType, false, entity.StartableVMStatuses).
		Order("updated_at ASC").
		Limit(limit).
		Find(&vms).Error
	return vms, err
}

// Claim assigns the VM to a session only if it is still unassigned.
// It reports false when another session won the race.
func (r *VMRepository) Claim(ctx context.Context, vmID, sessionID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.VM{}).
		Where("id = ? AND current_session_id IS NULL", vmID).
		Updates(map[string]interface{}{
			"current_session_id": sessionID,
			"is_busy":            true,
			"status":             entity.VMStatusStarting,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release clears the assignment if the VM is still held by sessionID.
func (r *VMRepository) Release(ctx context.Context, vmID, sessionID uuid.UUID, status entity.VMStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.VM{}).
		Where("id = ? AND current_session_id = ?", vmID, sessionID).
		Updates(map[string]interface{}{
			"current_session_id": nil,
			"is_busy":            false,
			"status":             status,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CompareAndSetStatus writes next only while the stored status is still expected.
func (r *VMRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next entity.VMStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.VM{}).
		Where("id = ? AND status = ?", id, expected).
		Update("status", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkDeallocated stores the deallocated status unless a session claimed the VM meanwhile.
func (r *VMRepository) MarkDeallocated(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.VM{}).
		Where("id = ? AND current_session_id IS NULL", id).
		Updates(map[string]interface{}{
			"status":  entity.VMStatusDeallocated,
			"is_busy": false,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *VMRepository) StampReconciled(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.VM{}).
		Where("id = ?", id).
		UpdateColumn("last_reconciled_at", at).Error
}
