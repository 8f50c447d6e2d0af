package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/gorm"
)

// DirectoryRepository reads the project and workspace tables owned by the organization service
type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) FindProject(ctx context.Context, id uuid.UUID) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *DirectoryRepository) FindWorkspace(ctx context.Context, id uuid.UUID) (*entity.Workspace, error) {
	var workspace entity.Workspace
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&workspace).Error
	if err != nil {
		return nil, err
	}
	return &workspace, nil
}
