package directory

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -source=directory_repo.go -destination=mock/directory_repo_mock.go -package=mock
type Repository interface {
	FindByEnroll(ctx context.Context, branchID, enrollNumber string) (*Member, error)
	FindActiveByBranch(ctx context.Context, branchID string) ([]Member, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByEnroll(ctx context.Context, branchID, enrollNumber string) (*Member, error) {
	var m Member
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("enroll_number = ?", enrollNumber).
		Where("active = ?", true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) FindActiveByBranch(ctx context.Context, branchID string) ([]Member, error) {
	var rows []Member
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("active = ?", true).
		Order("enroll_number ASC").
		Find(&rows).Error
	return rows, err
}
