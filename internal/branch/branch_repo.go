package branch

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -source=branch_repo.go -destination=mock/branch_repo_mock.go -package=mock
type Repository interface {
	FindByID(ctx context.Context, branchID string) (*Branch, error)
	FindEnabled(ctx context.Context) ([]Branch, error)
	FindPolicies(ctx context.Context, branchID string) ([]WorkingPolicy, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, branchID string) (*Branch, error) {
	var b Branch
	err := r.db.WithContext(ctx).
		Where("id = ?", branchID).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) FindEnabled(ctx context.Context) ([]Branch, error) {
	var rows []Branch
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindPolicies(ctx context.Context, branchID string) ([]WorkingPolicy, error) {
	var rows []WorkingPolicy
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("user_type ASC").
		Find(&rows).Error
	return rows, err
}
