package ledger

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=ledger_repo.go -destination=mock/ledger_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, rec *AttendanceRecord) error
	FindByUserAndDate(ctx context.Context, branchID, userID string, date time.Time) (*AttendanceRecord, error)
	Update(ctx context.Context, rec *AttendanceRecord) error
	FindAllByBranchAndDate(ctx context.Context, branchID string, date time.Time) ([]AttendanceRecord, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx rebinds the repository onto the caller's transaction. The returned
// repository runs every statement on tx, so the ledger row and the outbox
// event written on the same tx commit or roll back together.
func (r *repository) WithTx(tx *sql.Tx) Repository {
	db := r.db.Session(&gorm.Session{NewDB: true, Context: r.db.Statement.Context})
	db.Statement.ConnPool = tx
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rec *AttendanceRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) FindByUserAndDate(ctx context.Context, branchID, userID string, date time.Time) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("user_id = ?", userID).
		Where("date = ?", date.Format("2006-01-02")).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) Update(ctx context.Context, rec *AttendanceRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *repository) FindAllByBranchAndDate(ctx context.Context, branchID string, date time.Time) ([]AttendanceRecord, error) {
	var rows []AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("date = ?", date.Format("2006-01-02")).
		Order("clock_in_time ASC").
		Find(&rows).Error
	return rows, err
}
