package extractor

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// VendorRow is one raw punch as the terminal vendor's software stores it.
// The vendor schema keys punches by an internal user id; the badge number is
// the enroll number terminals report, and SSN carries the school's admission
// or employee number when the operator filled it in.
type VendorRow struct {
	UserID          int        `gorm:"column:userid"`
	EnrollNumber    string     `gorm:"column:badgenumber"`
	AdmissionNumber *string    `gorm:"column:ssn"`
	CheckTime       time.Time  `gorm:"column:checktime"`
	CheckType       string     `gorm:"column:checktype"`
	VerifyCode      int        `gorm:"column:verifycode"`
	SensorID        string     `gorm:"column:sensorid"`
}

//go:generate mockgen -source=vendor_repo.go -destination=mock/vendor_repo_mock.go -package=mock
type VendorLogRepository interface {
	// FindSince returns rows strictly newer than since, ascending by check
	// time. The predicate is a strict > so the boundary row of the previous
	// sync is never re-emitted.
	FindSince(ctx context.Context, since time.Time, limit int) ([]VendorRow, error)
}

type vendorLogRepository struct {
	db *gorm.DB
}

func NewVendorLogRepository(db *gorm.DB) VendorLogRepository {
	return &vendorLogRepository{db: db}
}

func (r *vendorLogRepository) FindSince(ctx context.Context, since time.Time, limit int) ([]VendorRow, error) {
	var rows []VendorRow
	q := r.db.WithContext(ctx).
		Table("checkinout").
		Select("checkinout.userid, userinfo.badgenumber, userinfo.ssn, checkinout.checktime, checkinout.checktype, checkinout.verifycode, checkinout.sensorid").
		// LEFT JOIN: a punch whose user row is missing still flows through
		// and surfaces downstream as unresolved, it is never dropped here.
		Joins("LEFT JOIN userinfo ON userinfo.userid = checkinout.userid").
		Where("checkinout.checktime > ?", since).
		Order("checkinout.checktime ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&rows).Error
	return rows, err
}
