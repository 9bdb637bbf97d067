package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttendanceRecord is the canonical committed attendance entity. At most one
// row exists per (user_id, branch_id, date); the unique index backs the
// idempotence of repeated syncs.
//
// Status is derived upstream as a pure function of the stored times and
// minutes. It is persisted for querying but never accepted independently of
// its inputs, so stored status cannot drift from stored times.
type AttendanceRecord struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_ledger_user_branch_date,unique"`
	UserType string    `gorm:"column:user_type;type:varchar(20);not null"`
	BranchID uuid.UUID `gorm:"column:branch_id;type:uuid;not null;index:idx_ledger_user_branch_date,unique"`
	ClassID  *string   `gorm:"column:class_id;type:varchar(50)"`
	Date     time.Time `gorm:"column:date;type:date;not null;index:idx_ledger_user_branch_date,unique"`

	ClockInTime  *time.Time `gorm:"column:clock_in_time;type:timestamptz"`
	ClockOutTime *time.Time `gorm:"column:clock_out_time;type:timestamptz"`

	Status                string  `gorm:"column:status;type:varchar(20);not null"`
	IsLate                bool    `gorm:"column:is_late;not null;default:false"`
	LateMinutes           int     `gorm:"column:late_minutes;not null;default:0"`
	IsEarlyDeparture      bool    `gorm:"column:is_early_departure;not null;default:false"`
	EarlyDepartureMinutes int     `gorm:"column:early_departure_minutes;not null;default:0"`
	TotalHours            float64 `gorm:"column:total_hours;not null;default:0"`

	AttendanceType string `gorm:"column:attendance_type;type:varchar(20);not null;default:'biometric'"`
	DeviceID       string `gorm:"column:device_id;type:varchar(50)"`
	SyncBatchID    string `gorm:"column:sync_batch_id;type:varchar(50)"`

	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (AttendanceRecord) TableName() string {
	return "attendance_records"
}
