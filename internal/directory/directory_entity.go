package directory

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member maps a device-local identity (the enroll number a terminal knows) to
// a platform user at one branch.
type Member struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	BranchID        uuid.UUID `gorm:"column:branch_id;type:uuid;not null;index:idx_member_branch_enroll,unique"`
	EnrollNumber    string    `gorm:"column:enroll_number;type:varchar(20);not null;index:idx_member_branch_enroll,unique"`
	AdmissionNumber string    `gorm:"column:admission_number;type:varchar(50)"`
	UserID          uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	UserType        string    `gorm:"column:user_type;type:varchar(20);not null"`
	ClassID         *string   `gorm:"column:class_id;type:varchar(50)"`
	Active          bool      `gorm:"column:active;not null;default:true"`

	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Member) TableName() string {
	return "members"
}
