package branch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Branch is one physical site: its terminal endpoint, vendor database, and
// the sync settings the orchestrator runs it with.
type Branch struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	Name       string    `gorm:"column:name;type:varchar(100);not null"`
	DeviceHost string    `gorm:"column:device_host;type:varchar(100)"`
	DevicePort int       `gorm:"column:device_port;not null;default:4370"`
	VendorDSN  string    `gorm:"column:vendor_dsn;type:text"`

	// Timezone is the IANA name applied to raw device timestamps. Calendar
	// day grouping always uses this, never the server zone.
	Timezone string `gorm:"column:timezone;type:varchar(50);not null;default:'UTC'"`

	SyncIntervalSecs int  `gorm:"column:sync_interval_secs;not null;default:300"`
	BatchSize        int  `gorm:"column:batch_size;not null;default:500"`
	Enabled          bool `gorm:"column:enabled;not null;default:true"`

	// SyncTokenHash is the bcrypt hash of the branch's long-lived push token.
	SyncTokenHash string `gorm:"column:sync_token_hash;type:varchar(100)"`

	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Branch) TableName() string {
	return "branches"
}

func (b Branch) DeviceAddr() string {
	if b.DeviceHost == "" {
		return ""
	}
	port := b.DevicePort
	if port == 0 {
		port = 4370
	}
	return fmt.Sprintf("%s:%d", b.DeviceHost, port)
}

func (b Branch) SyncInterval() time.Duration {
	if b.SyncIntervalSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(b.SyncIntervalSecs) * time.Second
}

// Location resolves the configured timezone, failing loudly on a bad name
// rather than silently falling back to server time.
func (b Branch) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

// WorkingPolicy is the expected working window for one user type at one
// branch. Start and end are stored as "HH:MM" strings to match how operators
// configure them.
type WorkingPolicy struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	BranchID     uuid.UUID `gorm:"column:branch_id;type:uuid;not null;index:idx_policy_branch_type,unique"`
	UserType     string    `gorm:"column:user_type;type:varchar(20);not null;index:idx_policy_branch_type,unique"`
	StartTime    string    `gorm:"column:start_time;type:varchar(5);not null"`
	EndTime      string    `gorm:"column:end_time;type:varchar(5);not null"`
	GraceMinutes int       `gorm:"column:grace_minutes;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (WorkingPolicy) TableName() string {
	return "working_policies"
}
