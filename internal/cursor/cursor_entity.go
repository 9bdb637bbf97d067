package cursor

import (
	"time"

	"github.com/google/uuid"
)

// SyncCursor is the per-branch watermark: every event at or below
// LastSyncTime has been durably committed. It only ever moves forward, and
// only past events whose commit succeeded.
type SyncCursor struct {
	BranchID        uuid.UUID  `gorm:"column:branch_id;type:uuid;primaryKey"`
	LastSyncTime    *time.Time `gorm:"column:last_sync_time;type:timestamptz"`
	LastSyncBatchID string     `gorm:"column:last_sync_batch_id;type:varchar(50)"`
	BatchSeq        int64      `gorm:"column:batch_seq;not null;default:0"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (SyncCursor) TableName() string {
	return "sync_cursors"
}

// Watermark returns the stored time, or the zero time when the branch has
// never completed a sync (first extraction covers all history).
func (c *SyncCursor) Watermark() time.Time {
	if c == nil || c.LastSyncTime == nil {
		return time.Time{}
	}
	return *c.LastSyncTime
}
