package ingest

import (
	"time"

	"go-attendsync/internal/reconcile"
)

// PushedLog is one raw punch as a branch agent reports it. Timestamps are
// RFC 3339; the agent stamps them with the branch's own UTC offset.
type PushedLog struct {
	EnrollNumber string    `json:"enroll_number" binding:"required"`
	Timestamp    time.Time `json:"timestamp" binding:"required"`
	Direction    string    `json:"direction" binding:"omitempty,oneof=IN OUT"`
	VerifyMode   string    `json:"verify_mode"`
	DeviceID     string    `json:"device_id"`
}

type PushLogsRequest struct {
	BranchName string      `json:"branch_name"`
	Logs       []PushedLog `json:"logs" binding:"required,min=1,dive"`
	SyncTime   time.Time   `json:"sync_time"`
}

type PushLogsResponse struct {
	ProcessedCount int    `json:"processed_count"`
	ErrorCount     int    `json:"error_count"`
	BatchID        string `json:"batch_id"`
}

func (l PushedLog) toEvent(branchID string) reconcile.RawPunchEvent {
	dir := reconcile.DirectionUnknown
	switch l.Direction {
	case "IN":
		dir = reconcile.DirectionIn
	case "OUT":
		dir = reconcile.DirectionOut
	}
	return reconcile.RawPunchEvent{
		EnrollNumber:   l.EnrollNumber,
		BranchID:       branchID,
		Timestamp:      l.Timestamp,
		Direction:      dir,
		VerifyMode:     l.VerifyMode,
		SourceDeviceID: l.DeviceID,
	}
}
