package events

import "time"

const (
	AttendanceRecordedTopic = "attendance.recorded"
	AttendanceRecordedType  = "attendance.recorded.v1"
)

// AttendanceRecordedEvent is published after an attendance record is durably
// committed to the ledger. Downstream consumers (reporting, notifications)
// live outside this system.
type AttendanceRecordedEvent struct {
	RecordID       string     `json:"record_id"`
	UserID         string     `json:"user_id"`
	UserType       string     `json:"user_type"`
	BranchID       string     `json:"branch_id"`
	Date           string     `json:"date"`
	ClockInTime    *time.Time `json:"clock_in_time,omitempty"`
	ClockOutTime   *time.Time `json:"clock_out_time,omitempty"`
	Status         string     `json:"status"`
	AttendanceType string     `json:"attendance_type"`
	DeviceID       string     `json:"device_id,omitempty"`
	SyncBatchID    string     `json:"sync_batch_id"`
	RecordedAt     time.Time  `json:"recorded_at"`
}
