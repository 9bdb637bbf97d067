package reconcile

import "time"

// Direction is the device-reported punch direction. Terminals report this
// unreliably, so it is advisory only: selection of clock-in/out is positional.
type Direction string

const (
	DirectionIn      Direction = "IN"
	DirectionOut     Direction = "OUT"
	DirectionUnknown Direction = "UNKNOWN"
)

type UserType string

const (
	UserTypeStudent UserType = "student"
	UserTypeTeacher UserType = "teacher"
	UserTypeStaff   UserType = "staff"
)

type Status string

const (
	StatusPresent        Status = "present"
	StatusLate           Status = "late"
	StatusAbsent         Status = "absent"
	StatusHalfDay        Status = "half_day"
	StatusEarlyDeparture Status = "early_departure"
)

type AttendanceType string

const (
	AttendanceBiometric AttendanceType = "biometric"
	AttendanceManual    AttendanceType = "manual"
	AttendanceAPI       AttendanceType = "api"
)

// RawPunchEvent is one observed badge or biometric scan, immutable once
// extracted. The quadruple (BranchID, EnrollNumber, Timestamp,
// SourceDeviceID) uniquely identifies it for dedup.
type RawPunchEvent struct {
	EnrollNumber   string
	BranchID       string
	Timestamp      time.Time
	Direction      Direction
	VerifyMode     string
	SourceDeviceID string
	RawPayload     []byte
}

// dedupKey is the identity quadruple of a RawPunchEvent.
func (e RawPunchEvent) dedupKey() string {
	return e.BranchID + "\x00" + e.EnrollNumber + "\x00" +
		e.Timestamp.UTC().Format(time.RFC3339) + "\x00" + e.SourceDeviceID
}

// ResolvedPunch pairs a raw event with the platform identity the directory
// mapped its enroll number to. UserID empty means unresolved.
type ResolvedPunch struct {
	Event    RawPunchEvent
	UserID   string
	UserType UserType
	ClassID  string
}

// WorkingPolicy is the expected working window for one user type, in minutes
// from midnight branch-local.
type WorkingPolicy struct {
	StartMinutes int
	EndMinutes   int
	GraceMinutes int
}

// Record is one reconciled attendance candidate for a (user, branch, date).
type Record struct {
	UserID   string
	UserType UserType
	BranchID string
	ClassID  string
	Date     time.Time // midnight in the branch timezone

	ClockIn  *time.Time
	ClockOut *time.Time

	Status                Status
	IsLate                bool
	LateMinutes           int
	IsEarlyDeparture      bool
	EarlyDepartureMinutes int
	TotalHours            float64

	AttendanceType AttendanceType
	SourceDeviceID string

	// Audit provenance: every punch folded into this record, not just the
	// pair selected for clock-in/out.
	PunchTimes []time.Time

	// LatestEventTime is the newest raw event folded in; the orchestrator
	// uses it to advance the watermark after a successful commit.
	LatestEventTime time.Time
}

// UnresolvedIdentity is the diagnostic for a punch whose enroll number has no
// platform mapping. Reported, never silently dropped; the watermark must not
// advance past these events.
type UnresolvedIdentity struct {
	EnrollNumber   string
	BranchID       string
	Timestamp      time.Time
	SourceDeviceID string
}
