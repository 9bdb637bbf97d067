package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var jakarta = mustLoad("Asia/Jakarta")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func defaultPolicies() map[UserType]WorkingPolicy {
	return map[UserType]WorkingPolicy{
		UserTypeStaff:   {StartMinutes: 8 * 60, EndMinutes: 17 * 60, GraceMinutes: 10},
		UserTypeStudent: {StartMinutes: 7 * 60, EndMinutes: 13 * 60, GraceMinutes: 15},
	}
}

func punch(userID, enroll string, ts time.Time, dir Direction) ResolvedPunch {
	return ResolvedPunch{
		Event: RawPunchEvent{
			EnrollNumber:   enroll,
			BranchID:       "branch-1",
			Timestamp:      ts,
			Direction:      dir,
			SourceDeviceID: "dev-1",
		},
		UserID:   userID,
		UserType: UserTypeStaff,
	}
}

func at(hour, min int) time.Time {
	return time.Date(2026, 8, 28, hour, min, 0, 0, jakarta)
}

func reconcileInput(events ...ResolvedPunch) Input {
	return Input{
		BranchID: "branch-1",
		Events:   events,
		Policies: defaultPolicies(),
		Location: jakarta,
		AsOf:     time.Date(2026, 8, 28, 23, 0, 0, 0, jakarta),
	}
}

func TestClockInOutSelection(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	out, err := eng.Reconcile(reconcileInput(
		punch("u1", "101", at(12, 0), DirectionUnknown),
		punch("u1", "101", at(9, 5), DirectionUnknown),
		punch("u1", "101", at(17, 10), DirectionUnknown),
		punch("u1", "101", at(13, 0), DirectionUnknown),
	))
	assert.NoError(t, err)
	assert.Len(t, out.Records, 1)

	rec := out.Records[0]
	assert.Equal(t, at(9, 5), *rec.ClockIn)
	assert.Equal(t, at(17, 10), *rec.ClockOut)
	// Intermediate punches stay on the audit trail.
	assert.Len(t, rec.PunchTimes, 4)
	assert.Equal(t, at(17, 10), rec.LatestEventTime.In(jakarta))
}

func TestSinglePunchDay(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	in := reconcileInput(punch("u1", "101", at(8, 50), DirectionUnknown))
	in.AsOf = at(9, 30) // end of day not yet reached

	out, err := eng.Reconcile(in)
	assert.NoError(t, err)
	assert.Len(t, out.Records, 1)

	rec := out.Records[0]
	assert.Equal(t, at(8, 50), *rec.ClockIn)
	assert.Nil(t, rec.ClockOut)
	assert.Equal(t, 0.0, rec.TotalHours)
	assert.Equal(t, StatusLate, rec.Status) // 08:50 past the 08:10 cutoff
}

func TestLateDetectionBoundary(t *testing.T) {
	eng := NewEngine(zap.NewNop())

	out, err := eng.Reconcile(reconcileInput(
		punch("u1", "101", at(8, 15), DirectionIn),
		punch("u1", "101", at(17, 30), DirectionOut),
	))
	assert.NoError(t, err)
	rec := out.Records[0]
	assert.True(t, rec.IsLate)
	assert.Equal(t, 5, rec.LateMinutes)
	assert.Equal(t, StatusLate, rec.Status)

	out, err = eng.Reconcile(reconcileInput(
		punch("u2", "102", at(8, 9), DirectionIn),
		punch("u2", "102", at(17, 30), DirectionOut),
	))
	assert.NoError(t, err)
	rec = out.Records[0]
	assert.False(t, rec.IsLate)
	assert.Equal(t, 0, rec.LateMinutes)
	assert.Equal(t, StatusPresent, rec.Status)
}

func TestEarlyDepartureDoesNotOverrideLate(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	out, err := eng.Reconcile(reconcileInput(
		punch("u1", "101", at(9, 0), DirectionIn),
		punch("u1", "101", at(15, 0), DirectionOut),
	))
	assert.NoError(t, err)

	rec := out.Records[0]
	assert.True(t, rec.IsLate)
	assert.True(t, rec.IsEarlyDeparture)
	assert.Equal(t, 120, rec.EarlyDepartureMinutes)
	assert.Equal(t, StatusLate, rec.Status)
	assert.Equal(t, 6.0, rec.TotalHours)
}

func TestEarlyDepartureStatus(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	out, err := eng.Reconcile(reconcileInput(
		punch("u1", "101", at(7, 55), DirectionIn),
		punch("u1", "101", at(16, 30), DirectionOut),
	))
	assert.NoError(t, err)

	rec := out.Records[0]
	assert.False(t, rec.IsLate)
	assert.True(t, rec.IsEarlyDeparture)
	assert.Equal(t, StatusEarlyDeparture, rec.Status)
}

func TestHalfDayWhenEndPassedWithoutClockOut(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	in := reconcileInput(punch("u1", "101", at(7, 50), DirectionIn))
	in.AsOf = at(20, 0)

	out, err := eng.Reconcile(in)
	assert.NoError(t, err)
	assert.Equal(t, StatusHalfDay, out.Records[0].Status)

	// Same shape before the expected end is plain present.
	in.AsOf = at(10, 0)
	out, err = eng.Reconcile(in)
	assert.NoError(t, err)
	assert.Equal(t, StatusPresent, out.Records[0].Status)
}

func TestIdempotentReconciliation(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	in := reconcileInput(
		punch("u1", "101", at(8, 30), DirectionUnknown),
		punch("u1", "101", at(17, 5), DirectionUnknown),
		punch("u2", "102", at(9, 40), DirectionIn),
		ResolvedPunch{Event: RawPunchEvent{EnrollNumber: "999", BranchID: "branch-1", Timestamp: at(10, 0)}},
	)

	first, err := eng.Reconcile(in)
	assert.NoError(t, err)
	second, err := eng.Reconcile(in)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDuplicateQuadrupleCollapses(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	p := punch("u1", "101", at(8, 0), DirectionIn)
	out, err := eng.Reconcile(reconcileInput(p, p, p))
	assert.NoError(t, err)

	rec := out.Records[0]
	assert.Nil(t, rec.ClockOut, "duplicates of one punch must not fabricate a clock-out")
	assert.Len(t, rec.PunchTimes, 1)
}

func TestDirectionBreaksSameSecondTie(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	ts := at(8, 0)

	out1 := punch("u1", "101", ts, DirectionOut)
	out1.Event.SourceDeviceID = "dev-a"
	in1 := punch("u1", "101", ts, DirectionIn)
	in1.Event.SourceDeviceID = "dev-b"

	out, err := eng.Reconcile(reconcileInput(out1, in1))
	assert.NoError(t, err)
	// The IN-claiming punch wins the clock-in slot on a same-second tie.
	assert.Equal(t, "dev-b", out.Records[0].SourceDeviceID)
}

func TestUnresolvedIdentityReportedNotDropped(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	unresolved := ResolvedPunch{Event: RawPunchEvent{
		EnrollNumber: "777", BranchID: "branch-1", Timestamp: at(8, 5), SourceDeviceID: "dev-1",
	}}

	out, err := eng.Reconcile(reconcileInput(
		punch("u1", "101", at(8, 0), DirectionIn),
		punch("u1", "101", at(17, 0), DirectionOut),
		unresolved,
	))
	assert.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Len(t, out.Unresolved, 1)
	assert.Equal(t, "777", out.Unresolved[0].EnrollNumber)
}

func TestMidnightBoundaryUsesBranchTimezone(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	// 2026-08-28 17:30 UTC is already 2026-08-29 00:30 in Jakarta.
	utcEvening := time.Date(2026, 8, 28, 17, 30, 0, 0, time.UTC)

	in := reconcileInput(punch("u1", "101", utcEvening, DirectionIn))
	in.AsOf = utcEvening.Add(time.Hour)

	out, err := eng.Reconcile(in)
	assert.NoError(t, err)
	assert.Equal(t, "2026-08-29", out.Records[0].Date.Format("2006-01-02"))
}

func TestMissingPolicyIsFatal(t *testing.T) {
	eng := NewEngine(zap.NewNop())
	p := punch("u1", "101", at(8, 0), DirectionIn)
	p.UserType = UserType("visitor")

	_, err := eng.Reconcile(reconcileInput(p))
	assert.Error(t, err)
}
