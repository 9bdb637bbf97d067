package reconcile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Engine folds raw punches into one attendance candidate per person per
// branch-local calendar day. It is deterministic: no wall clock, no
// randomness. The only "now" it knows is the pinned Input.AsOf, so re-running
// the same input always yields identical output.
type Engine struct {
	logger *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{logger: logger.Named("reconcile")}
}

// Input is one branch's worth of resolved punches plus the configuration the
// derivations need.
type Input struct {
	BranchID string
	Events   []ResolvedPunch

	// Policies keys every user type expected in Events. A punch whose user
	// type has no policy is a configuration bug and fails the whole cycle.
	Policies map[UserType]WorkingPolicy

	// Location is the branch's configured timezone. Calendar-day grouping
	// never uses the server's local zone.
	Location *time.Location

	// AsOf pins "now" for the half-day check.
	AsOf time.Time
}

type Output struct {
	Records    []Record
	Unresolved []UnresolvedIdentity
}

type groupKey struct {
	userID string
	date   string
}

// Reconcile runs the grouping and derivation. Errors indicate configuration
// or logic bugs, not data conditions; callers must treat them as fatal for
// the cycle rather than retrying.
func (e *Engine) Reconcile(in Input) (Output, error) {
	if in.Location == nil {
		return Output{}, fmt.Errorf("reconcile: branch %s has no timezone location", in.BranchID)
	}

	var out Output
	groups := make(map[groupKey][]ResolvedPunch)
	seen := make(map[string]struct{})
	duplicates := 0

	for _, p := range in.Events {
		if p.UserID == "" {
			out.Unresolved = append(out.Unresolved, UnresolvedIdentity{
				EnrollNumber:   p.Event.EnrollNumber,
				BranchID:       p.Event.BranchID,
				Timestamp:      p.Event.Timestamp,
				SourceDeviceID: p.Event.SourceDeviceID,
			})
			continue
		}

		// Merges across multiple source extractions can re-deliver the same
		// quadruple; the first occurrence wins.
		if _, dup := seen[p.Event.dedupKey()]; dup {
			duplicates++
			continue
		}
		seen[p.Event.dedupKey()] = struct{}{}

		local := p.Event.Timestamp.In(in.Location)
		key := groupKey{userID: p.UserID, date: local.Format("2006-01-02")}
		groups[key] = append(groups[key], p)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].date < keys[j].date
	})

	for _, key := range keys {
		rec, err := e.foldGroup(in, key, groups[key])
		if err != nil {
			return Output{}, err
		}
		out.Records = append(out.Records, rec)
	}

	sort.Slice(out.Unresolved, func(i, j int) bool {
		return out.Unresolved[i].Timestamp.Before(out.Unresolved[j].Timestamp)
	})

	e.logger.Debug("reconciled punch window",
		zap.String("branch_id", in.BranchID),
		zap.Int("events", len(in.Events)),
		zap.Int("duplicates_dropped", duplicates),
		zap.Int("records", len(out.Records)),
		zap.Int("unresolved", len(out.Unresolved)),
	)
	return out, nil
}

func (e *Engine) foldGroup(in Input, key groupKey, punches []ResolvedPunch) (Record, error) {
	// Extraction order already ascends by timestamp, but merged inputs can
	// interleave, so the sort is repeated here. Reported direction breaks
	// same-second ties only (an IN-claiming punch sorts first); device id
	// breaks the remainder to keep output deterministic.
	sort.SliceStable(punches, func(i, j int) bool {
		a, b := punches[i].Event, punches[j].Event
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if a.Direction != b.Direction {
			return directionRank(a.Direction) < directionRank(b.Direction)
		}
		return a.SourceDeviceID < b.SourceDeviceID
	})

	first := punches[0]
	policy, ok := in.Policies[first.UserType]
	if !ok {
		return Record{}, fmt.Errorf("reconcile: no working policy for user type %q in branch %s",
			first.UserType, in.BranchID)
	}

	clockIn := first.Event.Timestamp.In(in.Location)
	date := time.Date(clockIn.Year(), clockIn.Month(), clockIn.Day(), 0, 0, 0, 0, in.Location)

	rec := Record{
		UserID:          key.userID,
		UserType:        first.UserType,
		BranchID:        in.BranchID,
		ClassID:         first.ClassID,
		Date:            date,
		ClockIn:         &clockIn,
		AttendanceType:  AttendanceBiometric,
		SourceDeviceID:  first.Event.SourceDeviceID,
		LatestEventTime: punches[len(punches)-1].Event.Timestamp,
	}
	for _, p := range punches {
		rec.PunchTimes = append(rec.PunchTimes, p.Event.Timestamp.In(in.Location))
	}

	// The latest punch is clock-out only when the day has two or more
	// distinct events; a lone punch yields clock-in only.
	if len(punches) >= 2 {
		clockOut := punches[len(punches)-1].Event.Timestamp.In(in.Location)
		rec.ClockOut = &clockOut
	}

	deriveOutcome(&rec, policy, in.AsOf.In(in.Location))
	return rec, nil
}

// deriveOutcome computes the flags, status and total hours. Status is a pure
// function of its inputs and is never settable independently, preventing
// drift between stored status and stored times.
//
// Enum precedence when several conditions hold at once: late wins over
// half_day, half_day over early_departure, early_departure over present.
// Lateness is an observed fact while half-day is an inference from missing
// evidence, so the observation outranks the inference. Both boolean flags are
// always populated from their own inputs regardless of the winning status.
func deriveOutcome(rec *Record, policy WorkingPolicy, asOfLocal time.Time) {
	cutoff := policy.StartMinutes + policy.GraceMinutes
	inMinutes := minutesIntoDay(*rec.ClockIn)
	if inMinutes > cutoff {
		rec.IsLate = true
		rec.LateMinutes = inMinutes - cutoff
	}

	if rec.ClockOut != nil {
		outMinutes := minutesIntoDay(*rec.ClockOut)
		if outMinutes < policy.EndMinutes {
			rec.IsEarlyDeparture = true
			rec.EarlyDepartureMinutes = policy.EndMinutes - outMinutes
		}
		hours := rec.ClockOut.Sub(*rec.ClockIn).Hours()
		rec.TotalHours = math.Round(hours*100) / 100
	}

	expectedEnd := rec.Date.Add(time.Duration(policy.EndMinutes) * time.Minute)
	halfDay := rec.ClockOut == nil && asOfLocal.After(expectedEnd)

	switch {
	case rec.IsLate:
		rec.Status = StatusLate
	case halfDay:
		rec.Status = StatusHalfDay
	case rec.IsEarlyDeparture:
		rec.Status = StatusEarlyDeparture
	default:
		rec.Status = StatusPresent
	}
}

// minutesIntoDay floors to the nearest whole minute.
func minutesIntoDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func directionRank(d Direction) int {
	switch d {
	case DirectionIn:
		return 0
	case DirectionUnknown:
		return 1
	default:
		return 2
	}
}

// AbsentRecord synthesizes an absent entry for a rostered person with no
// punches on a day. The engine itself never fabricates absence; the
// orchestrator calls this when it has an expected roster to compare against.
func AbsentRecord(userID string, userType UserType, branchID, classID string, date time.Time) Record {
	return Record{
		UserID:         userID,
		UserType:       userType,
		BranchID:       branchID,
		ClassID:        classID,
		Date:           date,
		Status:         StatusAbsent,
		AttendanceType: AttendanceBiometric,
	}
}
