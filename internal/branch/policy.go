package branch

import (
	"fmt"
	"strconv"
	"strings"

	"go-attendsync/internal/reconcile"
)

// ParseHHMM converts an "HH:MM" policy time to minutes from midnight.
func ParseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("branch: malformed time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("branch: malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("branch: malformed minute in %q", s)
	}
	return h*60 + m, nil
}

// PolicyMap converts stored policies into the reconciliation engine's shape.
func PolicyMap(policies []WorkingPolicy) (map[reconcile.UserType]reconcile.WorkingPolicy, error) {
	out := make(map[reconcile.UserType]reconcile.WorkingPolicy, len(policies))
	for _, p := range policies {
		start, err := ParseHHMM(p.StartTime)
		if err != nil {
			return nil, err
		}
		end, err := ParseHHMM(p.EndTime)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("branch: policy for %q ends (%s) before it starts (%s)",
				p.UserType, p.EndTime, p.StartTime)
		}
		out[reconcile.UserType(p.UserType)] = reconcile.WorkingPolicy{
			StartMinutes: start,
			EndMinutes:   end,
			GraceMinutes: p.GraceMinutes,
		}
	}
	return out, nil
}
