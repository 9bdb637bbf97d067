package branch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-attendsync/internal/reconcile"
)

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"08:00", 480, false},
		{"00:00", 0, false},
		{"23:59", 1439, false},
		{"8:30", 510, false},
		{"24:00", 0, true},
		{"08:60", 0, true},
		{"0800", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseHHMM(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestPolicyMap(t *testing.T) {
	policies := []WorkingPolicy{
		{UserType: "staff", StartTime: "08:00", EndTime: "17:00", GraceMinutes: 10},
		{UserType: "student", StartTime: "07:15", EndTime: "13:00", GraceMinutes: 15},
	}

	m, err := PolicyMap(policies)
	assert.NoError(t, err)
	assert.Equal(t, reconcile.WorkingPolicy{StartMinutes: 480, EndMinutes: 1020, GraceMinutes: 10},
		m[reconcile.UserTypeStaff])
	assert.Equal(t, 435, m[reconcile.UserTypeStudent].StartMinutes)
}

func TestPolicyMapRejectsInvertedWindow(t *testing.T) {
	_, err := PolicyMap([]WorkingPolicy{
		{UserType: "staff", StartTime: "17:00", EndTime: "08:00"},
	})
	assert.Error(t, err)
}
