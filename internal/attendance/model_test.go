package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		minutes        int
		sessionMinutes int
		want           Status
	}{
		{name: "left after 3 of 60", minutes: 3, sessionMinutes: 60, want: StatusAbsent},
		{name: "zero minutes", minutes: 0, sessionMinutes: 60, want: StatusAbsent},
		{name: "just under threshold", minutes: 4, sessionMinutes: 5, want: StatusAbsent},
		{name: "10 of 60 is 16.7%", minutes: 10, sessionMinutes: 60, want: StatusPartial},
		{name: "50 of 60 is 83%", minutes: 50, sessionMinutes: 60, want: StatusPresent},
		{name: "exactly 80%", minutes: 48, sessionMinutes: 60, want: StatusPresent},
		{name: "just below 80%", minutes: 47, sessionMinutes: 60, want: StatusPartial},
		{name: "short session fully attended", minutes: 5, sessionMinutes: 5, want: StatusPresent},
		{name: "overstay", minutes: 200, sessionMinutes: 180, want: StatusPresent},
		{name: "unknown session length uses 60", minutes: 30, sessionMinutes: 0, want: StatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.minutes, tt.sessionMinutes))
		})
	}
}

func TestCounts(t *testing.T) {
	var c Counts
	for _, s := range []Status{StatusPresent, StatusAbsent, StatusAbsent, StatusPartial} {
		c.add(s)
	}
	assert.Equal(t, Counts{Present: 1, Partial: 1, Absent: 2, Total: 4}, c)
}
