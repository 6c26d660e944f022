package prayertime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Clock
		wantOK bool
	}{
		{"plain", "05:13", Clock{5, 13}, true},
		{"timezone suffix", "05:13 (EDT)", Clock{5, 13}, true},
		{"seconds", "21:10:45", Clock{21, 10}, true},
		{"midnight", "00:00", Clock{0, 0}, true},
		{"end of day", "23:59", Clock{23, 59}, true},
		{"single digit hour", "4:07", Clock{4, 7}, true},
		{"surrounding noise", " ~12:30 pm ", Clock{12, 30}, true},
		{"digit noise after minute", "12:30 +03", Clock{}, false},
		{"hour out of range", "24:00", Clock{}, false},
		{"minute out of range", "12:60", Clock{}, false},
		{"missing minute", "12:", Clock{}, false},
		{"no colon", "1230", Clock{}, false},
		{"missing hour", ":30", Clock{}, false},
		{"empty", "", Clock{}, false},
		{"letters only", "noon", Clock{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAllValidClocks(t *testing.T) {
	for h := 0; h < 24; h++ {
		for m := 0; m < 60; m++ {
			c := Clock{h, m}
			got, ok := Parse(c.String() + " (GMT)")
			if !ok || got != c {
				t.Fatalf("Parse(%q) = %v, %v", c.String(), got, ok)
			}
		}
	}
}

func TestNextTrigger(t *testing.T) {
	loc := time.FixedZone("EDT", -4*3600)
	now := time.Date(2025, 8, 5, 20, 0, 0, 0, loc)

	later := NextTrigger(now, Clock{21, 10})
	assert.Equal(t, time.Date(2025, 8, 5, 21, 10, 0, 0, loc), later)

	earlier := NextTrigger(now, Clock{5, 13})
	assert.Equal(t, time.Date(2025, 8, 6, 5, 13, 0, 0, loc), earlier)

	// an instant equal to now is not in the future
	same := NextTrigger(now, Clock{20, 0})
	assert.Equal(t, time.Date(2025, 8, 6, 20, 0, 0, 0, loc), same)
}

func TestNextTriggerMonthEnd(t *testing.T) {
	now := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC), NextTrigger(now, Clock{5, 0}))
}

func TestClockAdd(t *testing.T) {
	assert.Equal(t, Clock{4, 58}, Clock{5, 13}.Add(-15))
	assert.Equal(t, Clock{23, 50}, Clock{0, 5}.Add(-15))
	assert.Equal(t, Clock{0, 10}, Clock{23, 55}.Add(15))
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "2025-08-05", DayKey(time.Date(2025, 8, 5, 23, 59, 0, 0, time.UTC)))
}
