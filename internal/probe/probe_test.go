package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterval(t *testing.T) {
	s := NewScheduler(30*time.Minute, 5*time.Minute)
	coarseSwitch := 65.0

	tests := []struct {
		name     string
		reading  float64
		expected time.Duration
	}{
		{"well above switch point", 150, 30 * time.Minute},
		{"just above switch point", 65.1, 30 * time.Minute},
		{"at switch point", 65, 5 * time.Minute},
		{"below switch point", 60, 5 * time.Minute},
		{"zero reading", 0, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.Interval(tt.reading, coarseSwitch))
		})
	}
}
