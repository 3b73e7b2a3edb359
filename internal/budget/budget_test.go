package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	tr := NewTracker(start, 12*time.Hour)

	assert.Equal(t, start.Add(12*time.Hour), tr.Deadline())
	assert.False(t, tr.Exceeded(start))
	assert.False(t, tr.Exceeded(start.Add(12*time.Hour)))
	assert.True(t, tr.Exceeded(start.Add(12*time.Hour+time.Second)))
}

func TestSessionBudget(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	b := NewSessionBudget(start, 4*time.Hour)

	assert.False(t, b.Exceeded(start.Add(4*time.Hour)))
	assert.True(t, b.Exceeded(start.Add(4*time.Hour+time.Minute)))
	assert.Equal(t, 2*time.Hour, b.Elapsed(start.Add(2*time.Hour)))
}
