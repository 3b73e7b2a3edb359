package report

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-manager/internal/model"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Record(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestRecorderKeepsOrderAndFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	r := NewRecorder(a, b)

	r.Record(Event{Outlet: "battery_rad", Type: EventTransition, From: model.StateAwaitingStart, To: model.StateChargingCoarse})
	r.Record(Event{Outlet: "battery_rad", Type: EventCommand, Command: "off"})

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventTransition, events[0].Type)
	assert.Equal(t, EventCommand, events[1].Type)
	assert.False(t, events[0].Time.IsZero(), "recorder stamps events without a time")

	assert.Len(t, a.events, 2)
	assert.Len(t, b.events, 2)
}

func TestRecorderConcurrentSessions(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Record(Event{Outlet: "battery_rad", Type: EventTransition})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Events(), 400)
}

func TestSummary(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	results := []model.SessionResult{
		{
			Outlet:      "battery_rad",
			Mode:        model.ModeStorage,
			State:       model.StateStoppedComplete,
			CycleCount:  1,
			LastReading: 42.5,
			StartedAt:   start,
			EndedAt:     start.Add(2*time.Hour + 15*time.Minute),
		},
		{
			Outlet:    "battery_lectric",
			Mode:      model.ModeNominal,
			State:     model.StateError,
			Reason:    "read retries exhausted",
			StartedAt: start,
			EndedAt:   start.Add(30 * time.Minute),
			Defaulted: true,
		},
	}

	out := Summary(results, false)
	assert.Contains(t, out, "battery_rad (storage): stopped_complete")
	assert.Contains(t, out, "cycles: 1, last reading: 42.5W, charged for 2h15m0s")
	assert.Contains(t, out, "battery_lectric (nominal): error - read retries exhausted")
	assert.Contains(t, out, "used built-in default profile")
	assert.NotContains(t, out, "test mode")

	// Outlets are reported in name order regardless of finish order.
	assert.Less(t, strings.Index(out, "battery_lectric"), strings.Index(out, "battery_rad"))
}

func TestSummaryTestModeAndEmpty(t *testing.T) {
	out := Summary(nil, true)
	assert.Contains(t, out, "test mode: no outlet commands were sent")
	assert.Contains(t, out, "No outlets were monitored this run")
}
