package budget

import "time"

// Tracker holds the process-wide runtime ceiling. Each session consults it
// independently; reaching it terminates every still-active session.
type Tracker struct {
	start time.Time
	max   time.Duration
}

func NewTracker(start time.Time, max time.Duration) *Tracker {
	return &Tracker{start: start, max: max}
}

func (t *Tracker) Deadline() time.Time {
	return t.start.Add(t.max)
}

func (t *Tracker) Exceeded(now time.Time) bool {
	return now.Sub(t.start) > t.max
}

// SessionBudget is the wall-clock ceiling for a single session, derived from
// the profile's amp-hour ratings or the global default at session start.
type SessionBudget struct {
	start time.Time
	max   time.Duration
}

func NewSessionBudget(start time.Time, max time.Duration) SessionBudget {
	return SessionBudget{start: start, max: max}
}

func (b SessionBudget) Exceeded(now time.Time) bool {
	return now.Sub(b.start) > b.max
}

func (b SessionBudget) Elapsed(now time.Time) time.Duration {
	return now.Sub(b.start)
}
