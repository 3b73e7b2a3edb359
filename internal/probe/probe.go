package probe

import "time"

// Scheduler picks the next poll interval from the latest power reading: fine
// once the reading is at or below the session's coarse switch threshold,
// coarse otherwise. It never sleeps itself; the supervisor owns scheduling.
type Scheduler struct {
	Coarse time.Duration
	Fine   time.Duration
}

func NewScheduler(coarse, fine time.Duration) Scheduler {
	return Scheduler{Coarse: coarse, Fine: fine}
}

func (s Scheduler) Interval(reading, coarseSwitch float64) time.Duration {
	if reading <= coarseSwitch {
		return s.Fine
	}
	return s.Coarse
}
