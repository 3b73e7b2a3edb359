package session

import (
	"time"

	"github.com/thatsimonsguy/battery-manager/internal/model"
	"github.com/thatsimonsguy/battery-manager/internal/thresholds"
)

// Command is the outlet action a tick decided on. The machine never touches
// the outlet itself; the supervisor executes commands through the driver.
type Command int

const (
	CommandNone Command = iota
	CommandOff
)

// Tick is the outcome of evaluating one power reading.
type Tick struct {
	From    model.SessionState
	To      model.SessionState
	Command Command
	Reason  string
}

func (t Tick) Changed() bool {
	return t.From != t.To
}

// Session is the per-outlet monitoring record. It is owned exclusively by its
// state machine; no other session reads or mutates it.
type Session struct {
	Outlet     string
	Mode       model.ChargeMode
	Profile    model.Profile
	Thresholds thresholds.Thresholds
	State      model.SessionState
	CycleCount int
	FineTicks  int
	StartedAt  time.Time

	LastReading float64
	HasReading  bool

	Defaulted       bool
	DefaultedReason string
}

// Machine drives one session through the charge states, one evaluation per
// poll tick against the latest power reading.
type Machine struct {
	s            *Session
	maxFineTicks int
}

func NewMachine(s *Session, maxFineTicks int) *Machine {
	s.State = model.StateAwaitingStart
	return &Machine{s: s, maxFineTicks: maxFineTicks}
}

func (m *Machine) Session() *Session {
	return m.s
}

// Evaluate runs one tick against reading p. All boundary comparisons are
// inclusive: charging is considered active at p >= start, finished at
// p <= stop, and near the cutoff at p <= stop + margin.
func (m *Machine) Evaluate(p float64) Tick {
	s := m.s
	t := s.Thresholds
	tick := Tick{From: s.State, To: s.State}

	s.LastReading = p
	s.HasReading = true

	switch s.State {
	case model.StateAwaitingStart:
		// The outlet stays in whatever state it was; no command is issued
		// while waiting for the charger to draw.
		if p >= t.Start {
			tick.To = model.StateChargingCoarse
			tick.Reason = "charging detected"
		}

	case model.StateChargingCoarse:
		if p <= t.CoarseSwitch {
			tick.To = model.StateChargingFine
			tick.Reason = "approaching cutoff"
		}

	case model.StateChargingFine:
		if p <= t.Stop {
			s.CycleCount++
			tick.To = model.StateStoppedComplete
			tick.Command = CommandOff
			tick.Reason = "charge complete"
			break
		}
		s.FineTicks++
		if s.FineTicks > m.maxFineTicks {
			tick.To = model.StateStoppedMaxCycle
			tick.Command = CommandOff
			tick.Reason = "fine probe cycle limit reached"
		}

	case model.StateStoppedComplete:
		// Bounded re-entry: battery self-discharge resumed charging and the
		// mode's cycle budget has room. At the limit the session stays
		// terminal and further readings are ignored.
		if s.CycleCount < t.CycleLimit && p >= t.Start {
			tick.To = model.StateChargingCoarse
			tick.Reason = "charging resumed"
		}

	default:
		// StateStoppedMaxTime, StateStoppedMaxCycle and StateError never
		// leave; readings are ignored.
	}

	s.State = tick.To
	return tick
}

// ForceMaxTime terminates the session because a runtime ceiling was reached.
// The outlet is forced off regardless of the current reading.
func (m *Machine) ForceMaxTime(reason string) Tick {
	tick := Tick{From: m.s.State, To: model.StateStoppedMaxTime, Command: CommandOff, Reason: reason}
	m.s.State = model.StateStoppedMaxTime
	return tick
}

// Fail terminates the session after outlet communication retries were
// exhausted. The outlet is left in its last commanded state: the fault may be
// transient, and a spurious forced write risks compounding the failure.
func (m *Machine) Fail(reason string) Tick {
	tick := Tick{From: m.s.State, To: model.StateError, Reason: reason}
	m.s.State = model.StateError
	return tick
}

// Done reports whether the session needs no further polling. StoppedComplete
// keeps polling while the cycle budget allows re-entry.
func (m *Machine) Done() bool {
	switch m.s.State {
	case model.StateStoppedMaxTime, model.StateStoppedMaxCycle, model.StateError:
		return true
	case model.StateStoppedComplete:
		return m.s.CycleCount >= m.s.Thresholds.CycleLimit
	}
	return false
}

// Result finalizes the session for reporting.
func (m *Machine) Result(endedAt time.Time, reason string) model.SessionResult {
	s := m.s
	return model.SessionResult{
		Outlet:      s.Outlet,
		Mode:        s.Mode,
		State:       s.State,
		CycleCount:  s.CycleCount,
		LastReading: s.LastReading,
		StartedAt:   s.StartedAt,
		EndedAt:     endedAt,
		Defaulted:   s.Defaulted,
		Reason:      reason,
	}
}
