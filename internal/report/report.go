package report

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-manager/internal/model"
)

type EventType string

const (
	EventTransition EventType = "transition"
	EventCommand    EventType = "command"
	EventWarning    EventType = "warning"
)

// Event is one entry in the ordered session event stream. The core emits
// these and does no formatting or transport of its own.
type Event struct {
	Time    time.Time          `json:"time"`
	Outlet  string             `json:"outlet"`
	Mode    model.ChargeMode   `json:"mode"`
	Type    EventType          `json:"type"`
	From    model.SessionState `json:"from,omitempty"`
	To      model.SessionState `json:"to,omitempty"`
	Reading float64            `json:"reading_watts"`
	Command string             `json:"command,omitempty"`
	Message string             `json:"message,omitempty"`
}

// Sink receives each event as it happens. Record must not block the session
// loop for long; slow transports buffer internally.
type Sink interface {
	Record(Event)
}

// Recorder keeps the ordered event stream and fans each event out to the
// attached sinks. Safe for concurrent use by all sessions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	sinks  []Sink
}

func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

func (r *Recorder) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	sinks := r.sinks
	r.mu.Unlock()

	for _, s := range sinks {
		s.Record(e)
	}
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// LogSink writes every event through zerolog.
type LogSink struct{}

func (LogSink) Record(e Event) {
	ev := log.Info()
	if e.Type == EventWarning {
		ev = log.Warn()
	}
	ev = ev.Str("outlet", e.Outlet).Str("mode", string(e.Mode)).Str("type", string(e.Type))
	if e.Type == EventTransition {
		ev = ev.Str("from", string(e.From)).Str("to", string(e.To)).Float64("watts", e.Reading)
	}
	if e.Command != "" {
		ev = ev.Str("command", e.Command)
	}
	ev.Msg(e.Message)
}

// Summary renders the final per-outlet report: terminal state, reason, cycle
// count and charge duration for every session.
func Summary(results []model.SessionResult, testMode bool) string {
	var b strings.Builder
	b.WriteString("Battery charge report\n")
	if testMode {
		b.WriteString("(test mode: no outlet commands were sent)\n")
	}
	b.WriteString("\n")

	sorted := make([]model.SessionResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Outlet < sorted[j].Outlet })

	for _, res := range sorted {
		fmt.Fprintf(&b, "%s (%s): %s", res.Outlet, res.Mode, res.State)
		if res.Reason != "" {
			fmt.Fprintf(&b, " - %s", res.Reason)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "    cycles: %d, last reading: %.1fW, charged for %s\n",
			res.CycleCount, res.LastReading, res.EndedAt.Sub(res.StartedAt).Round(time.Second))
		if res.Defaulted {
			b.WriteString("    note: used built-in default profile\n")
		}
	}
	if len(sorted) == 0 {
		b.WriteString("No outlets were monitored this run\n")
	}
	return b.String()
}
