package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-manager/internal/budget"
	"github.com/thatsimonsguy/battery-manager/internal/config"
	"github.com/thatsimonsguy/battery-manager/internal/datadog"
	"github.com/thatsimonsguy/battery-manager/internal/history"
	"github.com/thatsimonsguy/battery-manager/internal/model"
	"github.com/thatsimonsguy/battery-manager/internal/outlet"
	"github.com/thatsimonsguy/battery-manager/internal/probe"
	"github.com/thatsimonsguy/battery-manager/internal/profile"
	"github.com/thatsimonsguy/battery-manager/internal/report"
	"github.com/thatsimonsguy/battery-manager/internal/session"
	"github.com/thatsimonsguy/battery-manager/internal/thresholds"
)

// BatteryPrefix marks outlet aliases that are monitored even when not listed
// in [Plugs].
const BatteryPrefix = "battery_"

const (
	setupRetryLimit = 3
	setupRetryPause = 2 * time.Second
	commandTimeout  = 30 * time.Second
)

// Supervisor builds one charge session per resolved outlet and drives them
// concurrently to completion. Sessions share nothing mutable; each owns its
// session record and consults the process deadline independently.
type Supervisor struct {
	driver   outlet.Driver
	resolver *profile.Resolver
	recorder *report.Recorder
	store    *history.Store // optional
	cfg      *config.Config

	// Injectable clock for tests.
	now func() time.Time
}

func New(driver outlet.Driver, resolver *profile.Resolver, recorder *report.Recorder, store *history.Store, cfg *config.Config) *Supervisor {
	return &Supervisor{
		driver:   driver,
		resolver: resolver,
		recorder: recorder,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

// MonitoredOutlets selects which outlets get sessions: every name in [Plugs]
// plus any discovered outlet carrying the battery_ prefix that is not listed.
func MonitoredOutlets(discovered []outlet.Meta, plugs map[string]string) []string {
	var names []string
	for name := range plugs {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	var extra []string
	for _, m := range discovered {
		if !seen[m.Name] && strings.HasPrefix(m.Name, BatteryPrefix) {
			seen[m.Name] = true
			extra = append(extra, m.Name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Run monitors every named outlet until all sessions are terminal or the
// global runtime ceiling fires, and returns the finalized results.
func (s *Supervisor) Run(ctx context.Context, names []string) []model.SessionResult {
	start := s.now()
	tracker := budget.NewTracker(start, time.Duration(s.cfg.MaxHoursToRun*float64(time.Hour)))

	ctx, cancel := context.WithDeadline(ctx, tracker.Deadline())
	defer cancel()

	sessions := make([]*session.Machine, 0, len(names))
	budgets := make([]budget.SessionBudget, 0, len(names))
	var results []model.SessionResult

	for _, name := range names {
		m, sb := s.buildSession(name, start)
		sessions = append(sessions, m)
		budgets = append(budgets, sb)
	}

	// Setup pass: make sure every outlet is conducting before monitoring
	// begins. A dead outlet fails its session here without affecting others.
	resultCh := make(chan model.SessionResult, len(sessions))
	var active []int
	for i, m := range sessions {
		if err := s.setupOutlet(ctx, m.Session()); err != nil {
			sess := m.Session()
			tick := m.Fail(fmt.Sprintf("outlet setup failed: %v", err))
			s.recordTransition(sess, tick)
			resultCh <- m.Result(s.now(), tick.Reason)
			continue
		}
		active = append(active, i)
	}

	if len(active) > 0 {
		sleepCtx(ctx, s.cfg.SettleTime)
	}

	var wg sync.WaitGroup
	for _, i := range active {
		wg.Add(1)
		m, sb := sessions[i], budgets[i]
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("outlet", m.Session().Outlet).Interface("panic", r).Msg("Session panicked")
					m.Fail(fmt.Sprintf("session panic: %v", r))
					resultCh <- m.Result(s.now(), "session panic")
				}
			}()
			resultCh <- s.runSession(ctx, m, sb, tracker)
		}()
	}
	wg.Wait()
	close(resultCh)

	for res := range resultCh {
		results = append(results, res)
		datadog.Incr("session.finished", "outlet:"+res.Outlet, "state:"+string(res.State))
		if s.store != nil {
			if err := s.store.RecordSession(res); err != nil {
				log.Warn().Err(err).Str("outlet", res.Outlet).Msg("Failed to journal session")
			}
		}
	}
	return results
}

// buildSession resolves the profile and mode for one outlet and freezes its
// thresholds. Threshold values never change mid-run, even if config does.
func (s *Supervisor) buildSession(name string, start time.Time) (*session.Machine, budget.SessionBudget) {
	res := s.resolver.Resolve(name)
	th := thresholds.Calculate(res.Profile, res.Mode, s.cfg)

	sess := &session.Session{
		Outlet:          name,
		Mode:            res.Mode,
		Profile:         res.Profile,
		Thresholds:      th,
		StartedAt:       start,
		Defaulted:       res.Defaulted,
		DefaultedReason: res.Reason,
	}

	if res.Defaulted {
		s.recorder.Record(report.Event{
			Outlet: name, Mode: res.Mode, Type: report.EventWarning,
			Message: "using built-in default profile: " + res.Reason,
		})
	}
	for _, w := range th.Warnings {
		s.recorder.Record(report.Event{
			Outlet: name, Mode: res.Mode, Type: report.EventWarning, Message: w,
		})
	}

	log.Info().
		Str("outlet", name).
		Str("mode", string(res.Mode)).
		Str("profile", res.Profile.Name).
		Float64("start", th.Start).
		Float64("stop", th.Stop).
		Float64("coarse_switch", th.CoarseSwitch).
		Dur("max_runtime", th.MaxRuntime).
		Int("cycle_limit", th.CycleLimit).
		Msg("Session created")

	return session.NewMachine(sess, s.cfg.MaxCyclesInFineMode), budget.NewSessionBudget(start, th.MaxRuntime)
}

// setupOutlet switches the outlet on and verifies the charger draws power.
// No draw after the retry budget is only a warning: the battery may simply be
// full or the charger unplugged.
func (s *Supervisor) setupOutlet(ctx context.Context, sess *session.Session) error {
	if err := s.driver.SetPower(ctx, sess.Outlet, true); err != nil {
		return err
	}

	for attempt := 0; attempt < setupRetryLimit; attempt++ {
		watts, err := s.driver.ReadPower(ctx, sess.Outlet)
		if err != nil {
			return err
		}
		if watts > 0 {
			log.Info().Str("outlet", sess.Outlet).Float64("watts", watts).Msg("Outlet active")
			return nil
		}
		if !sleepCtx(ctx, setupRetryPause) {
			return ctx.Err()
		}
	}

	log.Warn().Str("outlet", sess.Outlet).Msg("No power draw on outlet after setup")
	return nil
}

// runSession is one session's poll loop: evaluate the latest reading, execute
// any command, then suspend until the next probe interval elapses. Sleeping
// here is the only suspension point.
func (s *Supervisor) runSession(ctx context.Context, m *session.Machine, sb budget.SessionBudget, tracker *budget.Tracker) model.SessionResult {
	sess := m.Session()
	sched := probe.NewScheduler(s.cfg.CoarseProbeInterval, s.cfg.FineProbeInterval)
	outletOn := true

	for {
		now := s.now()
		if tracker.Exceeded(now) || sb.Exceeded(now) {
			return s.finish(sess, m, &outletOn, "runtime ceiling reached")
		}

		watts, err := s.driver.ReadPower(ctx, sess.Outlet)
		if err != nil {
			// Retries are already exhausted inside the driver. Leave the
			// outlet in its last commanded state and stop polling.
			tick := m.Fail(fmt.Sprintf("outlet communication failed: %v", err))
			s.recordTransition(sess, tick)
			return m.Result(s.now(), tick.Reason)
		}
		datadog.Gauge("outlet.power", watts, "outlet:"+sess.Outlet, "mode:"+string(sess.Mode))

		tick := m.Evaluate(watts)
		if err := s.execute(sess, tick, &outletOn); err != nil {
			failTick := m.Fail(fmt.Sprintf("outlet command failed: %v", err))
			s.recordTransition(sess, failTick)
			return m.Result(s.now(), failTick.Reason)
		}

		if m.Done() {
			return m.Result(s.now(), tick.Reason)
		}

		timer := time.NewTimer(sched.Interval(watts, sess.Thresholds.CoarseSwitch))
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.finish(sess, m, &outletOn, "global runtime ceiling reached")
		case <-timer.C:
		}
	}
}

// finish ends a session at a runtime ceiling. A session already parked in
// StoppedComplete keeps its state and its outlet: the charge finished, the
// ceiling merely ends the re-entry watch. Anything else is forced off and
// marked max-time; a failed off command degrades to the error state so the
// report never claims an outlet was switched off when it may still be live.
func (s *Supervisor) finish(sess *session.Session, m *session.Machine, outletOn *bool, reason string) model.SessionResult {
	if sess.State == model.StateStoppedComplete {
		return m.Result(s.now(), "charge complete")
	}

	tick := m.ForceMaxTime(reason)
	if err := s.execute(sess, tick, outletOn); err != nil {
		failTick := m.Fail(fmt.Sprintf("outlet command failed: %v", err))
		s.recordTransition(sess, failTick)
		return m.Result(s.now(), failTick.Reason)
	}
	return m.Result(s.now(), tick.Reason)
}

// execute records the tick's transition and carries out its outlet command.
// Off commands are idempotent: issuing off on an outlet already believed off
// is a no-op.
func (s *Supervisor) execute(sess *session.Session, tick session.Tick, outletOn *bool) error {
	s.recordTransition(sess, tick)

	// Observed charging implies the outlet is conducting again, whatever we
	// believed after the last off command.
	if tick.Changed() && tick.To == model.StateChargingCoarse {
		*outletOn = true
	}

	if tick.Command != session.CommandOff || !*outletOn {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.driver.SetPower(ctx, sess.Outlet, false); err != nil {
		return err
	}
	*outletOn = false

	command := "off"
	if s.cfg.TestMode {
		command = "off (simulated)"
	}
	s.recorder.Record(report.Event{
		Outlet: sess.Outlet, Mode: sess.Mode, Type: report.EventCommand,
		Reading: sess.LastReading, Command: command, Message: tick.Reason,
	})
	return nil
}

func (s *Supervisor) recordTransition(sess *session.Session, tick session.Tick) {
	if !tick.Changed() {
		return
	}
	s.recorder.Record(report.Event{
		Outlet: sess.Outlet, Mode: sess.Mode, Type: report.EventTransition,
		From: tick.From, To: tick.To, Reading: sess.LastReading, Message: tick.Reason,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
