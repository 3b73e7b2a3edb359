package thresholds

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-manager/internal/config"
	"github.com/thatsimonsguy/battery-manager/internal/model"
)

// Extra allowance on top of the ideal amp-hour runtime estimate, covering the
// taper phase where the charger draws below its nameplate rate.
const runtimeSafetyMargin = time.Hour

// Thresholds are the concrete per-session values the state machine charges
// against. Fixed at session start; config changes mid-run have no effect.
type Thresholds struct {
	Start        float64
	Stop         float64
	CoarseSwitch float64
	MaxRuntime   time.Duration
	CycleLimit   int

	// Non-fatal conditions found while resolving, surfaced to the operator
	// as flagged warning events.
	Warnings []string
}

// Calculate merges profile values, config-file values and CLI overrides into
// the session thresholds for one outlet. Precedence for every numeric value:
// CLI override > config-file value > built-in default.
func Calculate(p model.Profile, mode model.ChargeMode, cfg *config.Config) Thresholds {
	t := Thresholds{}

	margin := p.CoarseMargin
	if margin < 0 {
		t.warnf("coarse_probe_threshold_margin %.1f is negative, using default %.1f", margin, config.DefaultCoarseMargin)
		margin = config.DefaultCoarseMargin
	}

	switch mode {
	case model.ModeStorage:
		t.Stop = override(cfg.StorageCutoff, p.StorageStop)
		t.Start = t.Stop
		t.CycleLimit = p.StorageCycleLimit
		if cfg.StorageCycleLimit != nil {
			t.CycleLimit = *cfg.StorageCycleLimit
		}
	case model.ModeFullCharge:
		t.Stop = override(cfg.FullCutoff, p.FullStop)
		t.Start = t.Stop
		t.CycleLimit = cfg.FullChargeRepeatLimit
	default:
		t.Stop = override(cfg.NominalCutoff, p.NominalStop)
		t.Start = override(cfg.NominalStart, p.NominalStart)
		if cfg.NominalCutoff != nil && cfg.NominalStart == nil && p.NominalStart == p.NominalStop {
			// Start was never set explicitly anywhere, so it tracks the
			// overridden stop value.
			t.Start = t.Stop
		}
		t.CycleLimit = cfg.FullChargeRepeatLimit
	}

	t.CoarseSwitch = t.Stop + margin

	if t.Start < t.Stop {
		t.warnf("start threshold %.1fW is below stop threshold %.1fW for %s mode", t.Start, t.Stop, mode)
	}

	t.MaxRuntime = maxRuntime(p, cfg, &t)
	return t
}

// maxRuntime derives the session runtime ceiling from the charger's amp-hour
// ratings when both are configured, otherwise it falls back to the global
// max-hours-to-run value.
func maxRuntime(p model.Profile, cfg *config.Config, t *Thresholds) time.Duration {
	global := time.Duration(cfg.MaxHoursToRun * float64(time.Hour))

	if p.ChargerAmpHourRate == nil || p.BatteryAmpHourCapacity == nil {
		return global
	}

	efficiency := 1.0
	if p.ChargerEfficiency != nil {
		efficiency = *p.ChargerEfficiency
	}
	if efficiency <= 0 || efficiency > 1 {
		t.warnf("charger_efficiency %.2f outside (0,1], ignoring amp-hour runtime estimate", efficiency)
		return global
	}
	if *p.ChargerAmpHourRate <= 0 {
		t.warnf("charger_amp_hour_rate %.2f is not positive, ignoring amp-hour runtime estimate", *p.ChargerAmpHourRate)
		return global
	}

	hours := *p.BatteryAmpHourCapacity / (*p.ChargerAmpHourRate * efficiency)
	return time.Duration(hours*float64(time.Hour)) + runtimeSafetyMargin
}

func (t *Thresholds) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warn().Msg(msg)
	t.Warnings = append(t.Warnings, msg)
}

func override(cli *float64, fromProfile float64) float64 {
	if cli != nil {
		return *cli
	}
	return fromProfile
}
