package thresholds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/battery-manager/internal/config"
	"github.com/thatsimonsguy/battery-manager/internal/model"
)

func baseProfile() model.Profile {
	return model.Profile{
		Name:              "rad",
		NominalStop:       90,
		NominalStart:      90,
		FullStop:          5,
		StorageStop:       90,
		StorageCycleLimit: 1,
		CoarseMargin:      20,
	}
}

func baseConfig() *config.Config {
	return &config.Config{
		FullChargeRepeatLimit: 3,
		MaxHoursToRun:         12,
	}
}

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func TestModeThresholds(t *testing.T) {
	p := baseProfile()
	p.NominalStart = 100
	p.StorageStop = 70
	cfg := baseConfig()

	tests := []struct {
		name  string
		mode  model.ChargeMode
		start float64
		stop  float64
	}{
		{"nominal uses nominal start and stop", model.ModeNominal, 100, 90},
		{"full charge start falls back to stop", model.ModeFullCharge, 5, 5},
		{"storage start falls back to stop", model.ModeStorage, 70, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := Calculate(p, tt.mode, cfg)
			assert.Equal(t, tt.start, th.Start)
			assert.Equal(t, tt.stop, th.Stop)
			assert.Equal(t, tt.stop+20, th.CoarseSwitch)
		})
	}
}

func TestCLIOverridesBeatProfileValues(t *testing.T) {
	p := baseProfile()
	cfg := baseConfig()
	cfg.NominalCutoff = f(80)
	cfg.StorageCutoff = f(110)
	cfg.StorageCycleLimit = i(2)

	nominal := Calculate(p, model.ModeNominal, cfg)
	assert.Equal(t, 80.0, nominal.Stop)
	assert.Equal(t, 80.0, nominal.Start) // defaulted start tracks the overridden stop

	storage := Calculate(p, model.ModeStorage, cfg)
	assert.Equal(t, 110.0, storage.Stop)
	assert.Equal(t, 2, storage.CycleLimit)
}

func TestCycleLimits(t *testing.T) {
	p := baseProfile()
	p.StorageCycleLimit = 4
	cfg := baseConfig()

	assert.Equal(t, 3, Calculate(p, model.ModeNominal, cfg).CycleLimit)
	assert.Equal(t, 3, Calculate(p, model.ModeFullCharge, cfg).CycleLimit)
	assert.Equal(t, 4, Calculate(p, model.ModeStorage, cfg).CycleLimit)
}

func TestMaxRuntimeFromAmpHours(t *testing.T) {
	p := baseProfile()
	p.ChargerAmpHourRate = f(2)
	p.BatteryAmpHourCapacity = f(12)
	p.ChargerEfficiency = f(0.8)
	cfg := baseConfig()

	th := Calculate(p, model.ModeNominal, cfg)
	// 12 / (2 * 0.8) = 7.5h, plus the safety margin
	assert.Equal(t, 7*time.Hour+30*time.Minute+runtimeSafetyMargin, th.MaxRuntime)
	assert.Empty(t, th.Warnings)
}

func TestMaxRuntimeFallsBackToGlobal(t *testing.T) {
	cfg := baseConfig()

	t.Run("no amp-hour fields", func(t *testing.T) {
		th := Calculate(baseProfile(), model.ModeNominal, cfg)
		assert.Equal(t, 12*time.Hour, th.MaxRuntime)
	})

	t.Run("efficiency out of range", func(t *testing.T) {
		p := baseProfile()
		p.ChargerAmpHourRate = f(2)
		p.BatteryAmpHourCapacity = f(12)
		p.ChargerEfficiency = f(1.5)
		th := Calculate(p, model.ModeNominal, cfg)
		assert.Equal(t, 12*time.Hour, th.MaxRuntime)
		assert.Len(t, th.Warnings, 1)
	})

	t.Run("zero charge rate", func(t *testing.T) {
		p := baseProfile()
		p.ChargerAmpHourRate = f(0)
		p.BatteryAmpHourCapacity = f(12)
		th := Calculate(p, model.ModeNominal, cfg)
		assert.Equal(t, 12*time.Hour, th.MaxRuntime)
		assert.Len(t, th.Warnings, 1)
	})
}

func TestNegativeMarginFallsBackToDefault(t *testing.T) {
	p := baseProfile()
	p.CoarseMargin = -5
	th := Calculate(p, model.ModeNominal, baseConfig())

	assert.Equal(t, 90+config.DefaultCoarseMargin, th.CoarseSwitch)
	assert.Len(t, th.Warnings, 1)
}

func TestStartBelowStopIsFlaggedNotRejected(t *testing.T) {
	p := baseProfile()
	p.NominalStart = 40 // below the 90W stop: nonsensical but allowed for tuning
	th := Calculate(p, model.ModeNominal, baseConfig())

	assert.Equal(t, 40.0, th.Start)
	assert.Equal(t, 90.0, th.Stop)
	assert.Len(t, th.Warnings, 1)
}
