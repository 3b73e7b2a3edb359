package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/battery-manager/internal/model"
)

const sampleConfig = `
[Rad]
nominal_charge_stop_power_threshold = 90.0
full_charge_power_threshold = 5.0
coarse_probe_threshold_margin = 20.0
storage_charge_stop_power_threshold = 70.0
storage_charge_cycle_limit = 2
charger_amp_hour_rate = 2.0
battery_amp_hour_capacity = 14.0
charger_efficiency = 0.85

[Lectric]
nominal_charge_stop_power_threshold = 75.0
coarse_probe_threshold_margin = 15.0

[Plugs]
battery_rad = Rad
battery_lectric = Lectric

[Storage]
battery_rad

[FullCharge]
battery_lectric
`

func emptyConfig() *Config {
	return &Config{
		Profiles:      map[string]model.ProfileConfig{},
		PlugProfiles:  map[string]string{},
		StorageSet:    map[string]bool{},
		FullChargeSet: map[string]bool{},
	}
}

func TestLoadSource(t *testing.T) {
	cfg := emptyConfig()
	require.NoError(t, cfg.LoadSource([]byte(sampleConfig)))

	rad, ok := cfg.Profiles["Rad"]
	require.True(t, ok)
	require.NotNil(t, rad.NominalStop)
	assert.Equal(t, 90.0, *rad.NominalStop)
	require.NotNil(t, rad.FullStop)
	assert.Equal(t, 5.0, *rad.FullStop)
	require.NotNil(t, rad.CoarseMargin)
	assert.Equal(t, 20.0, *rad.CoarseMargin)
	require.NotNil(t, rad.StorageStop)
	assert.Equal(t, 70.0, *rad.StorageStop)
	require.NotNil(t, rad.StorageCycleLimit)
	assert.Equal(t, 2, *rad.StorageCycleLimit)
	require.NotNil(t, rad.ChargerEfficiency)
	assert.Equal(t, 0.85, *rad.ChargerEfficiency)

	lectric, ok := cfg.Profiles["Lectric"]
	require.True(t, ok)
	assert.Nil(t, lectric.FullStop)
	assert.Nil(t, lectric.NominalStart)
	assert.Nil(t, lectric.StorageCycleLimit)

	assert.Equal(t, "Rad", cfg.PlugProfiles["battery_rad"])
	assert.Equal(t, "Lectric", cfg.PlugProfiles["battery_lectric"])
	assert.True(t, cfg.StorageSet["battery_rad"])
	assert.True(t, cfg.FullChargeSet["battery_lectric"])
}

func TestLoadSourceReservedSectionsAreNotProfiles(t *testing.T) {
	cfg := emptyConfig()
	require.NoError(t, cfg.LoadSource([]byte(sampleConfig)))

	for _, reserved := range []string{PlugsSection, StorageSection, FullChargeSection} {
		_, ok := cfg.Profiles[reserved]
		assert.False(t, ok, "section %s parsed as a profile", reserved)
	}
}

func TestLoadSourceBadFloat(t *testing.T) {
	cfg := emptyConfig()
	err := cfg.LoadSource([]byte("[Rad]\nnominal_charge_stop_power_threshold = lots\n"))
	assert.Error(t, err)
}

func TestDefaultProfile(t *testing.T) {
	t.Run("built-in values", func(t *testing.T) {
		p := emptyConfig().DefaultProfile()
		assert.Equal(t, DefaultProfileName, p.Name)
		assert.Equal(t, DefaultNominalStop, p.NominalStop)
		assert.Equal(t, DefaultNominalStop, p.NominalStart)
		assert.Equal(t, DefaultFullStop, p.FullStop)
		assert.Equal(t, DefaultStorageStop, p.StorageStop)
		assert.Equal(t, DefaultStorageCycleLimit, p.StorageCycleLimit)
		assert.Equal(t, DefaultCoarseMargin, p.CoarseMargin)
	})

	t.Run("CLI overrides applied", func(t *testing.T) {
		cfg := emptyConfig()
		nominal, full := 80.0, 3.0
		cycles := 2
		cfg.NominalCutoff = &nominal
		cfg.FullCutoff = &full
		cfg.StorageCycleLimit = &cycles

		p := cfg.DefaultProfile()
		assert.Equal(t, 80.0, p.NominalStop)
		assert.Equal(t, 80.0, p.NominalStart)
		assert.Equal(t, 80.0, p.StorageStop) // storage default tracks nominal stop
		assert.Equal(t, 3.0, p.FullStop)
		assert.Equal(t, 2, p.StorageCycleLimit)
	})
}
