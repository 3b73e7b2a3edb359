package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"

	"github.com/thatsimonsguy/battery-manager/internal/model"
)

// Built-in threshold defaults, in watts. Overridable per profile section and
// again from the command line.
const (
	DefaultNominalStop       = 90.0
	DefaultFullStop          = 5.0
	DefaultStorageStop       = 90.0
	DefaultCoarseMargin      = 20.0
	DefaultStorageCycleLimit = 1

	DefaultFullChargeRepeatLimit = 3
	DefaultMaxFineCycles         = 20
	DefaultMaxHoursToRun         = 12.0

	DefaultCoarseProbeInterval = 30 * time.Minute
	DefaultFineProbeInterval   = 5 * time.Minute
	DefaultSettleTime          = 30 * time.Second

	DefaultProfileName = "DEFAULT"
)

// Reserved section names in the config file; every other section is a
// manufacturer profile.
const (
	PlugsSection      = "Plugs"
	StorageSection    = "Storage"
	FullChargeSection = "FullCharge"
)

type Config struct {
	ConfigFile string
	LogFile    string
	LogLevel   zerolog.Level
	Quiet      bool

	TestMode        bool
	ForceFullCharge bool

	// CLI threshold overrides. Nil means not supplied; a set value wins over
	// both profile sections and built-in defaults.
	NominalCutoff     *float64
	NominalStart      *float64
	FullCutoff        *float64
	StorageCutoff     *float64
	StorageCycleLimit *int

	FullChargeRepeatLimit int
	MaxCyclesInFineMode   int
	MaxHoursToRun         float64

	CoarseProbeInterval time.Duration
	FineProbeInterval   time.Duration
	SettleTime          time.Duration

	ReadRetryLimit int

	Email       string
	AppKey      string
	HistoryFile string
	MQTTBroker  string
	MQTTTopic   string

	DDAgentAddr   string
	DDNamespace   string
	DDTags        []string
	EnableDatadog bool

	// Parsed from the config file. Profiles are raw sections keyed by section
	// name; required-field validation happens at resolve time.
	Profiles      map[string]model.ProfileConfig
	PlugProfiles  map[string]string
	StorageSet    map[string]bool
	FullChargeSet map[string]bool
}

func Load() *Config {
	cfg := &Config{
		Profiles:      map[string]model.ProfileConfig{},
		PlugProfiles:  map[string]string{},
		StorageSet:    map[string]bool{},
		FullChargeSet: map[string]bool{},
	}

	var logLevel string
	var nominalCutoff, nominalStart, fullCutoff, storageCutoff, storageCycles string

	flag.StringVar(&cfg.ConfigFile, "config-file", "", "Path to battery profile config file (INI)")
	flag.StringVar(&cfg.LogFile, "log-file", "battery-manager.log", "Path to log file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Quiet, "quiet", false, "Reduce logging to warnings during steady state")
	flag.BoolVar(&cfg.TestMode, "test-mode", false, "Run all decision logic but never switch outlets")
	flag.BoolVar(&cfg.ForceFullCharge, "force-full-charge", false, "Promote all non-storage outlets to full charge mode")
	flag.StringVar(&nominalCutoff, "nominal-charge-cutoff", "", "Override nominal charge stop power threshold (watts)")
	flag.StringVar(&nominalStart, "nominal-charge-start", "", "Override nominal charge start power threshold (watts)")
	flag.StringVar(&fullCutoff, "full-charge-cutoff", "", "Override full charge stop power threshold (watts)")
	flag.StringVar(&storageCutoff, "storage-charge-cutoff", "", "Override storage charge stop power threshold (watts)")
	flag.StringVar(&storageCycles, "storage-charge-cycle-limit", "", "Max charge cycles in storage mode")
	flag.IntVar(&cfg.FullChargeRepeatLimit, "full-charge-repeat-limit", DefaultFullChargeRepeatLimit, "Charge cycles to allow after reaching full charge")
	flag.IntVar(&cfg.MaxCyclesInFineMode, "max-cycles-in-fine-mode", DefaultMaxFineCycles, "Fine probe tick limit before forcing a stop")
	flag.Float64Var(&cfg.MaxHoursToRun, "max-hours-to-run", DefaultMaxHoursToRun, "Absolute process runtime ceiling in hours")
	flag.DurationVar(&cfg.CoarseProbeInterval, "coarse-probe-interval", DefaultCoarseProbeInterval, "Poll interval while far from cutoff")
	flag.DurationVar(&cfg.FineProbeInterval, "fine-probe-interval", DefaultFineProbeInterval, "Poll interval near cutoff")
	flag.DurationVar(&cfg.SettleTime, "settle-time", DefaultSettleTime, "Pause between outlet setup and first probe")
	flag.IntVar(&cfg.ReadRetryLimit, "read-retry-limit", 3, "Outlet communication retries per probe")
	flag.StringVar(&cfg.Email, "email", "", "Email address to send the final report to")
	flag.StringVar(&cfg.HistoryFile, "history-file", "data/sessions.db", "Path to the session history database")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.NominalCutoff = parseFloatArg(nominalCutoff, "nominal-charge-cutoff")
	cfg.NominalStart = parseFloatArg(nominalStart, "nominal-charge-start")
	cfg.FullCutoff = parseFloatArg(fullCutoff, "full-charge-cutoff")
	cfg.StorageCutoff = parseFloatArg(storageCutoff, "storage-charge-cutoff")
	cfg.StorageCycleLimit = parseIntArg(storageCycles, "storage-charge-cycle-limit")

	cfg.AppKey = os.Getenv("BATTERY_MANAGER_APP_KEY")
	cfg.MQTTBroker = os.Getenv("BATTERY_MANAGER_MQTT_BROKER")
	cfg.MQTTTopic = os.Getenv("BATTERY_MANAGER_MQTT_TOPIC")
	if cfg.MQTTTopic == "" {
		cfg.MQTTTopic = "battery"
	}
	cfg.DDAgentAddr = os.Getenv("BATTERY_MANAGER_DD_AGENT_ADDR")
	cfg.DDNamespace = "battery_manager."
	cfg.EnableDatadog = cfg.DDAgentAddr != ""

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			panic("Failed to load config file: " + err.Error())
		}
	}

	return cfg
}

// LoadFile parses the INI profile file into the config. Source semantics
// follow the persisted configuration contract: one section per manufacturer
// profile, [Plugs] mapping outlet names to profile sections, and optional
// [Storage] and [FullCharge] sections listing bare outlet names.
func (cfg *Config) LoadFile(path string) error {
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg.apply(f)
}

// LoadSource parses profile config from an in-memory INI document.
func (cfg *Config) LoadSource(data []byte) error {
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.apply(f)
}

func (cfg *Config) apply(f *ini.File) error {
	for _, sec := range f.Sections() {
		name := sec.Name()
		switch name {
		case ini.DefaultSection:
			continue
		case PlugsSection:
			for _, key := range sec.Keys() {
				cfg.PlugProfiles[key.Name()] = key.Value()
			}
		case StorageSection:
			for _, key := range sec.KeyStrings() {
				cfg.StorageSet[key] = true
			}
		case FullChargeSection:
			for _, key := range sec.KeyStrings() {
				cfg.FullChargeSet[key] = true
			}
		default:
			p, err := parseProfileSection(sec)
			if err != nil {
				return err
			}
			cfg.Profiles[name] = p
		}
	}
	return nil
}

func parseProfileSection(sec *ini.Section) (model.ProfileConfig, error) {
	p := model.ProfileConfig{Name: sec.Name()}

	floats := map[string]**float64{
		"nominal_charge_stop_power_threshold":  &p.NominalStop,
		"nominal_charge_start_power_threshold": &p.NominalStart,
		"full_charge_power_threshold":          &p.FullStop,
		"storage_charge_stop_power_threshold":  &p.StorageStop,
		"coarse_probe_threshold_margin":        &p.CoarseMargin,
		"charger_amp_hour_rate":                &p.ChargerAmpHourRate,
		"battery_amp_hour_capacity":            &p.BatteryAmpHourCapacity,
		"charger_efficiency":                   &p.ChargerEfficiency,
	}
	for key, dst := range floats {
		if !sec.HasKey(key) {
			continue
		}
		v, err := sec.Key(key).Float64()
		if err != nil {
			return p, fmt.Errorf("profile %s: %s: %w", sec.Name(), key, err)
		}
		*dst = &v
	}

	if sec.HasKey("storage_charge_cycle_limit") {
		v, err := sec.Key("storage_charge_cycle_limit").Int()
		if err != nil {
			return p, fmt.Errorf("profile %s: storage_charge_cycle_limit: %w", sec.Name(), err)
		}
		p.StorageCycleLimit = &v
	}

	return p, nil
}

// DefaultProfile builds the built-in profile, with any CLI overrides applied
// on top of the compiled-in defaults.
func (cfg *Config) DefaultProfile() model.Profile {
	p := model.Profile{
		Name:              DefaultProfileName,
		NominalStop:       DefaultNominalStop,
		NominalStart:      DefaultNominalStop,
		FullStop:          DefaultFullStop,
		StorageStop:       DefaultStorageStop,
		StorageCycleLimit: DefaultStorageCycleLimit,
		CoarseMargin:      DefaultCoarseMargin,
	}
	if cfg.NominalCutoff != nil {
		p.NominalStop = *cfg.NominalCutoff
		p.NominalStart = *cfg.NominalCutoff
		p.StorageStop = *cfg.NominalCutoff
	}
	if cfg.NominalStart != nil {
		p.NominalStart = *cfg.NominalStart
	}
	if cfg.FullCutoff != nil {
		p.FullStop = *cfg.FullCutoff
	}
	if cfg.StorageCutoff != nil {
		p.StorageStop = *cfg.StorageCutoff
	}
	if cfg.StorageCycleLimit != nil {
		p.StorageCycleLimit = *cfg.StorageCycleLimit
	}
	return p
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func parseFloatArg(raw, name string) *float64 {
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		panic(fmt.Sprintf("Invalid value for -%s: %q", name, raw))
	}
	return &v
}

func parseIntArg(raw, name string) *int {
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		panic(fmt.Sprintf("Invalid value for -%s: %q", name, raw))
	}
	return &v
}
