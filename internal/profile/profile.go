package profile

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-manager/internal/config"
	"github.com/thatsimonsguy/battery-manager/internal/model"
)

// Resolution is the explicit outcome of a profile lookup. A defaulted result
// carries the reason so it can be surfaced as a warning event instead of a
// silent fallback.
type Resolution struct {
	Profile   model.Profile
	Mode      model.ChargeMode
	Defaulted bool
	Reason    string
}

type Resolver struct {
	cfg *config.Config
	def model.Profile
}

func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg, def: cfg.DefaultProfile()}
}

// Resolve returns the validated profile and operating mode for an outlet.
// Outlets without a usable profile get the built-in default; that is never
// fatal. Storage membership beats full-charge membership, and
// force-full-charge promotes only outlets not marked for storage.
func (r *Resolver) Resolve(outlet string) Resolution {
	res := Resolution{Mode: r.mode(outlet)}

	name, listed := r.cfg.PlugProfiles[outlet]
	if !listed {
		res.Profile = r.def
		res.Defaulted = true
		res.Reason = "outlet not listed in [Plugs]"
		return res
	}

	raw, ok := r.cfg.Profiles[name]
	if !ok {
		res.Profile = r.def
		res.Defaulted = true
		res.Reason = fmt.Sprintf("profile section [%s] not found", name)
		log.Warn().Str("outlet", outlet).Str("profile", name).Msg("Configured profile section missing, using defaults")
		return res
	}

	p, missing := build(raw, r.cfg)
	if len(missing) > 0 {
		res.Profile = r.def
		res.Defaulted = true
		res.Reason = fmt.Sprintf("profile [%s] missing required keys: %s", name, strings.Join(missing, ", "))
		log.Warn().Str("outlet", outlet).Str("profile", name).Strs("missing", missing).Msg("Profile failed validation, using defaults")
		return res
	}

	res.Profile = p
	return res
}

func (r *Resolver) mode(outlet string) model.ChargeMode {
	if r.cfg.StorageSet[outlet] {
		return model.ModeStorage
	}
	if r.cfg.FullChargeSet[outlet] || r.cfg.ForceFullCharge {
		return model.ModeFullCharge
	}
	return model.ModeNominal
}

// build validates required fields and fills optional ones. A profile missing
// any required field is rejected whole; optional fields default individually.
func build(raw model.ProfileConfig, cfg *config.Config) (model.Profile, []string) {
	var missing []string
	if raw.NominalStop == nil {
		missing = append(missing, "nominal_charge_stop_power_threshold")
	}
	if raw.FullStop == nil {
		missing = append(missing, "full_charge_power_threshold")
	}
	if raw.CoarseMargin == nil {
		missing = append(missing, "coarse_probe_threshold_margin")
	}
	if len(missing) > 0 {
		return model.Profile{}, missing
	}

	p := model.Profile{
		Name:              raw.Name,
		NominalStop:       *raw.NominalStop,
		NominalStart:      *raw.NominalStop,
		FullStop:          *raw.FullStop,
		StorageStop:       *raw.NominalStop,
		StorageCycleLimit: config.DefaultStorageCycleLimit,
		CoarseMargin:      *raw.CoarseMargin,

		ChargerAmpHourRate:     raw.ChargerAmpHourRate,
		BatteryAmpHourCapacity: raw.BatteryAmpHourCapacity,
		ChargerEfficiency:      raw.ChargerEfficiency,
	}
	if raw.NominalStart != nil {
		p.NominalStart = *raw.NominalStart
	}
	if raw.StorageStop != nil {
		p.StorageStop = *raw.StorageStop
	}
	if raw.StorageCycleLimit != nil {
		p.StorageCycleLimit = *raw.StorageCycleLimit
	}
	return p, nil
}
