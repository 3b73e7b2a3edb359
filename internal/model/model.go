package model

import "time"

type ChargeMode string

const (
	ModeNominal    ChargeMode = "nominal"
	ModeFullCharge ChargeMode = "full_charge"
	ModeStorage    ChargeMode = "storage"
)

type SessionState string

const (
	StateAwaitingStart   SessionState = "awaiting_start"
	StateChargingCoarse  SessionState = "charging_coarse"
	StateChargingFine    SessionState = "charging_fine"
	StateStoppedComplete SessionState = "stopped_complete"
	StateStoppedMaxTime  SessionState = "stopped_max_time"
	StateStoppedMaxCycle SessionState = "stopped_max_cycles"
	StateError           SessionState = "error"
)

// Terminal reports whether the state is one of the stopped or error states.
// StateStoppedComplete still allows a bounded re-entry while the session's
// cycle budget lasts; the state machine accounts for that separately.
func (s SessionState) Terminal() bool {
	switch s {
	case StateStoppedComplete, StateStoppedMaxTime, StateStoppedMaxCycle, StateError:
		return true
	}
	return false
}

// Profile holds the per-manufacturer power thresholds a session charges
// against. Values are determined experimentally at the outlet and are NOT
// furnished by the manufacturer.
type Profile struct {
	Name              string
	NominalStop       float64
	NominalStart      float64
	FullStop          float64
	StorageStop       float64
	StorageCycleLimit int
	CoarseMargin      float64

	// Optional charger ratings used to derive a per-session runtime ceiling.
	ChargerAmpHourRate     *float64
	BatteryAmpHourCapacity *float64
	ChargerEfficiency      *float64
}

// ProfileConfig is a profile section as parsed from the config file, before
// required-field validation. Missing keys stay nil.
type ProfileConfig struct {
	Name              string
	NominalStop       *float64
	NominalStart      *float64
	FullStop          *float64
	StorageStop       *float64
	StorageCycleLimit *int
	CoarseMargin      *float64

	ChargerAmpHourRate     *float64
	BatteryAmpHourCapacity *float64
	ChargerEfficiency      *float64
}

// SessionResult is the finalized outcome of one outlet's charge session.
type SessionResult struct {
	Outlet      string
	Mode        ChargeMode
	State       SessionState
	CycleCount  int
	LastReading float64
	StartedAt   time.Time
	EndedAt     time.Time
	Defaulted   bool
	Reason      string
}
