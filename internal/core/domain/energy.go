package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MemberBaseline is the last cumulative reading seen for a member of a group.
type MemberBaseline struct {
	Value     decimal.Decimal `json:"value"`
	Unit      string          `json:"unit"`
	Timestamp time.Time       `json:"timestamp"`
}

// EnergyTotal is the accumulated energy of a group, persisted next to the baselines.
type EnergyTotal struct {
	Value     decimal.Decimal `json:"value"`
	Unit      string          `json:"unit"`
	Timestamp time.Time       `json:"timestamp"`
	// Seeding is set while members' first absolute readings are still added.
	Seeding bool `json:"seeding,omitempty"`
}

type PowerResult struct {
	Value     decimal.Decimal
	Available bool
}

func UnavailablePower() PowerResult {
	return PowerResult{}
}

func (p PowerResult) Equal(o PowerResult) bool {
	if p.Available != o.Available {
		return false
	}
	return !p.Available || p.Value.Equal(o.Value)
}

// GroupSnapshot is the externally visible state of a group.
type GroupSnapshot struct {
	Id              string          `json:"id"`
	Name            string          `json:"name"`
	Kind            string          `json:"kind"`
	Power           decimal.Decimal `json:"power"`
	PowerAvailable  bool            `json:"power_available"`
	PowerUnit       string          `json:"power_unit"`
	PowerPrecision  int32           `json:"-"`
	HasEnergy       bool            `json:"has_energy"`
	Energy          decimal.Decimal `json:"energy"`
	EnergyUnit      string          `json:"energy_unit"`
	EnergyPrecision int32           `json:"-"`
	LastFlush       time.Time       `json:"last_flush"`
	Members         ResolvedMembers `json:"members"`
	HideMembers     bool            `json:"hide_members"`
}

// PowerState renders the power value for publishing, or "unavailable".
func (s GroupSnapshot) PowerState() string {
	if !s.PowerAvailable {
		return STATE_UNAVAILABLE
	}
	return s.Power.StringFixed(s.PowerPrecision)
}

func (s GroupSnapshot) EnergyState() string {
	return s.Energy.StringFixed(s.EnergyPrecision)
}
