// Package groupfile reads and writes group definitions as yaml.
package groupfile

import (
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
)

const (
	TYPE_CUSTOM   = "custom"
	TYPE_DOMAIN   = "domain"
	TYPE_AREA     = "area"
	TYPE_SUBTRACT = "subtract"
)

// GroupConfig is the serialized form of a group definition. The HTTP API
// accepts the same document as json.
type GroupConfig struct {
	Id   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	Domain      string   `yaml:"domain,omitempty" json:"domain,omitempty"`
	Area        string   `yaml:"area,omitempty" json:"area,omitempty"`
	Base        string   `yaml:"base,omitempty" json:"base,omitempty"`
	Subtrahends []string `yaml:"subtract,omitempty" json:"subtract,omitempty"`

	PowerEntities  []string `yaml:"power_entities,omitempty" json:"power_entities,omitempty"`
	EnergyEntities []string `yaml:"energy_entities,omitempty" json:"energy_entities,omitempty"`
	SubGroups      []string `yaml:"sub_groups,omitempty" json:"sub_groups,omitempty"`
	ConfigEntries  []string `yaml:"config_entries,omitempty" json:"config_entries,omitempty"`

	IgnoreUnavailable    bool  `yaml:"ignore_unavailable,omitempty" json:"ignore_unavailable,omitempty"`
	HideMembers          bool  `yaml:"hide_members,omitempty" json:"hide_members,omitempty"`
	ForceCalculateEnergy bool  `yaml:"force_calculate_energy,omitempty" json:"force_calculate_energy,omitempty"`
	StartEnergyAtZero    *bool `yaml:"start_energy_at_zero,omitempty" json:"start_energy_at_zero,omitempty"`
	CreateEnergySensor   *bool `yaml:"create_energy_sensor,omitempty" json:"create_energy_sensor,omitempty"`

	UpdateIntervalSeconds *int   `yaml:"update_interval_seconds,omitempty" json:"update_interval_seconds,omitempty"`
	PowerPrecision        *int32 `yaml:"power_precision,omitempty" json:"power_precision,omitempty"`
	EnergyPrecision       *int32 `yaml:"energy_precision,omitempty" json:"energy_precision,omitempty"`
	AllUnavailable        string `yaml:"all_unavailable,omitempty" json:"all_unavailable,omitempty"`
}

// ToDefinition applies the defaults of domain.NewGroupDefinition to unset options.
func (c GroupConfig) ToDefinition() (domain.GroupDefinition, error) {
	def := domain.NewGroupDefinition(c.Id, c.Name)

	switch c.Type {
	case "", TYPE_CUSTOM:
		def.Kind = domain.CustomGroup{}
	case TYPE_DOMAIN:
		def.Kind = domain.DomainGroup{Domain: c.Domain}
	case TYPE_AREA:
		def.Kind = domain.AreaGroup{Area: c.Area}
	case TYPE_SUBTRACT:
		def.Kind = domain.SubtractGroup{Base: c.Base, Subtrahends: c.Subtrahends}
	default:
		return def, fmt.Errorf("%w: %s: unknown group type %q", domain.ErrInvalidGroup, c.Id, c.Type)
	}

	def.PowerMembers = c.PowerEntities
	def.EnergyMembers = c.EnergyEntities
	def.SubGroups = c.SubGroups
	def.ConfigEntries = c.ConfigEntries
	def.IgnoreUnavailable = c.IgnoreUnavailable
	def.HideMembers = c.HideMembers
	def.ForceCalculateEnergy = c.ForceCalculateEnergy
	if c.StartEnergyAtZero != nil {
		def.StartEnergyAtZero = *c.StartEnergyAtZero
	}
	if c.CreateEnergySensor != nil {
		def.CreateEnergySensor = *c.CreateEnergySensor
	}
	if c.UpdateIntervalSeconds != nil {
		if *c.UpdateIntervalSeconds < 0 {
			return def, fmt.Errorf("%w: %s: update interval must be >= 0", domain.ErrInvalidGroup, c.Id)
		}
		interval := time.Duration(*c.UpdateIntervalSeconds) * time.Second
		def.UpdateInterval = &interval
	}
	if c.PowerPrecision != nil {
		def.PowerPrecision = *c.PowerPrecision
	}
	if c.EnergyPrecision != nil {
		def.EnergyPrecision = *c.EnergyPrecision
	}
	if c.AllUnavailable != "" {
		def.AllUnavailable = domain.AllUnavailablePolicy(c.AllUnavailable)
	}

	return def, def.CheckShape()
}

// FromDefinition is the inverse of ToDefinition. Options equal to their
// default are left out.
func FromDefinition(def domain.GroupDefinition) GroupConfig {
	defaults := domain.NewGroupDefinition(def.Id, def.Name)
	c := GroupConfig{
		Id:                   def.Id,
		Name:                 def.Name,
		Type:                 domain.KindName(def.Kind),
		PowerEntities:        def.PowerMembers,
		EnergyEntities:       def.EnergyMembers,
		SubGroups:            def.SubGroups,
		ConfigEntries:        def.ConfigEntries,
		IgnoreUnavailable:    def.IgnoreUnavailable,
		HideMembers:          def.HideMembers,
		ForceCalculateEnergy: def.ForceCalculateEnergy,
	}
	switch k := def.Kind.(type) {
	case domain.DomainGroup:
		c.Domain = k.Domain
	case domain.AreaGroup:
		c.Area = k.Area
	case domain.SubtractGroup:
		c.Base = k.Base
		c.Subtrahends = k.Subtrahends
	}
	if def.StartEnergyAtZero != defaults.StartEnergyAtZero {
		c.StartEnergyAtZero = &def.StartEnergyAtZero
	}
	if def.CreateEnergySensor != defaults.CreateEnergySensor {
		c.CreateEnergySensor = &def.CreateEnergySensor
	}
	if def.UpdateInterval != nil {
		seconds := int(def.UpdateInterval.Seconds())
		c.UpdateIntervalSeconds = &seconds
	}
	if def.PowerPrecision != defaults.PowerPrecision {
		c.PowerPrecision = &def.PowerPrecision
	}
	if def.EnergyPrecision != defaults.EnergyPrecision {
		c.EnergyPrecision = &def.EnergyPrecision
	}
	if def.AllUnavailable != "" && def.AllUnavailable != defaults.AllUnavailable {
		c.AllUnavailable = string(def.AllUnavailable)
	}
	return c
}
