package domain

import (
	"fmt"
	"regexp"
	"slices"
	"time"
)

const (
	DEFAULT_POWER_PRECISION  = 2
	DEFAULT_ENERGY_PRECISION = 4
)

var groupIdRegexp = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// GroupKind selects how a group discovers members besides its explicit lists.
// The set is closed: CustomGroup, DomainGroup, AreaGroup and SubtractGroup.
type GroupKind interface {
	groupKind() string
}

// CustomGroup uses only the explicit member lists, config entries and subgroups.
type CustomGroup struct{}

// DomainGroup adds every registered entity of a domain (light, switch, ...).
type DomainGroup struct {
	Domain string
}

// AreaGroup adds every registered entity in an area.
type AreaGroup struct {
	Area string
}

// SubtractGroup reports Base minus the sum of Subtrahends. Power only.
type SubtractGroup struct {
	Base        string
	Subtrahends []string
}

func (CustomGroup) groupKind() string   { return "custom" }
func (DomainGroup) groupKind() string   { return "domain" }
func (AreaGroup) groupKind() string     { return "area" }
func (SubtractGroup) groupKind() string { return "subtract" }

func KindName(k GroupKind) string {
	if k == nil {
		return CustomGroup{}.groupKind()
	}
	return k.groupKind()
}

type AllUnavailablePolicy string

const (
	// AllUnavailableZero reports 0 when every power member is unavailable.
	AllUnavailableZero AllUnavailablePolicy = "zero"
	// AllUnavailableUnavailable reports the group as unavailable instead.
	AllUnavailableUnavailable AllUnavailablePolicy = "unavailable"
)

type GroupDefinition struct {
	Id   string
	Name string
	Kind GroupKind

	PowerMembers  []string
	EnergyMembers []string
	SubGroups     []string
	ConfigEntries []string

	IgnoreUnavailable    bool
	HideMembers          bool
	ForceCalculateEnergy bool
	StartEnergyAtZero    bool
	CreateEnergySensor   bool

	// UpdateInterval overrides the engine wide throttle window. Zero disables throttling.
	UpdateInterval *time.Duration

	PowerPrecision  int32
	EnergyPrecision int32
	AllUnavailable  AllUnavailablePolicy
}

// NewGroupDefinition returns a custom group with the default options.
func NewGroupDefinition(id, name string) GroupDefinition {
	return GroupDefinition{
		Id:                 id,
		Name:               name,
		Kind:               CustomGroup{},
		StartEnergyAtZero:  true,
		CreateEnergySensor: true,
		PowerPrecision:     DEFAULT_POWER_PRECISION,
		EnergyPrecision:    DEFAULT_ENERGY_PRECISION,
		AllUnavailable:     AllUnavailableZero,
	}
}

// CheckShape validates the fields of a single definition. Graph level checks
// (unknown subgroups, cycles) are done by the group index.
func (g GroupDefinition) CheckShape() error {
	if !groupIdRegexp.MatchString(g.Id) {
		return fmt.Errorf("%w: %q can only contain letters, numbers and underscores", ErrInvalidGroup, g.Id)
	}
	if slices.Contains(g.SubGroups, g.Id) {
		return fmt.Errorf("%w: %s references itself", ErrCyclicGroup, g.Id)
	}
	switch k := g.Kind.(type) {
	case nil, CustomGroup:
	case DomainGroup:
		if k.Domain == "" {
			return fmt.Errorf("%w: %s: domain group needs a domain", ErrInvalidGroup, g.Id)
		}
	case AreaGroup:
		if k.Area == "" {
			return fmt.Errorf("%w: %s: area group needs an area", ErrInvalidGroup, g.Id)
		}
	case SubtractGroup:
		if k.Base == "" {
			return fmt.Errorf("%w: %s: subtract group needs a base entity", ErrInvalidGroup, g.Id)
		}
	default:
		return fmt.Errorf("%w: %s: unsupported group kind %T", ErrInvalidGroup, g.Id, k)
	}
	switch g.AllUnavailable {
	case "", AllUnavailableZero, AllUnavailableUnavailable:
	default:
		return fmt.Errorf("%w: %s: unknown all_unavailable policy %q", ErrInvalidGroup, g.Id, g.AllUnavailable)
	}
	if g.PowerPrecision < 0 || g.EnergyPrecision < 0 {
		return fmt.Errorf("%w: %s: precision must be >= 0", ErrInvalidGroup, g.Id)
	}
	return nil
}

// EffectiveUpdateInterval returns the group's throttle window given the engine default.
func (g GroupDefinition) EffectiveUpdateInterval(fallback time.Duration) time.Duration {
	if g.UpdateInterval != nil {
		return *g.UpdateInterval
	}
	return fallback
}

func (g GroupDefinition) IsSubtract() bool {
	_, ok := g.Kind.(SubtractGroup)
	return ok
}

func (g GroupDefinition) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Id
}

// ResolvedMembers is the flattened, de-duplicated member set of a group.
// For subtract groups the base entity is always Power[0].
type ResolvedMembers struct {
	Power  []string `json:"power"`
	Energy []string `json:"energy"`
}

func (m ResolvedMembers) Equal(o ResolvedMembers) bool {
	return slices.Equal(m.Power, o.Power) && slices.Equal(m.Energy, o.Energy)
}

func (m ResolvedMembers) IsPowerMember(entityId string) bool {
	return slices.Contains(m.Power, entityId)
}

func (m ResolvedMembers) IsEnergyMember(entityId string) bool {
	return slices.Contains(m.Energy, entityId)
}

// All returns power members followed by energy members, without duplicates.
func (m ResolvedMembers) All() []string {
	all := make([]string, 0, len(m.Power)+len(m.Energy))
	all = append(all, m.Power...)
	for _, e := range m.Energy {
		if !slices.Contains(all, e) {
			all = append(all, e)
		}
	}
	return all
}
