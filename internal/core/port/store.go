package port

import "github.com/berfenger/powergroup2mqtt/internal/core/domain"

// BaselineStore keeps per (group, member) baselines and per group totals.
// Implementations must be safe for concurrent use.
type BaselineStore interface {
	Baseline(groupId, memberId string) (domain.MemberBaseline, bool)
	SetBaseline(groupId, memberId string, baseline domain.MemberBaseline)
	DeleteBaseline(groupId, memberId string) bool
	Total(groupId string) (domain.EnergyTotal, bool)
	SetTotal(groupId string, total domain.EnergyTotal)
	DeleteGroup(groupId string)
}

// GroupConfigStore persists group definitions edited at runtime.
type GroupConfigStore interface {
	Load() ([]domain.GroupDefinition, error)
	Save(groups []domain.GroupDefinition) error
}
