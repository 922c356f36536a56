package domain

import "github.com/shopspring/decimal"

type GetResolvedMembersRequest struct {
	EngineRequestMixIn
	GroupId string
}

type GetResolvedMembersResponse struct {
	ActorResponseMixIn
	Members ResolvedMembers
}

type ListGroupsRequest struct {
	EngineRequestMixIn
}

type ListGroupsResponse struct {
	ActorResponseMixIn
	Groups []GroupDefinition
}

type GetGroupStateRequest struct {
	EngineRequestMixIn
	GroupId string
}

type GroupStateResponse struct {
	ActorResponseMixIn
	State GroupSnapshot
}

type PutGroupRequest struct {
	EngineRequestMixIn
	Group GroupDefinition
}

type DeleteGroupRequest struct {
	EngineRequestMixIn
	GroupId string
}

type DeleteGroupResponse struct {
	ActorResponseMixIn
}

type ResetEnergyRequest struct {
	EngineRequestMixIn
	GroupId string
}

type CalibrateEnergyRequest struct {
	EngineRequestMixIn
	GroupId string
	Value   decimal.Decimal
}

type EvictBaselineRequest struct {
	EngineRequestMixIn
	GroupId  string
	MemberId string
}

type EvictBaselineResponse struct {
	ActorResponseMixIn
	Evicted bool
}

type PutEntityRequest struct {
	EngineRequestMixIn
	Entity Entity
}

type DeleteEntityRequest struct {
	EngineRequestMixIn
	EntityId string
}

type EntityResponse struct {
	ActorResponseMixIn
	// Groups whose resolved members changed because of the request.
	Changed []string
}

type ListEntitiesRequest struct {
	EngineRequestMixIn
}

type ListEntitiesResponse struct {
	ActorResponseMixIn
	Entities []Entity
}

// RepublishRequest asks the engine to emit every group state again.
type RepublishRequest struct {
	EngineRequestMixIn
}

var (
	_ EngineRequest = (*GetResolvedMembersRequest)(nil)
	_ EngineRequest = (*CalibrateEnergyRequest)(nil)
)
