package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_ENGINE       = "engine"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_METER_POLLER = "meterpoller"
)

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
	// Removed components get an empty retained config so Home Assistant drops them.
	Removed        []GenericSensor
	RemovedButtons []GenericButton
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// ObserveReadingRequest carries one entity state change into the engine.
type ObserveReadingRequest struct {
	EngineRequestMixIn
	Reading Reading
}

type ObserveReadingResponse struct {
	ActorResponseMixIn
}

// ReadMetersRequest asks the modbus actor for one reading per configured register.
type ReadMetersRequest struct {
	ActorRequestMixIn
}

type ReadMetersResponse struct {
	ActorResponseMixIn
	Readings []Reading
}

// MQTTReady is sent by the MQTT actor to its parent every time it (re)connects.
type MQTTReady struct{}
