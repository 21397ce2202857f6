package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_RECORDER     = "recorder"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
	ACTOR_ID_INTEGRATION  = "integration"
)

// Integration lifecycle

type SetupIntegrationRequest struct {
	ActorRequestMixIn
	Name string
}

type SetupIntegrationResponse struct {
	ActorResponseMixIn
	Instance IntegrationInstance
	Ok       bool
}

type UnloadIntegrationRequest struct {
	ActorRequestMixIn
	Name string
}

type UnloadIntegrationResponse struct {
	ActorResponseMixIn
	Instance IntegrationInstance
	Ok       bool
}

// PollTick is delivered by the host scheduler.
type PollTick struct {
}

type GetReadingsRequest struct {
	ActorRequestMixIn
	Name string
}

type GetReadingsResponse struct {
	ActorResponseMixIn
	Instance  IntegrationInstance
	State     string
	Readings  []PublishedReading
	Connected bool
}

type ListIntegrationsRequest struct {
	ActorRequestMixIn
}

type IntegrationStatus struct {
	Instance IntegrationInstance
	Unloaded bool
}

type ListIntegrationsResponse struct {
	ActorResponseMixIn
	Integrations []IntegrationStatus
}

// MQTT

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

// Discovery

// RegisterEntitiesRequest announces the entities of a connected integration.
type RegisterEntitiesRequest struct {
	ActorRequestMixIn
	Instance   IntegrationInstance
	Device     Device
	Identities []SensorIdentity
	Readings   []PublishedReading
}

// Health

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
