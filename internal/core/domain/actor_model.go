package domain

import (
	"errors"

	"beamctl/pkg/projector"
)

// ErrUnknownDevice is returned when a request targets a device id that is
// not in the roster.
var ErrUnknownDevice = errors.New("unknown device")

const (
	ACTOR_ID_FLEET        = "fleet"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_MONITOR      = "monitor"
	ACTOR_ID_DISCOVERY    = "discovery"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// DeviceRequest is any request routed to one device actor by its id.
type DeviceRequest interface {
	ActorRequest
	TargetDevice() string
}

type DeviceRequestMixIn struct {
	ActorRequestMixIn
	Device string
}

func (r DeviceRequestMixIn) TargetDevice() string {
	return r.Device
}

type ExecuteCommandRequest struct {
	DeviceRequestMixIn
	Command string
}

type ExecuteCommandResponse struct {
	ActorResponseMixIn
	Device      string
	Command     string
	OK          bool
	StatusCode  int
	RawResponse string
}

type QueryStateRequest struct {
	DeviceRequestMixIn
}

type QueryStateResponse struct {
	ActorResponseMixIn
	Device      string
	Power       projector.PowerState
	Source      string
	SourceKnown bool
}

type SetPowerRequest struct {
	DeviceRequestMixIn
	On bool
}

type SetSourceRequest struct {
	DeviceRequestMixIn
	Source string
}

type SetSourceResponse struct {
	ActorResponseMixIn
	Device     string
	Converged  bool
	StepsTaken int
	LastSource string
}

type CancelSetSourceRequest struct {
	DeviceRequestMixIn
}

type CancelSetSourceResponse struct {
	ActorResponseMixIn
	Cancelled bool
}

// Roster operations handled by the fleet actor.

type ListDevicesRequest struct {
	ActorRequestMixIn
}

type ListDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceInstance
}

type AddDeviceRequest struct {
	ActorRequestMixIn
	Device DeviceInstance
}

type AddDeviceResponse struct {
	ActorResponseMixIn
	Device DeviceInstance
}

type RemoveDeviceRequest struct {
	ActorRequestMixIn
	ID string
}

type RemoveDeviceResponse struct {
	ActorResponseMixIn
	Removed bool
}

type ListProfilesRequest struct {
	ActorRequestMixIn
}

type ListProfilesResponse struct {
	ActorResponseMixIn
	Types []string
}

// DeviceRosterUpdate fans out to actors tracking the set of devices.
type DeviceRosterUpdate struct {
	Devices []DeviceInstance
}

// Discovery scan operations.

type StartScanRequest struct {
	ActorRequestMixIn
}

type ScanReportResponse struct {
	ActorResponseMixIn
	Report projector.ScanReport
}

type AbortScanRequest struct {
	ActorRequestMixIn
}

type AbortScanResponse struct {
	ActorResponseMixIn
	Aborted bool
}

// MQTT publish operations.

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
	Sensors  []GenericSensor
	Switches []GenericSwitch
	Selects  []GenericSelect
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
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

// ensure interface compliance
var _ DeviceRequest = (*ExecuteCommandRequest)(nil)
var _ DeviceRequest = (*SetSourceRequest)(nil)
