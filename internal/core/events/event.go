package events

import (
	. "beamctl/internal/core/domain"

	"beamctl/pkg/projector"
)

// DeviceStateToUpdateEvents turns one polled device state into the entity
// updates it implies. An unknown power state means the device could not be
// reached, which flips the reachability sensor off.
func DeviceStateToUpdateEvents(state QueryStateResponse) []any {
	var events []any

	reachable := state.Power != projector.PowerUnknown

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: state.Device + ENTITY_SUFFIX_REACHABLE,
		},
		Value: reachable,
	})

	if reachable {
		events = append(events, SwitchSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: state.Device + ENTITY_SUFFIX_POWER,
			},
			Value: state.Power == projector.PowerOn,
		})
	}

	if state.SourceKnown {
		events = append(events, SelectSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: state.Device + ENTITY_SUFFIX_SOURCE,
			},
			Value: state.Source,
		})
	}

	return events
}

func PowerSwitchUpdateEvent(deviceId string, on bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: deviceId + ENTITY_SUFFIX_POWER,
		},
		Value: on,
	}
}

// DeviceUnreachableEvent marks a device offline when its actor gave no
// answer at all.
func DeviceUnreachableEvent(deviceId string) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: deviceId + ENTITY_SUFFIX_REACHABLE,
		},
		Value: false,
	}
}

func SourceSelectUpdateEvent(deviceId, source string) any {
	return SelectSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: deviceId + ENTITY_SUFFIX_SOURCE,
		},
		Value: source,
	}
}
