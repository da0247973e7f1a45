package domain

import (
	"fmt"
	"sort"

	"beamctl/pkg/projector"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"

	ENTITY_SUFFIX_POWER     = "_power"
	ENTITY_SUFFIX_SOURCE    = "_source"
	ENTITY_SUFFIX_REACHABLE = "_reachable"

	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
)

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device         Device
	Id             string
	SensorType     string
	Name           string
	UniqueId       string
	DeviceClass    string
	EntityCategory string
	Icon           string
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

type GenericSelect struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
	Options  []string
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("beamctl_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "beamctl",
		Model:        "Beamctl",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Beamctl %s", md5HashShort(baseTopic)),
	}
}

func ProjectorHADevice(instance DeviceInstance, p *projector.Profile) Device {
	return Device{
		Id:           fmt.Sprintf("beam_%s", instance.ID),
		Manufacturer: p.Type,
		Model:        p.Type,
		Name:         instance.Name,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func ProjectorSensors(haDevice Device, instance DeviceInstance) []GenericSensor {

	var sensors []GenericSensor

	// Reachability
	sensors = append(sensors, GenericSensor{
		Device:         haDevice,
		Id:             instance.ID + ENTITY_SUFFIX_REACHABLE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Reachable",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(haDevice.Id, ENTITY_SUFFIX_REACHABLE),
	})

	return sensors
}

func ProjectorSwitches(haDevice Device, instance DeviceInstance) []GenericSwitch {

	var switches []GenericSwitch

	// Power
	switches = append(switches, GenericSwitch{
		Device:   haDevice,
		Id:       instance.ID + ENTITY_SUFFIX_POWER,
		Name:     "Power",
		UniqueId: uniqueId(haDevice.Id, ENTITY_SUFFIX_POWER),
		Icon:     "mdi:projector",
	})

	return switches
}

func ProjectorSelects(haDevice Device, instance DeviceInstance, p *projector.Profile) []GenericSelect {

	var selects []GenericSelect

	options := SourceOptions(p)
	if len(options) == 0 {
		return nil
	}

	// Source
	selects = append(selects, GenericSelect{
		Device:   haDevice,
		Id:       instance.ID + ENTITY_SUFFIX_SOURCE,
		Name:     "Source",
		UniqueId: uniqueId(haDevice.Id, ENTITY_SUFFIX_SOURCE),
		Icon:     "mdi:video-input-hdmi",
		Options:  options,
	})

	return selects
}

// SourceOptions lists every source the profile can reach, direct or cycled,
// in stable order.
func SourceOptions(p *projector.Profile) []string {
	options := projector.DirectSources(p)
	for target := range p.CycleTargets {
		options = append(options, target)
	}
	sort.Strings(options)
	return options
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}
