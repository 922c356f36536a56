package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	SENSOR_SUFFIX_POWER          = "_power"
	SENSOR_SUFFIX_ENERGY         = "_energy"
	BUTTON_SUFFIX_RESET          = "_reset"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	ENTITY_CLASS_CONFIG          = "config"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("powergroup_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "PowerGroup",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("PowerGroup %s", md5HashShort(baseTopic)),
	}
}

// GroupDevice is the Home Assistant device holding a group's sensors.
func GroupDevice(bridge domain.Device, def domain.GroupDefinition) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("%s_group_%s", bridge.Id, def.Id),
		Manufacturer: bridge.Manufacturer,
		Model:        fmt.Sprintf("%s group", domain.KindName(def.Kind)),
		Name:         def.DisplayName(),
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device domain.Device) domain.Device {
	return domain.Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {
	return []domain.GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func PowerSensorId(groupId string) string {
	return groupId + SENSOR_SUFFIX_POWER
}

func EnergySensorId(groupId string) string {
	return groupId + SENSOR_SUFFIX_ENERGY
}

func ResetButtonId(groupId string) string {
	return groupId + BUTTON_SUFFIX_RESET
}

// GroupIdFromResetButton returns the group a reset button belongs to.
func GroupIdFromResetButton(buttonId string) (string, bool) {
	groupId, ok := strings.CutSuffix(buttonId, BUTTON_SUFFIX_RESET)
	return groupId, ok && groupId != ""
}

// GroupIdFromEnergySensor returns the group an energy sensor belongs to.
func GroupIdFromEnergySensor(sensorId string) (string, bool) {
	groupId, ok := strings.CutSuffix(sensorId, SENSOR_SUFFIX_ENERGY)
	return groupId, ok && groupId != ""
}

// GroupSensors returns the power sensor and, when the group has energy, the
// energy sensor. Units are the canonical units of the engine.
func GroupSensors(bridge domain.Device, def domain.GroupDefinition, powerUnit, energyUnit string) []domain.GenericSensor {
	device := GroupDevice(bridge, def)
	sensors := []domain.GenericSensor{{
		Device:            device,
		Id:                PowerSensorId(def.Id),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              fmt.Sprintf("%s power", def.DisplayName()),
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: powerUnit,
		UniqueId:          uniqueId(device.Id, PowerSensorId(def.Id)),
		Icon:              "mdi:flash",
		HasAvailability:   true,
		HasAttributes:     true,
	}}
	if HasEnergySensor(def) {
		sensors = append(sensors, domain.GenericSensor{
			Device:            IdDevice(device),
			Id:                EnergySensorId(def.Id),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("%s energy", def.DisplayName()),
			StateClass:        STATE_CLASS_TOTAL_INCREASING,
			DeviceClass:       DEVICE_CLASS_ENERGY,
			UnitOfMeasurement: energyUnit,
			UniqueId:          uniqueId(device.Id, EnergySensorId(def.Id)),
			HasAvailability:   true,
			HasAttributes:     true,
		})
	}
	return sensors
}

// GroupButtons returns the reset button of groups with an energy sensor.
func GroupButtons(bridge domain.Device, def domain.GroupDefinition) []domain.GenericButton {
	if !HasEnergySensor(def) {
		return nil
	}
	device := GroupDevice(bridge, def)
	return []domain.GenericButton{{
		Device:   IdDevice(device),
		Id:       ResetButtonId(def.Id),
		Name:     fmt.Sprintf("%s reset energy", def.DisplayName()),
		UniqueId: uniqueId(device.Id, ResetButtonId(def.Id)),
		Icon:     "mdi:counter",
	}}
}

func HasEnergySensor(def domain.GroupDefinition) bool {
	return def.CreateEnergySensor && !def.IsSubtract()
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}
