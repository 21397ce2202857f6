package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_CLASS_MEASUREMENT      = "measurement"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	DEVICE_CLASS_TIMESTAMP       = "timestamp"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
	ICON_WEATHER_ALERT           = "mdi:alert"
	entityIdMaxSensorTypeRunes   = 48
	bridgeDeviceIdPrefix         = "statesync_bridge_"
	bridgeDeviceNamePrefix       = "StateSync "
	bridgeDeviceManufacturerName = "ACasal"
)

// alert groups are text sensors with an icon of their own
var alertSensorTypes = map[string]struct{}{
	"warnings":   {},
	"watches":    {},
	"advisories": {},
	"statements": {},
	"endings":    {},
}

func BridgeDevice(baseTopic string) domain.Device {
	id := bridgeDeviceIdPrefix + md5HashShort(baseTopic)
	return domain.Device{
		Id:           id,
		Identifiers:  []string{id},
		Manufacturer: bridgeDeviceManufacturerName,
		Model:        "StateSync2MQTT",
		Version:      versioninfo.Short(),
		Name:         bridgeDeviceNamePrefix + md5HashShort(baseTopic),
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

// IdDevice is the short device reference used by every entity but the first.
func IdDevice(device domain.Device) domain.Device {
	return domain.Device{
		Id:          device.Id,
		Identifiers: device.Identifiers,
		Name:        device.Name,
	}
}

// ReadingSensors builds the discovery entities of one integration instance.
// Entities are gated by the instance availability.
func ReadingSensors(instance domain.IntegrationInstance, device domain.Device, identities []domain.SensorIdentity,
	readings map[string]domain.NormalizedReading) []domain.GenericSensor {

	sensors := make([]domain.GenericSensor, 0, len(identities))
	for i, identity := range identities {
		reading := readings[identity.SensorType]
		dev := device
		if i > 0 {
			dev = IdDevice(device)
		}
		sensor := domain.GenericSensor{
			Device:            dev,
			Id:                EntityId(identity),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              identity.DisplayName,
			UniqueId:          identity.UniqueId,
			UnitOfMeasurement: reading.Unit,
			DeviceClass:       string(reading.DeviceClass),
			AvailabilityId:    instance.Id,
			HasAttributes:     true,
		}
		if _, isNumber := reading.Value.(float64); isNumber && reading.Unit != "" {
			sensor.StateClass = STATE_CLASS_MEASUREMENT
		}
		if _, isAlert := alertSensorTypes[identity.SensorType]; isAlert {
			sensor.Icon = ICON_WEATHER_ALERT
		}
		sensors = append(sensors, sensor)
	}
	return sensors
}

// EntityId is the topic-safe object id of a sensor. It is derived from the
// unique id only, so it survives retitling.
func EntityId(identity domain.SensorIdentity) string {
	return fmt.Sprintf("%s_%s", md5HashShort(identity.UniqueId), slug(identity.SensorType))
}

func slug(text string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToLower(text) {
		if n == entityIdMaxSensorTypeRunes {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		n++
	}
	return b.String()
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
