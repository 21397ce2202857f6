package mqtt

import (
	"fmt"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/events"
)

const AVAILABILITY_MODE_ALL = "all"

type HADiscoveryConfig struct {
	Device              HADiscoveryDevice         `json:"device"`
	StateTopic          string                    `json:"state_topic"`
	JsonAttributesTopic string                    `json:"json_attributes_topic,omitempty"`
	StateClass          string                    `json:"state_class,omitempty"`
	DeviceClass         string                    `json:"device_class,omitempty"`
	UnitOfMeasurement   string                    `json:"unit_of_measurement,omitempty"`
	AvTopic             string                    `json:"availability_topic,omitempty"`
	Availability        []HADiscoveryAvailability `json:"availability,omitempty"`
	AvailabilityMode    string                    `json:"availability_mode,omitempty"`
	EntityCategory      string                    `json:"entity_category,omitempty"`
	Name                string                    `json:"name"`
	UniqueId            string                    `json:"unique_id"`
	Platform            string                    `json:"platform"`
	EnabledByDefault    *bool                     `json:"enabled_by_default,omitempty"`
	PayloadOn           string                    `json:"payload_on,omitempty"`
	PayloadOff          string                    `json:"payload_off,omitempty"`
	Icon                string                    `json:"icon,omitempty"`
}

type HADiscoveryAvailability struct {
	Topic string `json:"topic"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func HADiscoverySensorTopic(prefix string, sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	dev := device(sensor.Device)
	var topic string
	switch {
	case sensor.Id == events.SENSOR_ID_BRIDGE_STATE:
		topic = client.BridgeStateTopic()
	case sensor.SensorType == events.SENSOR_TYPE_SENSOR:
		topic = client.SensorStateTopic(sensor.Id)
	case sensor.SensorType == events.SENSOR_TYPE_BINARY:
		topic = client.BinarySensorStateTopic(sensor.Id)
	}
	disConfig := HADiscoveryConfig{
		Device:            dev,
		StateTopic:        topic,
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.AvailabilityId != "" {
		// entity is available only while both the bridge and its integration are
		disConfig.Availability = []HADiscoveryAvailability{
			{Topic: client.BridgeStateTopic()},
			{Topic: client.IntegrationAvailabilityTopic(sensor.AvailabilityId)},
		}
		disConfig.AvailabilityMode = AVAILABILITY_MODE_ALL
	} else {
		disConfig.AvTopic = client.BridgeStateTopic()
	}
	if sensor.HasAttributes {
		disConfig.JsonAttributesTopic = client.SensorAttributesTopic(sensor.Id)
	}
	if sensor.Id == events.SENSOR_ID_BRIDGE_STATE {
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else if sensor.SensorType == events.SENSOR_TYPE_BINARY {
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func device(d domain.Device) HADiscoveryDevice {
	ids := d.Identifiers
	if len(ids) == 0 {
		ids = []string{d.Id}
	}
	return HADiscoveryDevice{
		Id:           ids,
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
