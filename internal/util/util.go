package util

import (
	"github.com/berfenger/statesync2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	cfg := config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "statesync",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Poll: config.PollConfig{
			IntervalSeconds:      600,
			FetchTimeoutMillis:   2000,
			ConnectTimeoutMillis: 2000,
			SetupRetryMillis:     1000,
			SetupRetryMaxMillis:  4000,
		},
		Weather: []config.WeatherConfig{
			{
				Name:     "home",
				Title:    "Home",
				Language: config.LANGUAGE_ENGLISH,
				Station:  "ON/s0000458",
			},
		},
		Controllers: []config.ControllerConfig{
			{
				Name:          "ups",
				Title:         "UPS",
				Host:          "-.-.-.-",
				Port:          502,
				TimeoutMillis: 1000,
				Points: []config.PointConfig{
					{Sensor: "battery.charge", Model: 1, Address: 40100, Kind: "uint16", Unit: "%", DeviceClass: "battery"},
				},
			},
		},
		Port: 8080,
	}
	config.AssignInstanceIds(&cfg)
	return cfg
}
