package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func ptr(f float64) *float64 {
	return &f
}

func validConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			BaseTopic:        "StateSync",
			HADiscoveryTopic: "homeassistant",
		},
		Poll: PollConfig{
			IntervalSeconds:      600,
			FetchTimeoutMillis:   30000,
			ConnectTimeoutMillis: 10000,
			SetupRetryMillis:     5000,
			SetupRetryMaxMillis:  300000,
		},
		Weather: []WeatherConfig{
			{Name: "home", Station: "ON/s0000458"},
		},
	}
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var cve *domain.ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, field, cve.Field)
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, "statesync", cfg.MQTT.BaseTopic)
	assert.Equal(t, LANGUAGE_ENGLISH, cfg.Weather[0].Language)
	assert.Equal(t, "home", cfg.Weather[0].Title)
}

func TestValidateStation(t *testing.T) {
	for _, station := range []string{"on/s0000458", "ON/s000045", "ONT/s0000458", "ON/s1000458"} {
		cfg := validConfig()
		cfg.Weather[0].Station = station
		requireFieldError(t, Validate(&cfg), "weather[0].station")
	}
}

func TestValidateLanguage(t *testing.T) {
	cfg := validConfig()
	cfg.Weather[0].Language = LANGUAGE_FRENCH
	require.NoError(t, Validate(&cfg))

	cfg.Weather[0].Language = "german"
	requireFieldError(t, Validate(&cfg), "weather[0].language")
}

func TestValidateCoordinates(t *testing.T) {
	cfg := validConfig()
	cfg.Weather[0].Latitude = ptr(45.4)
	requireFieldError(t, Validate(&cfg), "weather[0].latitude")

	cfg.Weather[0].Longitude = ptr(-75.7)
	require.NoError(t, Validate(&cfg))

	// bounds are inclusive
	cfg.Weather[0].Latitude = ptr(90)
	cfg.Weather[0].Longitude = ptr(-180)
	require.NoError(t, Validate(&cfg))

	cfg.Weather[0].Latitude = ptr(90.01)
	requireFieldError(t, Validate(&cfg), "weather[0].latitude")

	cfg.Weather[0].Latitude = ptr(0)
	cfg.Weather[0].Longitude = ptr(180.5)
	requireFieldError(t, Validate(&cfg), "weather[0].longitude")
}

func TestValidateHomeFallback(t *testing.T) {
	cfg := validConfig()
	cfg.Weather[0].Station = ""
	requireFieldError(t, Validate(&cfg), "weather[0]")

	cfg.Home = HomeConfig{Latitude: ptr(45.4), Longitude: ptr(-75.7)}
	require.NoError(t, Validate(&cfg))
	require.NotNil(t, cfg.Weather[0].Latitude)
	assert.Equal(t, 45.4, *cfg.Weather[0].Latitude)
	assert.Equal(t, -75.7, *cfg.Weather[0].Longitude)
}

func TestValidateNames(t *testing.T) {
	cfg := validConfig()
	cfg.Weather = append(cfg.Weather, WeatherConfig{Name: "home", Station: "QC/s0000635"})
	requireFieldError(t, Validate(&cfg), "weather[1].name")

	cfg = validConfig()
	cfg.Weather[0].Name = ""
	requireFieldError(t, Validate(&cfg), "weather[0].name")

	// names are unique across integration kinds
	cfg = validConfig()
	cfg.Controllers = []ControllerConfig{{
		Name:   "home",
		Host:   "192.168.1.20",
		Points: []PointConfig{{Sensor: "battery.charge", Address: 40100}},
	}}
	requireFieldError(t, Validate(&cfg), "controllers[0].name")
}

func TestValidateNoIntegration(t *testing.T) {
	cfg := validConfig()
	cfg.Weather = nil
	requireFieldError(t, Validate(&cfg), "weather")
}

func TestValidatePoll(t *testing.T) {
	cfg := validConfig()
	cfg.Poll.IntervalSeconds = 5
	requireFieldError(t, Validate(&cfg), "poll.interval_seconds")

	cfg = validConfig()
	cfg.Poll.SetupRetryMaxMillis = 1000
	requireFieldError(t, Validate(&cfg), "poll.setup_retry_max_millis")
}

func TestValidateMQTTTopic(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.BaseTopic = "state/sync"
	requireFieldError(t, Validate(&cfg), "mqtt.base_topic")
}

func TestValidateController(t *testing.T) {
	cfg := validConfig()
	cfg.Weather = nil
	cfg.Controllers = []ControllerConfig{{
		Name: "ups",
		Host: "192.168.1.20",
		Points: []PointConfig{
			{Sensor: "battery.charge", Address: 40100, DeviceClass: "battery", Unit: "%"},
			{Sensor: "ups.model", Address: 40020, Kind: "string", Length: 16},
		},
	}}
	require.NoError(t, Validate(&cfg))
	assert.Equal(t, uint(DEFAULT_MODBUS_PORT), cfg.Controllers[0].Port)
	assert.Equal(t, "uint16", cfg.Controllers[0].Points[0].Kind)
	assert.Equal(t, "ups", cfg.Controllers[0].Title)

	cfg.Controllers[0].Points[1].Length = 0
	requireFieldError(t, Validate(&cfg), "controllers[0].points[1].length")

	cfg.Controllers[0].Points[1] = PointConfig{Sensor: "battery.charge", Address: 40101}
	requireFieldError(t, Validate(&cfg), "controllers[0].points[1].sensor")

	cfg.Controllers[0].Points[1] = PointConfig{Sensor: "input.voltage", Kind: "float"}
	requireFieldError(t, Validate(&cfg), "controllers[0].points[1].kind")

	cfg.Controllers[0].Points = nil
	requireFieldError(t, Validate(&cfg), "controllers[0].points")

	cfg.Controllers[0].Host = ""
	requireFieldError(t, Validate(&cfg), "controllers[0].host")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(file, []byte(`
log_level: debug
mqtt:
  host: broker.local
weather:
  - name: ottawa
    station: ON/s0000430
    language: french
controllers:
  - name: ups
    host: 192.168.1.20
    unit_id: 1
    points:
      - sensor: battery.charge
        address: 40100
        scale_factor: -1
        device_class: battery
        unit: "%"
`), 0o600)
	require.NoError(t, err)
	t.Setenv("CONFIG_FILE", file)
	t.Setenv("STATESYNC_PORT", "9090")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, zap.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, uint(9090), cfg.Port)
	assert.Equal(t, uint32(600), cfg.Poll.IntervalSeconds)

	require.Len(t, cfg.Weather, 1)
	assert.Equal(t, "french", cfg.Weather[0].Language)
	assert.Equal(t, InstanceId("weather", "ottawa"), cfg.Weather[0].Id)

	require.Len(t, cfg.Controllers, 1)
	ups := cfg.Controllers[0]
	assert.Equal(t, uint8(1), ups.UnitId)
	assert.Equal(t, int16(-1), ups.Points[0].ScaleFactor)
	assert.NotEqual(t, cfg.Weather[0].Id, ups.Id)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
weather:
  - name: bad
    station: XX/123
`), 0o600))
	t.Setenv("CONFIG_FILE", file)

	_, err := Load(viper.New())
	assert.True(t, domain.IsConfigValidationError(err))
}

func TestInstanceIdStable(t *testing.T) {
	assert.Equal(t, InstanceId("weather", "home"), InstanceId("weather", "home"))
	assert.NotEqual(t, InstanceId("weather", "home"), InstanceId("controller", "home"))
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.MQTT.Password = "secret"
	cfg.Storage.PostgresURL = "postgres://u:p@db/x"
	r := Redacted(cfg)
	assert.Equal(t, "*redacted*", r.MQTT.Password)
	assert.Equal(t, "*redacted*", r.Storage.PostgresURL)
	assert.Equal(t, "secret", cfg.MQTT.Password)
}
