package config

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel    zapcore.Level      `mapstructure:"-"`
	MQTT        MQTTConfig         `mapstructure:"mqtt"`
	Poll        PollConfig         `mapstructure:"poll"`
	Home        HomeConfig         `mapstructure:"home"`
	Weather     []WeatherConfig    `mapstructure:"weather"`
	Controllers []ControllerConfig `mapstructure:"controllers"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Port        uint               `mapstructure:"port"`
	HttpLog     bool               `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type PollConfig struct {
	IntervalSeconds      uint32 `mapstructure:"interval_seconds"`
	FetchTimeoutMillis   uint32 `mapstructure:"fetch_timeout_millis"`
	ConnectTimeoutMillis uint32 `mapstructure:"connect_timeout_millis"`
	SetupRetryMillis     uint32 `mapstructure:"setup_retry_millis"`
	SetupRetryMaxMillis  uint32 `mapstructure:"setup_retry_max_millis"`
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}

func (p PollConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutMillis) * time.Millisecond
}

func (p PollConfig) ConnectTimeout() time.Duration {
	return time.Duration(p.ConnectTimeoutMillis) * time.Millisecond
}

func (p PollConfig) SetupRetry() time.Duration {
	return time.Duration(p.SetupRetryMillis) * time.Millisecond
}

func (p PollConfig) SetupRetryMax() time.Duration {
	return time.Duration(p.SetupRetryMaxMillis) * time.Millisecond
}

// HomeConfig is the location used by weather instances without one.
type HomeConfig struct {
	Latitude  *float64
	Longitude *float64
}

type WeatherConfig struct {
	Id          string `mapstructure:"-"`
	Name        string
	Title       string
	Language    string
	Station     string
	Latitude    *float64
	Longitude   *float64
	BaseURL     string `mapstructure:"base_url"`
	SiteListURL string `mapstructure:"site_list_url"`
}

type ControllerConfig struct {
	Id            string `mapstructure:"-"`
	Name          string
	Title         string
	Host          string
	Port          uint
	UnitId        uint8 `mapstructure:"unit_id"`
	Mac           string
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
	Points        []PointConfig
}

type PointConfig struct {
	Sensor             string
	Model              uint16
	Address            uint16
	Kind               string
	Length             uint16
	ScaleFactor        int16   `mapstructure:"scale_factor"`
	ScaleFactorAddress *uint16 `mapstructure:"scale_factor_address"`
	Unit               string
	DeviceClass        string `mapstructure:"device_class"`
}

type StorageConfig struct {
	SqlitePath  string         `mapstructure:"sqlite_path"`
	RedisAddr   string         `mapstructure:"redis_addr"`
	InfluxDB    InfluxDBConfig `mapstructure:"influxdb"`
	PostgresURL string         `mapstructure:"postgres_url"`
}

type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func (c InfluxDBConfig) Enabled() bool {
	return c.URL != ""
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
