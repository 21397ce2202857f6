package config

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "statesync"

// instance ids are name-based so they survive restarts
var instanceNamespace = uuid.MustParse("6f1d8a52-3c4b-4e57-9a0e-2f8b1c7d5e90")

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("port", 8080)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.ha_discovery_enable", true)
	v.SetDefault("mqtt.base_topic", "statesync")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("poll.interval_seconds", 600)
	v.SetDefault("poll.fetch_timeout_millis", 30000)
	v.SetDefault("poll.connect_timeout_millis", 10000)
	v.SetDefault("poll.setup_retry_millis", 5000)
	v.SetDefault("poll.setup_retry_max_millis", 300000)
}

// Load reads defaults, the environment and the optional CONFIG_FILE, then
// validates. No network activity happens before validation succeeds.
func Load(v *viper.Viper) (*Config, error) {

	// alias PORT => STATESYNC_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("STATESYNC_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			if err := v.ReadInConfig(); err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = ParseLogLevel(v.GetString("log_level"))

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	AssignInstanceIds(&cfg)
	return &cfg, nil
}

func ParseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func AssignInstanceIds(cfg *Config) {
	for i := range cfg.Weather {
		cfg.Weather[i].Id = InstanceId("weather", cfg.Weather[i].Name)
	}
	for i := range cfg.Controllers {
		cfg.Controllers[i].Id = InstanceId("controller", cfg.Controllers[i].Name)
	}
}

func InstanceId(kind, name string) string {
	return uuid.NewSHA1(instanceNamespace, []byte(kind+"/"+name)).String()
}

// Redacted is safe to log.
func Redacted(cfg Config) Config {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Storage.InfluxDB.Token = "*redacted*"
	if cfg.Storage.PostgresURL != "" {
		cfg.Storage.PostgresURL = "*redacted*"
	}
	return cfg
}
