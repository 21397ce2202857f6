package config

import (
	"fmt"
	"regexp"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

const (
	LANGUAGE_ENGLISH = "english"
	LANGUAGE_FRENCH  = "french"

	DEFAULT_MODBUS_PORT = 502

	MIN_POLL_INTERVAL_SECONDS = 10
	MIN_TIMEOUT_MILLIS        = 100
	MIN_SETUP_RETRY_MILLIS    = 1000
)

var (
	stationRegexp      = regexp.MustCompile(`^[A-Z]{2}/s0000\d{3}$`)
	instanceNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	pointKinds = map[string]struct{}{
		"uint16": {},
		"int16":  {},
		"uint32": {},
		"string": {},
	}
)

func invalid(field, format string, args ...any) error {
	return domain.NewConfigValidationError(field, fmt.Sprintf(format, args...))
}

// Validate checks cfg and fills defaults that depend on other fields. It
// returns a *domain.ConfigValidationError for the first problem found.
func Validate(cfg *Config) error {

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return invalid("mqtt.base_topic", "%s", err)
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return invalid("mqtt.ha_discovery_topic", "%s", err)
	}
	cfg.MQTT.HADiscoveryTopic = hadTopic

	// check bounds
	if cfg.Poll.IntervalSeconds < MIN_POLL_INTERVAL_SECONDS {
		return invalid("poll.interval_seconds", "should be >= %d", MIN_POLL_INTERVAL_SECONDS)
	}
	if cfg.Poll.FetchTimeoutMillis < MIN_TIMEOUT_MILLIS {
		return invalid("poll.fetch_timeout_millis", "should be >= %d", MIN_TIMEOUT_MILLIS)
	}
	if cfg.Poll.ConnectTimeoutMillis < MIN_TIMEOUT_MILLIS {
		return invalid("poll.connect_timeout_millis", "should be >= %d", MIN_TIMEOUT_MILLIS)
	}
	if cfg.Poll.SetupRetryMillis < MIN_SETUP_RETRY_MILLIS {
		return invalid("poll.setup_retry_millis", "should be >= %d", MIN_SETUP_RETRY_MILLIS)
	}
	if cfg.Poll.SetupRetryMaxMillis < cfg.Poll.SetupRetryMillis {
		return invalid("poll.setup_retry_max_millis", "should be >= poll.setup_retry_millis")
	}

	if err := validateCoordinates("home", cfg.Home.Latitude, cfg.Home.Longitude); err != nil {
		return err
	}

	if len(cfg.Weather)+len(cfg.Controllers) == 0 {
		return invalid("weather", "no weather or controller integration configured")
	}

	names := map[string]struct{}{}
	checkName := func(field, name string) error {
		if name == "" {
			return invalid(field, "name is required")
		}
		if !instanceNameRegexp.MatchString(name) {
			return invalid(field, "name %q can only contain letters, numbers, dashes and underscores", name)
		}
		if _, dup := names[name]; dup {
			return invalid(field, "duplicate name %q", name)
		}
		names[name] = struct{}{}
		return nil
	}

	for i := range cfg.Weather {
		w := &cfg.Weather[i]
		field := fmt.Sprintf("weather[%d]", i)
		if err := checkName(field+".name", w.Name); err != nil {
			return err
		}
		if err := validateWeather(field, w, cfg.Home); err != nil {
			return err
		}
	}

	for i := range cfg.Controllers {
		c := &cfg.Controllers[i]
		field := fmt.Sprintf("controllers[%d]", i)
		if err := checkName(field+".name", c.Name); err != nil {
			return err
		}
		if err := validateController(field, c); err != nil {
			return err
		}
	}

	return nil
}

func validateWeather(field string, w *WeatherConfig, home HomeConfig) error {
	switch w.Language {
	case "":
		w.Language = LANGUAGE_ENGLISH
	case LANGUAGE_ENGLISH, LANGUAGE_FRENCH:
	default:
		return invalid(field+".language", "must be %q or %q", LANGUAGE_ENGLISH, LANGUAGE_FRENCH)
	}
	if w.Station != "" && !stationRegexp.MatchString(w.Station) {
		return invalid(field+".station", "%q does not match PR/s0000###", w.Station)
	}
	if err := validateCoordinates(field, w.Latitude, w.Longitude); err != nil {
		return err
	}
	if w.Station == "" && w.Latitude == nil {
		if home.Latitude == nil {
			return invalid(field, "no station, coordinates or home location")
		}
		w.Latitude = home.Latitude
		w.Longitude = home.Longitude
	}
	if w.Title == "" {
		w.Title = w.Name
	}
	return nil
}

// validateCoordinates requires both or neither, within inclusive ranges.
func validateCoordinates(field string, lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return invalid(field+".latitude", "latitude and longitude must be given together")
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 {
		return invalid(field+".latitude", "%v out of range [-90, 90]", *lat)
	}
	if *lon < -180 || *lon > 180 {
		return invalid(field+".longitude", "%v out of range [-180, 180]", *lon)
	}
	return nil
}

func validateController(field string, c *ControllerConfig) error {
	if c.Host == "" {
		return invalid(field+".host", "host is required")
	}
	if c.Port == 0 {
		c.Port = DEFAULT_MODBUS_PORT
	}
	if c.TimeoutMillis == 0 {
		c.TimeoutMillis = 1000
	} else if c.TimeoutMillis < MIN_TIMEOUT_MILLIS {
		return invalid(field+".timeout_millis", "should be >= %d", MIN_TIMEOUT_MILLIS)
	}
	if len(c.Points) == 0 {
		return invalid(field+".points", "at least one point is required")
	}
	sensors := map[string]struct{}{}
	for i := range c.Points {
		p := &c.Points[i]
		pfield := fmt.Sprintf("%s.points[%d]", field, i)
		if p.Sensor == "" {
			return invalid(pfield+".sensor", "sensor is required")
		}
		if _, dup := sensors[p.Sensor]; dup {
			return invalid(pfield+".sensor", "duplicate sensor %q", p.Sensor)
		}
		sensors[p.Sensor] = struct{}{}
		if p.Kind == "" {
			p.Kind = "uint16"
		}
		if _, ok := pointKinds[p.Kind]; !ok {
			return invalid(pfield+".kind", "unknown kind %q", p.Kind)
		}
		if p.Kind == "string" && p.Length == 0 {
			return invalid(pfield+".length", "string points need a length")
		}
	}
	if c.Title == "" {
		c.Title = c.Name
	}
	return nil
}
