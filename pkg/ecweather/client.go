package ecweather

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const (
	DEFAULT_BASE_URL      = "https://dd.weather.gc.ca/citypage_weather/xml"
	DEFAULT_SITE_LIST_URL = "https://dd.weather.gc.ca/citypage_weather/docs/site_list_towns_en.csv"

	LANGUAGE_ENGLISH = "english"
	LANGUAGE_FRENCH  = "french"

	FIELD_LABEL = "label"
	FIELD_VALUE = "value"
	FIELD_UNIT  = "unit"
	FIELD_TITLE = "title"
	FIELD_DATE  = "date"

	META_TIMESTAMP = "timestamp"
	META_LOCATION  = "location"
	META_STATION   = "station"
)

var (
	StationIdRegexp = regexp.MustCompile(`^[A-Z]{2}/s0000\d{3}$`)

	ErrInvalidStation = errors.New("ecweather: invalid station id")
	ErrNoLocation     = errors.New("ecweather: neither station nor coordinates given")
	ErrNotConnected   = errors.New("ecweather: station not resolved")
)

// alert group -> event type in the feed
var alertGroups = []struct {
	group     string
	eventType string
	english   string
	french    string
}{
	{"warnings", "warning", "Warnings", "Alertes"},
	{"watches", "watch", "Watches", "Veilles"},
	{"advisories", "advisory", "Advisories", "Avis"},
	{"statements", "statement", "Statements", "Bulletins"},
	{"endings", "ending", "Endings", "Terminaisons"},
}

type Options struct {
	Language    string
	Station     string
	Latitude    *float64
	Longitude   *float64
	BaseURL     string
	SiteListURL string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Report is the result of one update.
type Report struct {
	Conditions map[string]Record
	Alerts     map[string]Record
	Metadata   Record
}

type Client struct {
	opts Options

	mu      sync.Mutex
	station string // PR/s0000###
}

func NewClient(opts Options) (*Client, error) {
	if opts.Station != "" && !StationIdRegexp.MatchString(opts.Station) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStation, opts.Station)
	}
	if opts.Station == "" && (opts.Latitude == nil || opts.Longitude == nil) {
		return nil, ErrNoLocation
	}
	if opts.Language == "" {
		opts.Language = LANGUAGE_ENGLISH
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DEFAULT_BASE_URL
	}
	if opts.SiteListURL == "" {
		opts.SiteListURL = DEFAULT_SITE_LIST_URL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{opts: opts, station: opts.Station}, nil
}

// Station returns the resolved station id, "" before Resolve.
func (c *Client) Station() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.station
}

// Resolve picks the configured station or the one closest to the
// configured coordinates.
func (c *Client) Resolve(ctx context.Context) (string, error) {
	if station := c.Station(); station != "" {
		return station, nil
	}
	body, err := c.get(ctx, c.opts.SiteListURL)
	if err != nil {
		return "", err
	}
	defer body.Close()
	sites, err := ParseSiteList(body)
	if err != nil {
		return "", err
	}
	site, err := ClosestSite(sites, *c.opts.Latitude, *c.opts.Longitude)
	if err != nil {
		return "", err
	}
	c.opts.Logger.Info("ecweather: using closest station",
		zap.String("station", site.StationId()), zap.String("name", site.Name))

	c.mu.Lock()
	c.station = site.StationId()
	c.mu.Unlock()
	return site.StationId(), nil
}

// Update downloads and parses the city page of the resolved station.
func (c *Client) Update(ctx context.Context) (*Report, error) {
	station := c.Station()
	if station == "" {
		return nil, ErrNotConnected
	}
	body, err := c.get(ctx, c.cityPageURL(station))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var data siteData
	decoder := xml.NewDecoder(body)
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("ecweather: decoding city page: %w", err)
	}
	return c.report(station, &data), nil
}

func (c *Client) cityPageURL(station string) string {
	province, code, _ := strings.Cut(station, "/")
	suffix := "e"
	if c.opts.Language == LANGUAGE_FRENCH {
		suffix = "f"
	}
	return fmt.Sprintf("%s/%s/%s_%s.xml", strings.TrimSuffix(c.opts.BaseURL, "/"), province, code, suffix)
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ecweather: GET %s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

func (c *Client) report(station string, data *siteData) *Report {
	french := c.opts.Language == LANGUAGE_FRENCH
	cc := data.CurrentConditions

	conditions := map[string]Record{}
	add := func(sensorType, english, frenchLabel string, value any, unit string) {
		label := english
		if french {
			label = frenchLabel
		}
		conditions[sensorType] = Record{FIELD_LABEL: label, FIELD_VALUE: value, FIELD_UNIT: unit}
	}

	add("temperature", "Temperature", "Température", number(cc.Temperature.Value), cc.Temperature.Units)
	add("dewpoint", "Dew Point", "Point de rosée", number(cc.Dewpoint.Value), cc.Dewpoint.Units)
	add("wind_chill", "Wind Chill", "Refroidissement éolien", number(cc.WindChill.Value), cc.WindChill.Units)
	add("humidex", "Humidex", "Humidex", number(cc.Humidex.Value), cc.Humidex.Units)
	add("pressure", "Pressure", "Pression", number(cc.Pressure.Value), cc.Pressure.Units)
	add("tendency", "Tendency", "Tendance", text(cc.Pressure.Tendency), "")
	add("humidity", "Humidity", "Humidité", number(cc.RelativeHumidity.Value), cc.RelativeHumidity.Units)
	add("visibility", "Visibility", "Visibilité", number(cc.Visibility.Value), cc.Visibility.Units)
	add("condition", "Condition", "Condition", text(cc.Condition), "")
	add("wind_speed", "Wind Speed", "Vitesse du vent", number(cc.Wind.Speed.Value), cc.Wind.Speed.Units)
	add("wind_gust", "Wind Gust", "Rafale", number(cc.Wind.Gust.Value), cc.Wind.Gust.Units)
	add("wind_dir", "Wind Direction", "Direction du vent", text(cc.Wind.Direction), "")
	add("wind_bearing", "Wind Bearing", "Direction du vent", number(cc.Wind.Bearing.Value), cc.Wind.Bearing.Units)
	add("icon_code", "Icon Code", "Code icône", text(cc.IconCode), "")

	if len(data.Forecasts) > 0 {
		today := data.Forecasts[0]
		var high, low measure
		for _, t := range today.Temperatures {
			switch t.Class {
			case "high":
				high = t
			case "low":
				low = t
			}
		}
		add("high_temp", "High Temperature", "Haute température", number(high.Value), high.Units)
		add("low_temp", "Low Temperature", "Basse température", number(low.Value), low.Units)
		add("text_summary", "Forecast", "Prévision", text(today.TextSummary), "")
		add("pop", "Chance of Precipitation", "Probabilité d'averses", number(today.Pop.Value), today.Pop.Units)
	}

	alerts := map[string]Record{}
	for _, g := range alertGroups {
		items := []map[string]any{}
		for _, ev := range data.Warnings.Events {
			if ev.Type != g.eventType {
				continue
			}
			items = append(items, map[string]any{
				FIELD_TITLE: strings.TrimSpace(ev.Description),
				FIELD_DATE:  eventDate(ev),
			})
		}
		label := g.english
		if french {
			label = g.french
		}
		alerts[g.group] = Record{FIELD_LABEL: label, FIELD_VALUE: items}
	}

	metadata := Record{
		META_LOCATION: strings.TrimSpace(data.Location.Name.Text),
		META_STATION:  station,
	}
	if ts := observationTimestamp(cc.DateTimes); ts != "" {
		metadata[META_TIMESTAMP] = ts
	}

	return &Report{Conditions: conditions, Alerts: alerts, Metadata: metadata}
}

func eventDate(ev event) string {
	for _, dt := range ev.DateTimes {
		if dt.Zone != "UTC" {
			return strings.TrimSpace(dt.TextSummary)
		}
	}
	if len(ev.DateTimes) > 0 {
		return strings.TrimSpace(ev.DateTimes[0].TextSummary)
	}
	return ""
}

func observationTimestamp(dts []dateTime) string {
	for _, dt := range dts {
		if dt.Name == "observation" && dt.Zone == "UTC" {
			return strings.TrimSpace(dt.TimeStamp)
		}
	}
	return ""
}

// number returns nil for empty or non-numeric values.
func number(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return v
}

func text(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
