package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/pkg/ecweather"
)

const (
	WEATHER_BRAND   = "Environment Canada"
	WEATHER_PRODUCT = "City page weather"
)

// WeatherClient adapts the Environment Canada city page client.
type WeatherClient struct {
	client *ecweather.Client

	mu        sync.Mutex
	connected bool
	metadata  domain.DeviceMetadata
	// report downloaded by Connect, served to the next Fetch
	pending *ecweather.Report
}

func NewWeatherClient(client *ecweather.Client) *WeatherClient {
	return &WeatherClient{client: client}
}

// Connect resolves the station and performs a first fetch. The report is kept
// for the next Fetch so setup downloads the city page once.
func (w *WeatherClient) Connect(ctx context.Context) error {
	station, err := w.client.Resolve(ctx)
	if err != nil {
		return err
	}
	report, err := w.client.Update(ctx)
	if err != nil {
		return err
	}
	if _, ok := report.Metadata[ecweather.META_LOCATION]; !ok {
		return fmt.Errorf("weather update: no location for %s", station)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	w.pending = report
	w.metadata = domain.DeviceMetadata{
		Brand:   WEATHER_BRAND,
		Product: WEATHER_PRODUCT,
		Serial:  station,
	}
	return nil
}

func (w *WeatherClient) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	w.mu.Lock()
	connected := w.connected
	report := w.pending
	w.pending = nil
	w.mu.Unlock()
	if !connected {
		return nil, domain.ErrNotConnected
	}
	if report == nil {
		var err error
		if report, err = w.client.Update(ctx); err != nil {
			return nil, fmt.Errorf("weather update: %w", err)
		}
	}
	return &domain.Snapshot{
		Conditions: toRawRecords(report.Conditions),
		Alerts:     toRawRecords(report.Alerts),
		Metadata:   domain.RawRecord(report.Metadata),
	}, nil
}

func (w *WeatherClient) Metadata() domain.DeviceMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metadata
}

func (w *WeatherClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.pending = nil
	return nil
}

func toRawRecords(records map[string]ecweather.Record) map[string]domain.RawRecord {
	out := make(map[string]domain.RawRecord, len(records))
	for k, v := range records {
		out[k] = domain.RawRecord(v)
	}
	return out
}

// ensure interface compliance
var _ port.RemoteClient = (*WeatherClient)(nil)
