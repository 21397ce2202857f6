package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	ATTR_ATTRIBUTION = "attribution"
	ATTR_UPDATED     = "updated"
	ATTR_LOCATION    = "location"
	ATTR_STATION     = "station"

	WEATHER_ATTRIBUTION = "Data provided by Environment Canada"
)

type IntegrationOptions struct {
	Instance       domain.IntegrationInstance
	Client         port.RemoteClient
	Directory      port.DeviceDirectory
	Platforms      port.PlatformHost
	Instrument     port.PollInstrument
	ConnectTimeout time.Duration
	FetchTimeout   time.Duration
	Logger         *zap.Logger
}

// Integration is the per-instance context: one connection lifecycle, one
// poll coordinator and one sensor registry. Nothing is shared between
// instances.
type Integration struct {
	instance    domain.IntegrationInstance
	lifecycle   *Lifecycle
	coordinator *Coordinator
	instrument  port.PollInstrument
	logger      *zap.Logger

	mu       sync.Mutex
	registry *Registry
}

func NewIntegration(opts IntegrationOptions) *Integration {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Integration{
		instance: opts.Instance,
		lifecycle: &Lifecycle{
			Instance:       opts.Instance,
			Client:         opts.Client,
			Directory:      opts.Directory,
			Platforms:      opts.Platforms,
			ConnectTimeout: opts.ConnectTimeout,
			Logger:         logger,
		},
		coordinator: NewCoordinator(opts.Client, opts.FetchTimeout),
		instrument:  opts.Instrument,
		logger:      logger,
	}
}

func (i *Integration) Instance() domain.IntegrationInstance {
	return i.instance
}

func (i *Integration) State() LifecycleState {
	return i.lifecycle.State()
}

func (i *Integration) Connection() *domain.ControllerConnection {
	return i.lifecycle.Connection()
}

// Device is the directory entry built from the connected client.
func (i *Integration) Device() domain.Device {
	md := domain.DeviceMetadata{}
	if c := i.lifecycle.Connection(); c != nil {
		md = c.Metadata
	}
	return DeviceFromMetadata(i.instance, md)
}

// Setup connects, polls once and registers every surfaced sensor type.
// When it returns false no sensor has been registered and the connection is
// released.
func (i *Integration) Setup(ctx context.Context) bool {
	if !i.lifecycle.Connect(ctx) {
		i.setConnected(false)
		return false
	}

	start := time.Now()
	result, err := i.coordinator.Poll(ctx)
	i.observePoll(time.Since(start), err)
	if err != nil {
		i.logger.Warn("integration@setup: first poll failed", zap.String("instance", i.instance.Name), zap.Error(err))
		i.lifecycle.Release()
		i.setConnected(false)
		return false
	}

	i.mu.Lock()
	if i.registry == nil {
		i.registry = i.newRegistry(result.Metadata)
	}
	registry := i.registry
	i.mu.Unlock()

	for _, sensorType := range sortedKeys(result.Records) {
		registry.Ensure(sensorType)
	}
	i.publishAll(registry, result)
	i.setConnected(true)
	return true
}

// Update polls and publishes one reading per registered sensor type. On poll
// failure the held readings are marked stale and returned with the error.
func (i *Integration) Update(ctx context.Context) ([]domain.PublishedReading, error) {
	i.mu.Lock()
	registry := i.registry
	i.mu.Unlock()
	if registry == nil || i.lifecycle.State() != Connected {
		return nil, domain.ErrNotConnected
	}

	start := time.Now()
	result, err := i.coordinator.Poll(ctx)
	if errors.Is(err, domain.ErrPollInFlight) {
		return nil, err
	}
	i.observePoll(time.Since(start), err)
	if err != nil {
		i.logger.Warn("integration@update: poll failed, readings are stale",
			zap.String("instance", i.instance.Name), zap.Error(err))
		return registry.MarkStale(), err
	}

	for _, sensorType := range sortedKeys(result.Records) {
		registry.Ensure(sensorType)
	}
	return i.publishAll(registry, result), nil
}

// Unload stops the platforms and releases the connection. It is idempotent.
func (i *Integration) Unload(ctx context.Context) bool {
	unloadCtx, cancel := context.WithTimeout(ctx, DEFAULT_UNLOAD_TIMEOUT)
	defer cancel()
	ok := i.lifecycle.Unload(unloadCtx)
	if ok {
		i.setConnected(false)
	}
	return ok
}

func (i *Integration) Retitle(title string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.instance.Title = title
	if i.registry != nil {
		i.registry.Retitle(title)
	}
}

func (i *Integration) Identities() []domain.SensorIdentity {
	i.mu.Lock()
	registry := i.registry
	i.mu.Unlock()
	if registry == nil {
		return nil
	}
	return registry.Identities()
}

// Readings returns the held readings ordered by sensor type.
func (i *Integration) Readings() []domain.PublishedReading {
	i.mu.Lock()
	registry := i.registry
	i.mu.Unlock()
	if registry == nil {
		return nil
	}
	held := registry.Readings()
	out := make([]domain.PublishedReading, 0, len(held))
	for _, sensorType := range sortedKeys(held) {
		out = append(out, held[sensorType])
	}
	return out
}

func (i *Integration) newRegistry(metadata domain.RawRecord) *Registry {
	if i.instance.Kind == domain.INTEGRATION_KIND_WEATHER {
		return NewRegistry(WeatherDiscriminator(metadata, i.instance.Id), WEATHER_ID_SEPARATOR, i.instance.Title)
	}
	md := domain.DeviceMetadata{}
	if c := i.lifecycle.Connection(); c != nil {
		md = c.Metadata
	}
	return NewRegistry(ControllerDiscriminator(md, i.instance.Id), CONTROLLER_ID_SEPARATOR, i.instance.Title)
}

func (i *Integration) publishAll(registry *Registry, result PollResult) []domain.PublishedReading {
	updated := i.updatedTimestamp(result.Metadata)
	sensorTypes := registry.SensorTypes()
	out := make([]domain.PublishedReading, 0, len(sensorTypes))
	for _, sensorType := range sensorTypes {
		// types missing from this poll publish a nil value
		reading, diags := NormalizeRecord(sensorType, result.Records[sensorType])
		i.logDiagnostics(diags)
		reading.Updated = updated
		i.decorate(&reading, result.Metadata)
		if published, ok := registry.Publish(sensorType, reading); ok {
			out = append(out, published)
		}
	}
	return out
}

func (i *Integration) updatedTimestamp(metadata domain.RawRecord) *string {
	raw, ok := metadata.String(domain.META_TIMESTAMP)
	if !ok {
		return nil
	}
	ts := FormatTimestamp(raw)
	if ts == nil {
		i.logger.Info("integration@update: malformed source timestamp",
			zap.String("instance", i.instance.Name), zap.String("timestamp", raw))
	}
	return ts
}

func (i *Integration) decorate(reading *domain.NormalizedReading, metadata domain.RawRecord) {
	if reading.Updated != nil {
		reading.Attributes[ATTR_UPDATED] = *reading.Updated
	}
	if i.instance.Kind != domain.INTEGRATION_KIND_WEATHER {
		return
	}
	reading.Attributes[ATTR_ATTRIBUTION] = WEATHER_ATTRIBUTION
	if location, ok := metadata.String(domain.META_LOCATION); ok {
		reading.Attributes[ATTR_LOCATION] = location
	}
	if station, ok := metadata.String(domain.META_STATION); ok {
		reading.Attributes[ATTR_STATION] = station
	}
}

func (i *Integration) logDiagnostics(diags []Diagnostic) {
	for _, d := range diags {
		i.logger.Info("integration@update: "+d.Message,
			zap.String("instance", i.instance.Name), zap.String("sensor", d.SensorType), zap.String("kind", d.Kind))
		if i.instrument != nil {
			i.instrument.ObserveDiagnostic(i.instance.Id, d.Kind)
		}
	}
}

func (i *Integration) observePoll(d time.Duration, err error) {
	if i.instrument != nil {
		i.instrument.ObservePoll(i.instance.Id, d, err)
	}
}

func (i *Integration) setConnected(connected bool) {
	if i.instrument != nil {
		i.instrument.SetConnected(i.instance.Id, connected)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
