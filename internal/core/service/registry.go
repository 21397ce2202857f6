package service

import (
	"slices"
	"sync"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

const (
	WEATHER_ID_SEPARATOR    = "-"
	CONTROLLER_ID_SEPARATOR = "_"
)

// Registry maps sensor types to stable identities and holds the last
// published reading of each one.
type Registry struct {
	discriminator string
	separator     string

	mu         sync.RWMutex
	title      string
	identities map[string]domain.SensorIdentity
	order      []string
	readings   map[string]domain.NormalizedReading
}

func NewRegistry(discriminator, separator, title string) *Registry {
	return &Registry{
		discriminator: discriminator,
		separator:     separator,
		title:         title,
		identities:    map[string]domain.SensorIdentity{},
		readings:      map[string]domain.NormalizedReading{},
	}
}

// Ensure registers sensorType once. Later calls return the same identity.
func (r *Registry) Ensure(sensorType string) domain.SensorIdentity {
	r.mu.RLock()
	id, ok := r.identities[sensorType]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identities[sensorType]; ok {
		return id
	}
	id = domain.SensorIdentity{
		SensorType:  sensorType,
		UniqueId:    r.discriminator + r.separator + sensorType,
		DisplayName: displayName(r.title, sensorType),
	}
	r.identities[sensorType] = id
	r.order = append(r.order, sensorType)
	return id
}

// Publish replaces the reading of sensorType. The sensor must be ensured.
func (r *Registry) Publish(sensorType string, reading domain.NormalizedReading) (domain.PublishedReading, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identities[sensorType]
	if !ok {
		return domain.PublishedReading{}, false
	}
	r.readings[sensorType] = reading
	return domain.PublishedReading{Identity: id, Reading: reading}, true
}

// MarkStale flags every held reading stale and returns them.
func (r *Registry) MarkStale() []domain.PublishedReading {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PublishedReading, 0, len(r.readings))
	for _, sensorType := range r.order {
		reading, ok := r.readings[sensorType]
		if !ok {
			continue
		}
		reading.Stale = true
		r.readings[sensorType] = reading
		out = append(out, domain.PublishedReading{Identity: r.identities[sensorType], Reading: reading})
	}
	return out
}

// Retitle changes display names. Unique ids are untouched.
func (r *Registry) Retitle(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.title = title
	for sensorType, id := range r.identities {
		id.DisplayName = displayName(title, sensorType)
		r.identities[sensorType] = id
	}
}

// SensorTypes returns the registered sensor types in registration order.
func (r *Registry) SensorTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) Identities() []domain.SensorIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SensorIdentity, 0, len(r.order))
	for _, sensorType := range r.order {
		out = append(out, r.identities[sensorType])
	}
	return out
}

func (r *Registry) Readings() map[string]domain.PublishedReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.PublishedReading, len(r.readings))
	for sensorType, reading := range r.readings {
		out[sensorType] = domain.PublishedReading{Identity: r.identities[sensorType], Reading: reading}
	}
	return out
}

func displayName(title, sensorType string) string {
	if title == "" {
		return sensorType
	}
	return title + " " + sensorType
}

// WeatherDiscriminator keys weather sensors by the reported location.
func WeatherDiscriminator(metadata domain.RawRecord, fallback string) string {
	if location, ok := metadata.String(domain.META_LOCATION); ok && location != "" {
		return location
	}
	return fallback
}

// ControllerDiscriminator keys controller sensors by manufacturer, model and
// serial when the device reports a serial, else by the instance id.
func ControllerDiscriminator(md domain.DeviceMetadata, instanceId string) string {
	if md.Serial == "" {
		return instanceId
	}
	return md.Brand + CONTROLLER_ID_SEPARATOR + md.Product + CONTROLLER_ID_SEPARATOR + md.Serial
}
