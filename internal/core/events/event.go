package events

import (
	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

const FLOAT_DECIMALS = 2

// PublishedReadingToUpdateEvents maps a reading to its state event and its
// attributes event.
func PublishedReadingToUpdateEvents(p domain.PublishedReading) []any {
	var events []any

	id := EntityId(p.Identity)
	mixin := domain.SensorUpdateEventMixIn{Id: id}

	switch v := p.Reading.Value.(type) {
	case nil:
		events = append(events, domain.NullSensorUpdateEvent{SensorUpdateEventMixIn: mixin})
	case float64:
		events = append(events, domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: mixin,
			Value:                  v,
			Decimals:               FLOAT_DECIMALS,
		})
	case string:
		events = append(events, domain.TextSensorUpdateEvent{SensorUpdateEventMixIn: mixin, Value: v})
	}

	attributes := make(map[string]any, len(p.Reading.Attributes))
	for k, v := range p.Reading.Attributes {
		attributes[k] = v
	}
	events = append(events, domain.AttributesUpdateEvent{SensorUpdateEventMixIn: mixin, Attributes: attributes})

	return events
}

// ReadingsToUpdateEvents maps the readings of one poll and flips the instance
// availability: stale readings keep their values but show as unavailable.
func ReadingsToUpdateEvents(instance domain.IntegrationInstance, readings []domain.PublishedReading) []any {
	var events []any

	available := true
	for _, p := range readings {
		if p.Reading.Stale {
			available = false
			continue
		}
		events = append(events, PublishedReadingToUpdateEvents(p)...)
	}
	events = append(events, AvailabilityEvent(instance, available))

	return events
}

func AvailabilityEvent(instance domain.IntegrationInstance, available bool) domain.AvailabilityUpdateEvent {
	return domain.AvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: instance.Id},
		Value:                  available,
	}
}
