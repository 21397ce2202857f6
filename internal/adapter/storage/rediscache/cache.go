// Package rediscache keeps the last known reading of every sensor in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"

	"github.com/redis/go-redis/v9"
)

const (
	SINK_NAME      = "redis"
	KEY_PREFIX     = "statesync:reading:"
	DEFAULT_EXPIRY = 24 * time.Hour
)

// CachedReading is the JSON value stored under each key.
type CachedReading struct {
	InstanceId  string            `json:"instance_id"`
	Instance    string            `json:"instance"`
	SensorType  string            `json:"sensor_type"`
	UniqueId    string            `json:"unique_id"`
	Name        string            `json:"name"`
	Value       any               `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	DeviceClass string            `json:"device_class,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Updated     *string           `json:"updated,omitempty"`
	At          time.Time         `json:"at"`
}

type Cache struct {
	client *redis.Client
	expiry time.Duration
}

// ensure interface compliance
var _ port.ReadingSink = (*Cache)(nil)

// Connect pings the server before returning.
func Connect(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}
	return &Cache{client: client, expiry: DEFAULT_EXPIRY}, nil
}

func Key(uniqueId string) string {
	return KEY_PREFIX + uniqueId
}

func FromEvent(event domain.ReadingPublishedEvent) CachedReading {
	identity := event.Published.Identity
	reading := event.Published.Reading
	return CachedReading{
		InstanceId:  event.Instance.Id,
		Instance:    event.Instance.Name,
		SensorType:  identity.SensorType,
		UniqueId:    identity.UniqueId,
		Name:        identity.DisplayName,
		Value:       reading.Value,
		Unit:        reading.Unit,
		DeviceClass: string(reading.DeviceClass),
		Attributes:  reading.Attributes,
		Updated:     reading.Updated,
		At:          event.At,
	}
}

func (c *Cache) Name() string {
	return SINK_NAME
}

// Write overwrites the last value; dead sensors expire.
func (c *Cache) Write(ctx context.Context, event domain.ReadingPublishedEvent) error {
	payload, err := json.Marshal(FromEvent(event))
	if err != nil {
		return err
	}
	key := Key(event.Published.Identity.UniqueId)
	if err := c.client.Set(ctx, key, payload, c.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Last returns the cached reading; ok is false on a cache miss.
func (c *Cache) Last(ctx context.Context, uniqueId string) (CachedReading, bool, error) {
	raw, err := c.client.Get(ctx, Key(uniqueId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedReading{}, false, nil
	}
	if err != nil {
		return CachedReading{}, false, err
	}
	var cached CachedReading
	if err := json.Unmarshal(raw, &cached); err != nil {
		return CachedReading{}, false, fmt.Errorf("decoding %s: %w", Key(uniqueId), err)
	}
	return cached, true, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
