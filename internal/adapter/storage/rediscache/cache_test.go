package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() domain.ReadingPublishedEvent {
	updated := "2023-06-15T12:00:00"
	return domain.ReadingPublishedEvent{
		Instance: domain.IntegrationInstance{Id: "id-1", Name: "home"},
		Published: domain.PublishedReading{
			Identity: domain.SensorIdentity{SensorType: "temperature", UniqueId: "Ottawa-temperature", DisplayName: "Home temperature"},
			Reading: domain.NormalizedReading{
				SensorType:  "temperature",
				Value:       21.5,
				Unit:        "°C",
				DeviceClass: domain.DEVICE_CLASS_TEMPERATURE,
				Attributes:  map[string]string{"updated": updated},
				Updated:     &updated,
			},
		},
		At: time.Date(2023, 6, 15, 12, 0, 5, 0, time.UTC),
	}
}

func TestFromEvent(t *testing.T) {
	cached := FromEvent(testEvent())
	assert.Equal(t, "statesync:reading:Ottawa-temperature", Key(cached.UniqueId))
	assert.Equal(t, "home", cached.Instance)
	assert.Equal(t, 21.5, cached.Value)
	assert.Equal(t, "temperature", cached.DeviceClass)
}

// Runs against a live server when STATESYNC_TEST_REDIS_ADDR is set.
func TestCacheLive(t *testing.T) {
	addr := os.Getenv("STATESYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STATESYNC_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache, err := Connect(ctx, addr)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Write(ctx, testEvent()))
	cached, ok, err := cache.Last(ctx, "Ottawa-temperature")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 21.5, cached.Value)
	assert.True(t, cached.At.Equal(testEvent().At))

	_, ok, err = cache.Last(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
