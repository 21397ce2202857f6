package influxsink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInflux struct {
	mu     sync.Mutex
	writes []string
	query  []string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.query = append(f.query, r.URL.RawQuery)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func event(value any) domain.ReadingPublishedEvent {
	return domain.ReadingPublishedEvent{
		Instance: domain.IntegrationInstance{Id: "id-1", Name: "ups"},
		Published: domain.PublishedReading{
			Identity: domain.SensorIdentity{SensorType: "battery.charge", UniqueId: "CyberPower_CP1500_X_battery.charge"},
			Reading: domain.NormalizedReading{
				SensorType:  "battery.charge",
				Value:       value,
				Unit:        "%",
				DeviceClass: domain.DEVICE_CLASS_BATTERY,
			},
		},
		At: time.Unix(1686830400, 0),
	}
}

func TestWriteNumeric(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	sink, err := Connect(context.Background(), Options{URL: srv.URL, Token: "t", Org: "home", Bucket: "sensors"})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(context.Background(), event(87.0)))
	require.NoError(t, sink.Write(context.Background(), event("charging")))
	require.NoError(t, sink.Write(context.Background(), event(nil)))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.writes, 1)
	assert.Contains(t, fake.writes[0], MEASUREMENT+",")
	assert.Contains(t, fake.writes[0], "sensor_type=battery.charge")
	assert.Contains(t, fake.writes[0], "value=87")
	assert.Contains(t, fake.query[0], "bucket=sensors")
}

func TestConnectFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(context.Background(), Options{URL: srv.URL})
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestPointTags(t *testing.T) {
	p, ok := Point(event(12.5))
	require.True(t, ok)
	assert.Equal(t, MEASUREMENT, p.Name())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "ups", tags["instance"])
	assert.Equal(t, "%", tags["unit"])
	assert.Equal(t, "battery", tags["device_class"])

	_, ok = Point(event("text"))
	assert.False(t, ok)
}
