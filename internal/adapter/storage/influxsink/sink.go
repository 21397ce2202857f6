// Package influxsink writes numeric readings to InfluxDB v2.
package influxsink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	SINK_NAME   = "influxdb"
	MEASUREMENT = "sensor_readings"

	pingTimeout = 5 * time.Second
)

var ErrConnectionFailed = errors.New("influxdb connection failed")

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Sink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// ensure interface compliance
var _ port.ReadingSink = (*Sink)(nil)

// Connect verifies the server answers a ping.
func Connect(ctx context.Context, opts Options) (*Sink, error) {
	client := influxdb2.NewClient(opts.URL, opts.Token)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}
	return &Sink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(opts.Org, opts.Bucket),
	}, nil
}

// Point maps a reading to a point. Only numeric readings have one.
func Point(event domain.ReadingPublishedEvent) (*write.Point, bool) {
	value, ok := event.Published.Reading.Value.(float64)
	if !ok {
		return nil, false
	}
	tags := map[string]string{
		"instance":    event.Instance.Name,
		"sensor_type": event.Published.Identity.SensorType,
		"unique_id":   event.Published.Identity.UniqueId,
	}
	if unit := event.Published.Reading.Unit; unit != "" {
		tags["unit"] = unit
	}
	if dc := event.Published.Reading.DeviceClass; dc != domain.DEVICE_CLASS_NONE {
		tags["device_class"] = string(dc)
	}
	return write.NewPoint(MEASUREMENT, tags, map[string]any{"value": value}, event.At), true
}

func (s *Sink) Name() string {
	return SINK_NAME
}

// Write skips text and absent values.
func (s *Sink) Write(ctx context.Context, event domain.ReadingPublishedEvent) error {
	point, ok := Point(event)
	if !ok {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.client.Close()
	return nil
}
