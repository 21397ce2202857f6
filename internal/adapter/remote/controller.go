package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/pkg/sunspec_modbus"
)

// ControllerClient adapts a SunSpec Modbus controller. The modbus client has
// no context support, so calls run on a goroutine bounded by ctx.
type ControllerClient struct {
	reader sunspec_modbus.ControllerModbusReader
	points []sunspec_modbus.Point
	host   string
	port   uint
	mac    string

	// serializes reader I/O, including calls abandoned by their caller
	ioMu sync.Mutex

	mu        sync.Mutex
	connected bool
	metadata  domain.DeviceMetadata
}

func NewControllerClient(reader sunspec_modbus.ControllerModbusReader, points []sunspec_modbus.Point, host string, port uint, mac string) *ControllerClient {
	return &ControllerClient{
		reader: reader,
		points: points,
		host:   host,
		port:   port,
		mac:    mac,
	}
}

func (c *ControllerClient) Connect(ctx context.Context) error {
	info, err := withContext(ctx, &c.ioMu, func() (*sunspec_modbus.DeviceInfo, error) {
		if err := c.reader.Open(); err != nil {
			return nil, err
		}
		info, err := c.reader.GetInfo()
		if err != nil {
			_ = c.reader.Close()
			return nil, err
		}
		return info, nil
	}, func(*sunspec_modbus.DeviceInfo) {
		// connect timed out after the connection was opened
		_ = c.reader.Close()
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.metadata = domain.DeviceMetadata{
		Host:    c.host,
		Port:    c.port,
		Mac:     c.mac,
		Brand:   info.Manufacturer,
		Product: info.Model,
		Version: info.Version,
		Serial:  info.Serial,
	}
	return nil
}

func (c *ControllerClient) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, domain.ErrNotConnected
	}

	values, err := withContext(ctx, &c.ioMu, func() (*[]sunspec_modbus.PointValue, error) {
		v, err := c.reader.ReadPoints(c.points)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("controller read: %w", err)
	}

	conditions := make(map[string]domain.RawRecord, len(*values))
	for _, v := range *values {
		record := domain.RawRecord{
			domain.FIELD_LABEL: v.Point.Sensor,
			domain.FIELD_VALUE: v.Value,
		}
		if v.Point.Unit != "" {
			record[domain.FIELD_UNIT] = v.Point.Unit
		}
		if v.Point.DeviceClass != "" {
			record[domain.FIELD_DEVICE_CLASS] = v.Point.DeviceClass
		}
		conditions[v.Point.Sensor] = record
	}
	return &domain.Snapshot{Conditions: conditions}, nil
}

func (c *ControllerClient) Metadata() domain.DeviceMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

func (c *ControllerClient) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if !wasConnected {
		return nil
	}
	return c.reader.Close()
}

// withContext runs fn on a goroutine holding lock. When ctx ends first, a
// successful late result is handed to discard under the same lock.
func withContext[T any](ctx context.Context, lock sync.Locker, fn func() (*T, error), discard func(*T)) (*T, error) {
	type result struct {
		value *T
		err   error
	}
	done := make(chan result)
	abandoned := make(chan struct{})
	go func() {
		lock.Lock()
		defer lock.Unlock()
		v, err := fn()
		select {
		case done <- result{value: v, err: err}:
		case <-abandoned:
			if err == nil && v != nil && discard != nil {
				discard(v)
			}
		}
	}()
	select {
	case r := <-done:
		if r.err == nil && r.value == nil {
			return nil, errors.New("empty result")
		}
		return r.value, r.err
	case <-ctx.Done():
		close(abandoned)
		return nil, ctx.Err()
	}
}

// ensure interface compliance
var _ port.RemoteClient = (*ControllerClient)(nil)
