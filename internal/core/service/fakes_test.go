package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

var errUnreachable = errors.New("connection refused")

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	fetchErr   error
	snapshot   *domain.Snapshot
	metadata   domain.DeviceMetadata
	// block makes Fetch wait until release is closed or ctx ends
	block   chan struct{}
	fetches atomic.Int32
	closes  atomic.Int32
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectErr
}

func (c *fakeClient) Fetch(ctx context.Context) (*domain.Snapshot, error) {
	c.fetches.Add(1)
	c.mu.Lock()
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.snapshot, nil
}

func (c *fakeClient) Metadata() domain.DeviceMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

func (c *fakeClient) Close() error {
	c.closes.Add(1)
	return nil
}

func (c *fakeClient) setFetchErr(err error) {
	c.mu.Lock()
	c.fetchErr = err
	c.mu.Unlock()
}

func (c *fakeClient) setSnapshot(s *domain.Snapshot) {
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu      sync.Mutex
	devices []domain.Device
}

func (d *fakeDirectory) Register(ctx context.Context, instance domain.IntegrationInstance, device domain.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = append(d.devices, device)
	return nil
}

func (d *fakeDirectory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.devices)
}

type fakePlatforms struct {
	stop  atomic.Bool
	calls atomic.Int32
}

func (p *fakePlatforms) StopPlatforms(ctx context.Context, instance domain.IntegrationInstance) bool {
	p.calls.Add(1)
	return p.stop.Load()
}

type fakeInstrument struct {
	mu          sync.Mutex
	polls       int
	failures    int
	diagnostics map[string]int
	connected   bool
}

func (f *fakeInstrument) ObservePoll(instanceId string, duration time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if err != nil {
		f.failures++
	}
}

func (f *fakeInstrument) ObserveDiagnostic(instanceId, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diagnostics == nil {
		f.diagnostics = map[string]int{}
	}
	f.diagnostics[kind]++
}

func (f *fakeInstrument) SetConnected(instanceId string, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func weatherSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Conditions: map[string]domain.RawRecord{
			"temperature": {"label": "Temperature", "value": 21.5, "unit": "C"},
			"tendency":    {"label": "Tendency", "value": "rising"},
			"warnings":    {"label": "Warnings", "value": "not an alert"},
		},
		Alerts: map[string]domain.RawRecord{
			"warnings": {"label": "Warnings", "value": []domain.RawRecord{
				{"title": "Storm", "date": "d1"},
				{"title": "Wind", "date": "d2"},
			}},
		},
		Metadata: domain.RawRecord{
			"timestamp": "20230615120000",
			"location":  "Ottawa (Kanata - Orléans)",
			"station":   "ON/s0000430",
		},
	}
}
