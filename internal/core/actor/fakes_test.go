package actor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
)

var errUnreachable = errors.New("connection refused")

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	snapshot   *domain.Snapshot
	block      chan struct{}
	connects   atomic.Int32
	fetches    atomic.Int32
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.connects.Add(1)
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
	return c.snapshot, nil
}

func (c *fakeClient) Metadata() domain.DeviceMetadata {
	return domain.DeviceMetadata{Brand: "Environment Canada", Product: "City page weather", Serial: "ON/s0000430"}
}

func (c *fakeClient) Close() error {
	return nil
}

func (c *fakeClient) setBlock(block chan struct{}) {
	c.mu.Lock()
	c.block = block
	c.mu.Unlock()
}

// memoryScheduler only fires when a test asks it to.
type memoryScheduler struct {
	mu   sync.Mutex
	jobs map[string]func()
}

func newMemoryScheduler() *memoryScheduler {
	return &memoryScheduler{jobs: map[string]func(){}}
}

func (s *memoryScheduler) Schedule(instanceId string, interval time.Duration, tick func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[instanceId] = tick
	return nil
}

func (s *memoryScheduler) Unschedule(instanceId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, instanceId)
	return nil
}

func (s *memoryScheduler) scheduled(instanceId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[instanceId]
	return ok
}

func (s *memoryScheduler) fire(instanceId string) bool {
	s.mu.Lock()
	tick, ok := s.jobs[instanceId]
	s.mu.Unlock()
	if ok {
		tick()
	}
	return ok
}

// eventRecorder keeps everything published on an event stream.
type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func recordEvents(es *eventstream.EventStream) *eventRecorder {
	r := &eventRecorder{}
	es.Subscribe(func(evt any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, evt)
	})
	return r
}

func (r *eventRecorder) registrations() []domain.RegisterEntitiesRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RegisterEntitiesRequest
	for _, e := range r.events {
		if reg, ok := e.(domain.RegisterEntitiesRequest); ok {
			out = append(out, reg)
		}
	}
	return out
}

func (r *eventRecorder) availability() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, e := range r.events {
		if av, ok := e.(domain.AvailabilityUpdateEvent); ok {
			out = append(out, av.Value)
		}
	}
	return out
}

func (r *eventRecorder) published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if _, ok := e.(domain.ReadingPublishedEvent); ok {
			n++
		}
	}
	return n
}

func weatherSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Conditions: map[string]domain.RawRecord{
			"temperature": {"label": "Temperature", "value": 21.5, "unit": "C"},
			"humidity":    {"label": "Humidity", "value": 64.0, "unit": "%"},
			"condition":   {"label": "Condition", "value": "Mostly Cloudy"},
		},
		Metadata: domain.RawRecord{
			"timestamp": "20230615120000",
			"location":  "Ottawa (Kanata - Orléans)",
			"station":   "ON/s0000430",
		},
	}
}
