package port

import (
	"context"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

// DeviceDirectory is the host's device registry.
type DeviceDirectory interface {
	Register(ctx context.Context, instance domain.IntegrationInstance, device domain.Device) error
}

// PlatformHost stops the platforms (scheduled polls, published entities)
// that depend on an integration instance. It reports whether they stopped.
type PlatformHost interface {
	StopPlatforms(ctx context.Context, instance domain.IntegrationInstance) bool
}

// PollScheduler invokes tick for an instance at a fixed interval.
type PollScheduler interface {
	Schedule(instanceId string, interval time.Duration, tick func()) error
	Unschedule(instanceId string) error
}
