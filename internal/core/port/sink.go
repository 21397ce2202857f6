package port

import (
	"context"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

// ReadingSink persists published readings (state cache, history stores).
type ReadingSink interface {
	Name() string
	Write(ctx context.Context, event domain.ReadingPublishedEvent) error
	Close() error
}

// PollInstrument records poll outcomes.
type PollInstrument interface {
	ObservePoll(instanceId string, duration time.Duration, err error)
	ObserveDiagnostic(instanceId, kind string)
	SetConnected(instanceId string, connected bool)
}
