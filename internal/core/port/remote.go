package port

import (
	"context"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
)

// RemoteClient fetches raw state from a device or web service.
type RemoteClient interface {
	// Connect performs the handshake. Implementations honour ctx deadlines.
	Connect(ctx context.Context) error
	// Fetch returns fresh record groups; partial data is allowed.
	Fetch(ctx context.Context) (*domain.Snapshot, error)
	// Metadata is only meaningful after a successful Connect.
	Metadata() domain.DeviceMetadata
	Close() error
}
