package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	DEVICE_DOMAIN             = "statesync2mqtt"
	UNKNOWN_SW_VERSION        = "unknown"
	DEFAULT_CONNECT_TIMEOUT   = 10 * time.Second
	DEFAULT_UNLOAD_TIMEOUT    = 10 * time.Second
	deviceIdentifierSeparator = ":"
)

type LifecycleState int

const (
	Disconnected LifecycleState = iota
	Connecting
	Connected
)

func (s LifecycleState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Lifecycle owns the connection of one integration instance.
type Lifecycle struct {
	Instance       domain.IntegrationInstance
	Client         port.RemoteClient
	Directory      port.DeviceDirectory
	Platforms      port.PlatformHost
	ConnectTimeout time.Duration
	Logger         *zap.Logger

	mu         sync.Mutex
	state      LifecycleState
	connection *domain.ControllerConnection
	registered bool
}

func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connection returns a copy of the held connection, nil when disconnected.
func (l *Lifecycle) Connection() *domain.ControllerConnection {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connection == nil {
		return nil
	}
	c := *l.connection
	return &c
}

// Connect performs the handshake. Connectivity failures are reported as
// false and leave the lifecycle Disconnected.
func (l *Lifecycle) Connect(ctx context.Context) bool {
	l.mu.Lock()
	switch l.state {
	case Connected:
		l.mu.Unlock()
		return true
	case Connecting:
		l.mu.Unlock()
		return false
	}
	l.state = Connecting
	l.mu.Unlock()

	timeout := l.ConnectTimeout
	if timeout <= 0 {
		timeout = DEFAULT_CONNECT_TIMEOUT
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.Client.Connect(connectCtx); err != nil {
		l.Logger.Warn("lifecycle@connecting: handshake failed",
			zap.String("instance", l.Instance.Name), zap.Error(fmt.Errorf("%w: %w", domain.ErrConnectivity, err)))
		l.setState(Disconnected)
		return false
	}

	md := l.Client.Metadata()
	device := DeviceFromMetadata(l.Instance, md)

	l.mu.Lock()
	registered := l.registered
	l.mu.Unlock()
	if !registered && l.Directory != nil {
		if err := l.Directory.Register(connectCtx, l.Instance, device); err != nil {
			l.Logger.Warn("lifecycle@connecting: device registration failed",
				zap.String("instance", l.Instance.Name), zap.Error(err))
			if cerr := l.Client.Close(); cerr != nil {
				l.Logger.Debug("lifecycle@connecting: close failed", zap.Error(cerr))
			}
			l.setState(Disconnected)
			return false
		}
	}

	l.mu.Lock()
	l.registered = true
	l.connection = &domain.ControllerConnection{
		Host:     md.Host,
		Port:     md.Port,
		Mac:      md.Mac,
		Metadata: md,
	}
	l.state = Connected
	l.mu.Unlock()

	l.Logger.Info("lifecycle@connected: connected",
		zap.String("instance", l.Instance.Name), zap.String("host", md.Host), zap.Uint("port", md.Port))
	return true
}

// Release drops the connection without stopping platforms. Used when setup
// aborts before any platform was started.
func (l *Lifecycle) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Disconnected {
		return
	}
	l.closeLocked()
}

// Unload asks the host to stop the dependent platforms and releases the
// connection only once they stopped. Unloading while Disconnected succeeds.
func (l *Lifecycle) Unload(ctx context.Context) bool {
	l.mu.Lock()
	if l.state == Disconnected {
		l.mu.Unlock()
		return true
	}
	l.mu.Unlock()

	if l.Platforms != nil && !l.Platforms.StopPlatforms(ctx, l.Instance) {
		l.Logger.Warn("lifecycle@unload: platforms did not stop, keeping connection",
			zap.String("instance", l.Instance.Name))
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Disconnected {
		l.closeLocked()
	}
	l.Logger.Info("lifecycle@unload: disconnected", zap.String("instance", l.Instance.Name))
	return true
}

func (l *Lifecycle) closeLocked() {
	if err := l.Client.Close(); err != nil {
		// connection errors on teardown are not actionable
		l.Logger.Debug("lifecycle: close failed", zap.String("instance", l.Instance.Name), zap.Error(err))
	}
	l.connection = nil
	l.state = Disconnected
}

func (l *Lifecycle) setState(s LifecycleState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// DeviceFromMetadata builds the directory entry of an instance.
func DeviceFromMetadata(instance domain.IntegrationInstance, md domain.DeviceMetadata) domain.Device {
	identifier := instance.Id
	if md.Mac != "" {
		identifier = md.Mac
	}
	version := md.Version
	if version == "" {
		version = UNKNOWN_SW_VERSION
	}
	title := instance.Title
	if title == "" {
		title = instance.Name
	}
	name := title
	if md.Host != "" {
		name = fmt.Sprintf("%s(%s:%d)", title, md.Host, md.Port)
	}
	return domain.Device{
		Id:           instance.Id,
		Identifiers:  []string{DEVICE_DOMAIN + deviceIdentifierSeparator + identifier},
		Name:         name,
		Version:      version,
		Model:        md.Product,
		Manufacturer: md.Brand,
	}
}
