package actor

import (
	"testing"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testInstance = domain.IntegrationInstance{Id: "w-1", Name: "ottawa", Title: "Ottawa", Kind: domain.INTEGRATION_KIND_WEATHER}

type integrationFixture struct {
	system    *actor.ActorSystem
	props     *actor.Props
	pid       *actor.PID
	client    *fakeClient
	scheduler *memoryScheduler
	events    *eventRecorder
}

func spawnIntegration(t *testing.T, client *fakeClient) *integrationFixture {
	as := actor.NewActorSystem()
	es := &eventstream.EventStream{}
	sched := newMemoryScheduler()
	logger := zap.NewNop()

	integration := service.NewIntegration(service.IntegrationOptions{
		Instance:       testInstance,
		Client:         client,
		Platforms:      &PlatformStopper{Scheduler: sched, EventStream: es, Logger: logger},
		ConnectTimeout: time.Second,
		FetchTimeout:   time.Second,
		Logger:         logger,
	})
	recorder := recordEvents(es)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewIntegrationActor(IntegrationActorOptions{
			Integration:    integration,
			Scheduler:      sched,
			EventStream:    es,
			Interval:       time.Minute,
			ConnectTimeout: time.Second,
			FetchTimeout:   time.Second,
			Logger:         logger,
		})
	})
	pid := as.Root.Spawn(props)
	t.Cleanup(func() {
		_ = as.Root.StopFuture(pid).Wait()
		as.Shutdown()
	})
	return &integrationFixture{system: as, props: props, pid: pid, client: client, scheduler: sched, events: recorder}
}

func (f *integrationFixture) readings(t *testing.T) domain.GetReadingsResponse {
	res, err := f.system.Root.RequestFuture(f.pid, domain.GetReadingsRequest{Name: testInstance.Name}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetReadingsResponse)
	require.True(t, ok)
	return resp
}

func (f *integrationFixture) setup(t *testing.T) domain.SetupIntegrationResponse {
	res, err := f.system.Root.RequestFuture(f.pid, domain.SetupIntegrationRequest{Name: testInstance.Name}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.SetupIntegrationResponse)
	require.True(t, ok)
	return resp
}

func TestIntegrationActorLifecycle(t *testing.T) {

	f := spawnIntegration(t, &fakeClient{snapshot: weatherSnapshot()})

	resp := f.setup(t)
	require.True(t, resp.Ok)
	assert.Equal(t, testInstance.Name, resp.Instance.Name)
	assert.True(t, f.scheduler.scheduled(testInstance.Id))

	assert.Eventually(t, func() bool {
		return len(f.events.registrations()) == 1 && f.events.published() == 3
	}, 2*time.Second, 20*time.Millisecond)
	reg := f.events.registrations()[0]
	assert.Len(t, reg.Identities, 3)
	assert.Len(t, reg.Readings, 3)
	assert.Equal(t, []bool{true}, f.events.availability())

	readings := f.readings(t)
	assert.True(t, readings.Connected)
	assert.Equal(t, STATE_CONNECTED, readings.State)
	assert.Len(t, readings.Readings, 3)

	// a scheduled tick polls again and republishes
	require.True(t, f.scheduler.fire(testInstance.Id))
	assert.Eventually(t, func() bool {
		return f.client.fetches.Load() == 2 && f.events.published() == 6
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, f.events.registrations(), 1, "same entities are not announced twice")

	res, err := f.system.Root.RequestFuture(f.pid, domain.UnloadIntegrationRequest{Name: testInstance.Name}, 5*time.Second).Result()
	require.NoError(t, err)
	unload, ok := res.(domain.UnloadIntegrationResponse)
	require.True(t, ok)
	assert.True(t, unload.Ok)
	assert.False(t, f.scheduler.scheduled(testInstance.Id))

	readings = f.readings(t)
	assert.False(t, readings.Connected)
	assert.Equal(t, STATE_DISCONNECTED, readings.State)
	availability := f.events.availability()
	assert.False(t, availability[len(availability)-1], "entities go unavailable on unload")
}

func TestIntegrationActorSetupFailure(t *testing.T) {

	f := spawnIntegration(t, &fakeClient{connectErr: errUnreachable})

	resp := f.setup(t)
	assert.False(t, resp.Ok)
	assert.False(t, f.scheduler.scheduled(testInstance.Id))
	assert.Empty(t, f.events.registrations())

	readings := f.readings(t)
	assert.Equal(t, STATE_DISCONNECTED, readings.State)
	assert.Empty(t, readings.Readings)

	// ticks while disconnected are dropped
	f.system.Root.Send(f.pid, domain.PollTick{})
	assert.Equal(t, STATE_DISCONNECTED, f.readings(t).State)
	assert.Zero(t, f.client.fetches.Load())
}

func TestIntegrationActorCoalescesTicks(t *testing.T) {

	client := &fakeClient{snapshot: weatherSnapshot()}
	f := spawnIntegration(t, client)
	require.True(t, f.setup(t).Ok)

	release := make(chan struct{})
	client.setBlock(release)

	f.system.Root.Send(f.pid, domain.PollTick{})
	assert.Eventually(t, func() bool {
		return f.readings(t).State == STATE_POLLING
	}, 2*time.Second, 20*time.Millisecond)

	// overlapping ticks never start a second fetch
	f.system.Root.Send(f.pid, domain.PollTick{})
	f.system.Root.Send(f.pid, domain.PollTick{})
	assert.EqualValues(t, 2, client.fetches.Load())

	close(release)
	assert.Eventually(t, func() bool {
		return f.readings(t).State == STATE_CONNECTED
	}, 2*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 2, client.fetches.Load())
}

func TestIntegrationActorResumesConnectedInstance(t *testing.T) {

	client := &fakeClient{snapshot: weatherSnapshot()}
	f := spawnIntegration(t, client)
	require.True(t, f.setup(t).Ok)
	assert.Eventually(t, func() bool {
		return len(f.events.registrations()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	// a fresh incarnation over the same connected integration, as the
	// supervisor produces on restart
	pid := f.system.Root.Spawn(f.props)
	t.Cleanup(func() { _ = f.system.Root.StopFuture(pid).Wait() })

	res, err := f.system.Root.RequestFuture(pid, domain.GetReadingsRequest{Name: testInstance.Name}, 2*time.Second).Result()
	require.NoError(t, err)
	readings, ok := res.(domain.GetReadingsResponse)
	require.True(t, ok)
	assert.Equal(t, STATE_CONNECTED, readings.State)
	assert.True(t, readings.Connected)

	// ticks reach the new incarnation and poll
	require.True(t, f.scheduler.fire(testInstance.Id))
	assert.Eventually(t, func() bool {
		return client.fetches.Load() == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, f.events.registrations(), 1, "resuming does not announce again")
}
