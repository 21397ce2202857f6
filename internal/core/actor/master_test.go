package actor

import (
	"errors"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/statesync2mqtt/internal/adapter/actor"
	"github.com/berfenger/statesync2mqtt/internal/config"
	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/mqtt"
	"github.com/berfenger/statesync2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func instancesOf(cfg config.Config) (weather, controller domain.IntegrationInstance) {
	w := cfg.Weather[0]
	c := cfg.Controllers[0]
	weather = domain.IntegrationInstance{Id: w.Id, Name: w.Name, Title: w.Title, Kind: domain.INTEGRATION_KIND_WEATHER}
	controller = domain.IntegrationInstance{Id: c.Id, Name: c.Name, Title: c.Title, Kind: domain.INTEGRATION_KIND_CONTROLLER}
	return
}

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	root := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	weather, controller := instancesOf(cfg)
	weatherClient := &fakeClient{snapshot: weatherSnapshot()}
	controllerClient := &fakeClient{connectErr: errUnreachable}
	sched := newMemoryScheduler()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg,
			[]RemoteIntegration{
				{Instance: weather, Client: weatherClient},
				{Instance: controller, Client: controllerClient},
			},
			IntegrationDeps{Scheduler: sched},
			func(es *eventstream.EventStream) *adactor.MQTTActor {
				return adactor.NewTestMQTTActor(&cfg, es, logger)
			},
			func(es *eventstream.EventStream) *adactor.RecorderActor {
				return adactor.NewRecorderActor(es, nil, 0, nil, logger)
			}, logger)
	})
	pid, err := root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	defer as.Shutdown()
	defer func() { _ = root.StopFuture(pid).Wait() }()

	time.Sleep(2 * time.Second)

	res, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy is true")

	// the reachable instance is set up on boot and polled on schedule
	assert.True(t, sched.scheduled(weather.Id))
	readings, err := askReadings(root, pid, weather.Name)
	require.NoError(t, err)
	assert.True(t, readings.Connected)
	assert.Len(t, readings.Readings, 3)

	// the unreachable one is retried with backoff
	assert.Eventually(t, func() bool {
		return controllerClient.connects.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.False(t, sched.scheduled(controller.Id))

	// unknown instances answer with an error
	_, err = askReadings(root, pid, "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownIntegration)

	// an unloaded instance stops retrying
	res, err = root.RequestFuture(pid, domain.UnloadIntegrationRequest{Name: controller.Name}, 5*time.Second).Result()
	require.NoError(t, err)
	unload, ok := res.(domain.UnloadIntegrationResponse)
	require.True(t, ok)
	assert.True(t, unload.Ok)

	res, err = root.RequestFuture(pid, domain.ListIntegrationsRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	list, ok := res.(domain.ListIntegrationsResponse)
	require.True(t, ok)
	require.Len(t, list.Integrations, 2)
	assert.Equal(t, weather.Name, list.Integrations[0].Instance.Name)
	assert.False(t, list.Integrations[0].Unloaded)
	assert.Equal(t, controller.Name, list.Integrations[1].Instance.Name)
	assert.True(t, list.Integrations[1].Unloaded)

	connects := controllerClient.connects.Load()
	time.Sleep(2 * cfg.Poll.SetupRetryMax())
	assert.Equal(t, connects, controllerClient.connects.Load(), "no retry after unload")

	// a refresh command polls immediately
	fetches := weatherClient.fetches.Load()
	root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{Integration: weather.Name, Command: mqtt.COMMAND_REFRESH}})
	assert.Eventually(t, func() bool {
		return weatherClient.fetches.Load() > fetches
	}, 2*time.Second, 20*time.Millisecond)

	// discovery announced the bridge and the weather entities
	mqttPID := actor.NewPID(as.Address(), pid.Id+"/"+domain.ACTOR_ID_MQTT)
	assert.Eventually(t, func() bool {
		res, err := root.RequestFuture(mqttPID, adactor.GetPublishedMessagesRequest{}, time.Second).Result()
		if err != nil {
			return false
		}
		sensors := 0
		for _, m := range res.(adactor.GetPublishedMessagesResponse).Messages {
			if strings.HasPrefix(m.Topic, cfg.MQTT.HADiscoveryTopic+"/sensor/") {
				sensors++
			}
		}
		return sensors == 3
	}, 3*time.Second, 50*time.Millisecond)
}

func askReadings(root *actor.RootContext, pid *actor.PID, name string) (domain.GetReadingsResponse, error) {
	res, err := root.RequestFuture(pid, domain.GetReadingsRequest{Name: name}, 2*time.Second).Result()
	if err != nil {
		return domain.GetReadingsResponse{}, err
	}
	resp, ok := res.(domain.GetReadingsResponse)
	if !ok {
		return resp, errors.New("unexpected response")
	}
	return resp, resp.GetResponseError()
}
