package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/config"
	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/events"
	"github.com/berfenger/statesync2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge entity once MQTT is up, then the
// entities of every integration that registers them on the event stream.
type HADiscoveryActor struct {
	config         *config.Config
	states         actorutil.ActorWithStates
	stash          *actorutil.Stash
	mqttActor      *actor.PID
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	bridgeDevice   domain.Device

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:       config,
		mqttActor:    mqttActor,
		eventStream:  eventStream,
		states:       actorutil.NewActorWithStates(),
		stash:        &actorutil.Stash{},
		bridgeDevice: events.BridgeDevice(config.MQTT.BaseTopic),
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.states.Become(actorutil.State("starting", act.StartingReceive))
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.states.Behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		// entities registered before MQTT is healthy wait in the stash
		state.subscribeEventStream(ctx)
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.states.Become(actorutil.State("waiting_healthy", state.WaitingHealthyReceive))
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: events.BridgeSensors(state.bridgeDevice),
		})
		state.states.Become(actorutil.State("default", state.DefaultReceive))
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.unsubscribeEventStream()
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RegisterEntitiesRequest:
		state.logger.Debug("hadiscovery@default RegisterEntitiesRequest",
			zap.String("instance", msg.Instance.Name), zap.Int("entities", len(msg.Identities)))
		sensors := state.integrationSensors(msg)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{Sensors: sensors})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   state.states.StateName(),
		})
	case *actor.Stopping:
		state.unsubscribeEventStream()
	default:
		state.logger.Debug("hadiscovery@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) integrationSensors(msg domain.RegisterEntitiesRequest) []domain.GenericSensor {
	device := msg.Device
	device.ViaDevice = state.bridgeDevice.Id
	readings := make(map[string]domain.NormalizedReading, len(msg.Readings))
	for _, p := range msg.Readings {
		readings[p.Identity.SensorType] = p.Reading
	}
	return events.ReadingSensors(msg.Instance, device, msg.Identities, readings)
}

func (state *HADiscoveryActor) subscribeEventStream(ctx actor.Context) {
	self := ctx.Self()
	system := ctx.ActorSystem()
	state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
		system.Root.Send(self, value)
	}, func(value any) bool {
		_, ok := value.(domain.RegisterEntitiesRequest)
		return ok
	})
}

func (state *HADiscoveryActor) unsubscribeEventStream() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
