package actor

import (
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/statesync2mqtt/internal/adapter/actor"
	"github.com/berfenger/statesync2mqtt/internal/config"
	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/internal/core/service"
	"github.com/berfenger/statesync2mqtt/internal/mqtt"
	. "github.com/berfenger/statesync2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const healthCheckTimeout = 500 * time.Millisecond

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type RecorderActorProvider func(*eventstream.EventStream) *adactor.RecorderActor

// RemoteIntegration is a configured instance and the client it polls.
type RemoteIntegration struct {
	Instance domain.IntegrationInstance
	Client   port.RemoteClient
}

// IntegrationDeps are the host services shared by every integration.
type IntegrationDeps struct {
	Directory  port.DeviceDirectory
	Scheduler  port.PollScheduler
	Instrument port.PollInstrument
}

type MasterOfPuppetsActor struct {
	config config.Config
	states ActorWithStates
	stash  *Stash
	timers *scheduler.TimerScheduler

	currentHealthCheck    healthCheckResult
	eventStream           *eventstream.EventStream
	mqttActor             *actor.PID
	recorderActor         *actor.PID
	haDiscoveryActor      *actor.PID
	remotes               []RemoteIntegration
	deps                  IntegrationDeps
	integrations          map[string]*integrationChild
	mqttActorProvider     MQTTActorProvider
	recorderActorProvider RecorderActorProvider
	logger                *zap.Logger
}

type integrationChild struct {
	instance    domain.IntegrationInstance
	pid         *actor.PID
	unloaded    bool
	retryDelay  time.Duration
	cancelRetry scheduler.CancelFunc
}

// retrySetup is the timer message of a failed boot setup.
type retrySetup struct {
	Name string
}

type healthCheckResult struct {
	expected       int
	checksReceived int
	unhealthy      []string
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, remotes []RemoteIntegration, deps IntegrationDeps,
	mqttActorProvider MQTTActorProvider, recorderActorProvider RecorderActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                config,
		states:                NewActorWithStates(),
		stash:                 &Stash{},
		logger:                ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:           &eventstream.EventStream{},
		remotes:               remotes,
		deps:                  deps,
		integrations:          make(map[string]*integrationChild),
		mqttActorProvider:     mqttActorProvider,
		recorderActorProvider: recorderActorProvider,
	}
	act.states.Become(State("starting", act.StartingReceive))
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.states.Behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")
		state.timers = scheduler.NewTimerScheduler(ctx)

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Recorder child
		recorderActorPID, err := state.startRecorderActor(ctx)
		if err != nil {
			panic(err)
		}
		state.recorderActor = recorderActorPID

		// start HA Discovery before any integration registers entities
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		// start one child per integration instance and set it up
		for _, remote := range state.remotes {
			pid, err := state.startIntegrationActor(ctx, remote)
			if err != nil {
				panic(err)
			}
			state.integrations[remote.Instance.Name] = &integrationChild{
				instance:   remote.Instance,
				pid:        pid,
				retryDelay: state.config.Poll.SetupRetry(),
			}
			ctx.Request(pid, domain.SetupIntegrationRequest{Name: remote.Instance.Name})
		}

		state.states.Become(State("default", state.DefaultReceive))
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		state.requestHealth(ctx, state.recorderActor, domain.ACTOR_ID_RECORDER)
		if state.haDiscoveryActor != nil {
			state.requestHealth(ctx, state.haDiscoveryActor, domain.ACTOR_ID_HA_DISCOVERY)
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.states.BecomeStacked(State("healthcheck", state.HealthCheckReceive))
	case domain.SetupIntegrationRequest:
		child, ok := state.integrations[msg.Name]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.SetupIntegrationResponse{ActorResponseMixIn: unknownIntegration(msg.Name)})
			return
		}
		state.logger.Info("master@default setup", zap.String("instance", msg.Name))
		child.unloaded = false
		child.stopRetry()
		ctx.Forward(child.pid)
	case domain.SetupIntegrationResponse:
		// only boot setups and their retries reply to the master
		state.onBootSetup(ctx, msg)
	case retrySetup:
		child, ok := state.integrations[msg.Name]
		if !ok || child.unloaded {
			return
		}
		child.cancelRetry = nil
		state.logger.Info("master@default retrying setup", zap.String("instance", msg.Name), zap.Duration("after", child.retryDelay))
		ctx.Request(child.pid, domain.SetupIntegrationRequest{Name: msg.Name})
	case domain.UnloadIntegrationRequest:
		child, ok := state.integrations[msg.Name]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.UnloadIntegrationResponse{ActorResponseMixIn: unknownIntegration(msg.Name)})
			return
		}
		state.logger.Info("master@default unload", zap.String("instance", msg.Name))
		child.unloaded = true
		child.stopRetry()
		ctx.Forward(child.pid)
	case domain.GetReadingsRequest:
		child, ok := state.integrations[msg.Name]
		if !ok {
			ForRequest(msg).Respond(ctx, domain.GetReadingsResponse{ActorResponseMixIn: unknownIntegration(msg.Name)})
			return
		}
		ctx.Forward(child.pid)
	case domain.ListIntegrationsRequest:
		ForRequest(msg).Respond(ctx, domain.ListIntegrationsResponse{Integrations: state.listIntegrations()})
	case adactor.ParsedCommand:
		// redirect parsedCommand to integration
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.onCommand(ctx, *msg.Command)
		}
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.Id))
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.states.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.states.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	case domain.SetupIntegrationResponse:
		state.onBootSetup(ctx, msg)
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	state.currentHealthCheck.expected++
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, healthCheckTimeout), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

// onBootSetup retries failed setups the master started itself, doubling the
// delay up to the configured maximum.
func (state *MasterOfPuppetsActor) onBootSetup(ctx actor.Context, msg domain.SetupIntegrationResponse) {
	child, ok := state.integrations[msg.Instance.Name]
	if !ok {
		return
	}
	if msg.Ok {
		child.retryDelay = state.config.Poll.SetupRetry()
		return
	}
	if child.unloaded || child.cancelRetry != nil {
		return
	}
	delay := child.retryDelay
	state.logger.Warn("master@default setup failed, retrying",
		zap.String("instance", child.instance.Name), zap.Duration("in", delay), zap.Error(msg.GetResponseError()))
	child.cancelRetry = state.timers.RequestOnce(delay, ctx.Self(), retrySetup{Name: child.instance.Name})
	child.retryDelay = min(2*delay, state.config.Poll.SetupRetryMax())
}

func (state *MasterOfPuppetsActor) onCommand(ctx actor.Context, cmd mqtt.ParsedMQTTCommand) {
	child, ok := state.integrations[cmd.Integration]
	if !ok {
		state.logger.Warn("master@default command for unknown integration", zap.String("integration", cmd.Integration))
		return
	}
	switch cmd.Command {
	case mqtt.COMMAND_SETUP:
		child.unloaded = false
		child.stopRetry()
		ctx.Send(child.pid, domain.SetupIntegrationRequest{Name: cmd.Integration})
	case mqtt.COMMAND_UNLOAD:
		child.unloaded = true
		child.stopRetry()
		ctx.Send(child.pid, domain.UnloadIntegrationRequest{Name: cmd.Integration})
	case mqtt.COMMAND_REFRESH:
		ctx.Send(child.pid, domain.PollTick{})
	}
}

func (state *MasterOfPuppetsActor) listIntegrations() []domain.IntegrationStatus {
	out := make([]domain.IntegrationStatus, 0, len(state.remotes))
	for _, remote := range state.remotes {
		child := state.integrations[remote.Instance.Name]
		out = append(out, domain.IntegrationStatus{Instance: child.instance, Unloaded: child.unloaded})
	}
	return out
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *MasterOfPuppetsActor) startRecorderActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	recorderProps := actor.PropsFromProducer(func() actor.Actor {
		return state.recorderActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(recorderProps, domain.ACTOR_ID_RECORDER)
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startIntegrationActor(ctx actor.Context, remote RemoteIntegration) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	platforms := &PlatformStopper{
		Scheduler:   state.deps.Scheduler,
		EventStream: state.eventStream,
		Logger:      state.logger,
	}
	integration := service.NewIntegration(service.IntegrationOptions{
		Instance:       remote.Instance,
		Client:         remote.Client,
		Directory:      state.deps.Directory,
		Platforms:      platforms,
		Instrument:     state.deps.Instrument,
		ConnectTimeout: state.config.Poll.ConnectTimeout(),
		FetchTimeout:   state.config.Poll.FetchTimeout(),
		Logger:         state.logger,
	})

	integrationProps := actor.PropsFromProducer(func() actor.Actor {
		return NewIntegrationActor(IntegrationActorOptions{
			Integration:    integration,
			Scheduler:      state.deps.Scheduler,
			EventStream:    state.eventStream,
			Interval:       state.config.Poll.Interval(),
			ConnectTimeout: state.config.Poll.ConnectTimeout(),
			FetchTimeout:   state.config.Poll.FetchTimeout(),
			Logger:         state.logger,
		})
	}, actor.WithSupervisor(supervisor))
	return ctx.SpawnNamed(integrationProps, fmt.Sprintf("%s_%s", domain.ACTOR_ID_INTEGRATION, remote.Instance.Name))
}

func (child *integrationChild) stopRetry() {
	if child.cancelRetry != nil {
		child.cancelRetry()
		child.cancelRetry = nil
	}
}

func unknownIntegration(name string) domain.ActorResponseMixIn {
	return domain.ErrorResponse(fmt.Errorf("%w: %s", domain.ErrUnknownIntegration, name))
}

func (state *healthCheckResult) reset() {
	state.expected = 0
	state.checksReceived = 0
	state.unhealthy = nil
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.allReceived() && len(state.unhealthy) == 0
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if !resp.Healthy {
		resp.State = fmt.Sprintf("unhealthy: %v", state.unhealthy)
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
