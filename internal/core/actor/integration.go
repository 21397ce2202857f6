package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/events"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/internal/core/service"
	"github.com/berfenger/statesync2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	STATE_DISCONNECTED = "disconnected"
	STATE_SETTING_UP   = "setting_up"
	STATE_CONNECTED    = "connected"
	STATE_POLLING      = "polling"
	STATE_UNLOADING    = "unloading"

	taskTimeoutMargin = time.Second
)

// IntegrationActor confines one integration instance to a single logical
// task: setup, polls and unload never overlap.
type IntegrationActor struct {
	states      actorutil.ActorWithStates
	stash       *actorutil.Stash
	integration *service.Integration
	scheduler   port.PollScheduler
	eventStream *eventstream.EventStream
	interval    time.Duration
	setupTO     time.Duration
	pollTO      time.Duration
	announced   int
	logger      *zap.Logger
}

type IntegrationActorOptions struct {
	Integration    *service.Integration
	Scheduler      port.PollScheduler
	EventStream    *eventstream.EventStream
	Interval       time.Duration
	ConnectTimeout time.Duration
	FetchTimeout   time.Duration
	Logger         *zap.Logger
}

type setupResult struct {
	Ok      bool
	ReplyTo *actor.PID
	Error   error
}

type pollResult struct {
	Readings []domain.PublishedReading
	Error    error
}

type unloadResult struct {
	Ok      bool
	ReplyTo *actor.PID
}

func NewIntegrationActor(opts IntegrationActorOptions) *IntegrationActor {
	logger := actorutil.ActorLogger(domain.ACTOR_ID_INTEGRATION, opts.Logger).
		With(zap.String("instance", opts.Integration.Instance().Name))
	act := &IntegrationActor{
		states:      actorutil.NewActorWithStates(),
		stash:       &actorutil.Stash{},
		integration: opts.Integration,
		scheduler:   opts.Scheduler,
		eventStream: opts.EventStream,
		interval:    opts.Interval,
		setupTO:     opts.ConnectTimeout + opts.FetchTimeout + taskTimeoutMargin,
		pollTO:      opts.FetchTimeout + taskTimeoutMargin,
		logger:      logger,
	}
	act.states.Become(actorutil.State(STATE_DISCONNECTED, act.DisconnectedReceive))
	return act
}

func (state *IntegrationActor) Receive(context actor.Context) {
	state.states.Behavior.Receive(context)
}

func (state *IntegrationActor) instance() domain.IntegrationInstance {
	return state.integration.Instance()
}

// commonReceive answers the requests every state serves.
func (state *IntegrationActor) commonReceive(ctx actor.Context) bool {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.instance().Name,
			Healthy: true,
			State:   state.states.StateName(),
		})
	case domain.GetReadingsRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetReadingsResponse{
			Instance:  state.instance(),
			State:     state.states.StateName(),
			Readings:  state.integration.Readings(),
			Connected: state.integration.State() == service.Connected,
		})
	case *actor.Stopping:
		state.unschedule()
	default:
		return false
	}
	return true
}

func (state *IntegrationActor) DisconnectedReceive(ctx actor.Context) {
	if state.commonReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("integration@disconnected started")
		if state.integration.State() == service.Connected {
			// restarted by the supervisor over a live connection
			state.resume(ctx)
		}
	case setupResult:
		// setup finished across a restart
		state.SettingUpReceive(ctx)
	case domain.SetupIntegrationRequest:
		state.logger.Debug("integration@disconnected SetupIntegrationRequest")
		state.setup(ctx, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.UnloadIntegrationRequest:
		// nothing owned, unload is a no-op
		actorutil.ForRequest(msg).Respond(ctx, domain.UnloadIntegrationResponse{Instance: state.instance(), Ok: true})
	case domain.PollTick:
		state.logger.Debug("integration@disconnected tick dropped")
	default:
		state.logger.Debug("integration@disconnected ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *IntegrationActor) SettingUpReceive(ctx actor.Context) {
	if state.commonReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case setupResult:
		state.logger.Debug("integration@setting_up setupResult", zap.Bool("ok", msg.Ok))
		if msg.Ok && state.integration.State() == service.Connected {
			state.onConnected(ctx)
			state.states.Become(actorutil.State(STATE_CONNECTED, state.ConnectedReceive))
		} else {
			if msg.Error != nil {
				state.logger.Warn("integration@setting_up setup failed", zap.Error(msg.Error))
			}
			state.eventStream.Publish(events.AvailabilityEvent(state.instance(), false))
			state.states.Become(actorutil.State(STATE_DISCONNECTED, state.DisconnectedReceive))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.SetupIntegrationResponse{
				ActorResponseMixIn: domain.ErrorResponse(msg.Error),
				Instance:           state.instance(),
				Ok:                 msg.Ok,
			})
		}
		state.stash.UnstashAll(ctx)
	case domain.PollTick:
		// no registry yet
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *IntegrationActor) ConnectedReceive(ctx actor.Context) {
	if state.commonReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.SetupIntegrationRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.SetupIntegrationResponse{Instance: state.instance(), Ok: true})
	case domain.PollTick:
		state.logger.Debug("integration@connected tick")
		state.poll(ctx)
		state.states.BecomeStacked(actorutil.State(STATE_POLLING, state.PollingReceive))
	case domain.UnloadIntegrationRequest:
		state.logger.Debug("integration@connected UnloadIntegrationRequest")
		state.unload(ctx, actorutil.ForRequest(msg).ReplyTo(ctx))
		state.states.Become(actorutil.State(STATE_UNLOADING, state.UnloadingReceive))
	default:
		state.logger.Debug("integration@connected ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *IntegrationActor) PollingReceive(ctx actor.Context) {
	if state.commonReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case pollResult:
		state.onPollResult(msg)
		state.states.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.PollTick:
		// overlapping ticks are coalesced, never queued
		state.logger.Debug("integration@polling tick coalesced")
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *IntegrationActor) UnloadingReceive(ctx actor.Context) {
	if state.commonReceive(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case unloadResult:
		state.logger.Debug("integration@unloading unloadResult", zap.Bool("ok", msg.Ok))
		if msg.Ok {
			state.announced = 0
			state.states.Become(actorutil.State(STATE_DISCONNECTED, state.DisconnectedReceive))
		} else {
			state.states.Become(actorutil.State(STATE_CONNECTED, state.ConnectedReceive))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.UnloadIntegrationResponse{Instance: state.instance(), Ok: msg.Ok})
		}
		state.stash.UnstashAll(ctx)
	case domain.PollTick:
		// platforms are stopping
	default:
		state.stash.Stash(ctx, msg)
	}
}

func (state *IntegrationActor) setup(ctx actor.Context, replyTo *actor.PID) {
	integration := state.integration
	actorutil.NewBackgroundTask(ctx, func() (*setupResult, error) {
		return &setupResult{Ok: integration.Setup(context.Background()), ReplyTo: replyTo}, nil
	}).WithTimeout(state.setupTO).Recover(func(err error) setupResult {
		return setupResult{Ok: false, ReplyTo: replyTo, Error: err}
	}).PipeTo(ctx.Self())
	state.states.Become(actorutil.State(STATE_SETTING_UP, state.SettingUpReceive))
}

func (state *IntegrationActor) poll(ctx actor.Context) {
	integration := state.integration
	actorutil.NewBackgroundTask(ctx, func() (*pollResult, error) {
		readings, err := integration.Update(context.Background())
		return &pollResult{Readings: readings, Error: err}, nil
	}).WithTimeout(state.pollTO).Recover(func(err error) pollResult {
		return pollResult{Error: err}
	}).PipeTo(ctx.Self())
}

func (state *IntegrationActor) unload(ctx actor.Context, replyTo *actor.PID) {
	integration := state.integration
	actorutil.NewBackgroundTask(ctx, func() (*unloadResult, error) {
		return &unloadResult{Ok: integration.Unload(context.Background()), ReplyTo: replyTo}, nil
	}).WithTimeout(service.DEFAULT_UNLOAD_TIMEOUT + taskTimeoutMargin).Recover(func(err error) unloadResult {
		return unloadResult{Ok: false, ReplyTo: replyTo}
	}).PipeTo(ctx.Self())
}

func (state *IntegrationActor) onConnected(ctx actor.Context) {
	state.logger.Info("integration@connected", zap.String("device", state.integration.Device().Name))
	readings := state.integration.Readings()
	state.announce()
	state.publish(readings)
	state.schedulePolls(ctx)
}

// resume picks up an instance that is already connected. Its entities were
// announced by the previous incarnation.
func (state *IntegrationActor) resume(ctx actor.Context) {
	state.logger.Info("integration@disconnected resuming connected instance")
	state.announced = len(state.integration.Identities())
	state.schedulePolls(ctx)
	state.states.Become(actorutil.State(STATE_CONNECTED, state.ConnectedReceive))
}

func (state *IntegrationActor) schedulePolls(ctx actor.Context) {
	self := ctx.Self()
	system := ctx.ActorSystem()
	if err := state.scheduler.Schedule(state.instance().Id, state.interval, func() {
		system.Root.Send(self, domain.PollTick{})
	}); err != nil {
		state.logger.Error("integration@connected cannot schedule polls", zap.Error(err))
	}
}

func (state *IntegrationActor) onPollResult(msg pollResult) {
	switch {
	case msg.Error == nil:
		// new sensor types may appear on any poll
		if len(state.integration.Identities()) != state.announced {
			state.announce()
		}
		state.publish(msg.Readings)
	case errors.Is(msg.Error, domain.ErrPollInFlight), errors.Is(msg.Error, domain.ErrNotConnected):
		state.logger.Debug("integration@polling skipped", zap.Error(msg.Error))
	case len(msg.Readings) > 0:
		state.logger.Warn("integration@polling poll failed", zap.Error(msg.Error))
		state.publish(msg.Readings)
	default:
		// task timeout: the registry is untouched, only flag unavailable
		state.logger.Warn("integration@polling poll failed", zap.Error(msg.Error))
		state.eventStream.Publish(events.AvailabilityEvent(state.instance(), false))
	}
}

func (state *IntegrationActor) announce() {
	identities := state.integration.Identities()
	state.announced = len(identities)
	state.eventStream.Publish(domain.RegisterEntitiesRequest{
		Instance:   state.instance(),
		Device:     state.integration.Device(),
		Identities: identities,
		Readings:   state.integration.Readings(),
	})
}

func (state *IntegrationActor) publish(readings []domain.PublishedReading) {
	instance := state.instance()
	for _, ev := range events.ReadingsToUpdateEvents(instance, readings) {
		state.eventStream.Publish(ev)
	}
	now := time.Now()
	for _, p := range readings {
		if p.Reading.Stale {
			continue
		}
		state.eventStream.Publish(domain.ReadingPublishedEvent{Instance: instance, Published: p, At: now})
	}
}

func (state *IntegrationActor) unschedule() {
	if err := state.scheduler.Unschedule(state.instance().Id); err != nil {
		state.logger.Warn("integration: unschedule failed", zap.Error(err))
	}
}

// PlatformStopper stops what depends on an integration instance: its poll
// job and its entities, which go unavailable.
type PlatformStopper struct {
	Scheduler   port.PollScheduler
	EventStream *eventstream.EventStream
	Logger      *zap.Logger
}

// ensure interface compliance
var _ port.PlatformHost = (*PlatformStopper)(nil)

func (p *PlatformStopper) StopPlatforms(_ context.Context, instance domain.IntegrationInstance) bool {
	if err := p.Scheduler.Unschedule(instance.Id); err != nil {
		p.Logger.Warn("platforms: poll job did not stop", zap.String("instance", instance.Name), zap.Error(err))
		return false
	}
	p.EventStream.Publish(events.AvailabilityEvent(instance, false))
	return true
}
