package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
	"github.com/berfenger/statesync2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const DEFAULT_SINK_WRITE_TIMEOUT = 5 * time.Second

// SinkInstrument counts sink writes.
type SinkInstrument interface {
	ObserveSinkWrite(sink string, err error)
}

// RecorderActor writes every published reading to the configured sinks.
// Each write runs in its own background task so a slow sink never blocks
// the event stream.
type RecorderActor struct {
	behavior       actor.Behavior
	sinks          []port.ReadingSink
	timeout        time.Duration
	instrument     SinkInstrument
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	inFlight       int
	written        int
	failed         int
	logger         *zap.Logger
}

type recordReading struct {
	Event domain.ReadingPublishedEvent
}

type sinkWriteResult struct {
	Sink  string
	Error error
}

type GetRecorderStatsRequest struct {
}

type GetRecorderStatsResponse struct {
	Sinks   []string
	Written int
	Failed  int
}

func NewRecorderActor(eventStream *eventstream.EventStream, sinks []port.ReadingSink, timeout time.Duration,
	instrument SinkInstrument, logger *zap.Logger) *RecorderActor {
	if timeout <= 0 {
		timeout = DEFAULT_SINK_WRITE_TIMEOUT
	}
	act := &RecorderActor{
		behavior:    actor.NewBehavior(),
		sinks:       sinks,
		timeout:     timeout,
		instrument:  instrument,
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_RECORDER, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *RecorderActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *RecorderActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("recorder@default started", zap.Int("sinks", len(state.sinks)))
		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.SubscribeWithPredicate(func(value any) {
			system.Root.Send(self, recordReading{Event: value.(domain.ReadingPublishedEvent)})
		}, func(value any) bool {
			_, ok := value.(domain.ReadingPublishedEvent)
			return ok
		})
	case *actor.Stopping:
		state.unsubscribe()
		for _, sink := range state.sinks {
			if err := sink.Close(); err != nil {
				state.logger.Warn("recorder@stopping close failed", zap.String("sink", sink.Name()), zap.Error(err))
			}
		}
	case *actor.Restarting:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_RECORDER,
			Healthy: true,
			State:   fmt.Sprintf("in_flight=%d", state.inFlight),
		})
	case recordReading:
		for _, sink := range state.sinks {
			state.write(ctx, sink, msg.Event)
		}
	case sinkWriteResult:
		state.inFlight--
		if state.instrument != nil {
			state.instrument.ObserveSinkWrite(msg.Sink, msg.Error)
		}
		if msg.Error != nil {
			state.failed++
			state.logger.Warn("recorder@default write failed", zap.String("sink", msg.Sink), zap.Error(msg.Error))
		} else {
			state.written++
		}
	case GetRecorderStatsRequest:
		names := make([]string, 0, len(state.sinks))
		for _, sink := range state.sinks {
			names = append(names, sink.Name())
		}
		ctx.Respond(GetRecorderStatsResponse{Sinks: names, Written: state.written, Failed: state.failed})
	default:
		state.logger.Debug("recorder@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *RecorderActor) write(ctx actor.Context, sink port.ReadingSink, event domain.ReadingPublishedEvent) {
	state.inFlight++
	name := sink.Name()
	timeout := state.timeout
	actorutil.NewBackgroundTask(ctx, func() (*sinkWriteResult, error) {
		writeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return &sinkWriteResult{Sink: name, Error: sink.Write(writeCtx, event)}, nil
	}).WithTimeout(timeout).Recover(func(err error) sinkWriteResult {
		return sinkWriteResult{Sink: name, Error: err}
	}).PipeTo(ctx.Self())
}

func (state *RecorderActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
