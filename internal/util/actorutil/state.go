package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorWithStates is a behavior whose current state has a name, so actors
// can report it in health responses.
type ActorWithStates struct {
	Behavior actor.Behavior
	current  []string
}

type ActorState interface {
	Name() string
	Receive(actor.Context)
}

func NewActorWithStates() ActorWithStates {
	return ActorWithStates{Behavior: actor.NewBehavior()}
}

func (s *ActorWithStates) Become(state ActorState) {
	s.current = []string{state.Name()}
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.current = append(s.current, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.current) > 1 {
		s.current = s.current[:len(s.current)-1]
	}
	s.Behavior.UnbecomeStacked()
}

func (s *ActorWithStates) StateName() string {
	if len(s.current) == 0 {
		return ""
	}
	return s.current[len(s.current)-1]
}

// namedState adapts a receive function to ActorState.
type namedState struct {
	name    string
	receive actor.ReceiveFunc
}

func (n namedState) Name() string {
	return n.name
}

func (n namedState) Receive(ctx actor.Context) {
	n.receive(ctx)
}

func State(name string, receive actor.ReceiveFunc) ActorState {
	return namedState{name: name, receive: receive}
}
