// Package pagestate models the per (page, language) translation lifecycle.
//
// A translated page is in exactly one of three states: machine, reviewed, or
// outdated. The bot only ever keeps machine pages fresh; once a human marks a
// page reviewed the bot is locked out of its content and may only flag it
// outdated when the source moves on.
package pagestate

import "fmt"

// State is the translation lifecycle state of a (page, language) pair.
type State string

const (
	// StateMachine marks content produced and maintained by the bot.
	StateMachine State = "machine"
	// StateReviewed marks content a human editor has signed off on.
	StateReviewed State = "reviewed"
	// StateOutdated marks reviewed content whose source page has since changed.
	StateOutdated State = "outdated"
)

// Event is a lifecycle trigger applied to a State.
type Event string

const (
	// EventTranslated fires when the bot publishes a QA-passed translation.
	EventTranslated Event = "translated"
	// EventSourceAdvanced fires when the source page revision moves past the
	// revision the translation was produced from.
	EventSourceAdvanced Event = "source_advanced"
	// EventHumanReviewed fires when an external actor marks the page reviewed.
	// The pipeline never emits this event; Apply rejects it for ActorBot.
	EventHumanReviewed Event = "human_reviewed"
)

// Actor identifies who is driving a transition.
type Actor string

const (
	ActorBot   Actor = "bot"
	ActorHuman Actor = "human"
)

// Default is the state assumed for a pair that has never been recorded.
const Default = StateMachine

// RejectedError reports a transition the state machine does not permit.
type RejectedError struct {
	From  State
	Event Event
	Actor Actor
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("pagestate: %s rejected in state %s (actor %s)", e.Event, e.From, e.Actor)
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateMachine, StateReviewed, StateOutdated:
		return true
	}
	return false
}

// AllowsAutomatedWrite reports whether the pipeline may write translated
// content for a pair in this state. This is the state lock: reviewed and
// outdated pages accept metadata updates only.
func (s State) AllowsAutomatedWrite() bool {
	return s == StateMachine
}

// Parse converts a stored string into a State, falling back to Default for
// unknown or empty values.
func Parse(value string) State {
	s := State(value)
	if !s.Valid() {
		return Default
	}
	return s
}

// Apply is the pure transition function. It returns the next state or a
// *RejectedError; it never mutates anything.
//
// Permitted transitions:
//
//	machine  --translated (bot)-->      machine   (self-loop on every publish)
//	reviewed --source_advanced (bot)--> outdated  (metadata-only)
//	outdated --source_advanced (bot)--> outdated  (idempotent)
//	machine  --source_advanced (bot)--> machine   (bot will re-translate)
//	any      --human_reviewed (human)-> reviewed
func Apply(from State, event Event, actor Actor) (State, error) {
	if !from.Valid() {
		from = Default
	}
	switch event {
	case EventTranslated:
		if actor != ActorBot {
			return from, &RejectedError{From: from, Event: event, Actor: actor}
		}
		if from != StateMachine {
			return from, &RejectedError{From: from, Event: event, Actor: actor}
		}
		return StateMachine, nil
	case EventSourceAdvanced:
		switch from {
		case StateReviewed, StateOutdated:
			return StateOutdated, nil
		default:
			return StateMachine, nil
		}
	case EventHumanReviewed:
		if actor != ActorHuman {
			return from, &RejectedError{From: from, Event: event, Actor: actor}
		}
		return StateReviewed, nil
	default:
		return from, &RejectedError{From: from, Event: event, Actor: actor}
	}
}
