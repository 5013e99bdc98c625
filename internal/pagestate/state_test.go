package pagestate

import (
	"errors"
	"testing"
)

func TestApplyTransitions(t *testing.T) {
	cases := []struct {
		name   string
		from   State
		event  Event
		actor  Actor
		want   State
		reject bool
	}{
		{name: "machine self-loop on publish", from: StateMachine, event: EventTranslated, actor: ActorBot, want: StateMachine},
		{name: "reviewed blocks publish", from: StateReviewed, event: EventTranslated, actor: ActorBot, reject: true},
		{name: "outdated blocks publish", from: StateOutdated, event: EventTranslated, actor: ActorBot, reject: true},
		{name: "reviewed goes outdated on source change", from: StateReviewed, event: EventSourceAdvanced, actor: ActorBot, want: StateOutdated},
		{name: "outdated stays outdated on source change", from: StateOutdated, event: EventSourceAdvanced, actor: ActorBot, want: StateOutdated},
		{name: "machine stays machine on source change", from: StateMachine, event: EventSourceAdvanced, actor: ActorBot, want: StateMachine},
		{name: "human review from machine", from: StateMachine, event: EventHumanReviewed, actor: ActorHuman, want: StateReviewed},
		{name: "human review from outdated", from: StateOutdated, event: EventHumanReviewed, actor: ActorHuman, want: StateReviewed},
		{name: "bot cannot set reviewed", from: StateMachine, event: EventHumanReviewed, actor: ActorBot, reject: true},
		{name: "unknown state defaults to machine", from: State("bogus"), event: EventTranslated, actor: ActorBot, want: StateMachine},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.from, tc.event, tc.actor)
			if tc.reject {
				var rejected *RejectedError
				if !errors.As(err, &rejected) {
					t.Fatalf("expected RejectedError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Apply(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.want)
			}
		})
	}
}

func TestOnceReviewedNeverAutomaticallyMachine(t *testing.T) {
	state := StateReviewed
	events := []Event{EventSourceAdvanced, EventTranslated, EventSourceAdvanced, EventTranslated}
	for _, ev := range events {
		next, err := Apply(state, ev, ActorBot)
		if err != nil {
			continue
		}
		state = next
	}
	if state == StateMachine {
		t.Fatalf("reviewed page drifted back to machine without human action")
	}
	if state != StateOutdated {
		t.Fatalf("expected outdated, got %s", state)
	}
}

func TestAllowsAutomatedWrite(t *testing.T) {
	if !StateMachine.AllowsAutomatedWrite() {
		t.Fatal("machine must allow automated writes")
	}
	if StateReviewed.AllowsAutomatedWrite() || StateOutdated.AllowsAutomatedWrite() {
		t.Fatal("reviewed/outdated must lock out automated writes")
	}
}

func TestParse(t *testing.T) {
	if Parse("reviewed") != StateReviewed {
		t.Fatal("parse reviewed")
	}
	if Parse("") != StateMachine {
		t.Fatal("empty value must default to machine")
	}
	if Parse("nonsense") != StateMachine {
		t.Fatal("unknown value must default to machine")
	}
}
