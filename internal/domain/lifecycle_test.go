package domain

import (
	"testing"
	"time"
)

func ledgerEvent(id string, kind ActivityKind, at time.Time) StatusEvent {
	return StatusEvent{ID: id, JointID: "j1", Kind: kind, SubmissionID: "s-" + id, OccurredAt: at}
}

func TestDeriveLifecycleState(t *testing.T) {
	base := time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

	cases := []struct {
		name   string
		events []StatusEvent
		want   LifecycleState
	}{
		{name: "no events", want: StateOpen},
		{name: "coupling only", events: []StatusEvent{ledgerEvent("1", KindCoupling, at(0))}, want: StateOpen},
		{name: "weld only", events: []StatusEvent{ledgerEvent("1", KindWeld, at(0))}, want: StateOpen},
		{
			name:   "coupling and weld",
			events: []StatusEvent{ledgerEvent("1", KindCoupling, at(0)), ledgerEvent("2", KindWeld, at(1))},
			want:   StateBlocked,
		},
		{
			name:   "weld before coupling",
			events: []StatusEvent{ledgerEvent("2", KindWeld, at(0)), ledgerEvent("1", KindCoupling, at(1))},
			want:   StateBlocked,
		},
		{
			name: "rework after both reopens",
			events: []StatusEvent{
				ledgerEvent("1", KindCoupling, at(0)),
				ledgerEvent("2", KindWeld, at(1)),
				ledgerEvent("3", KindRework, at(2)),
			},
			want: StateOpen,
		},
		{
			name: "work after rework blocks again",
			events: []StatusEvent{
				ledgerEvent("1", KindCoupling, at(0)),
				ledgerEvent("2", KindWeld, at(1)),
				ledgerEvent("3", KindRework, at(2)),
				ledgerEvent("4", KindCoupling, at(3)),
				ledgerEvent("5", KindWeld, at(4)),
			},
			want: StateBlocked,
		},
		{
			name: "rework between partial work",
			events: []StatusEvent{
				ledgerEvent("1", KindCoupling, at(0)),
				ledgerEvent("2", KindRework, at(1)),
				ledgerEvent("3", KindWeld, at(2)),
			},
			want: StateOpen,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveLifecycleState(tc.events); got != tc.want {
				t.Fatalf("DeriveLifecycleState() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDeriveLifecycleStateIsOrderIndependentWithoutRework(t *testing.T) {
	base := time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC)
	events := []StatusEvent{
		ledgerEvent("1", KindCoupling, base),
		ledgerEvent("2", KindWeld, base.Add(time.Hour)),
		ledgerEvent("3", KindWeld, base.Add(2*time.Hour)),
	}
	forward := DeriveLifecycleState(events)
	reversed := DeriveLifecycleState([]StatusEvent{events[2], events[1], events[0]})
	doubled := DeriveLifecycleState(append(append([]StatusEvent{}, events...), events...))
	if forward != reversed || forward != doubled || forward != StateBlocked {
		t.Fatalf("expected blocked regardless of order/replay, got %q %q %q", forward, reversed, doubled)
	}
}

func TestDeriveLifecycleStateAppliesTiedReworkLast(t *testing.T) {
	at := time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC)
	for _, reworkID := range []string{"a", "m", "z"} {
		events := []StatusEvent{
			ledgerEvent("c", KindCoupling, at),
			ledgerEvent("w", KindWeld, at),
			ledgerEvent(reworkID, KindRework, at),
		}
		if got := DeriveLifecycleState(events); got != StateOpen {
			t.Fatalf("rework %q tied with coupling and weld: got %q, want %q", reworkID, got, StateOpen)
		}
		reversed := []StatusEvent{events[2], events[1], events[0]}
		if got := DeriveLifecycleState(reversed); got != StateOpen {
			t.Fatalf("rework %q tied, reversed input: got %q, want %q", reworkID, got, StateOpen)
		}
	}

	later := []StatusEvent{
		ledgerEvent("z", KindRework, at),
		ledgerEvent("a", KindCoupling, at.Add(time.Second)),
		ledgerEvent("b", KindWeld, at.Add(time.Second)),
	}
	if got := DeriveLifecycleState(later); got != StateBlocked {
		t.Fatalf("work after rework should block, got %q", got)
	}
}

func TestEligibleFor(t *testing.T) {
	if EligibleFor(StateBlocked, KindWeld) || EligibleFor(StateBlocked, KindCoupling) {
		t.Fatal("blocked joints must reject coupling and weld")
	}
	if !EligibleFor(StateBlocked, KindRework) {
		t.Fatal("rework is always eligible")
	}
	if !EligibleFor(StateOpen, KindWeld) {
		t.Fatal("open joints accept weld")
	}
}

func TestNewStatusEventRejectsNonLedgerKind(t *testing.T) {
	if _, err := NewStatusEvent("e1", "j1", KindSupport, "s1", time.Now()); err != ErrInvalidActivityKind {
		t.Fatalf("expected ErrInvalidActivityKind, got %v", err)
	}
}
