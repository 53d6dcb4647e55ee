package domain

import (
	"slices"
	"strings"
	"time"
)

// LifecycleState is the derived eligibility of a joint for further coupling/weld work.
type LifecycleState string

// Lifecycle states.
const (
	StateOpen    LifecycleState = "open"
	StateBlocked LifecycleState = "blocked"
)

// StatusEvent records that an activity kind was applied to a joint by a submission. Append-only.
type StatusEvent struct {
	ID           string
	JointID      string
	Kind         ActivityKind
	SubmissionID string
	OccurredAt   time.Time
}

// NewStatusEvent constructs a validated ledger event.
func NewStatusEvent(id, jointID string, kind ActivityKind, submissionID string, now time.Time) (StatusEvent, error) {
	id = strings.TrimSpace(id)
	jointID = strings.TrimSpace(jointID)
	if id == "" || jointID == "" {
		return StatusEvent{}, ErrInvalidID
	}
	if !kind.IsLedgerKind() {
		return StatusEvent{}, ErrInvalidActivityKind
	}
	return StatusEvent{
		ID:           id,
		JointID:      jointID,
		Kind:         kind,
		SubmissionID: strings.TrimSpace(submissionID),
		OccurredAt:   now.UTC(),
	}, nil
}

// SameOccurrence reports whether e and other describe the same (joint, kind, submission) fact.
func (e StatusEvent) SameOccurrence(other StatusEvent) bool {
	return e.JointID == other.JointID && e.Kind == other.Kind && e.SubmissionID == other.SubmissionID
}

// DeriveLifecycleState folds a joint's full event history into its current state.
// A joint is blocked once coupling and weld have both been recorded since its most recent rework.
// Events sharing a timestamp apply rework last, so a tie with rework reads as reopened.
// The result never depends on input order or event IDs.
func DeriveLifecycleState(events []StatusEvent) LifecycleState {
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b StatusEvent) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		if ar, br := a.Kind == KindRework, b.Kind == KindRework; ar != br {
			if ar {
				return 1
			}
			return -1
		}
		return strings.Compare(a.ID, b.ID)
	})

	coupled, welded := false, false
	for _, event := range ordered {
		switch event.Kind {
		case KindCoupling:
			coupled = true
		case KindWeld:
			welded = true
		case KindRework:
			coupled, welded = false, false
		}
	}
	if coupled && welded {
		return StateBlocked
	}
	return StateOpen
}

// EligibleFor reports whether work of kind may be applied to a joint in state.
func EligibleFor(state LifecycleState, kind ActivityKind) bool {
	if kind == KindRework {
		return true
	}
	if kind == KindCoupling || kind == KindWeld {
		return state != StateBlocked
	}
	return true
}
