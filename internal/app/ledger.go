package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/weldtrack/internal/domain"
)

// RecordEvent appends a ledger event for a registered joint and returns its id.
// Replaying the same (joint, kind, submission) returns the original event id without appending.
// Calls for different joints touch disjoint history and may run concurrently.
func (s *Service) RecordEvent(ctx context.Context, jointID string, kind domain.ActivityKind, submissionRef string) (string, error) {
	joint, err := s.getJoint(ctx, jointID)
	if err != nil {
		return "", err
	}
	event, err := domain.NewStatusEvent(s.idGen(), joint.ID, kind, submissionRef, s.clock())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if existing, ok, err := s.findOccurrence(ctx, event); err != nil {
		return "", err
	} else if ok {
		return existing.ID, nil
	}

	if err := s.repo.AppendStatusEvent(ctx, event); err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			return "", err
		}
		// A concurrent writer recorded the same occurrence first.
		existing, ok, findErr := s.findOccurrence(ctx, event)
		if findErr != nil {
			return "", findErr
		}
		if !ok {
			return "", err
		}
		return existing.ID, nil
	}
	return event.ID, nil
}

// LifecycleState derives a joint's state from its complete event history.
func (s *Service) LifecycleState(ctx context.Context, jointID string) (domain.LifecycleState, error) {
	joint, err := s.getJoint(ctx, jointID)
	if err != nil {
		return "", err
	}
	events, err := s.listAllEvents(ctx, StatusEventFilter{JointID: joint.ID})
	if err != nil {
		return "", err
	}
	return domain.DeriveLifecycleState(events), nil
}

// BlockedJoints returns the sorted ids of blocked joints on a line.
func (s *Service) BlockedJoints(ctx context.Context, lineID string) ([]string, error) {
	line, err := s.getLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	states, err := s.lineStates(ctx, line.ID)
	if err != nil {
		return nil, err
	}
	return blockedFrom(states), nil
}

// lineStates derives the state of every joint on a line (all lines when lineID is empty).
func (s *Service) lineStates(ctx context.Context, lineID string) (map[string]domain.LifecycleState, error) {
	joints, err := s.listAllJoints(ctx, lineID)
	if err != nil {
		return nil, err
	}
	events, err := s.listAllEvents(ctx, StatusEventFilter{LineID: lineID})
	if err != nil {
		return nil, err
	}
	return LifecycleStates(joints, events), nil
}

// LifecycleStates derives the state of each joint from an event snapshot.
// Events for joints outside the list are ignored.
func LifecycleStates(joints []domain.Joint, events []domain.StatusEvent) map[string]domain.LifecycleState {
	byJoint := make(map[string][]domain.StatusEvent, len(joints))
	for _, joint := range joints {
		byJoint[joint.ID] = nil
	}
	for _, event := range events {
		if _, ok := byJoint[event.JointID]; !ok {
			continue
		}
		byJoint[event.JointID] = append(byJoint[event.JointID], event)
	}
	out := make(map[string]domain.LifecycleState, len(byJoint))
	for jointID, history := range byJoint {
		out[jointID] = domain.DeriveLifecycleState(history)
	}
	return out
}

// blockedFrom returns the sorted ids whose state is blocked.
func blockedFrom(states map[string]domain.LifecycleState) []string {
	out := make([]string, 0)
	for jointID, state := range states {
		if state == domain.StateBlocked {
			out = append(out, jointID)
		}
	}
	slices.Sort(out)
	return out
}

// findOccurrence looks up an already-recorded event for the same (joint, kind, submission).
func (s *Service) findOccurrence(ctx context.Context, event domain.StatusEvent) (domain.StatusEvent, bool, error) {
	if strings.TrimSpace(event.SubmissionID) == "" {
		return domain.StatusEvent{}, false, nil
	}
	history, err := s.listAllEvents(ctx, StatusEventFilter{JointID: event.JointID})
	if err != nil {
		return domain.StatusEvent{}, false, err
	}
	for _, existing := range history {
		if existing.SameOccurrence(event) {
			return existing, true, nil
		}
	}
	return domain.StatusEvent{}, false, nil
}
