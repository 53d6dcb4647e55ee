package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// SubmitActivityInput holds input values for submit activity operations.
type SubmitActivityInput struct {
	ParentID  string
	Kind      domain.ActivityKind
	TypeLabel string
	Date      time.Time
	Hours     float64
	Crew      domain.Crew
	LineID    string
	Material  domain.MaterialClass
	Detail    domain.ActivityDetail
}

// SubmitActivity validates references and joint eligibility, stores the submission and records
// one ledger event per target joint for coupling, weld and rework work.
func (s *Service) SubmitActivity(ctx context.Context, in SubmitActivityInput) (domain.ActivitySubmission, error) {
	sub, err := domain.NewActivitySubmission(domain.SubmissionInput{
		ID:        s.idGen(),
		ParentID:  in.ParentID,
		Kind:      in.Kind,
		TypeLabel: in.TypeLabel,
		Date:      in.Date,
		Hours:     in.Hours,
		Crew:      in.Crew,
		LineID:    in.LineID,
		Material:  in.Material,
		Detail:    in.Detail,
	}, s.clock())
	if err != nil {
		return domain.ActivitySubmission{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if sub.LineID != "" {
		line, err := s.getLine(ctx, sub.LineID)
		if err != nil {
			return domain.ActivitySubmission{}, err
		}
		if err := settleMaterial(&sub, line); err != nil {
			return domain.ActivitySubmission{}, err
		}
	}

	lines := map[string]domain.Line{}
	for _, jointID := range sub.JointIDs() {
		joint, err := s.getJoint(ctx, jointID)
		if err != nil {
			return domain.ActivitySubmission{}, err
		}
		if sub.LineID != "" && joint.LineID != sub.LineID {
			return domain.ActivitySubmission{}, fmt.Errorf("%w: joint %s is not on line %s", ErrValidation, joint.ID, sub.LineID)
		}
		if sub.LineID == "" {
			line, ok := lines[joint.LineID]
			if !ok {
				if line, err = s.getLine(ctx, joint.LineID); err != nil {
					return domain.ActivitySubmission{}, err
				}
				lines[joint.LineID] = line
			}
			if err := settleMaterial(&sub, line); err != nil {
				return domain.ActivitySubmission{}, fmt.Errorf("joint %s: %w", joint.ID, err)
			}
		}
		if !sub.Kind.IsLedgerKind() {
			continue
		}
		state, err := s.LifecycleState(ctx, joint.ID)
		if err != nil {
			return domain.ActivitySubmission{}, err
		}
		if !domain.EligibleFor(state, sub.Kind) {
			return domain.ActivitySubmission{}, fmt.Errorf("%w: %s on joint %s", ErrJointBlocked, sub.Kind, joint.Number)
		}
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return domain.ActivitySubmission{}, err
	}
	if !sub.Kind.IsLedgerKind() {
		return sub, nil
	}
	for _, jointID := range sub.JointIDs() {
		if _, err := s.RecordEvent(ctx, jointID, sub.Kind, sub.ID); err != nil {
			return domain.ActivitySubmission{}, fmt.Errorf("record %s event for joint %s: %w", sub.Kind, jointID, err)
		}
	}
	return sub, nil
}

// settleMaterial fills the submission material from line, or rejects a material the line does not carry.
// One submission therefore never spans two materials.
func settleMaterial(sub *domain.ActivitySubmission, line domain.Line) error {
	if sub.Material == "" {
		sub.Material = line.Material
		return nil
	}
	if sub.Material != line.Material {
		return fmt.Errorf("%w: %s work cannot be booked on %s line %s", ErrValidation, sub.Material, line.Material, line.Name)
	}
	return nil
}

// ListSubmissions lists submissions between from and to (inclusive days); zero times do not bound.
func (s *Service) ListSubmissions(ctx context.Context, from, to time.Time) ([]domain.ActivitySubmission, error) {
	filter := SubmissionFilter{}
	if !from.IsZero() {
		day := domain.DateOnly(from)
		filter.From = &day
	}
	if !to.IsZero() {
		day := domain.DateOnly(to)
		filter.To = &day
	}
	return s.listAllSubmissions(ctx, filter)
}

// trimmedSet builds a lookup set of non-empty trimmed values; nil means no filter.
func trimmedSet(values []string, fold bool) map[string]struct{} {
	out := map[string]struct{}{}
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if fold {
			v = domain.FoldName(v)
		}
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
