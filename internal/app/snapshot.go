package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "weldtrack.snapshot.v1"

// Snapshot represents a full registry and ledger backup.
type Snapshot struct {
	Version       string                 `json:"version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Fluids        []SnapshotFluid        `json:"fluids"`
	Lines         []SnapshotLine         `json:"lines"`
	Joints        []SnapshotJoint        `json:"joints"`
	Submissions   []SnapshotSubmission   `json:"submissions"`
	StatusEvents  []SnapshotStatusEvent  `json:"status_events"`
	BaselineRates []SnapshotBaselineRate `json:"baseline_rates,omitempty"`
}

// SnapshotFluid represents snapshot fluid data used by this package.
type SnapshotFluid struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotLine represents snapshot line data used by this package.
type SnapshotLine struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Material  domain.MaterialClass `json:"material"`
	FluidID   string               `json:"fluid_id"`
	CreatedAt time.Time            `json:"created_at"`
}

// SnapshotJoint represents snapshot joint data used by this package.
type SnapshotJoint struct {
	ID        string    `json:"id"`
	LineID    string    `json:"line_id"`
	Number    string    `json:"number"`
	Diameter  float64   `json:"diameter"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotSubmission stores one submission with its detail kept as raw JSON behind the family tag.
type SnapshotSubmission struct {
	ID        string                `json:"id"`
	ParentID  string                `json:"parent_id,omitempty"`
	Kind      domain.ActivityKind   `json:"kind"`
	TypeLabel string                `json:"type_label"`
	Date      time.Time             `json:"date"`
	Hours     float64               `json:"hours"`
	Crew      domain.Crew           `json:"crew,omitempty"`
	LineID    string                `json:"line_id,omitempty"`
	Material  domain.MaterialClass  `json:"material,omitempty"`
	Family    domain.ActivityFamily `json:"family"`
	Detail    json.RawMessage       `json:"detail,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// SnapshotStatusEvent represents one ledger row in a snapshot.
type SnapshotStatusEvent struct {
	ID           string              `json:"id"`
	JointID      string              `json:"joint_id"`
	Kind         domain.ActivityKind `json:"kind"`
	SubmissionID string              `json:"submission_id,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// SnapshotBaselineRate represents one stored material baseline.
type SnapshotBaselineRate struct {
	Material         domain.MaterialClass `json:"material"`
	HoursPerDiameter float64              `json:"hours_per_diameter"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	lines, err := s.repo.ListLines(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	joints, err := s.listAllJoints(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	subs, err := s.listAllSubmissions(ctx, SubmissionFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	events, err := s.listAllEvents(ctx, StatusEventFilter{})
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:       SnapshotVersion,
		ExportedAt:    s.clock().UTC(),
		Fluids:        make([]SnapshotFluid, 0, len(fluids)),
		Lines:         make([]SnapshotLine, 0, len(lines)),
		Joints:        make([]SnapshotJoint, 0, len(joints)),
		Submissions:   make([]SnapshotSubmission, 0, len(subs)),
		StatusEvents:  make([]SnapshotStatusEvent, 0, len(events)),
		BaselineRates: make([]SnapshotBaselineRate, 0),
	}
	for _, fluid := range fluids {
		snap.Fluids = append(snap.Fluids, SnapshotFluid{ID: fluid.ID, Name: fluid.Name, CreatedAt: fluid.CreatedAt.UTC()})
	}
	for _, line := range lines {
		snap.Lines = append(snap.Lines, SnapshotLine{
			ID:        line.ID,
			Name:      line.Name,
			Material:  line.Material,
			FluidID:   line.FluidID,
			CreatedAt: line.CreatedAt.UTC(),
		})
	}
	for _, joint := range joints {
		snap.Joints = append(snap.Joints, SnapshotJoint{
			ID:        joint.ID,
			LineID:    joint.LineID,
			Number:    joint.Number,
			Diameter:  joint.Diameter,
			CreatedAt: joint.CreatedAt.UTC(),
			UpdatedAt: joint.UpdatedAt.UTC(),
		})
	}
	for _, sub := range subs {
		family, raw, encodeErr := domain.EncodeDetail(sub.Detail)
		if encodeErr != nil {
			return Snapshot{}, fmt.Errorf("export submission %q: %w", sub.ID, encodeErr)
		}
		snap.Submissions = append(snap.Submissions, SnapshotSubmission{
			ID:        sub.ID,
			ParentID:  sub.ParentID,
			Kind:      sub.Kind,
			TypeLabel: sub.TypeLabel,
			Date:      sub.Date.UTC(),
			Hours:     sub.Hours,
			Crew:      sub.Crew,
			LineID:    sub.LineID,
			Material:  sub.Material,
			Family:    family,
			Detail:    raw,
			CreatedAt: sub.CreatedAt.UTC(),
		})
	}
	for _, event := range events {
		snap.StatusEvents = append(snap.StatusEvents, SnapshotStatusEvent{
			ID:           event.ID,
			JointID:      event.JointID,
			Kind:         event.Kind,
			SubmissionID: event.SubmissionID,
			OccurredAt:   event.OccurredAt.UTC(),
		})
	}
	for _, material := range domain.MaterialClasses() {
		rate, rateErr := s.repo.GetBaselineRate(ctx, material)
		if errors.Is(rateErr, ErrNotFound) {
			continue
		}
		if rateErr != nil {
			return Snapshot{}, rateErr
		}
		snap.BaselineRates = append(snap.BaselineRates, SnapshotBaselineRate{
			Material:         rate.Material,
			HoursPerDiameter: rate.HoursPerDiameter,
		})
	}

	snap.sort()
	return snap, nil
}

// SnapshotImportResult counts the rows a restore wrote.
type SnapshotImportResult struct {
	Fluids        int `json:"fluids"`
	Lines         int `json:"lines"`
	JointsCreated int `json:"joints_created"`
	JointsUpdated int `json:"joints_updated"`
	Submissions   int `json:"submissions"`
	StatusEvents  int `json:"status_events"`
	BaselineRates int `json:"baseline_rates"`
}

// ImportSnapshot restores a snapshot. Existing fluids, lines and submissions are left alone,
// existing joints take the snapshot's diameter, and ledger rows are never appended twice.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) (SnapshotImportResult, error) {
	var result SnapshotImportResult
	registry, err := s.listAllJoints(ctx, "")
	if err != nil {
		return result, err
	}
	known := make(map[string]struct{}, len(registry))
	for _, joint := range registry {
		known[joint.ID] = struct{}{}
	}
	if err := snap.validate(known); err != nil {
		return result, err
	}
	snap.sort()

	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return result, err
	}
	fluidIDs := map[string]struct{}{}
	for _, fluid := range fluids {
		fluidIDs[fluid.ID] = struct{}{}
	}
	for _, sf := range snap.Fluids {
		if _, ok := fluidIDs[sf.ID]; ok {
			continue
		}
		fluid, err := domain.NewFluid(sf.ID, sf.Name, sf.CreatedAt)
		if err != nil {
			return result, fmt.Errorf("restore fluid %q: %w", sf.ID, err)
		}
		if err := s.repo.CreateFluid(ctx, fluid); err != nil {
			return result, fmt.Errorf("restore fluid %q: %w", sf.ID, err)
		}
		result.Fluids++
	}

	lines, err := s.repo.ListLines(ctx)
	if err != nil {
		return result, err
	}
	lineIDs := map[string]struct{}{}
	for _, line := range lines {
		lineIDs[line.ID] = struct{}{}
	}
	for _, sl := range snap.Lines {
		if _, ok := lineIDs[sl.ID]; ok {
			continue
		}
		line, err := domain.NewLine(domain.LineInput{
			ID:       sl.ID,
			Name:     sl.Name,
			Material: sl.Material,
			FluidID:  sl.FluidID,
		}, sl.CreatedAt)
		if err != nil {
			return result, fmt.Errorf("restore line %q: %w", sl.ID, err)
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return result, fmt.Errorf("restore line %q: %w", sl.ID, err)
		}
		result.Lines++
	}

	for _, sj := range snap.Joints {
		joint, err := domain.NewJoint(domain.JointInput{
			ID:       sj.ID,
			LineID:   sj.LineID,
			Number:   sj.Number,
			Diameter: sj.Diameter,
		}, sj.CreatedAt)
		if err != nil {
			return result, fmt.Errorf("restore joint %q: %w", sj.ID, err)
		}
		joint.UpdatedAt = sj.UpdatedAt.UTC()
		if _, err := s.repo.GetJoint(ctx, joint.ID); err == nil {
			if err := s.repo.UpdateJoint(ctx, joint); err != nil {
				return result, fmt.Errorf("restore joint %q: %w", sj.ID, err)
			}
			result.JointsUpdated++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return result, err
		}
		if err := s.repo.CreateJoint(ctx, joint); err != nil {
			return result, fmt.Errorf("restore joint %q: %w", sj.ID, err)
		}
		result.JointsCreated++
	}

	existingSubs, err := s.listAllSubmissions(ctx, SubmissionFilter{})
	if err != nil {
		return result, err
	}
	subIDs := map[string]struct{}{}
	for _, sub := range existingSubs {
		subIDs[sub.ID] = struct{}{}
	}
	for _, ss := range snap.Submissions {
		if _, ok := subIDs[ss.ID]; ok {
			continue
		}
		sub, err := ss.toDomain()
		if err != nil {
			return result, fmt.Errorf("restore submission %q: %w", ss.ID, err)
		}
		if err := s.repo.CreateSubmission(ctx, sub); err != nil {
			return result, fmt.Errorf("restore submission %q: %w", ss.ID, err)
		}
		subIDs[ss.ID] = struct{}{}
		result.Submissions++
	}

	existingEvents, err := s.listAllEvents(ctx, StatusEventFilter{})
	if err != nil {
		return result, err
	}
	eventIDs := map[string]struct{}{}
	for _, event := range existingEvents {
		eventIDs[event.ID] = struct{}{}
	}
	for _, se := range snap.StatusEvents {
		if _, ok := eventIDs[se.ID]; ok {
			continue
		}
		event, err := domain.NewStatusEvent(se.ID, se.JointID, se.Kind, se.SubmissionID, se.OccurredAt)
		if err != nil {
			return result, fmt.Errorf("restore status event %q: %w", se.ID, err)
		}
		if err := s.repo.AppendStatusEvent(ctx, event); err != nil {
			if errors.Is(err, ErrDuplicateKey) {
				continue
			}
			return result, fmt.Errorf("restore status event %q: %w", se.ID, err)
		}
		eventIDs[se.ID] = struct{}{}
		result.StatusEvents++
	}

	for _, sr := range snap.BaselineRates {
		rate, err := domain.NewBaselineRate(sr.Material, sr.HoursPerDiameter)
		if err != nil {
			return result, fmt.Errorf("restore baseline %q: %w", sr.Material, err)
		}
		if err := s.repo.UpsertBaselineRate(ctx, rate); err != nil {
			return result, err
		}
		result.BaselineRates++
	}

	s.logger.Info("snapshot restored",
		"fluids", result.Fluids,
		"lines", result.Lines,
		"joints_created", result.JointsCreated,
		"joints_updated", result.JointsUpdated,
		"submissions", result.Submissions,
		"status_events", result.StatusEvents,
	)
	return result, nil
}

// Validate checks identity, references and ledger kinds before anything is written.
// Errors match ErrValidation, and dangling references also match ErrUnknownReference.
func (s *Snapshot) Validate() error {
	return s.validate(nil)
}

// validate also accepts joint references to registryJoints, the joints already stored.
func (s *Snapshot) validate(registryJoints map[string]struct{}) error {
	if err := s.check(registryJoints); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (s *Snapshot) check(registryJoints map[string]struct{}) error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	fluidIDs := map[string]struct{}{}
	for i, f := range s.Fluids {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("fluids[%d].id is required", i)
		}
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("fluids[%d].name is required", i)
		}
		if _, exists := fluidIDs[f.ID]; exists {
			return fmt.Errorf("duplicate fluid id: %q", f.ID)
		}
		fluidIDs[f.ID] = struct{}{}
	}

	lineIDs := map[string]domain.MaterialClass{}
	for i, l := range s.Lines {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("lines[%d].id is required", i)
		}
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("lines[%d].name is required", i)
		}
		if !l.Material.Valid() {
			return fmt.Errorf("lines[%d].material %q is not a known material", i, l.Material)
		}
		if _, ok := fluidIDs[l.FluidID]; !ok {
			return fmt.Errorf("lines[%d] references unknown fluid_id %q", i, l.FluidID)
		}
		if _, exists := lineIDs[l.ID]; exists {
			return fmt.Errorf("duplicate line id: %q", l.ID)
		}
		lineIDs[l.ID] = l.Material
	}

	jointIDs := map[string]struct{}{}
	numbers := map[string]struct{}{}
	for i, j := range s.Joints {
		if strings.TrimSpace(j.ID) == "" {
			return fmt.Errorf("joints[%d].id is required", i)
		}
		if strings.TrimSpace(j.Number) == "" {
			return fmt.Errorf("joints[%d].number is required", i)
		}
		if _, ok := lineIDs[j.LineID]; !ok {
			return fmt.Errorf("joints[%d] references unknown line_id %q", i, j.LineID)
		}
		if _, exists := jointIDs[j.ID]; exists {
			return fmt.Errorf("duplicate joint id: %q", j.ID)
		}
		key := j.LineID + "\x00" + strings.TrimSpace(j.Number)
		if _, exists := numbers[key]; exists {
			return fmt.Errorf("joints[%d] repeats number %q on line %q", i, j.Number, j.LineID)
		}
		jointIDs[j.ID] = struct{}{}
		numbers[key] = struct{}{}
	}
	knownJoint := func(id string) bool {
		if _, ok := jointIDs[id]; ok {
			return true
		}
		_, ok := registryJoints[id]
		return ok
	}

	subIDs := map[string]struct{}{}
	for i, sub := range s.Submissions {
		if strings.TrimSpace(sub.ID) == "" {
			return fmt.Errorf("submissions[%d].id is required", i)
		}
		if !sub.Kind.Valid() {
			return fmt.Errorf("submissions[%d].kind %q is not a known activity kind", i, sub.Kind)
		}
		if sub.LineID != "" {
			material, ok := lineIDs[sub.LineID]
			if !ok {
				return fmt.Errorf("submissions[%d] references unknown line_id %q", i, sub.LineID)
			}
			if sub.Material != "" && sub.Material != material {
				return fmt.Errorf("submissions[%d].material %q contradicts line %q (%s)", i, sub.Material, sub.LineID, material)
			}
		}
		if sub.Family != "" {
			detail, err := domain.DecodeDetail(sub.Family, sub.Detail)
			if err != nil {
				return fmt.Errorf("submissions[%d].detail: %w", i, err)
			}
			if td, ok := detail.(domain.TubulationDetail); ok {
				for _, id := range td.JointIDs {
					if !knownJoint(id) {
						return fmt.Errorf("submissions[%d] detail: %w", i, unknownRef("joint", id))
					}
				}
			}
		}
		if _, exists := subIDs[sub.ID]; exists {
			return fmt.Errorf("duplicate submission id: %q", sub.ID)
		}
		subIDs[sub.ID] = struct{}{}
	}

	eventIDs := map[string]struct{}{}
	for i, e := range s.StatusEvents {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("status_events[%d].id is required", i)
		}
		if !e.Kind.IsLedgerKind() {
			return fmt.Errorf("status_events[%d].kind %q is not a ledger kind", i, e.Kind)
		}
		if !knownJoint(e.JointID) {
			return fmt.Errorf("status_events[%d] references unknown joint_id %q", i, e.JointID)
		}
		if e.OccurredAt.IsZero() {
			return fmt.Errorf("status_events[%d].occurred_at is required", i)
		}
		if _, exists := eventIDs[e.ID]; exists {
			return fmt.Errorf("duplicate status event id: %q", e.ID)
		}
		eventIDs[e.ID] = struct{}{}
	}

	materials := map[domain.MaterialClass]struct{}{}
	for i, r := range s.BaselineRates {
		if !r.Material.Valid() {
			return fmt.Errorf("baseline_rates[%d].material %q is not a known material", i, r.Material)
		}
		if _, exists := materials[r.Material]; exists {
			return fmt.Errorf("duplicate baseline material: %q", r.Material)
		}
		materials[r.Material] = struct{}{}
	}
	return nil
}

// sort orders every section so exports are stable and restores insert parents first.
func (s *Snapshot) sort() {
	sort.SliceStable(s.Fluids, func(i, j int) bool { return s.Fluids[i].ID < s.Fluids[j].ID })
	sort.SliceStable(s.Lines, func(i, j int) bool { return s.Lines[i].ID < s.Lines[j].ID })
	sort.SliceStable(s.Joints, func(i, j int) bool {
		if s.Joints[i].LineID != s.Joints[j].LineID {
			return s.Joints[i].LineID < s.Joints[j].LineID
		}
		return s.Joints[i].ID < s.Joints[j].ID
	})
	sort.SliceStable(s.Submissions, func(i, j int) bool {
		a, b := s.Submissions[i], s.Submissions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	sort.SliceStable(s.StatusEvents, func(i, j int) bool {
		a, b := s.StatusEvents[i], s.StatusEvents[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return a.ID < b.ID
	})
	sort.SliceStable(s.BaselineRates, func(i, j int) bool { return s.BaselineRates[i].Material < s.BaselineRates[j].Material })
}

func (ss SnapshotSubmission) toDomain() (domain.ActivitySubmission, error) {
	var detail domain.ActivityDetail
	if ss.Family != "" {
		decoded, err := domain.DecodeDetail(ss.Family, ss.Detail)
		if err != nil {
			return domain.ActivitySubmission{}, err
		}
		detail = decoded
	}
	return domain.NewActivitySubmission(domain.SubmissionInput{
		ID:        ss.ID,
		ParentID:  ss.ParentID,
		Kind:      ss.Kind,
		TypeLabel: ss.TypeLabel,
		Date:      ss.Date,
		Hours:     ss.Hours,
		Crew:      ss.Crew,
		LineID:    ss.LineID,
		Material:  ss.Material,
		Detail:    detail,
	}, ss.CreatedAt)
}
