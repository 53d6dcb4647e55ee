package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/weldtrack/internal/domain"
)

// seedLedger stores a weld submission over joints and its ledger rows.
func seedLedger(t *testing.T, repo *fakeRepo, joints []domain.Joint) domain.ActivitySubmission {
	t.Helper()
	ids := make([]string, 0, len(joints))
	for _, joint := range joints {
		ids = append(ids, joint.ID)
	}
	sub, err := domain.NewActivitySubmission(domain.SubmissionInput{
		ID:     "sub-1",
		Kind:   domain.KindWeld,
		Date:   testStart,
		Hours:  8,
		Crew:   domain.Crew{"welder": 2},
		LineID: joints[0].LineID,
		Detail: domain.TubulationDetail{JointIDs: ids},
	}, testStart)
	if err != nil {
		t.Fatalf("NewActivitySubmission() error = %v", err)
	}
	repo.submissions = append(repo.submissions, sub)
	for i, joint := range joints {
		event, err := domain.NewStatusEvent("ev-"+joint.ID, joint.ID, domain.KindWeld, sub.ID, testStart.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("NewStatusEvent() error = %v", err)
		}
		repo.events = append(repo.events, event)
	}
	return sub
}

func TestExportSnapshotIncludesRegistryAndLedger(t *testing.T) {
	repo := newFakeRepo()
	joints := seedRegistry(t, repo, "line-a", domain.MaterialCarbonSteel, 2, 4)
	seedLedger(t, repo, joints)
	repo.rates[domain.MaterialCarbonSteel] = domain.BaselineRate{Material: domain.MaterialCarbonSteel, HoursPerDiameter: 1.5}

	exportedAt := testStart.Add(time.Hour)
	svc := NewService(repo, nil, func() time.Time { return exportedAt }, ServiceConfig{PageSize: 1})

	snap, err := svc.ExportSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion || !snap.ExportedAt.Equal(exportedAt) {
		t.Fatalf("unexpected header %q %s", snap.Version, snap.ExportedAt)
	}
	if len(snap.Fluids) != 1 || len(snap.Lines) != 1 || len(snap.Joints) != 2 {
		t.Fatalf("unexpected registry sizes f=%d l=%d j=%d", len(snap.Fluids), len(snap.Lines), len(snap.Joints))
	}
	if len(snap.Submissions) != 1 || snap.Submissions[0].Family != domain.FamilyTubulation {
		t.Fatalf("unexpected submissions %#v", snap.Submissions)
	}
	if !strings.Contains(string(snap.Submissions[0].Detail), "line-a-j2") {
		t.Fatalf("expected joint ids in detail, got %s", snap.Submissions[0].Detail)
	}
	if len(snap.StatusEvents) != 2 || snap.StatusEvents[0].ID != "ev-line-a-j1" {
		t.Fatalf("unexpected events %#v", snap.StatusEvents)
	}
	want := []SnapshotBaselineRate{{Material: domain.MaterialCarbonSteel, HoursPerDiameter: 1.5}}
	if diff := cmp.Diff(want, snap.BaselineRates); diff != "" {
		t.Fatalf("baseline rates mismatch (-want +got):\n%s", diff)
	}
}

func TestImportSnapshotRoundTripAndRepeat(t *testing.T) {
	source := newFakeRepo()
	joints := seedRegistry(t, source, "line-a", domain.MaterialStainless316, 3, 5)
	seedLedger(t, source, joints)
	source.rates[domain.MaterialStainless316] = domain.BaselineRate{Material: domain.MaterialStainless316, HoursPerDiameter: 2}

	ctx := context.Background()
	snap, err := NewService(source, nil, tickingClock(testStart), ServiceConfig{}).ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}

	target := newFakeRepo()
	svc := NewService(target, nil, tickingClock(testStart), ServiceConfig{})
	result, err := svc.ImportSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	wantResult := SnapshotImportResult{Fluids: 1, Lines: 1, JointsCreated: 2, Submissions: 1, StatusEvents: 2, BaselineRates: 1}
	if diff := cmp.Diff(wantResult, result); diff != "" {
		t.Fatalf("first restore mismatch (-want +got):\n%s", diff)
	}

	state, err := svc.LifecycleState(ctx, joints[0].ID)
	if err != nil {
		t.Fatalf("LifecycleState() error = %v", err)
	}
	if state != domain.StateOpen {
		t.Fatalf("weld alone should leave the joint open, got %q", state)
	}

	again, err := svc.ImportSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("second ImportSnapshot() error = %v", err)
	}
	wantAgain := SnapshotImportResult{JointsUpdated: 2, BaselineRates: 1}
	if diff := cmp.Diff(wantAgain, again); diff != "" {
		t.Fatalf("second restore mismatch (-want +got):\n%s", diff)
	}
	if len(target.events) != 2 || len(target.submissions) != 1 || len(target.joints) != 2 {
		t.Fatalf("repeat restore duplicated rows: events=%d subs=%d joints=%d", len(target.events), len(target.submissions), len(target.joints))
	}

	roundTrip, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot(target) error = %v", err)
	}
	if diff := cmp.Diff(snap.Joints, roundTrip.Joints); diff != "" {
		t.Fatalf("joints mismatch after restore (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.StatusEvents, roundTrip.StatusEvents); diff != "" {
		t.Fatalf("events mismatch after restore (-want +got):\n%s", diff)
	}
}

func TestImportSnapshotUpdatesCorrectedDiameter(t *testing.T) {
	repo := newFakeRepo()
	joints := seedRegistry(t, repo, "line-a", domain.MaterialCarbonSteel, 2)
	ctx := context.Background()
	svc := NewService(repo, nil, tickingClock(testStart), ServiceConfig{})

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	snap.Joints[0].Diameter = 6
	if _, err := svc.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	got, err := repo.GetJoint(ctx, joints[0].ID)
	if err != nil {
		t.Fatalf("GetJoint() error = %v", err)
	}
	if got.Diameter != 6 {
		t.Fatalf("expected diameter 6, got %v", got.Diameter)
	}
}

func TestSnapshotValidateRejectsBrokenReferences(t *testing.T) {
	base := func() Snapshot {
		return Snapshot{
			Version: SnapshotVersion,
			Fluids:  []SnapshotFluid{{ID: "f1", Name: "Água", CreatedAt: testStart}},
			Lines:   []SnapshotLine{{ID: "l1", Name: "L1", Material: domain.MaterialCarbonSteel, FluidID: "f1", CreatedAt: testStart}},
			Joints:  []SnapshotJoint{{ID: "j1", LineID: "l1", Number: "J1", Diameter: 2, CreatedAt: testStart, UpdatedAt: testStart}},
			StatusEvents: []SnapshotStatusEvent{
				{ID: "e1", JointID: "j1", Kind: domain.KindCoupling, OccurredAt: testStart},
			},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   string
	}{
		{name: "version", mutate: func(s *Snapshot) { s.Version = "other.v9" }, want: "unsupported snapshot version"},
		{name: "fluid id", mutate: func(s *Snapshot) { s.Fluids[0].ID = " " }, want: "fluids[0].id is required"},
		{name: "line fluid", mutate: func(s *Snapshot) { s.Lines[0].FluidID = "f9" }, want: "unknown fluid_id"},
		{name: "line material", mutate: func(s *Snapshot) { s.Lines[0].Material = "titanium" }, want: "not a known material"},
		{name: "joint line", mutate: func(s *Snapshot) { s.Joints[0].LineID = "l9" }, want: "unknown line_id"},
		{name: "joint number repeat", mutate: func(s *Snapshot) {
			s.Joints = append(s.Joints, SnapshotJoint{ID: "j2", LineID: "l1", Number: "J1", Diameter: 3})
		}, want: "repeats number"},
		{name: "event kind", mutate: func(s *Snapshot) { s.StatusEvents[0].Kind = domain.KindSupport }, want: "not a ledger kind"},
		{name: "event joint", mutate: func(s *Snapshot) { s.StatusEvents[0].JointID = "j9" }, want: "unknown joint_id"},
		{name: "submission material", mutate: func(s *Snapshot) {
			s.Submissions = []SnapshotSubmission{{ID: "s1", Kind: domain.KindWeld, LineID: "l1", Material: domain.MaterialPVC}}
		}, want: "contradicts line"},
		{name: "submission detail joint", mutate: func(s *Snapshot) {
			sub := ghostJointSubmission("s1", "j9")
			sub.LineID = "l1"
			s.Submissions = []SnapshotSubmission{sub}
		}, want: `unknown joint "j9"`},
		{name: "event time", mutate: func(s *Snapshot) { s.StatusEvents[0].OccurredAt = time.Time{} }, want: "occurred_at is required"},
		{name: "baseline repeat", mutate: func(s *Snapshot) {
			s.BaselineRates = []SnapshotBaselineRate{{Material: domain.MaterialPVC}, {Material: domain.MaterialPVC}}
		}, want: "duplicate baseline material"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := base()
			if err := snap.Validate(); err != nil {
				t.Fatalf("base snapshot invalid: %v", err)
			}
			tc.mutate(&snap)
			err := snap.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.want)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func ghostJointSubmission(id string, jointIDs ...string) SnapshotSubmission {
	detail, _ := json.Marshal(domain.TubulationDetail{JointIDs: jointIDs})
	return SnapshotSubmission{
		ID:     id,
		Kind:   domain.KindWeld,
		Date:   testStart,
		Hours:  4,
		Crew:   domain.Crew{"welder": 1},
		LineID: "line-a",
		Family: domain.FamilyTubulation,
		Detail: detail,
	}
}

func TestImportSnapshotRejectsUnknownDetailJoint(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "line-a", domain.MaterialCarbonSteel, 2)
	ctx := context.Background()
	svc := NewService(repo, nil, tickingClock(testStart), ServiceConfig{})

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	snap.Submissions = append(snap.Submissions, ghostJointSubmission("sub-ghost", "line-a-j1", "ghost-joint"))

	_, err = svc.ImportSnapshot(ctx, snap)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("ImportSnapshot() error = %v, want ErrValidation and ErrUnknownReference", err)
	}
	var ref *UnknownReferenceError
	if !errors.As(err, &ref) || ref.Entity != "joint" || ref.ID != "ghost-joint" {
		t.Fatalf("expected unknown joint ghost-joint, got %v", err)
	}
	if len(repo.submissions) != 0 {
		t.Fatalf("rejected snapshot wrote %d submissions", len(repo.submissions))
	}
}

func TestImportSnapshotAcceptsDetailJointFromRegistry(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "line-a", domain.MaterialCarbonSteel, 2, 4)
	ctx := context.Background()
	svc := NewService(repo, nil, tickingClock(testStart), ServiceConfig{})

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	snap.Joints = snap.Joints[:1]
	snap.Submissions = []SnapshotSubmission{ghostJointSubmission("sub-1", "line-a-j2")}

	result, err := svc.ImportSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if result.Submissions != 1 {
		t.Fatalf("expected one restored submission, got %d", result.Submissions)
	}
}
