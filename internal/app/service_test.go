package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRepo keeps rows in insertion order and can cap the rows returned per page.
type fakeRepo struct {
	mu          sync.Mutex
	fluids      []domain.Fluid
	lines       []domain.Line
	joints      []domain.Joint
	events      []domain.StatusEvent
	submissions []domain.ActivitySubmission
	rates       map[domain.MaterialClass]domain.BaselineRate

	window         int
	failJointChunk int
	jointChunks    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rates: map[domain.MaterialClass]domain.BaselineRate{}}
}

// pageOf returns one page window, never more than window rows when window is set.
func pageOf[T any](items []T, page Page, window int) []T {
	limit := page.Limit
	if window > 0 && (limit <= 0 || limit > window) {
		limit = window
	}
	if page.Offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && page.Offset+limit < end {
		end = page.Offset + limit
	}
	return slices.Clone(items[page.Offset:end])
}

func (f *fakeRepo) CreateFluid(_ context.Context, fluid domain.Fluid) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fluids = append(f.fluids, fluid)
	return nil
}

func (f *fakeRepo) ListFluids(context.Context) ([]domain.Fluid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.fluids), nil
}

func (f *fakeRepo) CreateLine(_ context.Context, line domain.Line) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeRepo) CreateLines(ctx context.Context, lines []domain.Line) ([]error, error) {
	errs := make([]error, len(lines))
	for i, line := range lines {
		errs[i] = f.CreateLine(ctx, line)
	}
	return errs, nil
}

func (f *fakeRepo) GetLine(_ context.Context, id string) (domain.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range f.lines {
		if line.ID == id {
			return line, nil
		}
	}
	return domain.Line{}, ErrNotFound
}

func (f *fakeRepo) ListLines(context.Context) ([]domain.Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.lines), nil
}

func (f *fakeRepo) CreateJoint(_ context.Context, joint domain.Joint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joints = append(f.joints, joint)
	return nil
}

func (f *fakeRepo) CreateJoints(ctx context.Context, joints []domain.Joint) ([]error, error) {
	f.mu.Lock()
	f.jointChunks++
	failing := f.jointChunks == f.failJointChunk
	f.mu.Unlock()
	if failing {
		return nil, errors.New("commit failed")
	}
	errs := make([]error, len(joints))
	for i, joint := range joints {
		errs[i] = f.CreateJoint(ctx, joint)
	}
	return errs, nil
}

func (f *fakeRepo) UpdateJoint(_ context.Context, joint domain.Joint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.joints {
		if f.joints[i].ID == joint.ID {
			f.joints[i] = joint
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) GetJoint(_ context.Context, id string) (domain.Joint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, joint := range f.joints {
		if joint.ID == id {
			return joint, nil
		}
	}
	return domain.Joint{}, ErrNotFound
}

func (f *fakeRepo) ListJoints(_ context.Context, lineID string, page Page) ([]domain.Joint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Joint, 0, len(f.joints))
	for _, joint := range f.joints {
		if lineID == "" || joint.LineID == lineID {
			out = append(out, joint)
		}
	}
	return pageOf(out, page, f.window), nil
}

func (f *fakeRepo) AppendStatusEvent(_ context.Context, event domain.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.events {
		if event.SubmissionID != "" && existing.SameOccurrence(event) {
			return ErrDuplicateKey
		}
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRepo) ListStatusEvents(_ context.Context, filter StatusEventFilter, page Page) ([]domain.StatusEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lineOf := map[string]string{}
	for _, joint := range f.joints {
		lineOf[joint.ID] = joint.LineID
	}
	out := make([]domain.StatusEvent, 0, len(f.events))
	for _, event := range f.events {
		if filter.JointID != "" && event.JointID != filter.JointID {
			continue
		}
		if filter.LineID != "" && lineOf[event.JointID] != filter.LineID {
			continue
		}
		out = append(out, event)
	}
	return pageOf(out, page, f.window), nil
}

func (f *fakeRepo) CreateSubmission(_ context.Context, sub domain.ActivitySubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeRepo) CreateSubmissions(ctx context.Context, subs []domain.ActivitySubmission) ([]error, error) {
	errs := make([]error, len(subs))
	for i, sub := range subs {
		errs[i] = f.CreateSubmission(ctx, sub)
	}
	return errs, nil
}

func (f *fakeRepo) ListSubmissions(_ context.Context, filter SubmissionFilter, page Page) ([]domain.ActivitySubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ActivitySubmission, 0, len(f.submissions))
	for _, sub := range f.submissions {
		if filter.From != nil && sub.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sub.Date.After(*filter.To) {
			continue
		}
		out = append(out, sub)
	}
	return pageOf(out, page, f.window), nil
}

func (f *fakeRepo) GetBaselineRate(_ context.Context, material domain.MaterialClass) (domain.BaselineRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rate, ok := f.rates[material]
	if !ok {
		return domain.BaselineRate{}, ErrNotFound
	}
	return rate, nil
}

func (f *fakeRepo) UpsertBaselineRate(_ context.Context, rate domain.BaselineRate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[rate.Material] = rate
	return nil
}

// seqIDs returns a goroutine-safe generator of prefix-1, prefix-2, ...
func seqIDs(prefix string) IDGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// tickingClock returns a clock that advances one second per call.
func tickingClock(start time.Time) Clock {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var testStart = time.Date(2026, 10, 12, 7, 0, 0, 0, time.UTC)

// seedRegistry stores a fluid, one carbon steel line and joints with the given diameters.
func seedRegistry(t *testing.T, repo *fakeRepo, lineID string, material domain.MaterialClass, diameters ...float64) []domain.Joint {
	t.Helper()
	if len(repo.fluids) == 0 {
		fluid, err := domain.NewFluid("fluid-water", "Água", testStart)
		if err != nil {
			t.Fatalf("NewFluid() error = %v", err)
		}
		repo.fluids = append(repo.fluids, fluid)
	}
	line, err := domain.NewLine(domain.LineInput{ID: lineID, Name: "Line " + lineID, Material: material, FluidID: "fluid-water"}, testStart)
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}
	repo.lines = append(repo.lines, line)
	joints := make([]domain.Joint, 0, len(diameters))
	for i, d := range diameters {
		joint, err := domain.NewJoint(domain.JointInput{
			ID:       fmt.Sprintf("%s-j%d", lineID, i+1),
			LineID:   lineID,
			Number:   fmt.Sprintf("J%d", i+1),
			Diameter: d,
		}, testStart)
		if err != nil {
			t.Fatalf("NewJoint() error = %v", err)
		}
		joints = append(joints, joint)
	}
	repo.joints = append(repo.joints, joints...)
	return joints
}

func TestCreateLineRequiresKnownFluid(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, seqIDs("id"), tickingClock(testStart), ServiceConfig{})

	_, err := svc.CreateLine(context.Background(), CreateLineInput{Name: "L1", Material: domain.MaterialCarbonSteel, FluidID: "missing"})
	var refErr *UnknownReferenceError
	if !errors.As(err, &refErr) || refErr.Entity != "fluid" {
		t.Fatalf("expected unknown fluid reference, got %v", err)
	}
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}

	fluid, err := svc.CreateFluid(context.Background(), "Vapor")
	if err != nil {
		t.Fatalf("CreateFluid() error = %v", err)
	}
	if _, err := svc.CreateFluid(context.Background(), "  VAPOR "); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey for folded fluid name, got %v", err)
	}
	line, err := svc.CreateLine(context.Background(), CreateLineInput{Name: "L1", Material: domain.MaterialStainless304, FluidID: fluid.ID})
	if err != nil {
		t.Fatalf("CreateLine() error = %v", err)
	}
	if line.Material != domain.MaterialStainless304 || line.FluidID != fluid.ID {
		t.Fatalf("unexpected line %#v", line)
	}
}

func TestRegisterJointRejectsDuplicateNumber(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel, 4)
	svc := NewService(repo, seqIDs("id"), tickingClock(testStart), ServiceConfig{})

	if _, err := svc.RegisterJoint(context.Background(), RegisterJointInput{LineID: "L1", Number: "j1", Diameter: 2}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if _, err := svc.RegisterJoint(context.Background(), RegisterJointInput{LineID: "nope", Number: "J9", Diameter: 2}); !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
	joint, err := svc.RegisterJoint(context.Background(), RegisterJointInput{LineID: "L1", Number: "J2", Diameter: 6})
	if err != nil {
		t.Fatalf("RegisterJoint() error = %v", err)
	}
	if joint.ID != "id-1" || joint.Diameter != 6 {
		t.Fatalf("unexpected joint %#v", joint)
	}
}

func TestCorrectJointDiameter(t *testing.T) {
	repo := newFakeRepo()
	joints := seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel, 4)
	svc := NewService(repo, seqIDs("id"), tickingClock(testStart), ServiceConfig{})

	updated, err := svc.CorrectJointDiameter(context.Background(), joints[0].ID, 8)
	if err != nil {
		t.Fatalf("CorrectJointDiameter() error = %v", err)
	}
	if updated.Diameter != 8 || !updated.UpdatedAt.After(joints[0].UpdatedAt) {
		t.Fatalf("unexpected corrected joint %#v", updated)
	}
	if _, err := svc.CorrectJointDiameter(context.Background(), joints[0].ID, -1); !errors.Is(err, domain.ErrInvalidDiameter) {
		t.Fatalf("expected ErrInvalidDiameter, got %v", err)
	}
}

func TestTotalDiameterReadsEveryPage(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel, 1, 2, 3, 4, 5, 6, 7)
	repo.joints = append(repo.joints, domain.Joint{ID: "bad", LineID: "L1", Number: "JX", Diameter: math.NaN()})
	repo.window = 2
	svc := NewService(repo, seqIDs("id"), tickingClock(testStart), ServiceConfig{PageSize: 5})

	total, err := svc.TotalDiameter(context.Background(), "L1")
	if err != nil {
		t.Fatalf("TotalDiameter() error = %v", err)
	}
	if total != 28 {
		t.Fatalf("expected total diameter 28 across short pages, got %v", total)
	}
	if _, err := svc.TotalDiameter(context.Background(), "missing"); !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}

func TestSeedBaselineRates(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	err := svc.SeedBaselineRates(context.Background(), map[domain.MaterialClass]float64{
		domain.MaterialCarbonSteel: 1.8,
		domain.MaterialPVC:         0.6,
	})
	if err != nil {
		t.Fatalf("SeedBaselineRates() error = %v", err)
	}
	rate, err := repo.GetBaselineRate(context.Background(), domain.MaterialCarbonSteel)
	if err != nil || rate.HoursPerDiameter != 1.8 {
		t.Fatalf("unexpected rate %#v, err %v", rate, err)
	}
	if err := svc.SeedBaselineRates(context.Background(), map[domain.MaterialClass]float64{domain.MaterialPVC: -1}); !errors.Is(err, domain.ErrInvalidHours) {
		t.Fatalf("expected ErrInvalidHours, got %v", err)
	}
}

func TestListLinesSortedByName(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L2", domain.MaterialCarbonSteel)
	seedRegistry(t, repo, "L1", domain.MaterialPVC)
	svc := NewService(repo, nil, nil, ServiceConfig{})

	lines, err := svc.ListLines(context.Background())
	if err != nil {
		t.Fatalf("ListLines() error = %v", err)
	}
	if len(lines) != 2 || lines[0].ID != "L1" || lines[1].ID != "L2" {
		t.Fatalf("unexpected line order %#v", lines)
	}
}
