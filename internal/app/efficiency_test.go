package app

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/weldtrack/internal/domain"
)

func TestClassifyBoundaryIsEfficient(t *testing.T) {
	cases := []struct {
		ratio    float64
		baseline float64
		want     Classification
	}{
		{ratio: 1.8, baseline: 1.8, want: ClassEfficient},
		{ratio: 1.2, baseline: 1.8, want: ClassEfficient},
		{ratio: 1.81, baseline: 1.8, want: ClassAboveBaseline},
		{ratio: 0, baseline: 0, want: ClassEfficient},
	}
	for _, tc := range cases {
		if got := Classify(tc.ratio, tc.baseline); got != tc.want {
			t.Fatalf("Classify(%v, %v) = %q, want %q", tc.ratio, tc.baseline, got, tc.want)
		}
	}
}

func TestEfficiencyPerMaterial(t *testing.T) {
	in := reportFixture(t)
	in.Submissions = []domain.ActivitySubmission{
		tubulation("s1", "", domain.KindWeld, testStart, 3, domain.Crew{"welder": 2}, "L1-j1", "L1-j2"),
		tubulation("s2", "", domain.KindCoupling, testStart, 1, domain.Crew{"fitter": 3}, "L1-j2", "L1-j3"),
		tubulation("s3", "", domain.KindWeld, testStart, 5, domain.Crew{"welder": 1}, "L2-j1"),
	}
	groups := BuildReport(in, ReportFilter{})

	// carbon steel: (6 + 3) person-hours over joints 2 + 4 + 6.
	if got := Efficiency(domain.MaterialCarbonSteel, groups); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("expected carbon steel ratio 0.75, got %v", got)
	}
	if got := Efficiency(domain.MaterialPVC, groups); got != 0.5 {
		t.Fatalf("expected pvc ratio 0.5, got %v", got)
	}
	if got := Efficiency(domain.MaterialGalvanized, groups); got != 0 {
		t.Fatalf("expected 0 for a material with no joints, got %v", got)
	}
}

func TestEfficiencyChargesEachSubmissionToOneMaterial(t *testing.T) {
	in := reportFixture(t)
	in.Submissions = []domain.ActivitySubmission{
		tubulation("mixed", "", domain.KindWeld, testStart, 5, domain.Crew{"welder": 2}, "L1-j1", "L2-j1"),
	}
	groups := BuildReport(in, ReportFilter{})

	total := 0.0
	for _, material := range domain.MaterialClasses() {
		personHours, _ := efficiencyTotals(material, groups)
		total += personHours
	}
	if total != 10 {
		t.Fatalf("expected 10 person-hours attributed once, got %v", total)
	}
	if personHours, _ := efficiencyTotals(domain.MaterialPVC, groups); personHours != 0 {
		t.Fatalf("expected no pvc person-hours, got %v", personHours)
	}
}

func TestTotalDiameterCoercesUnusableValues(t *testing.T) {
	joints := []domain.Joint{
		{ID: "a", Diameter: 4},
		{ID: "b", Diameter: math.NaN()},
		{ID: "c", Diameter: math.Inf(1)},
		{ID: "d", Diameter: -3},
		{ID: "e", Diameter: 2.5},
	}
	if got := TotalDiameter(joints); got != 6.5 {
		t.Fatalf("expected 6.5, got %v", got)
	}
	if got := TotalDiameter(nil); got != 0 {
		t.Fatalf("expected 0 for no joints, got %v", got)
	}
}

func TestEfficiencyReportUsesBaselines(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel, 5, 5)
	seedRegistry(t, repo, "L2", domain.MaterialPVC, 4)
	repo.submissions = []domain.ActivitySubmission{
		tubulation("s1", "", domain.KindWeld, testStart, 9, domain.Crew{"welder": 2}, "L1-j1", "L1-j2"),
		tubulation("s2", "", domain.KindWeld, testStart, 2, domain.Crew{"welder": 1}, "L2-j1"),
	}
	repo.rates[domain.MaterialCarbonSteel] = domain.BaselineRate{Material: domain.MaterialCarbonSteel, HoursPerDiameter: 1.8}
	svc := NewService(repo, nil, nil, ServiceConfig{})

	lines, err := svc.EfficiencyReport(context.Background(), ReportFilter{})
	if err != nil {
		t.Fatalf("EfficiencyReport() error = %v", err)
	}
	want := []EfficiencyLine{
		{
			Material:       domain.MaterialCarbonSteel,
			PersonHours:    18,
			DiameterSum:    10,
			Ratio:          1.8,
			Baseline:       1.8,
			HasBaseline:    true,
			Classification: ClassEfficient,
		},
		{
			Material:       domain.MaterialPVC,
			PersonHours:    2,
			DiameterSum:    4,
			Ratio:          0.5,
			Classification: ClassNoBaseline,
		},
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("efficiency mismatch (-want +got):\n%s", diff)
	}
}
