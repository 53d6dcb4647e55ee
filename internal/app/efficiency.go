package app

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/hylla/weldtrack/internal/domain"
)

// Classification compares a computed ratio with its baseline.
type Classification string

// Classification values.
const (
	ClassEfficient     Classification = "efficient"
	ClassAboveBaseline Classification = "above_baseline"
	ClassNoBaseline    Classification = "no_baseline"
)

// EfficiencyLine is the efficiency of one material class.
type EfficiencyLine struct {
	Material       domain.MaterialClass `json:"material"`
	PersonHours    float64              `json:"person_hours"`
	DiameterSum    float64              `json:"diameter_sum"`
	Ratio          float64              `json:"ratio"`
	Baseline       float64              `json:"baseline"`
	HasBaseline    bool                 `json:"has_baseline"`
	Classification Classification       `json:"classification"`
}

// Efficiency returns person-hours per diameter unit for one material across report groups.
// Each submission and each joint contributes once even when it appears in several rows.
// The result is 0 when no diameter was worked on.
func Efficiency(material domain.MaterialClass, groups []ReportGroup) float64 {
	personHours, diameter := efficiencyTotals(material, groups)
	if diameter == 0 {
		return 0
	}
	return personHours / diameter
}

// efficiencyTotals sums distinct-submission person-hours and distinct-joint diameter for a material.
func efficiencyTotals(material domain.MaterialClass, groups []ReportGroup) (float64, float64) {
	subs := map[string]struct{}{}
	joints := map[string]struct{}{}
	personHours, diameter := 0.0, 0.0
	for _, group := range groups {
		for _, row := range group.Rows {
			if row.Material != material {
				continue
			}
			if _, ok := subs[row.SubmissionID]; !ok {
				subs[row.SubmissionID] = struct{}{}
				personHours += nonNegative(row.PersonHours)
			}
			if row.JointID == "" {
				continue
			}
			if _, ok := joints[row.JointID]; !ok {
				joints[row.JointID] = struct{}{}
				diameter += nonNegative(row.Diameter)
			}
		}
	}
	return personHours, diameter
}

// TotalDiameter sums joint diameters, counting unusable values as 0.
func TotalDiameter(joints []domain.Joint) float64 {
	total := 0.0
	for _, joint := range joints {
		total += nonNegative(joint.Diameter)
	}
	return total
}

// Classify reports whether ratio meets baseline. Ties are efficient.
func Classify(ratio, baseline float64) Classification {
	if ratio <= baseline {
		return ClassEfficient
	}
	return ClassAboveBaseline
}

// EfficiencyReport computes one efficiency line per material present in the filtered report.
func (s *Service) EfficiencyReport(ctx context.Context, filter ReportFilter) ([]EfficiencyLine, error) {
	groups, err := s.BuildReport(ctx, filter)
	if err != nil {
		return nil, err
	}
	present := map[domain.MaterialClass]struct{}{}
	for _, group := range groups {
		for _, row := range group.Rows {
			if row.Material.Valid() {
				present[row.Material] = struct{}{}
			}
		}
	}

	out := make([]EfficiencyLine, 0, len(present))
	for _, material := range domain.MaterialClasses() {
		if _, ok := present[material]; !ok {
			continue
		}
		personHours, diameter := efficiencyTotals(material, groups)
		line := EfficiencyLine{
			Material:       material,
			PersonHours:    personHours,
			DiameterSum:    diameter,
			Ratio:          Efficiency(material, groups),
			Classification: ClassNoBaseline,
		}
		rate, err := s.repo.GetBaselineRate(ctx, material)
		switch {
		case err == nil:
			line.Baseline = rate.HoursPerDiameter
			line.HasBaseline = true
			line.Classification = Classify(line.Ratio, rate.HoursPerDiameter)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
		out = append(out, line)
	}
	return slices.Clip(out), nil
}

// TotalDiameter pages through every joint of a line (all lines when lineID is empty) and sums diameters.
func (s *Service) TotalDiameter(ctx context.Context, lineID string) (float64, error) {
	if lineID != "" {
		if _, err := s.getLine(ctx, lineID); err != nil {
			return 0, err
		}
	}
	joints, err := s.listAllJoints(ctx, lineID)
	if err != nil {
		return 0, err
	}
	return TotalDiameter(joints), nil
}

// nonNegative maps NaN, infinities and negatives to 0.
func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
