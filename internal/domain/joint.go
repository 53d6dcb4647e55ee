package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Joint is one weld/coupling point on a line, the atomic unit of production tracking.
type Joint struct {
	ID        string
	LineID    string
	Number    string
	Diameter  float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JointInput holds values for registering a joint.
type JointInput struct {
	ID       string
	LineID   string
	Number   string
	Diameter float64
}

// NewJoint constructs a validated joint.
func NewJoint(in JointInput, now time.Time) (Joint, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.LineID = strings.TrimSpace(in.LineID)
	in.Number = strings.TrimSpace(in.Number)
	if in.ID == "" || in.LineID == "" {
		return Joint{}, ErrInvalidID
	}
	if in.Number == "" {
		return Joint{}, ErrInvalidName
	}
	if !validDiameter(in.Diameter) {
		return Joint{}, ErrInvalidDiameter
	}
	return Joint{
		ID:        in.ID,
		LineID:    in.LineID,
		Number:    in.Number,
		Diameter:  in.Diameter,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// CorrectDiameter is the only mutation a registered joint accepts.
func (j *Joint) CorrectDiameter(diameter float64, now time.Time) error {
	if !validDiameter(diameter) {
		return ErrInvalidDiameter
	}
	j.Diameter = diameter
	j.UpdatedAt = now.UTC()
	return nil
}

// validDiameter reports whether d is a finite non-negative number.
func validDiameter(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 0
}

// ParseNumber strictly parses a shop-floor numeric value. Comma decimals, a trailing inch mark
// and a leading "DN" prefix are accepted.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "DN"), "dn"))
	s = strings.TrimSuffix(s, "\"")
	s = strings.TrimSuffix(s, "''")
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

// CoerceNumber parses raw like ParseNumber but yields 0 for anything unusable, including negatives.
func CoerceNumber(raw string) float64 {
	v, err := ParseNumber(raw)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
