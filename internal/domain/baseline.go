package domain

import "math"

// BaselineRate is the reference hours-per-diameter-unit for a material class.
type BaselineRate struct {
	Material         MaterialClass
	HoursPerDiameter float64
}

// NewBaselineRate constructs a validated baseline rate.
func NewBaselineRate(material MaterialClass, rate float64) (BaselineRate, error) {
	if !material.Valid() {
		return BaselineRate{}, ErrInvalidMaterial
	}
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return BaselineRate{}, ErrInvalidHours
	}
	return BaselineRate{Material: material, HoursPerDiameter: rate}, nil
}
