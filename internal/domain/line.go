package domain

import (
	"strings"
	"time"
)

// Fluid represents the process fluid carried by one or more lines.
type Fluid struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// NewFluid constructs a validated fluid.
func NewFluid(id, name string, now time.Time) (Fluid, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Fluid{}, ErrInvalidID
	}
	if name == "" {
		return Fluid{}, ErrInvalidName
	}
	return Fluid{ID: id, Name: name, CreatedAt: now.UTC()}, nil
}

// Line represents a piping line. Its material decides which baseline rate applies to its joints.
type Line struct {
	ID        string
	Name      string
	Material  MaterialClass
	FluidID   string
	CreatedAt time.Time
}

// LineInput holds values for constructing a line.
type LineInput struct {
	ID       string
	Name     string
	Material MaterialClass
	FluidID  string
}

// NewLine constructs a validated line.
func NewLine(in LineInput, now time.Time) (Line, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.FluidID = strings.TrimSpace(in.FluidID)
	if in.ID == "" || in.FluidID == "" {
		return Line{}, ErrInvalidID
	}
	if in.Name == "" {
		return Line{}, ErrInvalidName
	}
	if !in.Material.Valid() {
		return Line{}, ErrInvalidMaterial
	}
	return Line{
		ID:        in.ID,
		Name:      in.Name,
		Material:  in.Material,
		FluidID:   in.FluidID,
		CreatedAt: now.UTC(),
	}, nil
}
