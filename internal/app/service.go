package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// Default sizes used when ServiceConfig leaves them unset.
const (
	DefaultImportBatchSize = 50
	DefaultPageSize        = 500
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	ImportBatchSize int
	PageSize        int
	Logger          Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service is the application entry point for registry, ledger, import and reporting flows.
// It keeps no mutable state of its own; every derived value is recomputed from repository reads.
type Service struct {
	repo      Repository
	idGen     IDGenerator
	clock     Clock
	batchSize int
	pageSize  int
	logger    Logger
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.ImportBatchSize <= 0 {
		cfg.ImportBatchSize = DefaultImportBatchSize
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Service{
		repo:      repo,
		idGen:     idGen,
		clock:     clock,
		batchSize: cfg.ImportBatchSize,
		pageSize:  cfg.PageSize,
		logger:    cfg.Logger,
	}
}

// CreateFluid registers a fluid. Names are unique ignoring case and accents.
func (s *Service) CreateFluid(ctx context.Context, name string) (domain.Fluid, error) {
	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return domain.Fluid{}, err
	}
	for _, existing := range fluids {
		if domain.SameName(existing.Name, name) {
			return domain.Fluid{}, fmt.Errorf("%w: fluid %q", ErrDuplicateKey, existing.Name)
		}
	}
	fluid, err := domain.NewFluid(s.idGen(), name, s.clock())
	if err != nil {
		return domain.Fluid{}, err
	}
	if err := s.repo.CreateFluid(ctx, fluid); err != nil {
		return domain.Fluid{}, err
	}
	return fluid, nil
}

// CreateLineInput holds input values for create line operations.
type CreateLineInput struct {
	Name     string
	Material domain.MaterialClass
	FluidID  string
}

// CreateLine registers a line after checking its fluid exists.
func (s *Service) CreateLine(ctx context.Context, in CreateLineInput) (domain.Line, error) {
	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return domain.Line{}, err
	}
	if !slices.ContainsFunc(fluids, func(f domain.Fluid) bool { return f.ID == strings.TrimSpace(in.FluidID) }) {
		return domain.Line{}, unknownRef("fluid", in.FluidID)
	}
	line, err := domain.NewLine(domain.LineInput{
		ID:       s.idGen(),
		Name:     in.Name,
		Material: in.Material,
		FluidID:  in.FluidID,
	}, s.clock())
	if err != nil {
		return domain.Line{}, err
	}
	if err := s.repo.CreateLine(ctx, line); err != nil {
		return domain.Line{}, err
	}
	return line, nil
}

// RegisterJointInput holds input values for register joint operations.
type RegisterJointInput struct {
	LineID   string
	Number   string
	Diameter float64
}

// RegisterJoint adds a joint to the registry. The (line, number) pair must be unused.
func (s *Service) RegisterJoint(ctx context.Context, in RegisterJointInput) (domain.Joint, error) {
	if _, err := s.getLine(ctx, in.LineID); err != nil {
		return domain.Joint{}, err
	}
	existing, err := s.listAllJoints(ctx, in.LineID)
	if err != nil {
		return domain.Joint{}, err
	}
	for _, joint := range existing {
		if domain.SameName(joint.Number, in.Number) {
			return domain.Joint{}, fmt.Errorf("%w: joint %q on line %s", ErrDuplicateKey, joint.Number, in.LineID)
		}
	}
	joint, err := domain.NewJoint(domain.JointInput{
		ID:       s.idGen(),
		LineID:   in.LineID,
		Number:   in.Number,
		Diameter: in.Diameter,
	}, s.clock())
	if err != nil {
		return domain.Joint{}, err
	}
	if err := s.repo.CreateJoint(ctx, joint); err != nil {
		return domain.Joint{}, err
	}
	return joint, nil
}

// CorrectJointDiameter applies a diameter correction to a registered joint.
func (s *Service) CorrectJointDiameter(ctx context.Context, jointID string, diameter float64) (domain.Joint, error) {
	joint, err := s.getJoint(ctx, jointID)
	if err != nil {
		return domain.Joint{}, err
	}
	if err := joint.CorrectDiameter(diameter, s.clock()); err != nil {
		return domain.Joint{}, err
	}
	if err := s.repo.UpdateJoint(ctx, joint); err != nil {
		return domain.Joint{}, err
	}
	return joint, nil
}

// ListFluids lists fluids sorted by name.
func (s *Service) ListFluids(ctx context.Context) ([]domain.Fluid, error) {
	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(fluids, func(a, b domain.Fluid) int {
		return strings.Compare(a.Name, b.Name)
	})
	return fluids, nil
}

// ListLines lists lines sorted by name.
func (s *Service) ListLines(ctx context.Context) ([]domain.Line, error) {
	lines, err := s.repo.ListLines(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(lines, func(a, b domain.Line) int {
		return strings.Compare(a.Name, b.Name)
	})
	return lines, nil
}

// ListJoints lists every joint of a line, or of all lines when lineID is empty.
func (s *Service) ListJoints(ctx context.Context, lineID string) ([]domain.Joint, error) {
	return s.listAllJoints(ctx, strings.TrimSpace(lineID))
}

// SeedBaselineRates stores externally configured baseline rates.
func (s *Service) SeedBaselineRates(ctx context.Context, rates map[domain.MaterialClass]float64) error {
	for _, material := range domain.MaterialClasses() {
		value, ok := rates[material]
		if !ok {
			continue
		}
		rate, err := domain.NewBaselineRate(material, value)
		if err != nil {
			return fmt.Errorf("baseline rate %s: %w", material, err)
		}
		if err := s.repo.UpsertBaselineRate(ctx, rate); err != nil {
			return fmt.Errorf("store baseline rate %s: %w", material, err)
		}
	}
	return nil
}

// getLine loads a line, translating a miss into an UnknownReferenceError.
func (s *Service) getLine(ctx context.Context, lineID string) (domain.Line, error) {
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return domain.Line{}, domain.ErrInvalidID
	}
	line, err := s.repo.GetLine(ctx, lineID)
	if errors.Is(err, ErrNotFound) {
		return domain.Line{}, unknownRef("line", lineID)
	}
	return line, err
}

// getJoint loads a joint, translating a miss into an UnknownReferenceError.
func (s *Service) getJoint(ctx context.Context, jointID string) (domain.Joint, error) {
	jointID = strings.TrimSpace(jointID)
	if jointID == "" {
		return domain.Joint{}, domain.ErrInvalidID
	}
	joint, err := s.repo.GetJoint(ctx, jointID)
	if errors.Is(err, ErrNotFound) {
		return domain.Joint{}, unknownRef("joint", jointID)
	}
	return joint, err
}

// nopLogger discards log events.
type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
