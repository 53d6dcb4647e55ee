package app

import (
	"context"
	"fmt"
	"slices"

	"github.com/hylla/weldtrack/internal/domain"
)

// ImportOptions controls one import run.
type ImportOptions struct {
	DryRun bool
}

// ImportFailure is a write failure for an accepted row. Row is 0 when a whole chunk failed.
type ImportFailure struct {
	Chunk int    `json:"chunk"`
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// ImportReport summarizes an import: reconciliation results plus what was written.
type ImportReport struct {
	Schema   Schema          `json:"schema"`
	Rows     int             `json:"rows"`
	Accepted int             `json:"accepted"`
	Rejected []RejectedRow   `json:"rejected"`
	Applied  int             `json:"applied"`
	Chunks   int             `json:"chunks"`
	Failures []ImportFailure `json:"failures"`
	DryRun   bool            `json:"dry_run"`
}

// ImportRows reconciles tabular rows against the registry and writes accepted rows in fixed-size
// chunks. A failed chunk is recorded and the import continues; earlier chunks stay committed.
func (s *Service) ImportRows(ctx context.Context, header []string, records [][]string, opts ImportOptions) (ImportReport, error) {
	schema, rows, err := ParseImport(header, records)
	if err != nil {
		return ImportReport{}, err
	}
	index, err := s.existingIndex(ctx)
	if err != nil {
		return ImportReport{}, err
	}
	result := Reconcile(schema, rows, index)
	report := ImportReport{
		Schema:   schema,
		Rows:     len(rows),
		Accepted: len(result.Accepted),
		Rejected: result.Rejected,
		Failures: make([]ImportFailure, 0),
		DryRun:   opts.DryRun,
	}
	s.logger.Info("import reconciled", "schema", schema, "rows", len(rows), "accepted", report.Accepted, "rejected", len(report.Rejected))
	if opts.DryRun {
		return report, nil
	}

	for chunk := range slices.Chunk(result.Accepted, s.batchSize) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Chunks++
		applied, failures := s.applyChunk(ctx, schema, report.Chunks, chunk)
		report.Applied += applied
		report.Failures = append(report.Failures, failures...)
		if len(failures) > 0 {
			s.logger.Warn("import chunk partially failed", "chunk", report.Chunks, "rows", len(chunk), "applied", applied, "failed", len(failures))
			continue
		}
		s.logger.Info("import chunk applied", "chunk", report.Chunks, "rows", len(chunk))
	}
	return report, nil
}

// existingIndex reads the registry into a reconciliation index.
func (s *Service) existingIndex(ctx context.Context) (ExistingIndex, error) {
	fluids, err := s.repo.ListFluids(ctx)
	if err != nil {
		return ExistingIndex{}, err
	}
	lines, err := s.repo.ListLines(ctx)
	if err != nil {
		return ExistingIndex{}, err
	}
	joints, err := s.listAllJoints(ctx, "")
	if err != nil {
		return ExistingIndex{}, err
	}
	return NewExistingIndex(fluids, lines, joints), nil
}

// applyChunk writes one chunk of accepted rows and returns the applied count and failures.
func (s *Service) applyChunk(ctx context.Context, schema Schema, chunkNo int, chunk []AcceptedRow) (int, []ImportFailure) {
	failures := make([]ImportFailure, 0)
	fail := func(row int, err error) {
		failures = append(failures, ImportFailure{Chunk: chunkNo, Row: row, Error: err.Error()})
	}

	// Rows whose entity cannot be built are failures, the rest are written together.
	var (
		rowNumbers []int
		itemErrs   []error
		chunkErr   error
	)
	switch schema {
	case SchemaLines:
		lines := make([]domain.Line, 0, len(chunk))
		for _, row := range chunk {
			line, err := domain.NewLine(domain.LineInput{
				ID:       s.idGen(),
				Name:     row.Row.Line,
				Material: row.Material,
				FluidID:  row.FluidID,
			}, s.clock())
			if err != nil {
				fail(row.Row.Number, err)
				continue
			}
			lines = append(lines, line)
			rowNumbers = append(rowNumbers, row.Row.Number)
		}
		if len(lines) > 0 {
			itemErrs, chunkErr = s.repo.CreateLines(ctx, lines)
		}
	case SchemaJoints:
		joints := make([]domain.Joint, 0, len(chunk))
		for _, row := range chunk {
			joint, err := domain.NewJoint(domain.JointInput{
				ID:       s.idGen(),
				LineID:   row.LineID,
				Number:   row.Row.JointNumber,
				Diameter: row.Diameter,
			}, s.clock())
			if err != nil {
				fail(row.Row.Number, err)
				continue
			}
			joints = append(joints, joint)
			rowNumbers = append(rowNumbers, row.Row.Number)
		}
		if len(joints) > 0 {
			itemErrs, chunkErr = s.repo.CreateJoints(ctx, joints)
		}
	default:
		fail(0, fmt.Errorf("%w: unsupported schema %q", ErrValidation, schema))
		return 0, failures
	}

	if chunkErr != nil {
		fail(0, chunkErr)
		return 0, failures
	}
	applied := 0
	for i, number := range rowNumbers {
		if i < len(itemErrs) && itemErrs[i] != nil {
			fail(number, itemErrs[i])
			continue
		}
		applied++
	}
	return applied, failures
}
