package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hylla/weldtrack/internal/domain"
)

// recordingLogger captures log messages for assertions.
type recordingLogger struct {
	infos []string
	warns []string
}

func (l *recordingLogger) Info(msg string, _ ...any) { l.infos = append(l.infos, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }

func jointRecords(n int) [][]string {
	out := make([][]string, 0, n)
	for i := range n {
		out = append(out, []string{"Line L1", fmt.Sprintf("N%d", i+1), fmt.Sprintf("%d", 2*(i+1))})
	}
	return out
}

func TestImportRowsAppliesInChunks(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel)
	logger := &recordingLogger{}
	svc := NewService(repo, seqIDs("j"), tickingClock(testStart), ServiceConfig{ImportBatchSize: 2, Logger: logger})

	records := append(jointRecords(5), []string{"Line L1", "N1", "9"})
	report, err := svc.ImportRows(context.Background(), []string{"Linha", "Junta", "DN"}, records, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if report.Schema != SchemaJoints || report.Rows != 6 || report.Accepted != 5 || len(report.Rejected) != 1 {
		t.Fatalf("unexpected reconciliation %#v", report)
	}
	if report.Chunks != 3 || report.Applied != 5 || len(report.Failures) != 0 {
		t.Fatalf("unexpected apply summary %#v", report)
	}
	if len(repo.joints) != 5 {
		t.Fatalf("expected 5 stored joints, got %d", len(repo.joints))
	}
	if repo.joints[4].Number != "N5" || repo.joints[4].Diameter != 10 {
		t.Fatalf("unexpected last joint %#v", repo.joints[4])
	}
	if len(logger.infos) != 4 {
		t.Fatalf("expected reconcile + 3 chunk log lines, got %#v", logger.infos)
	}
}

func TestImportRowsFailedChunkDoesNotStopImport(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel)
	repo.failJointChunk = 2
	logger := &recordingLogger{}
	svc := NewService(repo, seqIDs("j"), tickingClock(testStart), ServiceConfig{ImportBatchSize: 2, Logger: logger})

	report, err := svc.ImportRows(context.Background(), []string{"Line", "JointNumber", "Diameter"}, jointRecords(5), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if report.Applied != 3 || report.Chunks != 3 {
		t.Fatalf("expected chunks 1 and 3 applied, got %#v", report)
	}
	if len(report.Failures) != 1 || report.Failures[0].Chunk != 2 || report.Failures[0].Row != 0 {
		t.Fatalf("expected one chunk-level failure, got %#v", report.Failures)
	}
	if len(repo.joints) != 3 {
		t.Fatalf("expected committed chunks to stay, got %d joints", len(repo.joints))
	}
	if len(logger.warns) != 1 {
		t.Fatalf("expected one warning, got %#v", logger.warns)
	}
}

func TestImportRowsDryRunWritesNothing(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel)
	svc := NewService(repo, seqIDs("j"), tickingClock(testStart), ServiceConfig{})

	report, err := svc.ImportRows(context.Background(), []string{"Line", "JointNumber", "Diameter"}, jointRecords(3), ImportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if !report.DryRun || report.Accepted != 3 || report.Applied != 0 || report.Chunks != 0 {
		t.Fatalf("unexpected dry run report %#v", report)
	}
	if len(repo.joints) != 0 {
		t.Fatalf("expected no writes, got %d joints", len(repo.joints))
	}
}

func TestImportRowsLines(t *testing.T) {
	repo := newFakeRepo()
	seedRegistry(t, repo, "L1", domain.MaterialCarbonSteel)
	svc := NewService(repo, seqIDs("line"), tickingClock(testStart), ServiceConfig{})

	report, err := svc.ImportRows(context.Background(), []string{"Fluid", "Line", "MaterialSpec"}, [][]string{
		{"Agua", "L-300", "galvanized"},
		{"Agua", "L-301", "PVC"},
	}, ImportOptions{})
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if report.Schema != SchemaLines || report.Applied != 2 {
		t.Fatalf("unexpected report %#v", report)
	}
	if len(repo.lines) != 3 || repo.lines[1].Material != domain.MaterialGalvanized || repo.lines[1].FluidID != "fluid-water" {
		t.Fatalf("unexpected stored lines %#v", repo.lines)
	}
}

func TestImportRowsRejectsUnknownHeader(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, ServiceConfig{})
	_, err := svc.ImportRows(context.Background(), []string{"Foo", "Bar"}, nil, ImportOptions{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
