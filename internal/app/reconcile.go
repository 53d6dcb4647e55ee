package app

import (
	"fmt"
	"strings"

	"github.com/hylla/weldtrack/internal/domain"
)

// Schema identifies which entity an import file provisions.
type Schema string

// Supported import schemas.
const (
	SchemaLines  Schema = "lines"
	SchemaJoints Schema = "joints"
)

// Rejection reasons with fixed wording.
const (
	ReasonAlreadyExists    = "already exists"
	ReasonDuplicateInBatch = "duplicate within batch"
)

// column is a canonical import field.
type column string

const (
	colFluid       column = "Fluid"
	colLine        column = "Line"
	colMaterial    column = "MaterialSpec"
	colJointNumber column = "JointNumber"
	colDiameter    column = "Diameter"
)

// headerAliases maps each accepted header cell, matched exactly, to its canonical column.
var headerAliases = map[string]column{
	"Fluid":        colFluid,
	"Fluido":       colFluid,
	"Line":         colLine,
	"Linha":        colLine,
	"MaterialSpec": colMaterial,
	"Material":     colMaterial,
	"JointNumber":  colJointNumber,
	"Junta":        colJointNumber,
	"Diameter":     colDiameter,
	"DN":           colDiameter,
}

var schemaColumns = map[Schema][]column{
	SchemaLines:  {colFluid, colLine, colMaterial},
	SchemaJoints: {colLine, colJointNumber, colDiameter},
}

// ImportRow is one data row of an import file. Number is the 1-based data row position.
type ImportRow struct {
	Number      int    `json:"number"`
	Fluid       string `json:"fluid,omitempty"`
	Line        string `json:"line,omitempty"`
	Material    string `json:"material,omitempty"`
	JointNumber string `json:"joint_number,omitempty"`
	Diameter    string `json:"diameter,omitempty"`
}

// AcceptedRow is a reconciled row with its references resolved.
type AcceptedRow struct {
	Row      ImportRow            `json:"row"`
	FluidID  string               `json:"fluid_id,omitempty"`
	LineID   string               `json:"line_id,omitempty"`
	Material domain.MaterialClass `json:"material,omitempty"`
	Diameter float64              `json:"diameter"`
}

// RejectedRow is a row that failed reconciliation, with every violated rule in check order.
type RejectedRow struct {
	Row     ImportRow `json:"row"`
	Reasons []string  `json:"reasons"`
}

// ReconcileResult splits an import batch into rows to apply and rows to report back.
type ReconcileResult struct {
	Schema   Schema        `json:"schema"`
	Accepted []AcceptedRow `json:"accepted"`
	Rejected []RejectedRow `json:"rejected"`
}

// DetectSchema picks the schema whose columns all appear in header. A header matching neither
// schema, or both, is rejected.
func DetectSchema(header []string) (Schema, error) {
	present := headerColumns(header)
	var found []Schema
	for _, schema := range []Schema{SchemaLines, SchemaJoints} {
		complete := true
		for _, col := range schemaColumns[schema] {
			if _, ok := present[col]; !ok {
				complete = false
				break
			}
		}
		if complete {
			found = append(found, schema)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", fmt.Errorf("%w: header %q matches no import schema", ErrValidation, header)
	default:
		return "", fmt.Errorf("%w: header %q matches both line and joint schemas", ErrValidation, header)
	}
}

// ParseImport detects the schema from header and maps records onto import rows.
// Short records leave the missing cells empty.
func ParseImport(header []string, records [][]string) (Schema, []ImportRow, error) {
	schema, err := DetectSchema(header)
	if err != nil {
		return "", nil, err
	}
	positions := headerColumns(header)
	cell := func(record []string, col column) string {
		i, ok := positions[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]ImportRow, 0, len(records))
	for i, record := range records {
		if blankRecord(record) {
			continue
		}
		row := ImportRow{Number: i + 1, Line: cell(record, colLine)}
		switch schema {
		case SchemaLines:
			row.Fluid = cell(record, colFluid)
			row.Material = cell(record, colMaterial)
		case SchemaJoints:
			row.JointNumber = cell(record, colJointNumber)
			row.Diameter = cell(record, colDiameter)
		}
		rows = append(rows, row)
	}
	return schema, rows, nil
}

// headerColumns maps canonical columns to their first position in header.
func headerColumns(header []string) map[column]int {
	out := map[column]int{}
	for i, raw := range header {
		name := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
		col, ok := headerAliases[name]
		if !ok {
			continue
		}
		if _, dup := out[col]; !dup {
			out[col] = i
		}
	}
	return out
}

// blankRecord reports whether every cell is empty.
func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// jointKey is the composite identity of a joint: its line and folded number.
type jointKey struct {
	LineID string
	Number string
}

// ExistingIndex is a lookup over already-registered fluids, lines and joints, keyed by folded name.
type ExistingIndex struct {
	fluids map[string]domain.Fluid
	lines  map[string]domain.Line
	joints map[jointKey]struct{}
}

// NewExistingIndex builds the lookup index before a batch is reconciled.
func NewExistingIndex(fluids []domain.Fluid, lines []domain.Line, joints []domain.Joint) ExistingIndex {
	idx := ExistingIndex{
		fluids: make(map[string]domain.Fluid, len(fluids)),
		lines:  make(map[string]domain.Line, len(lines)),
		joints: make(map[jointKey]struct{}, len(joints)),
	}
	for _, fluid := range fluids {
		idx.fluids[domain.FoldName(fluid.Name)] = fluid
	}
	for _, line := range lines {
		idx.lines[domain.FoldName(line.Name)] = line
	}
	for _, joint := range joints {
		idx.joints[jointKey{LineID: joint.LineID, Number: domain.FoldName(joint.Number)}] = struct{}{}
	}
	return idx
}

// Reconcile validates rows against the index and against each other. A row that passes every
// check is accepted and claims its key; later rows with the same key are duplicates within the batch.
func Reconcile(schema Schema, rows []ImportRow, index ExistingIndex) ReconcileResult {
	result := ReconcileResult{
		Schema:   schema,
		Accepted: make([]AcceptedRow, 0, len(rows)),
		Rejected: make([]RejectedRow, 0),
	}
	seenLines := map[string]struct{}{}
	seenJoints := map[jointKey]struct{}{}

	for _, row := range rows {
		var (
			accepted AcceptedRow
			reasons  []string
		)
		switch schema {
		case SchemaLines:
			accepted, reasons = reconcileLine(row, index, seenLines)
		case SchemaJoints:
			accepted, reasons = reconcileJoint(row, index, seenJoints)
		default:
			reasons = []string{fmt.Sprintf("unsupported schema %q", schema)}
		}
		if len(reasons) > 0 {
			result.Rejected = append(result.Rejected, RejectedRow{Row: row, Reasons: reasons})
			continue
		}
		result.Accepted = append(result.Accepted, accepted)
	}
	return result
}

func reconcileLine(row ImportRow, index ExistingIndex, seen map[string]struct{}) (AcceptedRow, []string) {
	reasons := missingFields(map[string]string{"Fluid": row.Fluid, "Line": row.Line, "MaterialSpec": row.Material}, "Fluid", "Line", "MaterialSpec")
	out := AcceptedRow{Row: row}

	if row.Material != "" {
		material, err := domain.ParseMaterialClass(row.Material)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("unknown material %q", row.Material))
		}
		out.Material = material
	}
	if row.Fluid != "" {
		fluid, ok := index.fluids[domain.FoldName(row.Fluid)]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("unknown fluid %q", row.Fluid))
		}
		out.FluidID = fluid.ID
	}
	if row.Line == "" {
		return out, reasons
	}
	key := domain.FoldName(row.Line)
	if _, ok := index.lines[key]; ok {
		reasons = append(reasons, ReasonAlreadyExists)
	} else if _, ok := seen[key]; ok {
		reasons = append(reasons, ReasonDuplicateInBatch)
	}
	if len(reasons) == 0 {
		seen[key] = struct{}{}
	}
	return out, reasons
}

func reconcileJoint(row ImportRow, index ExistingIndex, seen map[jointKey]struct{}) (AcceptedRow, []string) {
	reasons := missingFields(map[string]string{"Line": row.Line, "JointNumber": row.JointNumber, "Diameter": row.Diameter}, "Line", "JointNumber", "Diameter")
	out := AcceptedRow{Row: row}

	if row.Diameter != "" {
		diameter, err := domain.ParseNumber(row.Diameter)
		if err != nil || diameter < 0 {
			reasons = append(reasons, fmt.Sprintf("unparseable diameter %q", row.Diameter))
		}
		out.Diameter = diameter
	}
	var line domain.Line
	if row.Line != "" {
		found, ok := index.lines[domain.FoldName(row.Line)]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("unknown line %q", row.Line))
		}
		line = found
		out.LineID = found.ID
		out.Material = found.Material
	}
	if line.ID == "" || row.JointNumber == "" {
		return out, reasons
	}
	key := jointKey{LineID: line.ID, Number: domain.FoldName(row.JointNumber)}
	if _, ok := index.joints[key]; ok {
		reasons = append(reasons, ReasonAlreadyExists)
	} else if _, ok := seen[key]; ok {
		reasons = append(reasons, ReasonDuplicateInBatch)
	}
	if len(reasons) == 0 {
		seen[key] = struct{}{}
	}
	return out, reasons
}

// missingFields lists required fields that are empty, in the given order.
func missingFields(values map[string]string, order ...string) []string {
	var out []string
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			out = append(out, "missing "+name)
		}
	}
	return out
}
