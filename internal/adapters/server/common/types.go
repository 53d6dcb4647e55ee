// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/hylla/weldtrack/internal/app"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports writes rejected by current ledger or registry state.
var ErrConflict = errors.New("conflict")

// ReportRequest carries report filters as transport strings. Dates use YYYY-MM-DD.
type ReportRequest struct {
	From          string   `json:"from,omitempty"`
	To            string   `json:"to,omitempty"`
	ActivityTypes []string `json:"activity_types,omitempty"`
	Materials     []string `json:"materials,omitempty"`
	LineIDs       []string `json:"line_ids,omitempty"`
}

// ReportSummary pairs grouped report rows with report-wide totals.
type ReportSummary struct {
	Groups  []app.ReportGroup     `json:"groups"`
	Summary app.ProductionSummary `json:"summary"`
}

// CapacityRequest asks for one day's capacity balance.
type CapacityRequest struct {
	Date   string         `json:"date"`
	Roster map[string]int `json:"roster"`
}

// JointState reports the derived lifecycle state of one joint.
type JointState struct {
	JointID string `json:"joint_id"`
	State   string `json:"state"`
}

// BlockedJoints lists blocked joint ids of one line.
type BlockedJoints struct {
	LineID   string   `json:"line_id"`
	JointIDs []string `json:"joint_ids"`
}

// RecordEventRequest appends one status event.
type RecordEventRequest struct {
	JointID      string `json:"joint_id"`
	Kind         string `json:"kind"`
	SubmissionID string `json:"submission_id,omitempty"`
}

// RecordEventResult returns the stored (or previously stored) event id.
type RecordEventResult struct {
	EventID string `json:"event_id"`
}

// SupportPayload carries support detail fields.
type SupportPayload struct {
	WeightKg float64 `json:"weight_kg"`
	Quantity int     `json:"quantity"`
}

// EquipmentStagePayload carries one staged equipment percentage.
type EquipmentStagePayload struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// EquipmentPayload carries equipment detail fields.
type EquipmentPayload struct {
	Tag    string                  `json:"tag,omitempty"`
	Stages []EquipmentStagePayload `json:"stages"`
}

// SubmitActivityRequest carries one activity submission. Only the payload matching the kind's
// family is read.
type SubmitActivityRequest struct {
	ParentID  string            `json:"parent_id,omitempty"`
	Kind      string            `json:"kind"`
	TypeLabel string            `json:"type_label,omitempty"`
	Date      string            `json:"date"`
	Hours     float64           `json:"hours"`
	Crew      map[string]int    `json:"crew"`
	LineID    string            `json:"line_id,omitempty"`
	Material  string            `json:"material,omitempty"`
	JointIDs  []string          `json:"joint_ids,omitempty"`
	FluidID   string            `json:"fluid_id,omitempty"`
	Support   *SupportPayload   `json:"support,omitempty"`
	Equipment *EquipmentPayload `json:"equipment,omitempty"`
}

// Submission is the transport view of one stored submission.
type Submission struct {
	ID          string         `json:"id"`
	ParentID    string         `json:"parent_id,omitempty"`
	Kind        string         `json:"kind"`
	TypeLabel   string         `json:"type_label"`
	Date        string         `json:"date"`
	Hours       float64        `json:"hours"`
	Crew        map[string]int `json:"crew"`
	PersonHours float64        `json:"person_hours"`
	LineID      string         `json:"line_id,omitempty"`
	Material    string         `json:"material,omitempty"`
	Family      string         `json:"family"`
	Detail      any            `json:"detail"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ImportRequest carries one decoded tabular sheet.
type ImportRequest struct {
	Header  []string
	Records [][]string
	DryRun  bool
}

// ProductionService is the surface shared by REST and MCP transports.
type ProductionService interface {
	BuildReport(context.Context, ReportRequest) ([]app.ReportGroup, error)
	ReportSummary(context.Context, ReportRequest) (ReportSummary, error)
	Efficiency(context.Context, ReportRequest) ([]app.EfficiencyLine, error)
	Capacity(context.Context, CapacityRequest) ([]app.CapacityLine, error)
	JointState(context.Context, string) (JointState, error)
	BlockedJoints(context.Context, string) (BlockedJoints, error)
	RecordEvent(context.Context, RecordEventRequest) (RecordEventResult, error)
	SubmitActivity(context.Context, SubmitActivityRequest) (Submission, error)
	Import(context.Context, ImportRequest) (app.ImportReport, error)
}
