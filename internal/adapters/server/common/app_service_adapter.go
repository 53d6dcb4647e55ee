package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/app"
	"github.com/hylla/weldtrack/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// BuildReport returns grouped report rows for the filter.
func (a *AppServiceAdapter) BuildReport(ctx context.Context, in ReportRequest) ([]app.ReportGroup, error) {
	filter, err := a.reportFilter(in)
	if err != nil {
		return nil, err
	}
	groups, err := a.service.BuildReport(ctx, filter)
	if err != nil {
		return nil, mapAppError("build report", err)
	}
	return groups, nil
}

// ReportSummary returns grouped rows plus report-wide totals.
func (a *AppServiceAdapter) ReportSummary(ctx context.Context, in ReportRequest) (ReportSummary, error) {
	filter, err := a.reportFilter(in)
	if err != nil {
		return ReportSummary{}, err
	}
	groups, summary, err := a.service.Summary(ctx, filter)
	if err != nil {
		return ReportSummary{}, mapAppError("report summary", err)
	}
	return ReportSummary{Groups: groups, Summary: summary}, nil
}

// Efficiency returns one efficiency line per material present in the filtered report.
func (a *AppServiceAdapter) Efficiency(ctx context.Context, in ReportRequest) ([]app.EfficiencyLine, error) {
	filter, err := a.reportFilter(in)
	if err != nil {
		return nil, err
	}
	lines, err := a.service.EfficiencyReport(ctx, filter)
	if err != nil {
		return nil, mapAppError("efficiency", err)
	}
	return lines, nil
}

// Capacity returns the per-role balance for one day.
func (a *AppServiceAdapter) Capacity(ctx context.Context, in CapacityRequest) ([]app.CapacityLine, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	date, err := parseDate("date", in.Date)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, fmt.Errorf("date is required: %w", ErrInvalidRequest)
	}
	roster := app.Roster{}
	for role, count := range in.Roster {
		roster[domain.Role(role)] += count
	}
	lines, err := a.service.Capacity(ctx, roster, date)
	if err != nil {
		return nil, mapAppError("capacity", err)
	}
	return lines, nil
}

// JointState derives the lifecycle state of one joint.
func (a *AppServiceAdapter) JointState(ctx context.Context, jointID string) (JointState, error) {
	if err := a.ready(); err != nil {
		return JointState{}, err
	}
	jointID = strings.TrimSpace(jointID)
	if jointID == "" {
		return JointState{}, fmt.Errorf("joint_id is required: %w", ErrInvalidRequest)
	}
	state, err := a.service.LifecycleState(ctx, jointID)
	if err != nil {
		return JointState{}, mapAppError("joint state", err)
	}
	return JointState{JointID: jointID, State: string(state)}, nil
}

// BlockedJoints lists the blocked joints of one line.
func (a *AppServiceAdapter) BlockedJoints(ctx context.Context, lineID string) (BlockedJoints, error) {
	if err := a.ready(); err != nil {
		return BlockedJoints{}, err
	}
	lineID = strings.TrimSpace(lineID)
	if lineID == "" {
		return BlockedJoints{}, fmt.Errorf("line_id is required: %w", ErrInvalidRequest)
	}
	ids, err := a.service.BlockedJoints(ctx, lineID)
	if err != nil {
		return BlockedJoints{}, mapAppError("blocked joints", err)
	}
	return BlockedJoints{LineID: lineID, JointIDs: ids}, nil
}

// RecordEvent appends one ledger event. Replays return the original event id.
func (a *AppServiceAdapter) RecordEvent(ctx context.Context, in RecordEventRequest) (RecordEventResult, error) {
	if err := a.ready(); err != nil {
		return RecordEventResult{}, err
	}
	kind, err := domain.ParseActivityKind(in.Kind)
	if err != nil {
		return RecordEventResult{}, fmt.Errorf("kind: %w", errors.Join(ErrInvalidRequest, err))
	}
	id, err := a.service.RecordEvent(ctx, in.JointID, kind, in.SubmissionID)
	if err != nil {
		return RecordEventResult{}, mapAppError("record event", err)
	}
	return RecordEventResult{EventID: id}, nil
}

// SubmitActivity validates and stores one activity submission.
func (a *AppServiceAdapter) SubmitActivity(ctx context.Context, in SubmitActivityRequest) (Submission, error) {
	if err := a.ready(); err != nil {
		return Submission{}, err
	}
	input, err := submitInput(in)
	if err != nil {
		return Submission{}, err
	}
	sub, err := a.service.SubmitActivity(ctx, input)
	if err != nil {
		return Submission{}, mapAppError("submit activity", err)
	}
	return toSubmission(sub), nil
}

// Import reconciles and applies one decoded sheet.
func (a *AppServiceAdapter) Import(ctx context.Context, in ImportRequest) (app.ImportReport, error) {
	if err := a.ready(); err != nil {
		return app.ImportReport{}, err
	}
	report, err := a.service.ImportRows(ctx, in.Header, in.Records, app.ImportOptions{DryRun: in.DryRun})
	if err != nil {
		return app.ImportReport{}, mapAppError("import", err)
	}
	return report, nil
}

// ready reports whether the adapter has a backing service.
func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return errors.New("app service adapter is not configured")
	}
	return nil
}

// reportFilter validates transport filters into an app filter.
func (a *AppServiceAdapter) reportFilter(in ReportRequest) (app.ReportFilter, error) {
	if err := a.ready(); err != nil {
		return app.ReportFilter{}, err
	}
	return ParseReportRequest(in)
}

// ParseReportRequest validates transport filters into an app filter.
func ParseReportRequest(in ReportRequest) (app.ReportFilter, error) {
	from, err := parseDate("from", in.From)
	if err != nil {
		return app.ReportFilter{}, err
	}
	to, err := parseDate("to", in.To)
	if err != nil {
		return app.ReportFilter{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return app.ReportFilter{}, fmt.Errorf("to precedes from: %w", ErrInvalidRequest)
	}
	filter := app.ReportFilter{
		From:          from,
		To:            to,
		ActivityTypes: compact(in.ActivityTypes),
		LineIDs:       compact(in.LineIDs),
	}
	for _, raw := range compact(in.Materials) {
		material, err := domain.ParseMaterialClass(raw)
		if err != nil {
			return app.ReportFilter{}, fmt.Errorf("material %q: %w", raw, errors.Join(ErrInvalidRequest, err))
		}
		filter.Materials = append(filter.Materials, material)
	}
	return filter, nil
}

// submitInput converts a transport submission into service input.
func submitInput(in SubmitActivityRequest) (app.SubmitActivityInput, error) {
	kind, err := domain.ParseActivityKind(in.Kind)
	if err != nil {
		return app.SubmitActivityInput{}, fmt.Errorf("kind: %w", errors.Join(ErrInvalidRequest, err))
	}
	date, err := parseDate("date", in.Date)
	if err != nil {
		return app.SubmitActivityInput{}, err
	}
	var material domain.MaterialClass
	if strings.TrimSpace(in.Material) != "" {
		material, err = domain.ParseMaterialClass(in.Material)
		if err != nil {
			return app.SubmitActivityInput{}, fmt.Errorf("material: %w", errors.Join(ErrInvalidRequest, err))
		}
	}
	crew := domain.Crew{}
	for role, count := range in.Crew {
		crew[domain.Role(role)] += count
	}

	out := app.SubmitActivityInput{
		ParentID:  in.ParentID,
		Kind:      kind,
		TypeLabel: in.TypeLabel,
		Date:      date,
		Hours:     in.Hours,
		Crew:      crew,
		LineID:    in.LineID,
		Material:  material,
	}
	switch kind.Family() {
	case domain.FamilySupport:
		if in.Support != nil {
			out.Detail = domain.SupportDetail{WeightKg: in.Support.WeightKg, Quantity: in.Support.Quantity}
		}
	case domain.FamilyEquipment:
		if in.Equipment != nil {
			detail := domain.EquipmentDetail{Tag: in.Equipment.Tag}
			for _, stage := range in.Equipment.Stages {
				detail.Stages = append(detail.Stages, domain.EquipmentStage{Name: stage.Name, Percent: stage.Percent})
			}
			out.Detail = detail
		}
	default:
		out.Detail = domain.TubulationDetail{JointIDs: in.JointIDs, FluidID: in.FluidID}
	}
	return out, nil
}

// toSubmission converts a stored submission into its transport view.
func toSubmission(sub domain.ActivitySubmission) Submission {
	crew := make(map[string]int, len(sub.Crew))
	for role, count := range sub.Crew {
		crew[string(role)] = count
	}
	out := Submission{
		ID:          sub.ID,
		ParentID:    sub.ParentID,
		Kind:        string(sub.Kind),
		TypeLabel:   sub.TypeLabel,
		Date:        sub.Date.Format(time.DateOnly),
		Hours:       sub.Hours,
		Crew:        crew,
		PersonHours: sub.PersonHours(),
		LineID:      sub.LineID,
		Material:    string(sub.Material),
		Detail:      sub.Detail,
		CreatedAt:   sub.CreatedAt,
	}
	if sub.Detail != nil {
		out.Family = string(sub.Detail.Family())
	}
	return out
}

// parseDate parses one optional YYYY-MM-DD value.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, ErrInvalidRequest)
	}
	return t, nil
}

// compact trims values and drops blanks.
func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mapAppError maps app and domain errors into transport-facing sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrUnknownReference):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrJointBlocked), errors.Is(err, app.ErrDuplicateKey):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidMaterial),
		errors.Is(err, domain.ErrInvalidDiameter),
		errors.Is(err, domain.ErrInvalidActivityKind),
		errors.Is(err, domain.ErrInvalidHours),
		errors.Is(err, domain.ErrInvalidCrew),
		errors.Is(err, domain.ErrInvalidDetail),
		errors.Is(err, domain.ErrInvalidDate):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
