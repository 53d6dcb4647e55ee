package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// ReportFilter selects which submissions feed a report. Zero values do not filter.
type ReportFilter struct {
	From          time.Time              `json:"from,omitempty"`
	To            time.Time              `json:"to,omitempty"`
	ActivityTypes []string               `json:"activity_types,omitempty"`
	Materials     []domain.MaterialClass `json:"materials,omitempty"`
	LineIDs       []string               `json:"line_ids,omitempty"`
}

// ReportInput is the snapshot a report is computed from.
type ReportInput struct {
	Submissions []domain.ActivitySubmission
	Joints      []domain.Joint
	Lines       []domain.Line
}

// RowKey identifies one expanded (submission, joint) row. JointID is empty for zero-joint rows.
type RowKey struct {
	SubmissionID string
	JointID      string
}

// ReportRow is one submission expanded onto one joint. Hours, headcount and person-hours are the
// parent submission's values, repeated on each of its rows.
type ReportRow struct {
	SubmissionID string                `json:"submission_id"`
	ParentID     string                `json:"parent_id,omitempty"`
	Kind         domain.ActivityKind   `json:"kind"`
	Date         time.Time             `json:"date"`
	JointID      string                `json:"joint_id,omitempty"`
	JointNumber  string                `json:"joint_number,omitempty"`
	Diameter     float64               `json:"diameter"`
	LineID       string                `json:"line_id,omitempty"`
	LineName     string                `json:"line_name,omitempty"`
	Material     domain.MaterialClass  `json:"material,omitempty"`
	Hours        float64               `json:"hours"`
	Headcount    int                   `json:"headcount"`
	PersonHours  float64               `json:"person_hours"`
	Family       domain.ActivityFamily `json:"family"`
	Detail       domain.ActivityDetail `json:"detail,omitempty"`
}

// Key returns the row identity.
func (r ReportRow) Key() RowKey {
	return RowKey{SubmissionID: r.SubmissionID, JointID: r.JointID}
}

// ReportGroup aggregates the rows of one activity-type label. Not persisted.
type ReportGroup struct {
	Label           string      `json:"label"`
	Rows            []ReportRow `json:"rows"`
	SubmissionCount int         `json:"submission_count"`
	InformedHours   float64     `json:"informed_hours"`
	PersonHours     float64     `json:"person_hours"`
	Headcount       int         `json:"headcount"`
	JointCount      int         `json:"joint_count"`
	DiameterSum     float64     `json:"diameter_sum"`
	LatestDate      time.Time   `json:"latest_date"`
}

// BuildReport expands submissions into per-joint rows and folds them into groups by activity type.
// Each submission is visited directly and again as a nested step of its parent; the row key set
// keeps every (submission, joint) pair to exactly one row. Groups are sorted by label.
func BuildReport(in ReportInput, filter ReportFilter) []ReportGroup {
	b := newReportBuilder(in, filter)

	children := make(map[string][]domain.ActivitySubmission)
	for _, sub := range in.Submissions {
		if sub.ParentID != "" {
			children[sub.ParentID] = append(children[sub.ParentID], sub)
		}
	}
	for _, sub := range in.Submissions {
		b.visit(sub)
		for _, step := range children[sub.ID] {
			b.visit(step)
		}
	}
	return b.groups()
}

// BuildReport loads a fresh snapshot from the repository and builds the report.
func (s *Service) BuildReport(ctx context.Context, filter ReportFilter) ([]ReportGroup, error) {
	in, err := s.reportInput(ctx, filter)
	if err != nil {
		return nil, err
	}
	return BuildReport(in, filter), nil
}

// reportInput reads lines, joints and the submissions in the filter's date range.
func (s *Service) reportInput(ctx context.Context, filter ReportFilter) (ReportInput, error) {
	lines, err := s.repo.ListLines(ctx)
	if err != nil {
		return ReportInput{}, err
	}
	joints, err := s.listAllJoints(ctx, "")
	if err != nil {
		return ReportInput{}, err
	}
	submissions, err := s.ListSubmissions(ctx, filter.From, filter.To)
	if err != nil {
		return ReportInput{}, err
	}
	return ReportInput{Submissions: submissions, Joints: joints, Lines: lines}, nil
}

// groupAcc accumulates one group while rows are added.
type groupAcc struct {
	group       ReportGroup
	submissions map[string]struct{}
	joints      map[string]struct{}
}

// reportBuilder holds the lookup indexes and the processed-row identity set for one build.
type reportBuilder struct {
	filter    ReportFilter
	types     map[string]struct{}
	materials map[domain.MaterialClass]struct{}
	lineIDs   map[string]struct{}
	lines     map[string]domain.Line
	joints    map[string]domain.Joint
	seen      map[RowKey]struct{}
	acc       map[string]*groupAcc
}

func newReportBuilder(in ReportInput, filter ReportFilter) *reportBuilder {
	b := &reportBuilder{
		filter:  filter,
		types:   trimmedSet(filter.ActivityTypes, true),
		lineIDs: trimmedSet(filter.LineIDs, false),
		lines:   make(map[string]domain.Line, len(in.Lines)),
		joints:  make(map[string]domain.Joint, len(in.Joints)),
		seen:    map[RowKey]struct{}{},
		acc:     map[string]*groupAcc{},
	}
	if len(filter.Materials) > 0 {
		b.materials = make(map[domain.MaterialClass]struct{}, len(filter.Materials))
		for _, m := range filter.Materials {
			b.materials[m] = struct{}{}
		}
	}
	for _, line := range in.Lines {
		b.lines[line.ID] = line
	}
	for _, joint := range in.Joints {
		b.joints[joint.ID] = joint
	}
	return b
}

// submissionLine resolves the line a submission works on: its own, else its first known joint's.
func (b *reportBuilder) submissionLine(sub domain.ActivitySubmission) (domain.Line, bool) {
	if line, ok := b.lines[sub.LineID]; ok {
		return line, true
	}
	for _, jointID := range sub.JointIDs() {
		if joint, ok := b.joints[jointID]; ok {
			line, ok := b.lines[joint.LineID]
			return line, ok
		}
	}
	return domain.Line{}, false
}

// submissionMaterial resolves the material of a submission: its line's, else the stored one.
// Filtering and row attribution both read it, so a submission belongs to exactly one material.
func (b *reportBuilder) submissionMaterial(sub domain.ActivitySubmission) domain.MaterialClass {
	if line, ok := b.submissionLine(sub); ok {
		return line.Material
	}
	return sub.Material
}

// matches applies the report filter to one submission.
func (b *reportBuilder) matches(sub domain.ActivitySubmission) bool {
	day := domain.DateOnly(sub.Date)
	if !b.filter.From.IsZero() && day.Before(domain.DateOnly(b.filter.From)) {
		return false
	}
	if !b.filter.To.IsZero() && day.After(domain.DateOnly(b.filter.To)) {
		return false
	}
	if b.types != nil {
		if _, ok := b.types[domain.FoldName(sub.TypeLabel)]; !ok {
			return false
		}
	}
	if b.materials != nil {
		if _, ok := b.materials[b.submissionMaterial(sub)]; !ok {
			return false
		}
	}
	if b.lineIDs != nil {
		line, ok := b.submissionLine(sub)
		if !ok {
			return false
		}
		if _, ok := b.lineIDs[line.ID]; !ok {
			return false
		}
	}
	return true
}

// visit expands one submission into rows, skipping pairs already processed.
func (b *reportBuilder) visit(sub domain.ActivitySubmission) {
	if !b.matches(sub) {
		return
	}
	jointIDs := sub.JointIDs()
	if len(jointIDs) == 0 {
		jointIDs = []string{""}
	}
	for _, jointID := range jointIDs {
		key := RowKey{SubmissionID: sub.ID, JointID: jointID}
		if _, done := b.seen[key]; done {
			continue
		}
		b.seen[key] = struct{}{}
		b.add(sub, b.row(sub, jointID))
	}
}

// row builds the expanded row for one (submission, joint) pair.
func (b *reportBuilder) row(sub domain.ActivitySubmission, jointID string) ReportRow {
	row := ReportRow{
		SubmissionID: sub.ID,
		ParentID:     sub.ParentID,
		Kind:         sub.Kind,
		Date:         domain.DateOnly(sub.Date),
		JointID:      jointID,
		Hours:        sub.Hours,
		Headcount:    sub.Headcount(),
		PersonHours:  sub.PersonHours(),
		Family:       sub.Kind.Family(),
		Detail:       sub.Detail,
		Material:     b.submissionMaterial(sub),
	}
	if line, ok := b.submissionLine(sub); ok {
		row.LineID, row.LineName = line.ID, line.Name
	}
	if joint, ok := b.joints[jointID]; ok {
		row.JointNumber = joint.Number
		row.Diameter = nonNegative(joint.Diameter)
		if line, ok := b.lines[joint.LineID]; ok {
			row.LineID, row.LineName = line.ID, line.Name
		}
	}
	return row
}

// add folds a row into its group. Hours are counted once per submission, headcount is the max.
func (b *reportBuilder) add(sub domain.ActivitySubmission, row ReportRow) {
	key := domain.FoldName(sub.TypeLabel)
	acc, ok := b.acc[key]
	if !ok {
		acc = &groupAcc{
			group:       ReportGroup{Label: sub.TypeLabel},
			submissions: map[string]struct{}{},
			joints:      map[string]struct{}{},
		}
		b.acc[key] = acc
	}
	acc.group.Rows = append(acc.group.Rows, row)

	if _, counted := acc.submissions[sub.ID]; !counted {
		acc.submissions[sub.ID] = struct{}{}
		acc.group.SubmissionCount++
		acc.group.InformedHours += sub.Hours
		acc.group.PersonHours += sub.PersonHours()
		acc.group.Headcount = max(acc.group.Headcount, sub.Headcount())
		if row.Date.After(acc.group.LatestDate) {
			acc.group.LatestDate = row.Date
		}
	}
	if row.JointID != "" {
		if _, counted := acc.joints[row.JointID]; !counted {
			acc.joints[row.JointID] = struct{}{}
			acc.group.JointCount++
			acc.group.DiameterSum += row.Diameter
		}
	}
}

// groups returns the accumulated groups sorted by label.
func (b *reportBuilder) groups() []ReportGroup {
	keys := make([]string, 0, len(b.acc))
	for key := range b.acc {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(x, y string) int {
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
		return strings.Compare(b.acc[x].group.Label, b.acc[y].group.Label)
	})
	out := make([]ReportGroup, 0, len(keys))
	for _, key := range keys {
		out = append(out, b.acc[key].group)
	}
	return out
}
