package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/weldtrack/internal/domain"
)

// Table is a flat tabular rendering for spreadsheet and CSV writers.
type Table struct {
	Header []string
	Rows   [][]string
}

// ProductionSummary holds report-wide totals.
type ProductionSummary struct {
	Submissions    int     `json:"submissions"`
	InformedHours  float64 `json:"informed_hours"`
	PersonHours    float64 `json:"person_hours"`
	Headcount      int     `json:"headcount"`
	Joints         int     `json:"joints"`
	DiameterSum    float64 `json:"diameter_sum"`
	FinishedJoints int     `json:"finished_joints"`
	CompletedLines int     `json:"completed_lines"`
}

var reportHeader = []string{
	"Activity", "Submissions", "Informed Hours", "Person Hours", "Headcount", "Joints", "Diameter Sum", "Latest Date",
	"Submission", "Parent", "Date", "Kind", "Line", "Material", "Joint", "Diameter", "Hours", "Crew", "Row Person Hours", "Detail",
}

// ReportTable flattens groups to one row per leaf row. Group columns are filled only on each
// group's first row.
func ReportTable(groups []ReportGroup) Table {
	table := Table{Header: append([]string(nil), reportHeader...), Rows: make([][]string, 0)}
	for _, group := range groups {
		for i, row := range group.Rows {
			groupCells := make([]string, 8)
			if i == 0 {
				groupCells = []string{
					group.Label,
					strconv.Itoa(group.SubmissionCount),
					formatFloat(group.InformedHours),
					formatFloat(group.PersonHours),
					strconv.Itoa(group.Headcount),
					strconv.Itoa(group.JointCount),
					formatFloat(group.DiameterSum),
					formatDate(group.LatestDate),
				}
			}
			material := ""
			if row.Material != "" {
				material = row.Material.Label()
			}
			table.Rows = append(table.Rows, append(groupCells,
				row.SubmissionID,
				row.ParentID,
				formatDate(row.Date),
				string(row.Kind),
				row.LineName,
				material,
				row.JointNumber,
				formatFloat(row.Diameter),
				formatFloat(row.Hours),
				strconv.Itoa(row.Headcount),
				formatFloat(row.PersonHours),
				DescribeDetail(row.Detail),
			))
		}
	}
	return table
}

// Summarize totals the report groups and counts finished joints and completed lines from a
// lifecycle snapshot. A line is completed when it has joints and every one of them is blocked.
func Summarize(groups []ReportGroup, joints []domain.Joint, states map[string]domain.LifecycleState) ProductionSummary {
	var out ProductionSummary
	subs := map[string]struct{}{}
	rowJoints := map[string]struct{}{}
	for _, group := range groups {
		out.Headcount = max(out.Headcount, group.Headcount)
		for _, row := range group.Rows {
			if _, ok := subs[row.SubmissionID]; !ok {
				subs[row.SubmissionID] = struct{}{}
				out.Submissions++
				out.InformedHours += nonNegative(row.Hours)
				out.PersonHours += nonNegative(row.PersonHours)
			}
			if row.JointID == "" {
				continue
			}
			if _, ok := rowJoints[row.JointID]; !ok {
				rowJoints[row.JointID] = struct{}{}
				out.Joints++
				out.DiameterSum += nonNegative(row.Diameter)
			}
		}
	}

	openLines := map[string]bool{}
	for _, joint := range joints {
		blocked := states[joint.ID] == domain.StateBlocked
		if blocked {
			out.FinishedJoints++
		}
		open, seen := openLines[joint.LineID]
		openLines[joint.LineID] = (seen && open) || !blocked
	}
	for _, open := range openLines {
		if !open {
			out.CompletedLines++
		}
	}
	return out
}

// SummaryTable renders a summary as key/value rows.
func SummaryTable(summary ProductionSummary) Table {
	return Table{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Submissions", strconv.Itoa(summary.Submissions)},
			{"Informed Hours", formatFloat(summary.InformedHours)},
			{"Person Hours", formatFloat(summary.PersonHours)},
			{"Max Headcount", strconv.Itoa(summary.Headcount)},
			{"Joints Worked", strconv.Itoa(summary.Joints)},
			{"Diameter Sum", formatFloat(summary.DiameterSum)},
			{"Finished Joints", strconv.Itoa(summary.FinishedJoints)},
			{"Completed Lines", strconv.Itoa(summary.CompletedLines)},
		},
	}
}

// Summary builds the filtered report and its totals against the current lifecycle snapshot.
func (s *Service) Summary(ctx context.Context, filter ReportFilter) ([]ReportGroup, ProductionSummary, error) {
	groups, err := s.BuildReport(ctx, filter)
	if err != nil {
		return nil, ProductionSummary{}, err
	}
	joints, err := s.listAllJoints(ctx, "")
	if err != nil {
		return nil, ProductionSummary{}, err
	}
	events, err := s.listAllEvents(ctx, StatusEventFilter{})
	if err != nil {
		return nil, ProductionSummary{}, err
	}
	return groups, Summarize(groups, joints, LifecycleStates(joints, events)), nil
}

// DescribeDetail renders an activity detail as a short human-readable cell.
func DescribeDetail(detail domain.ActivityDetail) string {
	switch d := detail.(type) {
	case domain.SupportDetail:
		return fmt.Sprintf("%s kg x %d", formatFloat(d.WeightKg), d.Quantity)
	case domain.EquipmentDetail:
		parts := make([]string, 0, len(d.Stages)+1)
		if d.Tag != "" {
			parts = append(parts, d.Tag)
		}
		for _, stage := range d.Stages {
			parts = append(parts, fmt.Sprintf("%s %s%%", stage.Name, formatFloat(stage.Percent)))
		}
		return strings.Join(parts, "; ")
	case domain.TubulationDetail:
		return d.FluidID
	default:
		return ""
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
