package mcpapi

import (
	"context"
	"fmt"

	"github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// reportFilterOptions declares the shared report filter arguments.
func reportFilterOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("from", mcp.Description("First work date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Last work date, YYYY-MM-DD")),
		mcp.WithArray("activity_types", mcp.Description("Activity type labels to include"), mcp.WithStringItems()),
		mcp.WithArray("materials", mcp.Description("Material classes to include"), mcp.WithStringItems()),
		mcp.WithArray("line_ids", mcp.Description("Line ids to include"), mcp.WithStringItems()),
	}
}

// bindReportRequest reads report filter arguments.
func bindReportRequest(req mcp.CallToolRequest) (common.ReportRequest, error) {
	var args common.ReportRequest
	if err := req.BindArguments(&args); err != nil {
		return common.ReportRequest{}, err
	}
	return args, nil
}

// registerReportTools registers `weldtrack.build_report` and `weldtrack.efficiency`.
func registerReportTools(srv *mcpserver.MCPServer, production common.ProductionService) {
	reportOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Group filtered activity submissions by type with per-joint rows and rollups."),
		mcp.WithBoolean("summary_only", mcp.Description("Return report-wide totals without rows")),
	}, reportFilterOptions()...)
	srv.AddTool(
		mcp.NewTool("weldtrack.build_report", reportOpts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			filter, err := bindReportRequest(req)
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			summary, err := production.ReportSummary(ctx, filter)
			if err != nil {
				return toolResultFromError(err), nil
			}
			payload := map[string]any{"summary": summary.Summary}
			if !req.GetBool("summary_only", false) {
				payload["groups"] = summary.Groups
			}
			result, err := mcp.NewToolResultJSON(payload)
			if err != nil {
				return nil, fmt.Errorf("encode build_report result: %w", err)
			}
			return result, nil
		},
	)

	efficiencyOpts := append([]mcp.ToolOption{
		mcp.WithDescription("Person-hours per diameter unit for each material, classified against its baseline."),
	}, reportFilterOptions()...)
	srv.AddTool(
		mcp.NewTool("weldtrack.efficiency", efficiencyOpts...),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			filter, err := bindReportRequest(req)
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lines, err := production.Efficiency(ctx, filter)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"materials": lines,
			})
			if err != nil {
				return nil, fmt.Errorf("encode efficiency result: %w", err)
			}
			return result, nil
		},
	)
}

// registerCapacityTool registers `weldtrack.capacity`.
func registerCapacityTool(srv *mcpserver.MCPServer, production common.ProductionService) {
	srv.AddTool(
		mcp.NewTool(
			"weldtrack.capacity",
			mcp.WithDescription("Available versus allocated person-hours per role for one day."),
			mcp.WithString("date", mcp.Required(), mcp.Description("Work date, YYYY-MM-DD")),
			mcp.WithObject("roster", mcp.Required(), mcp.Description("Headcount per role, for example {\"welder\": 3}")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.CapacityRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if args.Date == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "date" not found`), nil
			}
			lines, err := production.Capacity(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"date":  args.Date,
				"roles": lines,
			})
			if err != nil {
				return nil, fmt.Errorf("encode capacity result: %w", err)
			}
			return result, nil
		},
	)
}

// registerLedgerTools registers `weldtrack.joint_state` and `weldtrack.blocked_joints`.
func registerLedgerTools(srv *mcpserver.MCPServer, production common.ProductionService) {
	srv.AddTool(
		mcp.NewTool(
			"weldtrack.joint_state",
			mcp.WithDescription("Derive the lifecycle state of one joint from its status history."),
			mcp.WithString("joint_id", mcp.Required(), mcp.Description("Joint identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			jointID, err := req.RequireString("joint_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			state, err := production.JointState(ctx, jointID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(state)
			if err != nil {
				return nil, fmt.Errorf("encode joint_state result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weldtrack.blocked_joints",
			mcp.WithDescription("List the joints of a line that are blocked from further coupling or weld work."),
			mcp.WithString("line_id", mcp.Required(), mcp.Description("Line identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lineID, err := req.RequireString("line_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			blocked, err := production.BlockedJoints(ctx, lineID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(blocked)
			if err != nil {
				return nil, fmt.Errorf("encode blocked_joints result: %w", err)
			}
			return result, nil
		},
	)
}
