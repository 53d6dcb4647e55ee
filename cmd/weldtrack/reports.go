package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	serveradapter "github.com/hylla/weldtrack/internal/adapters/server"
	servercommon "github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/hylla/weldtrack/internal/adapters/tabular"
	"github.com/hylla/weldtrack/internal/app"
	"github.com/spf13/cobra"
)

// reportFlags binds the filter flags shared by report and efficiency.
type reportFlags struct {
	from          string
	to            string
	activityTypes []string
	materials     []string
	lines         []string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", "", "first day, YYYY-MM-DD")
	flags.StringVar(&f.to, "to", "", "last day, YYYY-MM-DD")
	flags.StringSliceVar(&f.activityTypes, "activity-type", nil, "activity kinds or type labels (repeatable)")
	flags.StringSliceVar(&f.materials, "material", nil, "material ids or labels (repeatable)")
	flags.StringSliceVar(&f.lines, "line", nil, "line ids (repeatable)")
}

func (f reportFlags) request() servercommon.ReportRequest {
	return servercommon.ReportRequest{
		From:          f.from,
		To:            f.to,
		ActivityTypes: f.activityTypes,
		Materials:     f.materials,
		LineIDs:       f.lines,
	}
}

func (c *cli) reportCommand() *cobra.Command {
	var (
		filters reportFlags
		format  string
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build the grouped production report",
		Long: `report groups submissions by activity type, one row per submission and joint,
with per-group and report-wide totals. Formats: table, json, csv, xlsx.
xlsx without --out writes into the exports directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				result, err := s.production.ReportSummary(ctx, filters.request())
				if err != nil {
					return err
				}
				switch strings.ToLower(strings.TrimSpace(format)) {
				case "", "table":
					return writeTo(c.stdout, outPath, func(w io.Writer) error { return printReport(w, result) })
				case "json":
					return writeTo(c.stdout, outPath, func(w io.Writer) error { return writeJSON(w, result) })
				case string(tabular.FormatCSV):
					return writeTo(c.stdout, outPath, func(w io.Writer) error {
						return tabular.WriteCSV(w, app.ReportTable(result.Groups))
					})
				case string(tabular.FormatXLSX):
					if strings.TrimSpace(outPath) == "" || outPath == "-" {
						outPath = filepath.Join(s.paths.ExportDir, "report-"+time.Now().Format("20060102-150405")+".xlsx")
					}
					if err := writeTo(c.stdout, outPath, func(w io.Writer) error {
						return tabular.WriteReportWorkbook(w, app.ReportTable(result.Groups), app.SummaryTable(result.Summary))
					}); err != nil {
						return err
					}
					s.logger.Info("report workbook written", "path", outPath)
					_, err := fmt.Fprintln(c.stdout, outPath)
					return err
				default:
					return fmt.Errorf("unsupported report format %q", format)
				}
			})
		},
	}
	filters.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "table, json, csv or xlsx")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file ('-' or empty for stdout)")
	return cmd
}

func printReport(w io.Writer, result servercommon.ReportSummary) error {
	rows := make([][]string, 0, len(result.Groups))
	for _, group := range result.Groups {
		latest := ""
		if !group.LatestDate.IsZero() {
			latest = group.LatestDate.Format(time.DateOnly)
		}
		rows = append(rows, []string{
			group.Label,
			strconv.Itoa(group.SubmissionCount),
			formatNumber(group.InformedHours),
			formatNumber(group.PersonHours),
			strconv.Itoa(group.Headcount),
			strconv.Itoa(group.JointCount),
			formatNumber(group.DiameterSum),
			latest,
		})
	}
	header := []string{"Activity", "Submissions", "Informed Hours", "Person Hours", "Headcount", "Joints", "Diameter Sum", "Latest"}
	if err := renderTable(w, header, rows, nil); err != nil {
		return err
	}
	summary := app.SummaryTable(result.Summary)
	return renderTable(w, summary.Header, summary.Rows, nil)
}

// writeTo sends output to stdout for "" or "-", otherwise to a created file.
func writeTo(stdout io.Writer, path string, fn func(io.Writer) error) (err error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return fn(stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", closeErr)
		}
	}()
	return fn(f)
}

func (c *cli) efficiencyCommand() *cobra.Command {
	var (
		filters reportFlags
		format  string
	)
	cmd := &cobra.Command{
		Use:   "efficiency",
		Short: "Compare person-hours per diameter unit against material baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				lines, err := s.production.Efficiency(ctx, filters.request())
				if err != nil {
					return err
				}
				switch strings.ToLower(strings.TrimSpace(format)) {
				case "", "markdown", "md":
					return renderMarkdown(c.stdout, efficiencyMarkdown(lines))
				case "json":
					return writeJSON(c.stdout, lines)
				default:
					return fmt.Errorf("unsupported efficiency format %q", format)
				}
			})
		},
	}
	filters.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "markdown or json")
	return cmd
}

func (c *cli) capacityCommand() *cobra.Command {
	var (
		date   string
		roster map[string]int
		format string
	)
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Balance available crew hours against allocated hours for one day",
		Example: `  weldtrack capacity --date 2025-03-14 --role welder=3 --role pipefitter=2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(date) == "" {
				date = time.Now().Format(time.DateOnly)
			}
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				lines, err := s.production.Capacity(ctx, servercommon.CapacityRequest{Date: date, Roster: roster})
				if err != nil {
					return err
				}
				if strings.EqualFold(strings.TrimSpace(format), "json") {
					return writeJSON(c.stdout, map[string]any{"date": date, "roles": lines})
				}
				rows := make([][]string, 0, len(lines))
				for _, line := range lines {
					rows = append(rows, []string{
						string(line.Role),
						formatNumber(line.Available),
						formatNumber(line.Allocated),
						formatNumber(line.Balance),
					})
				}
				_, _ = fmt.Fprintf(c.stdout, "capacity for %s\n", date)
				return renderTable(c.stdout, []string{"Role", "Available", "Allocated", "Balance"}, rows, func(row []string) bool {
					return strings.HasPrefix(row[3], "-")
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to balance, YYYY-MM-DD (default today)")
	cmd.Flags().StringToIntVarP(&roster, "role", "r", nil, "available headcount per role, role=count (repeatable)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "table or json")
	return cmd
}

func (c *cli) serveCommand() *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and the MCP endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				cfg := serveradapter.Config{
					HTTPBind:      pick(cmd, "http", httpBind, s.cfg.Server.HTTPBind),
					APIEndpoint:   pick(cmd, "api-endpoint", apiEndpoint, s.cfg.Server.APIEndpoint),
					MCPEndpoint:   pick(cmd, "mcp-endpoint", mcpEndpoint, s.cfg.Server.MCPEndpoint),
					ServerName:    s.appName,
					ServerVersion: version,
				}
				s.logger.Info("serving", "http", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return serveCommandRunner(ctx, cfg, serveradapter.Dependencies{
					Production: s.production,
					Storage:    s.repo,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

// pick prefers an explicitly set flag over the configured value.
func pick(cmd *cobra.Command, flag, flagValue, configured string) string {
	if cmd.Flags().Changed(flag) {
		return flagValue
	}
	return configured
}
