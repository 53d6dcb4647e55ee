package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hylla/weldtrack/internal/adapters/tabular"
	servercommon "github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/hylla/weldtrack/internal/app"
	"github.com/hylla/weldtrack/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and database paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := c.resolve(cmd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.stdout, "app: %s\n", settings.appName)
			_, _ = fmt.Fprintf(c.stdout, "dev_mode: %t\n", settings.devMode)
			_, _ = fmt.Fprintf(c.stdout, "config: %s\n", settings.configPath)
			_, _ = fmt.Fprintf(c.stdout, "baselines: %s\n", settings.paths.BaselinePath)
			_, _ = fmt.Fprintf(c.stdout, "data_dir: %s\n", settings.paths.DataDir)
			_, _ = fmt.Fprintf(c.stdout, "db: %s\n", settings.cfg.Database.Path)
			_, _ = fmt.Fprintf(c.stdout, "exports: %s\n", settings.paths.ExportDir)
			return nil
		},
	}
}

func (c *cli) fluidCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fluid",
		Short: "Manage the fluid registry",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Register a fluid; names are unique ignoring case and accents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				fluid, err := s.svc.CreateFluid(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.stdout, "%s\t%s\n", fluid.ID, fluid.Name)
				return err
			})
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List fluids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				fluids, err := s.svc.ListFluids(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(fluids))
				for _, fluid := range fluids {
					rows = append(rows, []string{fluid.ID, fluid.Name})
				}
				return renderTable(c.stdout, []string{"ID", "Name"}, rows, nil)
			})
		},
	})
	return cmd
}

func (c *cli) lineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "line",
		Short: "Manage piping lines",
	}

	var name, material, fluid string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a line for an existing fluid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				class, err := domain.ParseMaterialClass(material)
				if err != nil {
					return fmt.Errorf("--material %q: %w", material, err)
				}
				fluidID, err := resolveFluidID(ctx, s.svc, fluid)
				if err != nil {
					return err
				}
				line, err := s.svc.CreateLine(ctx, app.CreateLineInput{Name: name, Material: class, FluidID: fluidID})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.stdout, "%s\t%s\n", line.ID, line.Name)
				return err
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "line name")
	add.Flags().StringVar(&material, "material", "", "material id or label, e.g. carbon_steel or \"Inox 304\"")
	add.Flags().StringVar(&fluid, "fluid", "", "fluid name or id")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("material")
	_ = add.MarkFlagRequired("fluid")

	list := &cobra.Command{
		Use:   "list",
		Short: "List lines with their joint totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				lines, err := s.svc.ListLines(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(lines))
				for _, line := range lines {
					total, err := s.svc.TotalDiameter(ctx, line.ID)
					if err != nil {
						return err
					}
					rows = append(rows, []string{line.ID, line.Name, line.Material.Label(), formatNumber(total)})
				}
				return renderTable(c.stdout, []string{"ID", "Name", "Material", "Diameter Sum"}, rows, nil)
			})
		},
	}
	cmd.AddCommand(add, list)
	return cmd
}

// resolveFluidID accepts a fluid id or a name compared ignoring case and accents.
func resolveFluidID(ctx context.Context, svc *app.Service, ref string) (string, error) {
	fluids, err := svc.ListFluids(ctx)
	if err != nil {
		return "", err
	}
	for _, fluid := range fluids {
		if fluid.ID == strings.TrimSpace(ref) || domain.SameName(fluid.Name, ref) {
			return fluid.ID, nil
		}
	}
	return "", fmt.Errorf("%w: fluid %q", app.ErrNotFound, ref)
}

func (c *cli) jointCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "joint",
		Short: "Register joints and inspect their lifecycle",
	}

	var lineID, number string
	var diameter float64
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a joint on a line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				joint, err := s.svc.RegisterJoint(ctx, app.RegisterJointInput{LineID: lineID, Number: number, Diameter: diameter})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.stdout, "%s\t%s\n", joint.ID, joint.Number)
				return err
			})
		},
	}
	add.Flags().StringVar(&lineID, "line", "", "line id")
	add.Flags().StringVar(&number, "number", "", "joint number, unique within the line")
	add.Flags().Float64Var(&diameter, "diameter", 0, "nominal diameter")
	_ = add.MarkFlagRequired("line")
	_ = add.MarkFlagRequired("number")

	var listLine string
	list := &cobra.Command{
		Use:   "list",
		Short: "List joints with their lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				joints, err := s.svc.ListJoints(ctx, listLine)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(joints))
				for _, joint := range joints {
					state, err := s.production.JointState(ctx, joint.ID)
					if err != nil {
						return err
					}
					rows = append(rows, []string{joint.ID, joint.LineID, joint.Number, formatNumber(joint.Diameter), state.State})
				}
				return renderTable(c.stdout, []string{"ID", "Line", "Number", "Diameter", "State"}, rows, func(row []string) bool {
					return row[4] == string(domain.StateBlocked)
				})
			})
		},
	}
	list.Flags().StringVar(&listLine, "line", "", "only joints of this line id")

	correct := &cobra.Command{
		Use:   "correct-diameter JOINT_ID DIAMETER",
		Short: "Correct a joint's registered diameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("diameter %q: %w", args[1], err)
			}
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				joint, err := s.svc.CorrectJointDiameter(ctx, args[0], value)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(c.stdout, "%s\t%s\n", joint.ID, formatNumber(joint.Diameter))
				return err
			})
		},
	}

	state := &cobra.Command{
		Use:   "state JOINT_ID",
		Short: "Print a joint's lifecycle state derived from its ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				result, err := s.production.JointState(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.stdout, result.State)
				return err
			})
		},
	}

	blocked := &cobra.Command{
		Use:   "blocked LINE_ID",
		Short: "List blocked joints of a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				result, err := s.production.BlockedJoints(ctx, args[0])
				if err != nil {
					return err
				}
				for _, id := range result.JointIDs {
					if _, err := fmt.Fprintln(c.stdout, id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, correct, state, blocked)
	return cmd
}

func (c *cli) eventCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Append to the joint status ledger",
	}
	var in servercommon.RecordEventRequest
	record := &cobra.Command{
		Use:   "record",
		Short: "Record a status event; repeating a submission reference is a no-op",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				result, err := s.production.RecordEvent(ctx, in)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(c.stdout, result.EventID)
				return err
			})
		},
	}
	record.Flags().StringVar(&in.JointID, "joint", "", "joint id")
	record.Flags().StringVar(&in.Kind, "kind", "", "ledger kind: coupling, weld or rework")
	record.Flags().StringVar(&in.SubmissionID, "submission", "", "originating submission reference")
	_ = record.MarkFlagRequired("joint")
	_ = record.MarkFlagRequired("kind")
	cmd.AddCommand(record)
	return cmd
}

func (c *cli) submitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "submit FILE",
		Short: "Record an activity submission from a JSON document ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readSubmission(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				submission, err := s.production.SubmitActivity(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, submission)
			})
		},
	}
}

func readSubmission(path string, stdin io.Reader) (servercommon.SubmitActivityRequest, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return servercommon.SubmitActivityRequest{}, fmt.Errorf("open submission: %w", err)
		}
		defer f.Close()
		r = f
	}
	var req servercommon.SubmitActivityRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return servercommon.SubmitActivityRequest{}, fmt.Errorf("decode submission json: %w", err)
	}
	return req, nil
}

func (c *cli) importCommand() *cobra.Command {
	var (
		dryRun bool
		format string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Reconcile and import a lines or joints sheet (CSV or XLSX)",
		Long: `import detects whether FILE holds lines (Fluid, Line, Material) or joints
(Line, JointNumber, Diameter), rejects rows that already exist or repeat within
the file, and writes the accepted rows in chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := readSheet(args[0], format, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				report, err := s.production.Import(ctx, servercommon.ImportRequest{
					Header:  sheet.Header,
					Records: sheet.Records,
					DryRun:  dryRun,
				})
				if err != nil {
					return err
				}
				s.logger.Info("import reconciled", "schema", report.Schema, "accepted", report.Accepted, "rejected", len(report.Rejected), "applied", report.Applied, "dry_run", report.DryRun)
				if asJSON {
					return writeJSON(c.stdout, report)
				}
				return printImportReport(c.stdout, report)
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "reconcile only, write nothing")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx; inferred from the extension when empty")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the import report as JSON")
	return cmd
}

// readSheet loads a tabular file; "-" reads stdin and then needs an explicit format.
func readSheet(path, format string, stdin io.Reader) (tabular.Sheet, error) {
	if strings.TrimSpace(format) == "" {
		if path == "-" {
			return tabular.Sheet{}, errors.New("--format is required when reading stdin")
		}
		return tabular.ReadFile(path)
	}
	parsed, err := tabular.ParseFormat(format)
	if err != nil {
		return tabular.Sheet{}, err
	}
	if path == "-" {
		return tabular.Read(stdin, parsed)
	}
	f, err := os.Open(path)
	if err != nil {
		return tabular.Sheet{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()
	return tabular.Read(f, parsed)
}

func printImportReport(w io.Writer, report app.ImportReport) error {
	mode := "applied"
	if report.DryRun {
		mode = "dry run"
	}
	_, _ = fmt.Fprintf(w, "schema: %s (%s)\n", report.Schema, mode)
	_, _ = fmt.Fprintf(w, "rows: %d accepted: %d rejected: %d applied: %d chunks: %d\n",
		report.Rows, report.Accepted, len(report.Rejected), report.Applied, report.Chunks)

	if len(report.Rejected) > 0 {
		rows := make([][]string, 0, len(report.Rejected))
		for _, rejected := range report.Rejected {
			rows = append(rows, []string{strconv.Itoa(rejected.Row.Number), strings.Join(rejected.Reasons, "; ")})
		}
		if err := renderTable(w, []string{"Row", "Reasons"}, rows, nil); err != nil {
			return err
		}
	}
	if len(report.Failures) > 0 {
		rows := make([][]string, 0, len(report.Failures))
		for _, failure := range report.Failures {
			rows = append(rows, []string{strconv.Itoa(failure.Chunk), strconv.Itoa(failure.Row), failure.Error})
		}
		return renderTable(w, []string{"Chunk", "Row", "Error"}, rows, func([]string) bool { return true })
	}
	return nil
}
