package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hylla/weldtrack/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) backupCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the registry, submissions, ledger and baselines as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				snap, err := s.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				if err := writeTo(c.stdout, outPath, func(w io.Writer) error { return writeJSON(w, snap) }); err != nil {
					return err
				}
				s.logger.Info("snapshot exported",
					"out", outPath,
					"joints", len(snap.Joints),
					"submissions", len(snap.Submissions),
					"status_events", len(snap.StatusEvents),
				)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file path ('-' for stdout)")
	return cmd
}

func (c *cli) restoreCommand() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a JSON snapshot written by backup",
		Long: `restore creates the fluids, lines, joints, submissions and ledger rows the
database does not hold yet. Joints that exist take the snapshot's diameter and
ledger rows are never appended twice, so restoring the same file again is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := readSnapshot(inPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return c.flow(cmd, func(ctx context.Context, s *session) error {
				result, err := s.svc.ImportSnapshot(ctx, snap)
				if err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				return writeJSON(c.stdout, result)
			})
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "input snapshot JSON file ('-' for stdin)")
	return cmd
}

func readSnapshot(path string, stdin io.Reader) (app.Snapshot, error) {
	if path == "" {
		return app.Snapshot{}, errors.New("--in is required")
	}
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return app.Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
		}
		defer f.Close()
		r = f
	}
	var snap app.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return app.Snapshot{}, fmt.Errorf("decode snapshot json: %w", err)
	}
	return snap, nil
}
