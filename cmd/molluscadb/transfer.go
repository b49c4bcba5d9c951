package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"molluscadb/internal/blob"
	"molluscadb/internal/core"
	"molluscadb/internal/csvimport"
	"molluscadb/internal/grid"
	"molluscadb/internal/workspace"

	"github.com/spf13/cobra"
)

const (
	defaultActor = "cli@molluscadb.local"
	syncTimeout  = 30 * time.Second
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "import <collection> <file.csv>",
		Short: "Create one record per CSV line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := core.Collection(args[0])
			if !c.Valid() {
				return fmt.Errorf("unknown collection %q", args[0])
			}
			settings, logger, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := openService(settings, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			report, err := csvimport.New(svc, logger).Import(actorContext(cmd.Context(), actor), c, f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s records, skipped %d\n", report.Imported, c, report.Skipped)
			return err
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "identity recorded on the created records")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		actor   string
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "export <view> [file.csv]",
		Short: "Write every row of a view as CSV",
		Long:  "Write every row of a view as CSV. Without a file the view's export name is used in the working directory.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := opts.load()
			if err != nil {
				return err
			}
			svc, err := openService(settings, logger)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			ctx := actorContext(cmd.Context(), actor)
			file, data, rows, err := exportView(ctx, svc, actor, args[0])
			if err != nil {
				return err
			}
			path := file
			if len(args) == 2 {
				path = args[1]
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "wrote %d rows to %s\n", rows, path); err != nil {
				return err
			}
			if !archive {
				return nil
			}
			store, err := blob.Open(ctx, blobConfig(settings.Blob))
			if err != nil {
				return fmt.Errorf("open export archive: %w", err)
			}
			obj, err := blob.NewArchive(store, nil).Save(ctx, args[0], filepath.Base(file), data, map[string]string{
				"identity": actor,
				"rows":     fmt.Sprint(rows),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "archived as %s\n", obj.Key)
			return err
		},
	}
	cmd.Flags().StringVar(&actor, "actor", defaultActor, "identity the export runs as")
	cmd.Flags().BoolVar(&archive, "archive", false, "also store the export in the blob archive")
	return cmd
}

// exportView selects every row of view and renders the CSV export.
func exportView(ctx context.Context, svc *core.Service, actor, view string) (string, []byte, int, error) {
	ws, err := workspace.Open(ctx, svc, actor)
	if err != nil {
		return "", nil, 0, err
	}
	defer func() { _ = ws.Close() }()
	syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := ws.Sync(syncCtx); err != nil {
		return "", nil, 0, fmt.Errorf("load %s: %w", view, err)
	}
	if err := ws.Grid(view, func(g *grid.Grid) error {
		if g.HeaderState() != grid.HeaderAll {
			g.ToggleAll()
		}
		return nil
	}); err != nil {
		return "", nil, 0, err
	}
	var buf bytes.Buffer
	file, rows, err := ws.Export(view, &buf)
	if err != nil {
		return "", nil, 0, err
	}
	return file, buf.Bytes(), rows, nil
}
