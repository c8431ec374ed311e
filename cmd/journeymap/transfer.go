package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hylla/journeymap/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) exportCommand() *cobra.Command {
	var (
		outPath         string
		format          string
		mapIDs          []string
		includeVersions bool
		includeResolved bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export maps, versions, and comments as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := snapshotFormat(outPath, format, cmd.Flags().Changed("format"))
			if err != nil {
				return err
			}
			return c.withEnv(func(e *env) error {
				snap, err := e.service.ExportSnapshot(cmd.Context(), app.ExportOptions{
					MapIDs:          mapIDs,
					IncludeVersions: includeVersions,
					IncludeResolved: includeResolved,
				})
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				var buf bytes.Buffer
				if err := app.EncodeSnapshot(&buf, snap, f); err != nil {
					return fmt.Errorf("encode snapshot: %w", err)
				}
				if outPath == "-" {
					if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				e.logger.Info("snapshot exported", "path", outPath, "maps", len(snap.Maps))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "snapshot format: json, yaml (defaults to the --out extension)")
	cmd.Flags().StringSliceVar(&mapIDs, "map", nil, "export only these maps")
	cmd.Flags().BoolVar(&includeVersions, "versions", false, "include version history")
	cmd.Flags().BoolVar(&includeResolved, "resolved", false, "include resolved comments")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	var (
		format   string
		document bool
		persona  string
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a snapshot, or a single document with --document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath := args[0]
			f, err := snapshotFormat(inPath, format, cmd.Flags().Changed("format"))
			if err != nil {
				return err
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			return c.withEnv(func(e *env) error {
				out := cmd.OutOrStdout()
				if document {
					doc, err := app.DecodeDocument(bytes.NewReader(content), f)
					if err != nil {
						return err
					}
					jm, report, err := e.service.ImportDocument(cmd.Context(), doc, persona, "")
					if err != nil {
						return fmt.Errorf("import document: %w", err)
					}
					_, _ = fmt.Fprintf(out, "imported %s %q\n", jm.ID, jm.Title)
					if report.Changed() {
						_, _ = fmt.Fprintln(out, "document was repaired during import")
					}
					return nil
				}
				snap, err := app.DecodeSnapshot(bytes.NewReader(content), f)
				if err != nil {
					return err
				}
				res, err := e.service.ImportSnapshot(cmd.Context(), snap)
				if err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(out, "imported %d new and %d updated maps, %d versions (%d already stored), %d comments (%d repaired)\n",
					res.MapsCreated, res.MapsUpdated, res.Versions, res.VersionsSkipped, res.Comments, res.Repaired)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "input format: json, yaml (defaults to the file extension)")
	cmd.Flags().BoolVar(&document, "document", false, "treat FILE as one journey document")
	cmd.Flags().StringVar(&persona, "persona", "", "persona identifier for --document imports")
	return cmd
}

// snapshotFormat resolves an explicit format, falling back to the path extension.
func snapshotFormat(path, format string, explicit bool) (app.Format, error) {
	if explicit || path == "-" || strings.TrimSpace(path) == "" {
		return app.ParseFormat(format)
	}
	if f, err := app.FormatFromPath(path); err == nil {
		return f, nil
	}
	return app.ParseFormat(format)
}
