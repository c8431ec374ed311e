package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	"github.com/spf13/cobra"
)

func (c *cli) mapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map",
		Short: "Create, inspect, and manage journey maps",
	}
	cmd.AddCommand(
		c.mapListCommand(),
		c.mapCreateCommand(),
		c.mapShowCommand(),
		c.mapRenameCommand(),
		c.mapDeleteCommand(),
	)
	return cmd
}

func (c *cli) mapListCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List maps, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(func(e *env) error {
				maps, err := e.api.ListMaps(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), maps)
				}
				if len(maps) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no maps")
					return nil
				}
				t := newTable("ID", "Title", "Stages", "Sections", "Complete", "Updated")
				for _, m := range maps {
					t.Row(
						m.ID,
						truncate(m.Title, 40),
						strconv.Itoa(m.Stages),
						strconv.Itoa(m.Sections),
						fmt.Sprintf("%.0f%%", m.Completeness*100),
						m.UpdatedAt.Local().Format("2006-01-02 15:04"),
					)
				}
				return printTable(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) mapCreateCommand() *cobra.Command {
	var template, persona, from string
	cmd := &cobra.Command{
		Use:   "create [TITLE]",
		Short: "Create a map from a template or a JSON/YAML document file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := common.CreateMapRequest{Template: template, PersonaID: persona}
			if len(args) == 1 {
				req.Title = args[0]
			}
			if from != "" {
				doc, err := readDocumentFile(from)
				if err != nil {
					return err
				}
				req.Document = &doc
			}
			return c.withEnv(func(e *env) error {
				jm, err := e.api.CreateMap(cmd.Context(), req)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (%d stages, %d sections)\n",
					jm.ID, jm.Title, len(jm.Document.Stages), len(jm.Document.Sections))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "template key (blank, standard, service_blueprint)")
	cmd.Flags().StringVar(&persona, "persona", "", "persona identifier to link")
	cmd.Flags().StringVar(&from, "from", "", "import a document file instead of using a template")
	return cmd
}

func (c *cli) mapShowCommand() *cobra.Command {
	var (
		format string
		render bool
		copyIt bool
		width  int
	)
	cmd := &cobra.Command{
		Use:   "show MAP_ID",
		Short: "Print a map as markdown, JSON, or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				text, err := showMap(cmd, e, args[0], format)
				if err != nil {
					return err
				}
				if copyIt {
					if err := clipboardWriter(text); err != nil {
						return err
					}
				}
				if render && isMarkdownFormat(format) {
					text = renderMarkdown(text, width)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown, json, yaml")
	cmd.Flags().BoolVar(&render, "render", false, "render markdown for the terminal")
	cmd.Flags().BoolVar(&copyIt, "copy", false, "copy the unrendered output to the clipboard")
	cmd.Flags().IntVar(&width, "width", defaultRenderWidth, "wrap width for --render")
	return cmd
}

// showMap produces the requested textual form of one map.
func showMap(cmd *cobra.Command, e *env, mapID, format string) (string, error) {
	if isMarkdownFormat(format) {
		return e.api.Markdown(cmd.Context(), mapID)
	}
	f, err := app.ParseFormat(format)
	if err != nil {
		return "", err
	}
	jm, err := e.api.GetMap(cmd.Context(), mapID)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := app.EncodeDocument(&buf, jm.Document, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func isMarkdownFormat(format string) bool {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "md", "markdown":
		return true
	default:
		return false
	}
}

func (c *cli) mapRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename MAP_ID TITLE",
		Short: "Rename a map",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				title := args[1]
				jm, err := e.api.UpdateMap(cmd.Context(), common.UpdateMapRequest{MapID: args[0], Title: &title})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", jm.ID, jm.Title)
				return nil
			})
		},
	}
}

func (c *cli) mapDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete MAP_ID",
		Short: "Delete a map with its versions and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				if err := e.api.DeleteMap(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

// readDocumentFile decodes a document file, choosing the codec from its extension.
func readDocumentFile(path string) (domain.Document, error) {
	format, err := app.FormatFromPath(path)
	if err != nil {
		return domain.Document{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return app.DecodeDocument(f, format)
}
