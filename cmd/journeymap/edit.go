package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/app"
	"github.com/hylla/journeymap/internal/domain"
	"github.com/spf13/cobra"
)

// applyOps runs ops against one map through a short-lived session and saves a version.
func (c *cli) applyOps(cmd *cobra.Command, mapID string, ops ...app.Op) error {
	return c.withEnv(func(e *env) error {
		res, err := e.api.ApplyMapOps(cmd.Context(), common.MapOpsRequest{MapID: mapID, Ops: ops})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Version != nil {
			_, _ = fmt.Fprintf(out, "saved %s version %d\n", res.Map.ID, res.Version.Number)
		} else {
			_, _ = fmt.Fprintf(out, "saved %s\n", res.Map.ID)
		}
		return nil
	})
}

// parseIndex parses one non-negative position argument.
func parseIndex(raw string) (int, error) {
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("index must be a non-negative integer, got %q", raw)
	}
	return idx, nil
}

// optionalIndex returns a pointer to idx when the flag was set.
func optionalIndex(cmd *cobra.Command, flag string, idx int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &idx
}

func (c *cli) stageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Add, remove, rename, move, and style stages",
	}

	var at int
	add := &cobra.Command{
		Use:   "add MAP_ID NAME",
		Short: "Append a stage, optionally at an index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpAddStage, Name: args[1], To: optionalIndex(cmd, "at", at)})
		},
	}
	add.Flags().IntVar(&at, "at", 0, "insert position")

	remove := &cobra.Command{
		Use:   "remove MAP_ID STAGE_ID",
		Short: "Remove a stage and its cells",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpRemoveStage, StageID: args[1]})
		},
	}

	rename := &cobra.Command{
		Use:   "rename MAP_ID STAGE_ID NAME",
		Short: "Rename a stage",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpRenameStage, StageID: args[1], Name: args[2]})
		},
	}

	move := &cobra.Command{
		Use:   "move MAP_ID STAGE_ID INDEX",
		Short: "Move a stage to an index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpMoveStage, StageID: args[1], To: &to})
		},
	}

	var background, text, icon string
	style := &cobra.Command{
		Use:   "style MAP_ID STAGE_ID",
		Short: "Set stage colors or icon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := app.Op{Kind: app.OpRestyleStage, StageID: args[1]}
			if cmd.Flags().Changed("background") || cmd.Flags().Changed("text") {
				op.Style = &domain.DisplayStyle{BackgroundColor: background, TextColor: text}
			}
			if cmd.Flags().Changed("icon") {
				op.Icon = &icon
			}
			if op.Style == nil && op.Icon == nil {
				return fmt.Errorf("set --background, --text, or --icon")
			}
			return c.applyOps(cmd, args[0], op)
		},
	}
	style.Flags().StringVar(&background, "background", "", "background color")
	style.Flags().StringVar(&text, "text", "", "text color")
	style.Flags().StringVar(&icon, "icon", "", "icon name (empty clears)")

	cmd.AddCommand(add, remove, rename, move, style)
	return cmd
}

func (c *cli) sectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Add, remove, rename, move, and retype sections",
	}

	var (
		title string
		color string
		at    int
	)
	add := &cobra.Command{
		Use:   "add MAP_ID TYPE",
		Short: "Add a section of a registered type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sectionType, err := parseSectionType(args[1])
			if err != nil {
				return err
			}
			return c.applyOps(cmd, args[0], app.Op{
				Kind:  app.OpAddSection,
				Type:  sectionType,
				Name:  title,
				Color: color,
				To:    optionalIndex(cmd, "at", at),
			})
		},
	}
	add.Flags().StringVar(&title, "title", "", "section title (defaults to the type label)")
	add.Flags().StringVar(&color, "color", "", "theme color")
	add.Flags().IntVar(&at, "at", 0, "insert position")

	remove := &cobra.Command{
		Use:   "remove MAP_ID SECTION_ID",
		Short: "Delete a section and its cells",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpDeleteSection, SectionID: args[1]})
		},
	}

	rename := &cobra.Command{
		Use:   "rename MAP_ID SECTION_ID TITLE",
		Short: "Rename a section",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpRenameSection, SectionID: args[1], Name: args[2]})
		},
	}

	move := &cobra.Command{
		Use:   "move MAP_ID SECTION_ID INDEX",
		Short: "Move a section to an index",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpMoveSection, SectionID: args[1], To: &to})
		},
	}

	retype := &cobra.Command{
		Use:   "retype MAP_ID SECTION_ID TYPE",
		Short: "Change a section type, migrating its cells",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sectionType, err := parseSectionType(args[2])
			if err != nil {
				return err
			}
			return c.applyOps(cmd, args[0], app.Op{
				Kind:      app.OpRetypeSection,
				SectionID: args[1],
				Type:      sectionType,
			})
		},
	}

	cmd.AddCommand(add, remove, rename, move, retype)
	return cmd
}

func (c *cli) cellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Edit cell content",
	}

	set := &cobra.Command{
		Use:   "set MAP_ID SECTION_ID STAGE_ID JSON",
		Short: "Merge a JSON object into one cell",
		Long:  "Merge a JSON object into one cell. Top-level keys replace existing values.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cell domain.Cell
			if err := json.Unmarshal([]byte(args[3]), &cell); err != nil {
				return fmt.Errorf("cell content must be a JSON object: %w", err)
			}
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpSetCell, SectionID: args[1], StageID: args[2], Cell: cell})
		},
	}

	clearCell := &cobra.Command{
		Use:   "clear MAP_ID SECTION_ID STAGE_ID",
		Short: "Remove one cell",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpClearCell, SectionID: args[1], StageID: args[2]})
		},
	}

	prune := &cobra.Command{
		Use:   "prune MAP_ID",
		Short: "Drop cells whose stage no longer exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.applyOps(cmd, args[0], app.Op{Kind: app.OpPruneOrphans})
		},
	}

	cmd.AddCommand(set, clearCell, prune)
	return cmd
}

// parseSectionType rejects types the registry does not know.
func parseSectionType(raw string) (domain.SectionType, error) {
	t := domain.NormalizeSectionType(domain.SectionType(raw))
	if !domain.IsKnownSectionType(t) {
		return "", fmt.Errorf("%w %q (see `journeymap types`)", domain.ErrInvalidSectionType, raw)
	}
	return t, nil
}
