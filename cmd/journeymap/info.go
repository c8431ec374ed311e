package main

import (
	"fmt"
	"strconv"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/analytics"
	"github.com/spf13/cobra"
)

func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.paths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "inbox: %s\n", paths.InboxDir)
			_, _ = fmt.Fprintf(out, "backups: %s\n", paths.BackupDir)
			return nil
		},
	}
}

func (c *cli) typesCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List section types and map templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The catalogue is static, so no store is opened.
			api := common.NewAppServiceAdapter(nil, "")
			types, templates := api.SectionTypes(), api.Templates()
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"section_types": types, "templates": templates})
			}
			t := newTable("Type", "Label")
			for _, st := range types {
				t.Row(string(st.Type), st.Label)
			}
			if err := printTable(cmd.OutOrStdout(), t); err != nil {
				return err
			}
			tt := newTable("Template", "Label", "Stages", "Sections")
			for _, tpl := range templates {
				tt.Row(tpl.Key, tpl.Label, strconv.Itoa(len(tpl.Stages)), strconv.Itoa(len(tpl.Sections)))
			}
			return printTable(cmd.OutOrStdout(), tt)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (c *cli) analyticsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analytics MAP_ID",
		Short: "Show completeness, sentiment, pain, and channel analytics for a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				report, err := e.api.Analytics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), report)
				}
				return printReport(cmd, report)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

// printReport renders the per-stage table and the summary lines.
func printReport(cmd *cobra.Command, report analytics.Report) error {
	out := cmd.OutOrStdout()
	t := newTable("Stage", "Sentiment", "Pain (max/count)", "Touchpoints")
	for i, name := range report.StageNames {
		pain := "-"
		if i < len(report.PainByStage) && report.PainByStage[i].Count > 0 {
			pain = fmt.Sprintf("%d/%d", report.PainByStage[i].MaxSeverity, report.PainByStage[i].Count)
		}
		sentiment, touchpoints := "-", "0"
		if i < len(report.SentimentByStage) {
			sentiment = strconv.Itoa(report.SentimentByStage[i])
		}
		if i < len(report.TouchpointsByStage) {
			touchpoints = strconv.Itoa(report.TouchpointsByStage[i])
		}
		t.Row(name, sentiment, pain, touchpoints)
	}
	if err := printTable(out, t); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "completeness: %.0f%% (%d/%d cells)\n", report.Completeness*100, report.FilledCells, report.TotalCells)
	_, _ = fmt.Fprintf(out, "average sentiment: %.2f (%s)\n", report.AverageSentiment, report.Trend.Direction)
	for _, ch := range report.ChannelDistribution {
		_, _ = fmt.Fprintf(out, "channel %s: %d\n", ch.Label, ch.Count)
	}
	for _, opp := range report.Opportunities {
		_, _ = fmt.Fprintf(out, "opportunity [%d] %s: %s\n", opp.Impact, opp.StageName, truncate(opp.Text, 60))
	}
	return nil
}

func (c *cli) searchCommand() *cobra.Command {
	var (
		mapID  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search cell text across maps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				matches, err := e.api.SearchCells(cmd.Context(), common.SearchRequest{Query: args[0], MapID: mapID, Limit: limit})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), matches)
				}
				if len(matches) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no matches")
					return nil
				}
				t := newTable("Map", "Section", "Stage", "Text")
				for _, m := range matches {
					text := m.Snippet
					if text == "" {
						text = m.Text
					}
					t.Row(m.MapTitle, m.SectionTitle, m.StageName, truncate(text, 60))
				}
				return printTable(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().StringVar(&mapID, "map", "", "restrict results to one map")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
