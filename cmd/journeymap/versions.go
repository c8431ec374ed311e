package main

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) versionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Browse and restore saved versions",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list MAP_ID",
		Short: "List versions of a map, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				versions, err := e.api.ListVersions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), versions)
				}
				t := newTable("Version", "Saved by", "Saved at")
				for _, v := range versions {
					t.Row(strconv.Itoa(v.Number), v.CreatedBy, v.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				}
				return printTable(cmd.OutOrStdout(), t)
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	var format string
	show := &cobra.Command{
		Use:   "show MAP_ID VERSION",
		Short: "Print the document stored in one version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			f, err := app.ParseFormat(format)
			if err != nil {
				return err
			}
			return c.withEnv(func(e *env) error {
				v, err := e.api.GetVersion(cmd.Context(), args[0], number)
				if err != nil {
					return err
				}
				var buf bytes.Buffer
				if err := app.EncodeDocument(&buf, v.Document, f); err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			})
		},
	}
	show.Flags().StringVar(&format, "format", "json", "output format: json, yaml")

	restore := &cobra.Command{
		Use:   "restore MAP_ID VERSION",
		Short: "Restore a version as the newest version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			return c.withEnv(func(e *env) error {
				res, err := e.api.RestoreVersion(cmd.Context(), common.RestoreVersionRequest{MapID: args[0], Version: number})
				if err != nil {
					return err
				}
				if res.Version != nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored version %d of %s as version %d\n", number, res.Map.ID, res.Version.Number)
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "restored version %d of %s\n", number, res.Map.ID)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, restore)
	return cmd
}

func parseVersion(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("version must be a positive integer, got %q", raw)
	}
	return n, nil
}
