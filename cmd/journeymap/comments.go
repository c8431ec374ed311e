package main

import (
	"fmt"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/spf13/cobra"
)

func (c *cli) commentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Discuss individual cells",
	}

	var author string
	add := &cobra.Command{
		Use:   "add MAP_ID SECTION_ID STAGE_ID TEXT",
		Short: "Comment on one cell",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				who := author
				if who == "" {
					who = e.cfg.Identity.Actor
				}
				comment, err := e.api.CreateComment(cmd.Context(), common.CreateCommentRequest{
					MapID:     args[0],
					SectionID: args[1],
					StageID:   args[2],
					Content:   args[3],
					Author:    who,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added comment %s\n", comment.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&author, "author", "", "author name (defaults to the configured identity)")

	var (
		sectionID string
		stageID   string
		all       bool
		asJSON    bool
	)
	list := &cobra.Command{
		Use:   "list MAP_ID",
		Short: "List open comments on a map",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				comments, err := e.api.ListComments(cmd.Context(), common.ListCommentsRequest{
					MapID:           args[0],
					SectionID:       sectionID,
					StageID:         stageID,
					IncludeResolved: all,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), comments)
				}
				if len(comments) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no comments")
					return nil
				}
				t := newTable("ID", "Section", "Stage", "Author", "Resolved", "Comment")
				for _, cm := range comments {
					resolved := ""
					if cm.Resolved {
						resolved = "yes"
					}
					t.Row(cm.ID, cm.SectionID, cm.StageID, cm.AuthorName, resolved, truncate(cm.Content, 50))
				}
				return printTable(cmd.OutOrStdout(), t)
			})
		},
	}
	list.Flags().StringVar(&sectionID, "section", "", "only comments on this section")
	list.Flags().StringVar(&stageID, "stage", "", "only comments on this stage")
	list.Flags().BoolVar(&all, "all", false, "include resolved comments")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	var reopen bool
	resolve := &cobra.Command{
		Use:   "resolve MAP_ID COMMENT_ID",
		Short: "Resolve or reopen a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved := !reopen
			return c.withEnv(func(e *env) error {
				comment, err := e.api.ResolveComment(cmd.Context(), common.ResolveCommentRequest{
					MapID:     args[0],
					CommentID: args[1],
					Resolved:  &resolved,
				})
				if err != nil {
					return err
				}
				state := "resolved"
				if !comment.Resolved {
					state = "reopened"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s comment %s\n", state, comment.ID)
				return nil
			})
		},
	}
	resolve.Flags().BoolVar(&reopen, "reopen", false, "reopen instead of resolving")

	del := &cobra.Command{
		Use:   "delete MAP_ID COMMENT_ID",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEnv(func(e *env) error {
				if err := e.api.DeleteComment(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted comment %s\n", args[1])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, resolve, del)
	return cmd
}
