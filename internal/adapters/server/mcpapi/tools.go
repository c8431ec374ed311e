package mcpapi

import (
	"context"
	"strings"

	"github.com/hylla/journeymap/internal/adapters/server/common"
	"github.com/hylla/journeymap/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerCatalogTools registers read-only catalogue tools.
func registerCatalogTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"journeymap.list_section_types",
			mcp.WithDescription("List registered section types with their default cells."),
		),
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult("list_section_types", map[string]any{
				"section_types": service.SectionTypes(),
				"templates":     service.Templates(),
			})
		},
	)
}

// registerMapTools registers map read, create, and edit tools.
func registerMapTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"journeymap.list_maps",
			mcp.WithDescription("List stored journey maps, most recently updated first."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			maps, err := service.ListMaps(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_maps", map[string]any{"maps": maps})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.create_map",
			mcp.WithDescription("Create a journey map from a built-in template."),
			mcp.WithString("title", mcp.Required(), mcp.Description("Map title")),
			mcp.WithString("template", mcp.Description("Template key (defaults to the standard layout)")),
			mcp.WithString("persona_id", mcp.Description("Optional persona identifier")),
			mcp.WithString("actor", mcp.Description("Actor recorded on the first version")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			title, err := req.RequireString("title")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			jm, err := service.CreateMap(ctx, common.CreateMapRequest{
				Title:     title,
				Template:  req.GetString("template", ""),
				PersonaID: req.GetString("persona_id", ""),
				Actor:     req.GetString("actor", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_map", jm)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.get_map",
			mcp.WithDescription("Return one journey map as a JSON document or a markdown table."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithString("format", mcp.Description("json or markdown"), mcp.Enum("json", "markdown")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.EqualFold(strings.TrimSpace(req.GetString("format", "")), "markdown") {
				md, err := service.Markdown(ctx, mapID)
				if err != nil {
					return toolResultFromError(err), nil
				}
				return mcp.NewToolResultText(md), nil
			}
			jm, err := service.GetMap(ctx, mapID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_map", jm)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.get_analytics",
			mcp.WithDescription("Return completeness, sentiment, pain, channel, and opportunity analytics for one map."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			report, err := service.Analytics(ctx, mapID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_analytics", report)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.get_curve",
			mcp.WithDescription("Return the sentiment curve for one map, optionally scaled to a chart box."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithNumber("width", mcp.Description("Chart width in pixels")),
			mcp.WithNumber("height", mcp.Description("Chart height in pixels")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			view, err := service.Curve(ctx, common.CurveRequest{
				MapID:  mapID,
				Width:  req.GetFloat("width", 0),
				Height: req.GetFloat("height", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_curve", view)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.apply_ops",
			mcp.WithDescription("Apply editing operations to a map and save a new version. Nothing is saved when any operation fails."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithArray("ops", mcp.Required(), mcp.Description("Operations such as {\"op\":\"set_cell\",\"section_id\":\"...\",\"stage_id\":\"...\",\"cell\":{...}}"), mcp.Items(map[string]any{"type": "object"})),
			mcp.WithString("actor", mcp.Description("Actor recorded on the saved version")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				MapID string   `json:"map_id"`
				Ops   []app.Op `json:"ops"`
				Actor string   `json:"actor"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.MapID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "map_id" not found`), nil
			}
			if len(args.Ops) == 0 {
				return mcp.NewToolResultError(`invalid_request: required argument "ops" not found`), nil
			}
			saved, err := service.ApplyMapOps(ctx, common.MapOpsRequest{
				MapID: args.MapID,
				Ops:   args.Ops,
				Actor: args.Actor,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("apply_ops", saved)
		},
	)
}

// registerVersionTools registers version history tools.
func registerVersionTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"journeymap.list_versions",
			mcp.WithDescription("List saved versions of one map, newest first."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			versions, err := service.ListVersions(ctx, mapID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_versions", map[string]any{"versions": versions})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.restore_version",
			mcp.WithDescription("Restore an earlier version. The restored document is saved as the newest version."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithNumber("version", mcp.Required(), mcp.Description("Version number to restore")),
			mcp.WithString("actor", mcp.Description("Actor recorded on the new version")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			version, err := req.RequireInt("version")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			saved, err := service.RestoreVersion(ctx, common.RestoreVersionRequest{
				MapID:   mapID,
				Version: version,
				Actor:   req.GetString("actor", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("restore_version", saved)
		},
	)
}

// registerCommentTools registers cell comment tools.
func registerCommentTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"journeymap.list_comments",
			mcp.WithDescription("List comments on one map, optionally narrowed to one cell."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithString("section_id", mcp.Description("Section identifier filter")),
			mcp.WithString("stage_id", mcp.Description("Stage identifier filter")),
			mcp.WithBoolean("include_resolved", mcp.Description("Include resolved comments")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			comments, err := service.ListComments(ctx, common.ListCommentsRequest{
				MapID:           mapID,
				SectionID:       req.GetString("section_id", ""),
				StageID:         req.GetString("stage_id", ""),
				IncludeResolved: req.GetBool("include_resolved", false),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_comments", map[string]any{"comments": comments})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.add_comment",
			mcp.WithDescription("Attach a comment to one cell of a map."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithString("section_id", mcp.Required(), mcp.Description("Section identifier")),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("Stage identifier")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Comment text")),
			mcp.WithString("author", mcp.Description("Comment author")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				MapID     string `json:"map_id"`
				SectionID string `json:"section_id"`
				StageID   string `json:"stage_id"`
				Content   string `json:"content"`
				Author    string `json:"author"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			for name, value := range map[string]string{
				"map_id":     args.MapID,
				"section_id": args.SectionID,
				"stage_id":   args.StageID,
				"content":    args.Content,
			} {
				if strings.TrimSpace(value) == "" {
					return mcp.NewToolResultError(`invalid_request: required argument "` + name + `" not found`), nil
				}
			}
			comment, err := service.CreateComment(ctx, common.CreateCommentRequest{
				MapID:     args.MapID,
				SectionID: args.SectionID,
				StageID:   args.StageID,
				Content:   args.Content,
				Author:    args.Author,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("add_comment", comment)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"journeymap.resolve_comment",
			mcp.WithDescription("Resolve or reopen one comment."),
			mcp.WithString("map_id", mcp.Required(), mcp.Description("Map identifier")),
			mcp.WithString("comment_id", mcp.Required(), mcp.Description("Comment identifier")),
			mcp.WithBoolean("resolved", mcp.Description("false reopens the comment (default true)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			mapID, err := req.RequireString("map_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			commentID, err := req.RequireString("comment_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			resolved := req.GetBool("resolved", true)
			comment, err := service.ResolveComment(ctx, common.ResolveCommentRequest{
				MapID:     mapID,
				CommentID: commentID,
				Resolved:  &resolved,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("resolve_comment", comment)
		},
	)
}

// registerSearchTools registers full-text cell search.
func registerSearchTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"journeymap.search_cells",
			mcp.WithDescription("Search cell text across maps."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
			mcp.WithString("map_id", mcp.Description("Restrict results to one map")),
			mcp.WithNumber("limit", mcp.Description("Maximum results")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			query, err := req.RequireString("query")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			matches, err := service.SearchCells(ctx, common.SearchRequest{
				Query: query,
				MapID: req.GetString("map_id", ""),
				Limit: req.GetInt("limit", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			if matches == nil {
				matches = []app.CellMatch{}
			}
			return jsonResult("search_cells", map[string]any{"matches": matches})
		},
	)
}
