package lookup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the lookup tools on an MCP server. The history tool
// is only registered when a history store is attached.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCheckTool(srv)
	s.registerDetailsTool(srv)
	s.registerCheckAllTool(srv)
	s.registerClearCachesTool(srv)
	if s.hist != nil {
		s.registerHistoryTool(srv)
	}
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// addTool wires a JSON-in/JSON-out handler as an MCP tool. Handler errors
// become tool errors, never protocol errors.
func addTool(srv *mcp.Server, tool *mcp.Tool, handler func(ctx context.Context, args json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

type plateRequest struct {
	Plate string `json:"plate"`
}

func plateSchema() map[string]any {
	return inputSchema(map[string]any{
		"plate": map[string]any{"type": "string", "description": "License plate to look up"},
	}, []string{"plate"})
}

func decodePlate(args json.RawMessage) (plateRequest, error) {
	var r plateRequest
	if err := json.Unmarshal(args, &r); err != nil {
		return r, fmt.Errorf("invalid arguments: %w", err)
	}
	return r, nil
}

func (s *Service) registerCheckTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "plate_check",
		Description: "Check a license plate against the primary tracker. Returns match counts and sighting summaries.",
		InputSchema: plateSchema(),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		r, err := decodePlate(args)
		if err != nil {
			return nil, err
		}
		return s.CheckPrimary(ctx, r.Plate), nil
	})
}

func (s *Service) registerDetailsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "plate_details",
		Description: "Fetch the primary tracker's detail page for a plate: full sighting records with vehicle and timestamp.",
		InputSchema: plateSchema(),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		r, err := decodePlate(args)
		if err != nil {
			return nil, err
		}
		return s.FetchPrimaryDetails(ctx, r.Plate), nil
	})
}

func (s *Service) registerCheckAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "plate_check_all",
		Description: "Check a plate against the aggregated sources (encrypted paginated feed plus legacy snapshot) and merge the results.",
		InputSchema: plateSchema(),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		r, err := decodePlate(args)
		if err != nil {
			return nil, err
		}
		return s.CheckAggregated(ctx, r.Plate), nil
	})
}

func (s *Service) registerClearCachesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "plate_clear_caches",
		Description: "Drop the in-memory plate caches, forcing fresh upstream fetches on the next lookup.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		s.ClearCaches()
		return map[string]string{"status": "cleared"}, nil
	})
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "plate_history",
		Description: "List recent lookups from the audit log, optionally filtered to one plate.",
		InputSchema: inputSchema(map[string]any{
			"plate": map[string]any{"type": "string", "description": "Only show lookups of this plate"},
			"limit": map[string]any{"type": "integer", "description": "Max entries (default 50)"},
		}, nil),
	}

	type historyRequest struct {
		Plate string `json:"plate"`
		Limit int    `json:"limit"`
	}

	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r historyRequest
		if len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if r.Plate != "" {
			return s.hist.ByPlate(ctx, r.Plate, r.Limit)
		}
		return s.hist.Recent(ctx, r.Limit)
	})
}
