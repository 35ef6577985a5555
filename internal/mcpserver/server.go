// Package mcpserver exposes memory as Model Context Protocol tools over
// stdio. Agents send structured attributes directly, so no tool calls the
// language model.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/schemamem/internal/memory"
)

// DefaultQueryLimit caps memory_query when no limit is given.
const DefaultQueryLimit = 20

// Server wires memory tools to a memory service.
type Server struct {
	svc *memory.Service
	mcp *server.MCPServer
}

// New creates a server named name with every memory tool registered.
func New(svc *memory.Service, name, version string) *Server {
	s := &Server{
		svc: svc,
		mcp: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
	}
	s.register()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves requests on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	log.Debug("Serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool("memory_store",
		mcp.WithDescription("Store a structured memory. A new category gets a schema derived from the attributes."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category, e.g. contacts, notes, events")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Unique key within the category")),
		mcp.WithObject("attributes", mcp.Required(), mcp.Description("Attribute values")),
		mcp.WithString("ttl", mcp.Description("Time to live, e.g. 24h, 7d")),
	), s.store)

	s.mcp.AddTool(mcp.NewTool("memory_get",
		mcp.WithDescription("Get one memory by category and key."),
		mcp.WithString("category", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
	), s.get)

	s.mcp.AddTool(mcp.NewTool("memory_query",
		mcp.WithDescription("List live memories in a category, optionally by key prefix."),
		mcp.WithString("category", mcp.Required()),
		mcp.WithString("prefix", mcp.Description("Key prefix")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.query)

	s.mcp.AddTool(mcp.NewTool("memory_delete",
		mcp.WithDescription("Delete one memory."),
		mcp.WithString("category", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
	), s.remove)

	s.mcp.AddTool(mcp.NewTool("memory_list",
		mcp.WithDescription("List categories, or the keys in one category."),
		mcp.WithString("category", mcp.Description("Category to list keys of")),
	), s.list)

	s.mcp.AddTool(mcp.NewTool("memory_schema",
		mcp.WithDescription("Show the schema and indexes of a category, or of every category."),
		mcp.WithString("category"),
	), s.schema)

	s.mcp.AddTool(mcp.NewTool("memory_promote",
		mcp.WithDescription("Make a memory permanent, optionally moving it to another category."),
		mcp.WithString("category", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("to_category", mcp.Description("Target category")),
	), s.promote)

	s.mcp.AddTool(mcp.NewTool("memory_prune",
		mcp.WithDescription("Delete expired memories."),
		mcp.WithString("category", mcp.Description("Limit pruning to one category")),
	), s.prune)

	s.mcp.AddTool(mcp.NewTool("memory_init",
		mcp.WithDescription("Create the predefined categories."),
		mcp.WithBoolean("force", mcp.Description("Replace existing predefined schemas")),
	), s.initialize)
}

func (s *Server) store(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	attrs, ok := req.GetArguments()["attributes"].(map[string]any)
	if !ok {
		return mcp.NewToolResultError("attributes must be an object"), nil
	}

	res, err := s.svc.Remember(ctx, memory.RememberParams{
		Category: category,
		Key:      key,
		Document: attrs,
		TTL:      req.GetString("ttl", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"stored":         res.Category + "/" + res.Key,
		"schema_created": res.SchemaCreated,
	})
}

func (s *Server) get(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Recall(ctx, memory.RecallParams{Category: category, Key: key})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(res.Items) == 0 {
		return jsonResult(map[string]string{"error": "not_found"})
	}
	return jsonResult(res.Items[0])
}

func (s *Server) query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Recall(ctx, memory.RecallParams{
		Category: category,
		Prefix:   req.GetString("prefix", ""),
		Limit:    req.GetInt("limit", DefaultQueryLimit),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res.Items)
}

func (s *Server) remove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.svc.Forget(ctx, category, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"deleted": category + "/" + key, "found": removed})
}

func (s *Server) list(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	d, err := s.svc.Discover(ctx, category, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if d.Detail != nil {
		return jsonResult(map[string]any{"category": category, "keys": d.Detail.Keys})
	}
	cats := make([]string, 0, len(d.Categories))
	for _, c := range d.Categories {
		cats = append(cats, c.Category)
	}
	return jsonResult(map[string]any{"categories": cats})
}

func (s *Server) schema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.svc.Schema(ctx, req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infos)
}

func (s *Server) promote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Promote(ctx, category, key, req.GetString("to_category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.Found {
		return jsonResult(map[string]string{"error": "not_found"})
	}
	return jsonResult(res)
}

func (s *Server) prune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.Prune(ctx, req.GetString("category", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]int{"pruned": n})
}

func (s *Server) initialize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	created, err := s.svc.Init(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if created == nil {
		created = []string{}
	}
	return jsonResult(map[string]any{"created": created})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
