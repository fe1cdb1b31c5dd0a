package query

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cjenik/dates"
	"github.com/hazyhaar/cjenik/kit"
)

// RegisterMCP registers the query tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerSearch(srv)
	s.registerHistory(srv)
	s.registerCities(srv)
	s.registerStatus(srv)
}

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

func (s *Service) registerSearch(srv *mcp.Server) {
	type req struct {
		Date string `json:"date"`
		Q    string `json:"q"`
		City string `json:"city"`
	}

	tool := &mcp.Tool{
		Name:        "price_search",
		Description: "Search products by name, brand, or barcode for a date, with prices per store",
		InputSchema: inputSchema(map[string]any{
			"date": map[string]any{"type": "string", "description": "ISO date YYYY-MM-DD (default: today)"},
			"q":    map[string]any{"type": "string", "description": "Search text or exact barcode"},
			"city": map[string]any{"type": "string", "description": "Restrict prices to stores in this city"},
		}, []string{"q"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		date := p.Date
		if date == "" {
			date = dates.Today()
		}
		return s.Search(ctx, date, p.Q, p.City)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerHistory(srv *mcp.Server) {
	type req struct {
		Barcode string `json:"barcode"`
		Name    string `json:"name"`
		City    string `json:"city"`
		Chain   string `json:"chain"`
		Days    int    `json:"days"`
	}

	tool := &mcp.Tool{
		Name:        "price_history",
		Description: "Price evolution for a product (barcode or name) over the last N days, min and average per chain",
		InputSchema: inputSchema(map[string]any{
			"barcode": map[string]any{"type": "string", "description": "Exact EAN barcode (wins over name)"},
			"name":    map[string]any{"type": "string", "description": "Product name substring"},
			"city":    map[string]any{"type": "string", "description": "Restrict to stores in this city"},
			"chain":   map[string]any{"type": "string", "description": "Restrict to one chain code"},
			"days":    map[string]any{"type": "integer", "description": "Number of days back (default 7)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		days := p.Days
		if days == 0 {
			days = 7
		}
		return s.History(ctx, HistoryRequest{
			Barcode: p.Barcode,
			Name:    p.Name,
			City:    p.City,
			Chain:   p.Chain,
			Days:    days,
		})
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerCities(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "price_cities",
		Description: "List the known store cities",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.Cities(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (s *Service) registerStatus(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "ingest_status",
		Description: "List ingested dates with row counts and status",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.catalog.ListIngestions(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
