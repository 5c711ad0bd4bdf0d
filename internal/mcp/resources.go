package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerResources(server *mcp.Server, signals SignalIngestor) {
	server.AddResource(&mcp.Resource{
		URI:         "markets://instruments",
		Name:        "market-instruments",
		Description: "Instruments offered in the bot menus, grouped by market",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return jsonResource(req.Params.URI, marketInstruments())
	})

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "signals://recent{?limit}",
		Name:        "signals-recent",
		Description: "Recently archived signals; optional limit query param",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if signals == nil {
			return nil, fmt.Errorf("signal service unavailable")
		}

		parsed, err := url.Parse(req.Params.URI)
		if err != nil {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		if parsed.Scheme != "signals" || parsed.Host != "recent" {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}

		limit := defaultRecentLimit
		if raw := strings.TrimSpace(parsed.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid limit: %s", raw)
			}
			limit = normalizeRecentLimit(n)
		}

		list, err := signals.RecentSignals(ctx, limit)
		if err != nil {
			return nil, err
		}
		return jsonResource(req.Params.URI, toRecent(list))
	})
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}
