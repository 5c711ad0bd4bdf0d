package mcp

import (
	"context"
	"testing"
	"time"

	"signal-relay/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestResourcesStaticAndTemplated(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, signals := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	list, err := session.ListResources(ctx, &sdkmcp.ListResourcesParams{})
	if err != nil {
		t.Fatalf("list resources failed: %v", err)
	}
	if len(list.Resources) != 1 {
		t.Fatalf("expected 1 static resource, got %d", len(list.Resources))
	}

	templates, err := session.ListResourceTemplates(ctx, &sdkmcp.ListResourceTemplatesParams{})
	if err != nil {
		t.Fatalf("list templates failed: %v", err)
	}
	if len(templates.ResourceTemplates) != 1 {
		t.Fatalf("expected 1 resource template, got %d", len(templates.ResourceTemplates))
	}

	readRes, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "markets://instruments"})
	if err != nil {
		t.Fatalf("read static resource failed: %v", err)
	}
	var instruments instrumentsOutput
	if err := decodeResourceJSON(readRes, &instruments); err != nil {
		t.Fatalf("decode instruments failed: %v", err)
	}
	if len(instruments.Markets[domain.MarketForex]) == 0 {
		t.Fatal("expected forex instruments")
	}

	readRes, err = session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "signals://recent?limit=10"})
	if err != nil {
		t.Fatalf("read signals resource failed: %v", err)
	}
	var out signalsRecentOutput
	if err := decodeResourceJSON(readRes, &out); err != nil {
		t.Fatalf("decode signal output failed: %v", err)
	}
	if len(out.Signals) != 1 || out.Signals[0].Deliveries != 2 {
		t.Fatalf("unexpected signals payload %+v", out)
	}
	if signals.lastLimit != 10 {
		t.Fatalf("expected limit 10, got %d", signals.lastLimit)
	}
}

func TestUnknownResource(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	srv, _ := testServer()
	session, shutdown, err := connectInMemory(ctx, srv)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer shutdown()
	defer session.Close()

	if _, err := session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "prices://latest"}); err == nil {
		t.Fatal("expected resource not found error for prices://latest")
	}
}
