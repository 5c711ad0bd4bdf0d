package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"signal-relay/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type stubIngestor struct {
	recent []domain.ArchivedSignal

	lastPayload map[string]any
	lastLimit   int
}

func (s *stubIngestor) SubmitSignal(ctx context.Context, payload map[string]any) (domain.SubmitResult, error) {
	s.lastPayload = payload
	if _, ok := payload["entry"]; !ok {
		return domain.SubmitResult{}, fmt.Errorf("%w: missing entry", domain.ErrInvalidSignal)
	}
	return domain.SubmitResult{Accepted: true, RecipientsNotified: 3, SignalID: "EURUSD_BUY_1h_1"}, nil
}

func (s *stubIngestor) RecentSignals(ctx context.Context, limit int) ([]domain.ArchivedSignal, error) {
	s.lastLimit = limit
	return append([]domain.ArchivedSignal(nil), s.recent...), nil
}

func testServer() (*sdkmcp.Server, *stubIngestor) {
	signals := &stubIngestor{
		recent: []domain.ArchivedSignal{{
			NormalizedSignal: domain.NormalizedSignal{
				ID: "EURUSD_BUY_1h_1", Instrument: "EURUSD", Direction: domain.DirectionBuy,
				Entry: "1.085", Market: domain.MarketForex, CreatedAt: time.Unix(0, 0).UTC(),
			},
			Deliveries: 2,
		}},
	}
	srv := NewServer(nil, signals, ServerConfig{RequestTimeout: time.Second})
	return srv, signals
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}
