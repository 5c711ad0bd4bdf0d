package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerTools(server *mcp.Server, signals SignalIngestor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_submit",
		Description: "Normalize a trading signal and distribute it to operators and subscribers",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in signalsSubmitInput) (*mcp.CallToolResult, signalsSubmitOutput, error) {
		if signals == nil {
			return nil, signalsSubmitOutput{}, fmt.Errorf("signal service unavailable")
		}
		result, err := signals.SubmitSignal(ctx, in.payload())
		if err != nil {
			return nil, signalsSubmitOutput{}, err
		}
		return nil, signalsSubmitOutput{
			Accepted:           result.Accepted,
			RecipientsNotified: result.RecipientsNotified,
			SignalID:           result.SignalID,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_recent",
		Description: "List recently archived signals with their delivery counts",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in signalsRecentInput) (*mcp.CallToolResult, signalsRecentOutput, error) {
		if signals == nil {
			return nil, signalsRecentOutput{}, fmt.Errorf("signal service unavailable")
		}
		list, err := signals.RecentSignals(ctx, normalizeRecentLimit(in.Limit))
		if err != nil {
			return nil, signalsRecentOutput{}, err
		}
		return nil, toRecent(list), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signal_classify",
		Description: "Show the market, default signal timeframe and calendar currencies of an instrument",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in signalClassifyInput) (*mcp.CallToolResult, signalClassifyOutput, error) {
		out, err := classify(in.Instrument)
		if err != nil {
			return nil, signalClassifyOutput{}, err
		}
		return nil, out, nil
	})
}
