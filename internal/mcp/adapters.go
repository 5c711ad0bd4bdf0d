package mcp

import (
	"context"

	"signal-relay/internal/domain"
)

// SignalIngestor is the slice of the signal service the tool server drives.
type SignalIngestor interface {
	SubmitSignal(ctx context.Context, payload map[string]any) (domain.SubmitResult, error)
	RecentSignals(ctx context.Context, limit int) ([]domain.ArchivedSignal, error)
}
