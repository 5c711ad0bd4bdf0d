package domain

import "errors"

var (
	// ErrInvalidSignal marks a payload that must not be distributed.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrProviderUnavailable wraps AccountStore, chart, sentiment and calendar failures.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrRenderIncompatible means the target message cannot take the new content in place.
	ErrRenderIncompatible = errors.New("render mode incompatible")
	// ErrRecoveryMiss means no instrument or signal could be recovered from the session.
	ErrRecoveryMiss = errors.New("session recovery miss")
	ErrNotFound     = errors.New("not found")
)
