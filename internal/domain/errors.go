package domain

import "errors"

var (
	ErrPromptRequired    = errors.New("prompt is required")
	ErrImagePathRequired = errors.New("image path is required")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrNoResult          = errors.New("no history result")
	ErrNoImages          = errors.New("no images produced")
	ErrUnknownRoot       = errors.New("path outside watched roots")
	ErrLedgerDisabled    = errors.New("job ledger disabled")
)
