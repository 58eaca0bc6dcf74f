package interfaces

import "errors"

// Sentinel errors shared across the engine. Wrap with fmt.Errorf("...: %w", err)
// and test with errors.Is.
var (
	ErrNotFound                  = errors.New("not found")
	ErrAmbiguousSymbol           = errors.New("ambiguous symbol")
	ErrUnknownSymbol             = errors.New("unknown symbol")
	ErrInsufficientHistory       = errors.New("insufficient history")
	ErrDataUnavailable           = errors.New("data unavailable")
	ErrStateMachineContradiction = errors.New("state machine contradiction")
	ErrTransactionAbort          = errors.New("transaction aborted")
	ErrInvalidAssetID            = errors.New("invalid canonical asset id")
)
