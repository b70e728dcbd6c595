package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized           = errors.New("caller is not a controller")
	ErrLedgerNotConfigured    = errors.New("ledger reference is not configured")
	ErrInvalidAllocationInput = errors.New("invalid allocation input")
	ErrEmptyAllocationList    = errors.New("allocation list is empty")
	ErrZeroShareSum           = errors.New("share sum is zero")
	ErrInsufficientBalance    = errors.New("insufficient balance to cover transfer fees")
	ErrZeroPayoutRate         = errors.New("computed tokens per share is zero")
	ErrAllocationNotFound     = errors.New("allocation not found")
)

// RemoteError wraps an opaque failure surfaced from the ledger service.
// The message is never interpreted, only recorded.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ledger %s failed: %s", e.Op, e.Message)
}

func NewRemoteError(op, message string) *RemoteError {
	return &RemoteError{Op: op, Message: message}
}

func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
