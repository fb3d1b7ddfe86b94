// Package quark is a client for the Quark cloud drive API: share
// resolution, saving shared content, task polling, folder listing and
// share-link minting.
package quark

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransferTimeout is returned when a submitted task does not finish
// within the polling budget.
var ErrTransferTimeout = errors.New("transfer task did not complete in time")

// ErrInvalidCookie is returned when the drive rejects the credential.
var ErrInvalidCookie = errors.New("drive cookie is invalid or expired")

// Kind classifies a remote API failure. The classification happens
// exactly once, where the response is parsed; callers only switch on it.
type Kind int

const (
	// KindRetryable failures may succeed on a later attempt.
	KindRetryable Kind = iota
	// KindFatal failures abort the operation immediately.
	KindFatal
)

// APIError is a non-success response from the drive API.
type APIError struct {
	Op      string
	Code    int
	Message string
	Kind    Kind
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quark %s: code=%d message=%q", e.Op, e.Code, e.Message)
}

// IsFatal reports whether err is a fatal drive API failure.
func IsFatal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindFatal
}

// Fatal response codes.
const (
	codeCapacityExceeded = 32003 // paired with a "capacity limit" message
	codeFolderMissing    = 41013
	codeNameConflict     = 23008
)

// classify assigns the error kind for a response code.
func classify(op string, code int, message string) *APIError {
	kind := KindRetryable
	switch {
	case code == codeCapacityExceeded && strings.Contains(strings.ToLower(message), "capacity limit"):
		kind = KindFatal
	case code == codeFolderMissing:
		kind = KindFatal
	case code == codeNameConflict:
		kind = KindFatal
	}
	return &APIError{Op: op, Code: code, Message: message, Kind: kind}
}
