package solana

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes surfaced by RPC clients. Match with errors.Is.
var (
	// ErrNotFound means the slot was skipped, pruned or never produced, or the
	// signature is unknown. It is not retried.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited means the endpoint asked us to slow down.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransient covers network failures and temporary node conditions.
	ErrTransient = errors.New("transient network error")
)

// JSON-RPC error codes with a known meaning.
const (
	codeBlockNotAvailable     = -32004
	codeNodeUnhealthy         = -32005
	codeSlotSkipped           = -32007
	codeLongTermStorageMissed = -32009
	codeBlockStatusNotYet     = -32014
	codeRateLimited           = -32429
)

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Is maps node error codes onto the failure classes. Block-not-available
// is transient: nodes return it for blocks not yet readable at the
// requested commitment.
func (e *RPCError) Is(target error) bool {
	switch e.Code {
	case codeSlotSkipped, codeLongTermStorageMissed:
		return target == ErrNotFound
	case codeBlockNotAvailable, codeNodeUnhealthy, codeBlockStatusNotYet:
		return target == ErrTransient
	case codeRateLimited:
		return target == ErrRateLimited
	}
	return false
}

// HTTPStatusError is a non-200 HTTP response.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return "rate limited (429)"
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Is maps 429 to ErrRateLimited and 5xx to ErrTransient.
func (e *HTTPStatusError) Is(target error) bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return target == ErrRateLimited
	case e.StatusCode >= 500:
		return target == ErrTransient
	}
	return false
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
