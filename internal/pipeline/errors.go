package pipeline

import "fmt"

// ValidationError reports a request that cannot be processed as given.
// It is surfaced to the caller unchanged.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RewriteProviderError wraps a failed, timed out or cancelled rewrite call.
// The pipeline never retries; callers decide whether to resubmit.
type RewriteProviderError struct {
	Provider string
	Err      error
}

func (e *RewriteProviderError) Error() string {
	return fmt.Sprintf("rewrite provider %s failed: %v", e.Provider, e.Err)
}

func (e *RewriteProviderError) Unwrap() error {
	return e.Err
}

// Retryable is always true: the same request may succeed on resubmission
func (e *RewriteProviderError) Retryable() bool {
	return true
}
