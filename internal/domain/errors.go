package domain

import "errors"

var (
	// ErrAuthentication means login or token refresh failed; the session is unusable.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRetryExhausted means a request still failed after the refresh-and-retry cycle.
	ErrRetryExhausted = errors.New("request failed after token refresh")
	// ErrTransientFetch marks page fetch failures that are soft-failed to empty results.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrPersistence wraps every failure reported by the city store.
	ErrPersistence = errors.New("persistence failure")
	// ErrCandidateFetch means enrichment candidates could not be listed.
	ErrCandidateFetch = errors.New("list enrichment candidates")
)

// ErrDuplicateCity is returned by Create when the city name is already stored.
var ErrDuplicateCity = errors.New("city already exists")
