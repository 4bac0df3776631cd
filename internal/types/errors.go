package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates no snapshot exists for a URL.
	ErrNotFound = errors.New("not found")

	ErrEmptyQuery = errors.New("empty query")

	// ErrDimensionMismatch indicates a vector does not match the store's dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// FetchError is a network or timeout failure while loading a page.
// Callers may retry; nothing retries internally.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RenderError means the page loaded but no content could be extracted.
type RenderError struct {
	URL string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// ProviderError wraps a failed embedding or model call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RemoteIndexError reports a partially or fully failed reconciliation.
// Added and Removed list the ids that were applied before or despite the failures.
type RemoteIndexError struct {
	IndexID string
	Added   []string
	Removed []string
	Failed  map[string]error
	Err     error
}

func (e *RemoteIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote index %s: %v", e.IndexID, e.Err)
	}

	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failed[id]))
	}

	return fmt.Sprintf("remote index %s: %d of %d changes failed (%s)",
		e.IndexID, len(e.Failed), len(e.Failed)+len(e.Added)+len(e.Removed), strings.Join(parts, "; "))
}

func (e *RemoteIndexError) Unwrap() error { return e.Err }

// ParseError means an answering reply held no usable JSON object.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "parse reply: " + e.Reason
}
