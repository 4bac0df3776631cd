package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsUnwrap(t *testing.T) {
	fetchErr := fmt.Errorf("ingest: %w", &FetchError{URL: "https://example.com", Err: context.DeadlineExceeded})

	var fe *FetchError
	assert.True(t, errors.As(fetchErr, &fe))
	assert.Equal(t, "https://example.com", fe.URL)
	assert.ErrorIs(t, fetchErr, context.DeadlineExceeded)

	provErr := &ProviderError{Provider: "openai", Err: errors.New("quota")}
	assert.Equal(t, "openai provider: quota", provErr.Error())
}

func TestRemoteIndexErrorMessage(t *testing.T) {
	err := &RemoteIndexError{
		IndexID: "vs_1",
		Added:   []string{"a"},
		Failed: map[string]error{
			"c": errors.New("boom"),
			"b": errors.New("bang"),
		},
	}

	assert.Equal(t, "remote index vs_1: 2 of 3 changes failed (b: bang; c: boom)", err.Error())

	wrapped := &RemoteIndexError{IndexID: "vs_1", Err: errors.New("list failed")}
	assert.Equal(t, "remote index vs_1: list failed", wrapped.Error())
}
