// Package generation wraps the local GGUF model behind a streaming
// completion interface. One completion is produced at a time; callers
// must serialize access (the orchestration engine is the lock boundary).
package generation

import (
	"context"
	"errors"

	"slmassist/internal/history"
)

// Client is the streaming-completion interface over the underlying model.
type Client interface {
	// StreamCompletion starts one completion over the given message window.
	// A non-nil error means the invocation could not start; the returned
	// stream is then nil. Mid-stream failures surface on Stream.Err after
	// the fragment channel closes.
	StreamCompletion(ctx context.Context, turns []history.Turn, sampling Sampling) (*Stream, error)

	// Close releases the underlying model.
	Close() error
}

// ErrNotLoaded is returned when no model is available for completion.
var ErrNotLoaded = errors.New("model not loaded")

// Sampling fixes the decoding configuration for a single completion call.
type Sampling struct {
	Temperature float64
	TopK        int
	TopP        float64
	MaxTokens   int
}

// Deterministic returns the reproducible decoding configuration used for
// PDF-grounded analysis: temperature 0, top-1.
func Deterministic(maxTokens int) Sampling {
	return Sampling{Temperature: 0, TopK: 1, TopP: 1, MaxTokens: maxTokens}
}

// Creative returns the moderate-temperature configuration used for open
// chat.
func Creative(maxTokens int) Sampling {
	return Sampling{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxTokens: maxTokens}
}
