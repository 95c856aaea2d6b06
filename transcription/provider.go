// Package transcription defines the transcription provider interface and common
// types for interacting with speech-to-text backends.
package transcription

import (
	"context"
	"strings"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/provider"
)

// Mode names under which backend instances are cached in the registry.
// Session configs refer to backends by mode, not by concrete provider name.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Provider is the interface that transcription backends must implement.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Transcribe sends audio for transcription and returns the result.
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
}

// Registry is a registry of transcription backends keyed by mode.
type Registry = provider.Registry[Provider]

// NewRegistry creates an empty transcription backend registry.
func NewRegistry() *Registry {
	return provider.NewRegistry[Provider]()
}

// Resolve returns the backend the session config pins under the given mode.
func Resolve(ctx context.Context, reg *Registry, mode string) (Provider, error) {
	sel := &provider.NamedSelector[Provider]{Name: mode}
	p, err := sel.Select(ctx, reg.Instances())
	if err != nil {
		return nil, apperrors.InvalidInput("transcriptionBackend", "unknown backend: "+mode)
	}
	return p, nil
}

// ValidateText checks a backend response against the acceptance rules:
// the response must be present and its text non-empty after trimming.
// The trimmed text is returned on success.
func ValidateText(resp *TranscriptionResponse) (string, error) {
	if resp == nil {
		return "", apperrors.TranscriptionInvalid("backend returned no result")
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperrors.TranscriptionInvalid("backend returned empty text")
	}
	return text, nil
}
