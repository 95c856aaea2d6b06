// Package enhancement defines the enhancement provider interface: the final
// LLM pass that translates the combined transcript into the session's target
// language and rewrites it for the requested output style.
package enhancement

import (
	"context"
	"fmt"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/provider"
)

// Mode names under which backend instances are cached in the registry.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// EnhancementRequest holds parameters for an enhancement call.
type EnhancementRequest struct {
	// Text is the combined transcript to rewrite.
	Text string `json:"text"`
	// TargetLanguage is the human-readable target language label (e.g. "English").
	TargetLanguage string `json:"target_language"`
	// OutputType is the desired output style (e.g. "email", "whatsapp").
	OutputType string `json:"output_type"`
	// Model overrides the backend's configured model when set.
	Model string `json:"model,omitempty"`
}

// Provider is the interface that enhancement backends must implement.
type Provider interface {
	provider.Provider // embeds Name() and IsAvailable()

	// Enhance rewrites text per the request and returns the result.
	Enhance(ctx context.Context, req EnhancementRequest) (string, error)
}

// Registry is a registry of enhancement backends keyed by mode.
type Registry = provider.Registry[Provider]

// NewRegistry creates an empty enhancement backend registry.
func NewRegistry() *Registry {
	return provider.NewRegistry[Provider]()
}

// Resolve returns the backend the session config pins under the given mode.
func Resolve(ctx context.Context, reg *Registry, mode string) (Provider, error) {
	sel := &provider.NamedSelector[Provider]{Name: mode}
	p, err := sel.Select(ctx, reg.Instances())
	if err != nil {
		return nil, apperrors.InvalidInput("enhancementBackend", "unknown backend: "+mode)
	}
	return p, nil
}

// SystemPrompt builds the system instruction for chat-style backends.
func SystemPrompt(req EnhancementRequest) string {
	return fmt.Sprintf("You are a helpful assistant that translates text to %s "+
		"and improves it to be correct and brief for a %s. "+
		"Adapt the style and tone to be appropriate for the specified output type. "+
		"Just output the translated and improved text.",
		req.TargetLanguage, req.OutputType)
}

// UserPrompt builds the user message carrying the text for chat-style backends.
func UserPrompt(req EnhancementRequest) string {
	return fmt.Sprintf("Please translate the following text to %s and format it as a %s:\n\n%s",
		req.TargetLanguage, req.OutputType, req.Text)
}

// CompletionPrompt builds a single combined prompt for plain completion backends.
func CompletionPrompt(req EnhancementRequest) string {
	return fmt.Sprintf("Translate and enhance the following text to %s.\n"+
		"Format it as a %s, making it correct and brief.\n"+
		"Adapt the style and tone to be appropriate for a %s.\n"+
		"Only respond with the translated and enhanced text.\n\n"+
		"Text to enhance:\n%s",
		req.TargetLanguage, req.OutputType, req.OutputType, req.Text)
}
