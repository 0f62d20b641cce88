// api/schemas/interfaces.go
package schemas

import "context"

// GenerationRequest is a single prompt to a (possibly multimodal) model.
// Images are base64 payloads without the data URI prefix.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Images       []string
}

// LLMClient is the contract the planner depends on.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
