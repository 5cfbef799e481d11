// Package llm defines the language-model client used by the research
// pipeline and an OpenAI-compatible HTTP implementation of it.
package llm

import "context"

// Request is one completion request. System and Prompt map onto the system
// and user messages of chat-style APIs.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is a completed request.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client completes prompts. Implementations must classify upstream failures
// into the transient/permanent error taxonomy so the retry executor can act
// on them.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
