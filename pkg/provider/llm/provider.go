// Package llm defines the Provider interface for answer-generation backends.
//
// A provider wraps a remote completion API (the Vistaar voice endpoint, an
// OpenAI-compatible chat API) and exposes a uniform streaming interface: an
// ordered channel of text chunks that terminates normally or with an error
// carried in the final chunk.
//
// Implementations must be safe for concurrent use. The channel returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or the supplied context is cancelled.
package llm

import "context"

// Message is a single message in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CompletionRequest carries the conversation the provider should answer.
// The last user-role message drives the response.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// SystemPrompt is an optional instruction injected ahead of the history.
	// Providers without a native system slot prepend it as a system message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. Empty on a pure control chunk.
	Text string

	// FinishReason is set on the final chunk of a successful stream and
	// indicates why generation stopped (e.g. "stop", "length").
	FinishReason string

	// Err is set on the final chunk when the stream failed upstream. After a
	// chunk with a non-nil Err, the channel is closed and no further text
	// follows.
	Err error
}

// Provider is the abstraction over any generation backend.
type Provider interface {
	// StreamCompletion starts a completion and returns a channel of ordered
	// chunks. The channel is closed when generation finishes, fails, or ctx
	// is cancelled; a failure is delivered as a final chunk with Err set.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}

// LastUserMessage returns the content of the most recent user-role message,
// or "" when the history contains none.
func LastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
