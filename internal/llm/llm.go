// Package llm adapts the language-model collaborators: chat completion on
// Anthropic's Messages API and text embeddings on Gemini.
package llm

import "context"

// ChatRequest is one single-turn completion.
type ChatRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSON asks the model to answer with a single JSON object. The caller
	// must still tolerate stray prose around it.
	JSON bool
}

// ChatCompleter returns the raw text of a completion.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Embedder generates fixed-length vectors. EmbedBatch preserves input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ErrorHook is notified of every failed remote call, for metrics.
type ErrorHook func(collaborator string, err error)

func (h ErrorHook) report(collaborator string, err error) {
	if h != nil && err != nil {
		h(collaborator, err)
	}
}
