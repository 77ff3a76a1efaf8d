package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/wepublish/dorfkoenig/infrastructure/circuitbreaker"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/retry"
)

const (
	DefaultEmbeddingModel      = "gemini-embedding-001"
	DefaultEmbeddingDimensions = 1536
)

// EmbedderConfig configures the Gemini embedder.
type EmbedderConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
	Retry      retry.Config
	OnError    ErrorHook
}

// GeminiEmbedder implements Embedder with the Gemini embedContent API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int32
	retry      retry.Config
	breaker    *circuitbreaker.Breaker
	onError    ErrorHook
}

// NewGeminiEmbedder builds an embedder. Vectors are requested at a fixed
// dimensionality so stored and fresh embeddings stay comparable.
func NewGeminiEmbedder(ctx context.Context, cfg EmbedderConfig, log logger.Logger) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbeddingDimensions
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	if cfg.Retry.IsRetryable == nil {
		cfg.Retry.IsRetryable = isRetryableGenAI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: int32(cfg.Dimensions),
		retry:      cfg.Retry,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "gemini",
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
			OnStateChange:    logStateChange(log),
		}),
		onError: cfg.OnError,
	}, nil
}

// Embed returns the embedding of a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	embedCfg := &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: genai.Ptr(e.dimensions),
	}

	var vectors [][]float32
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, e.retry, func(ctx context.Context) error {
			resp, callErr := e.client.Models.EmbedContent(ctx, e.model, contents, embedCfg)
			if callErr != nil {
				return callErr
			}
			if len(resp.Embeddings) != len(texts) {
				return fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
			}

			vectors = make([][]float32, len(resp.Embeddings))
			for i, emb := range resp.Embeddings {
				vectors[i] = emb.Values
			}
			return nil
		})
	})
	if err != nil {
		e.onError.report("gemini", err)
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	return vectors, nil
}

func isRetryableGenAI(err error) bool {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return retry.IsTransient(err)
	}
	return code == 429 || code >= 500
}
