package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/wepublish/dorfkoenig/infrastructure/circuitbreaker"
	"github.com/wepublish/dorfkoenig/infrastructure/logger"
)

const (
	DefaultChatModel      = "claude-sonnet-4-5"
	DefaultMaxTokens      = 2048
	DefaultRequestsPerSec = 2.0
	defaultBurst          = 4

	jsonInstruction = "\n\nAntworte ausschließlich mit einem einzigen gültigen JSON-Objekt, ohne Markdown und ohne weiteren Text."
)

var errEmptyCompletion = errors.New("completion has no text content")

// ChatConfig configures the Anthropic client.
type ChatConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	MaxRetries     int
	RequestsPerSec float64
	Timeout        time.Duration
	OnError        ErrorHook
}

// Chat is a ChatCompleter backed by the Anthropic Messages API. Calls are
// rate limited and guarded by a circuit breaker; the SDK handles retries.
type Chat struct {
	client  anthropic.Client
	model   anthropic.Model
	limiter *rate.Limiter
	breaker *circuitbreaker.Breaker
	timeout time.Duration
	onError ErrorHook
	log     logger.Logger
}

// NewChat builds a Chat client.
func NewChat(cfg ChatConfig, log logger.Logger) (*Chat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultRequestsPerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Chat{
		client:  anthropic.NewClient(opts...),
		model:   anthropic.Model(cfg.Model),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), defaultBurst),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "anthropic",
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
			OnStateChange:    logStateChange(log),
		}),
		timeout: cfg.Timeout,
		onError: cfg.OnError,
		log:     log,
	}, nil
}

// Complete sends req and returns the concatenated text blocks.
func (c *Chat) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	system := req.System
	if req.JSON {
		system += jsonInstruction
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		msg, callErr := c.client.Messages.New(callCtx, params)
		if callErr != nil {
			return callErr
		}

		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		if b.Len() == 0 {
			return errEmptyCompletion
		}
		text = b.String()

		c.log.Debug("Chat completion",
			logger.String("model", string(c.model)),
			logger.Int64("input_tokens", msg.Usage.InputTokens),
			logger.Int64("output_tokens", msg.Usage.OutputTokens),
		)
		return nil
	})
	if err != nil {
		c.onError.report("anthropic", err)
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	return text, nil
}

func logStateChange(log logger.Logger) func(string, circuitbreaker.State, circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		log.Warn("Circuit breaker state changed",
			logger.String("collaborator", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}
