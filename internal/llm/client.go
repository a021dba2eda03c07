package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

// BaseSystemPrompt prefixes every system instruction
const BaseSystemPrompt = "You are a helpful assistant."

// ErrEmptyResponse is returned when the backend answered with no text
var ErrEmptyResponse = errors.New("empty response")

// Generator is the text-generation capability every pipeline stage depends on
type Generator interface {
	// Generate runs a single-shot completion
	Generate(ctx context.Context, prompt string, opts ...Option) (string, error)

	// Turn sends message on top of conv and returns the reply together with
	// the extended conversation. conv itself is never modified.
	Turn(ctx context.Context, conv Conversation, message string, opts ...Option) (string, Conversation, error)
}

// CallOptions are the per-call settings resolved from Option values
type CallOptions struct {
	Model       string
	System      string // Appended to BaseSystemPrompt
	Temperature *float32
	JSON        bool
	MaxTokens   int
}

// Option configures a single call
type Option func(*CallOptions)

// WithModel overrides the model for one call
func WithModel(model string) Option {
	return func(o *CallOptions) { o.Model = model }
}

// WithSystem adds call-specific system instructions
func WithSystem(system string) Option {
	return func(o *CallOptions) { o.System = system }
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float32) Option {
	return func(o *CallOptions) { o.Temperature = &t }
}

// WithJSON requests a single JSON object response
func WithJSON() Option {
	return func(o *CallOptions) { o.JSON = true }
}

// WithMaxTokens limits the response length
func WithMaxTokens(n int) Option {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// ApplyOptions resolves opts into CallOptions
func ApplyOptions(opts ...Option) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// SystemPrompt returns the full system instruction for o
func (o CallOptions) SystemPrompt() string {
	if o.System == "" {
		return BaseSystemPrompt
	}
	return BaseSystemPrompt + "\n" + o.System
}

// Client implements Generator on top of a Provider, throttled per provider/model
type Client struct {
	provider Provider
	limiter  *worker.Limiter
	model    string
	logger   *zap.Logger
}

// NewClient creates a generation client. limiter may be nil.
func NewClient(provider Provider, defaultModel string, limiter *worker.Limiter, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		limiter:  limiter,
		model:    defaultModel,
		logger:   logging.Module(logger, "llm"),
	}
}

// Generate runs a single-shot completion
func (c *Client) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	reply, _, err := c.Turn(ctx, Conversation{}, prompt, opts...)
	return reply, err
}

// Turn runs one multi-turn completion
func (c *Client) Turn(ctx context.Context, conv Conversation, message string, opts ...Option) (string, Conversation, error) {
	o := ApplyOptions(opts...)
	model := o.Model
	if model == "" {
		model = c.model
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, LimiterKey(c.provider.Name(), model)); err != nil {
			return "", conv, fmt.Errorf("rate limit: %w", err)
		}
	}

	next := conv.With(Message{Role: RoleUser, Content: message})
	resp, err := c.provider.Complete(ctx, CompletionRequest{
		Model:       model,
		System:      o.SystemPrompt(),
		Messages:    next.Messages(),
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		JSON:        o.JSON,
	})
	if err != nil {
		return "", conv, err
	}

	c.logger.Debug("completion",
		zap.String("provider", c.provider.Name()),
		zap.String("model", resp.Model),
		zap.Int("turns", next.Len()),
		zap.Int("tokens", resp.TokensUsed),
	)

	if strings.TrimSpace(resp.Content) == "" {
		return "", conv, ErrEmptyResponse
	}

	return resp.Content, next.With(Message{Role: RoleAssistant, Content: resp.Content}), nil
}

// LimiterKey is the rate-limit bucket for one provider/model pair
func LimiterKey(provider, model string) string {
	return provider + ":" + model
}

// ApplyModelLimits installs per-model rates on limiter for provider
func ApplyModelLimits(limiter *worker.Limiter, provider string, limits []model.ModelLimit) {
	for _, l := range limits {
		limiter.SetRate(LimiterKey(provider, l.Model), l.RequestsPerSecond, l.Burst)
	}
}
