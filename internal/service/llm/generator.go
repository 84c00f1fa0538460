// Package llm generates conversation-partner replies with the OpenAI chat API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"speaking-practice/internal/observability/logging"
	"speaking-practice/internal/observability/metrics"
)

// Errors returned alongside the apology text.
var (
	ErrLanguageModelFailed = errors.New("language model failed")
	ErrNoAPIKey            = errors.New("api key not configured")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("api key rejected")
	ErrUnavailable         = errors.New("service unavailable")
	ErrEmptyReply          = errors.New("empty reply")
	ErrUnknownDifficulty   = errors.New("unknown difficulty")
)

// User-facing replies for failures the caller can speak directly.
const (
	ReplyNoAPIKey     = "The API key is not configured. Please set an OpenAI API key and try again."
	ReplyRateLimited  = "I'm getting too many requests right now. Please wait a moment and try again."
	ReplyUnauthorized = "There's a problem with the API key. It may be invalid or expired, so please check your settings."
	ReplyUnavailable  = "The language service is not responding right now. Please try again in a little while."
	ReplyEmpty        = "Sorry, I couldn't come up with a response."
	ReplyBadSettings  = "Sorry, something is wrong with the conversation settings."
)

// Options selects the system prompt for one request.
type Options struct {
	Difficulty   int
	CustomPrompt string
}

// Config holds chat completion settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	Temperature       float32
	MaxAttempts       int
	BackoffUnit       time.Duration
	RequestsPerMinute int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// DefaultConfig returns the conversation defaults.
func DefaultConfig() Config {
	return Config{
		Model:             goopenai.GPT3Dot5Turbo,
		MaxTokens:         150,
		Temperature:       0.7,
		MaxAttempts:       3,
		BackoffUnit:       3 * time.Second,
		RequestsPerMinute: 20,
		Timeout:           30 * time.Second,
	}
}

// Generator produces one reply per user message. There is no chat history;
// every request carries only the system prompt and the latest message.
type Generator struct {
	client  *goopenai.Client
	cfg     Config
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a generator. Without an API key every request returns the
// configuration apology.
func New(cfg Config) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT3Dot5Turbo
	}

	g := &Generator{
		cfg:     cfg,
		limiter: newLimiter(cfg.RequestsPerMinute),
		sleep:   sleepContext,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithBackend("llm", "openai"),
	}

	if cfg.APIKey != "" {
		oc := goopenai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.HTTPClient != nil {
			oc.HTTPClient = cfg.HTTPClient
		}
		g.client = goopenai.NewClientWithConfig(oc)
	}
	return g
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Generate returns the bot reply to userText.
//
// On failure the error wraps ErrLanguageModelFailed. The returned text is
// then either a user-facing apology the caller may speak as is, or empty
// when no specific apology applies.
func (g *Generator) Generate(ctx context.Context, userText string, opts Options) (string, error) {
	if g.client == nil {
		g.metrics.RecordLLMRequest("no_key", 0)
		return ReplyNoAPIKey, fmt.Errorf("%w: %w", ErrLanguageModelFailed, ErrNoAPIKey)
	}

	prompt, err := resolvePrompt(opts)
	if err != nil {
		return ReplyBadSettings, fmt.Errorf("%w: %w", ErrLanguageModelFailed, err)
	}

	req := goopenai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: prompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userText},
		},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %w", ErrLanguageModelFailed, err)
		}

		start := time.Now()
		reply, status, err := g.complete(ctx, req)
		latency := time.Since(start).Seconds()

		if err == nil {
			if reply == "" {
				g.metrics.RecordLLMRequest("empty", latency)
				return ReplyEmpty, fmt.Errorf("%w: %w", ErrLanguageModelFailed, ErrEmptyReply)
			}
			g.metrics.RecordLLMRequest("ok", latency)
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			g.metrics.RecordLLMRequest("cancelled", latency)
			return "", fmt.Errorf("%w: %w", ErrLanguageModelFailed, ctx.Err())
		}

		switch {
		case status == http.StatusTooManyRequests:
			g.metrics.RecordLLMRequest("rate_limited", latency)
			if attempt == g.cfg.MaxAttempts {
				g.logger.Warn().Int("attempts", attempt).Msg("Rate limit not lifted, giving up")
				return ReplyRateLimited, fmt.Errorf("%w: %w", ErrLanguageModelFailed, ErrRateLimited)
			}
			wait := time.Duration(attempt) * g.cfg.BackoffUnit
			g.logger.Warn().Int("attempt", attempt).Dur("retryIn", wait).Msg("Rate limited, retrying")
			if err := g.sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("%w: %w", ErrLanguageModelFailed, err)
			}
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			g.metrics.RecordLLMRequest("auth_error", latency)
			g.logger.Error().Err(err).Int("status", status).Msg("API key rejected")
			return ReplyUnauthorized, fmt.Errorf("%w: %w: %w", ErrLanguageModelFailed, ErrUnauthorized, err)

		case status >= 500:
			g.metrics.RecordLLMRequest("server_error", latency)
			g.logger.Error().Err(err).Int("status", status).Msg("Language service error")
			return ReplyUnavailable, fmt.Errorf("%w: %w: %w", ErrLanguageModelFailed, ErrUnavailable, err)
		}

		g.metrics.RecordLLMRequest("error", latency)
		g.logger.Error().Err(err).Int("attempt", attempt).Msg("Chat completion failed")
		return "", fmt.Errorf("%w: %w", ErrLanguageModelFailed, err)
	}

	return "", fmt.Errorf("%w: %w", ErrLanguageModelFailed, lastErr)
}

// complete sends one request and returns the reply text, or the HTTP status
// of the failure when the API reported one.
func (g *Generator) complete(ctx context.Context, req goopenai.ChatCompletionRequest) (string, int, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", statusOf(err), err
	}
	if len(resp.Choices) == 0 {
		return "", 0, nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), 0, nil
}

func statusOf(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func resolvePrompt(opts Options) (string, error) {
	if p := strings.TrimSpace(opts.CustomPrompt); p != "" {
		return p, nil
	}
	p, ok := SystemPrompt(opts.Difficulty)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownDifficulty, opts.Difficulty)
	}
	return p, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
