package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/phrazzld/scry-reports/internal/config"
	"github.com/phrazzld/scry-reports/internal/generation"
	"google.golang.org/genai"
)

const (
	defaultMaxRetries        = 3
	defaultRetryDelaySeconds = 2
)

// contentGenerator is the slice of the genai models service the adapter uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

var _ contentGenerator = (*genai.Models)(nil)

// Client calls Gemini models with retry and response checking.
type Client struct {
	models     contentGenerator
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	rng        *rand.Rand
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Gemini API client from the LLM configuration.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newClient(client.Models, cfg, logger), nil
}

func newClient(models contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Client {
	logger = logger.With("component", "gemini_client")

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		logger.Warn("invalid max retries value, using default", "max_retries", defaultMaxRetries)
		maxRetries = defaultMaxRetries
	}
	delaySeconds := cfg.RetryDelaySeconds
	if delaySeconds < 1 {
		logger.Warn("invalid retry delay value, using default", "base_delay_seconds", defaultRetryDelaySeconds)
		delaySeconds = defaultRetryDelaySeconds
	}

	return &Client{
		models:     models,
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  time.Duration(delaySeconds) * time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepContext,
	}
}

// generate sends one user turn to model and returns the concatenated text of
// the first candidate. API errors are retried; blocked or malformed responses
// are returned immediately.
func (c *Client) generate(
	ctx context.Context,
	model string,
	parts []*genai.Part,
	cfg *genai.GenerateContentConfig,
) (string, error) {
	if model == "" {
		return "", fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		c.logger.DebugContext(ctx, "making Gemini API call",
			"model", model,
			"attempt", attemptNum,
			"max_attempts", c.maxRetries+1)

		resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
		if err == nil {
			text, respErr := responseText(resp)
			if respErr != nil {
				c.logger.WarnContext(ctx, "permanent Gemini error, not retrying",
					"model", model,
					"attempt", attemptNum,
					"error", respErr)
				return "", respErr
			}
			return text, nil
		}

		c.logger.ErrorContext(ctx, "Gemini API call failed",
			"model", model,
			"attempt", attemptNum,
			"error", err)

		if attempt >= c.maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				generation.ErrTransientFailure, c.maxRetries)
		}

		delay := c.backoff(attempt)
		c.logger.InfoContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay)

		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
		}
	}
}

// backoff returns base * 2^attempt scaled by a jitter factor in [0.5, 1.0).
func (c *Client) backoff(attempt int) time.Duration {
	scaled := float64(c.baseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(scaled * (0.5 + c.rng.Float64()*0.5))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	switch {
	case resp == nil:
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	case len(resp.Candidates) == 0 || resp.Candidates[0] == nil:
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	case resp.Candidates[0].Content == nil:
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
