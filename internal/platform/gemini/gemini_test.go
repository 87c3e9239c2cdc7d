package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/scry-reports/internal/config"
	"github.com/phrazzld/scry-reports/internal/domain"
	"github.com/phrazzld/scry-reports/internal/generation"
	"github.com/phrazzld/scry-reports/internal/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels replays queued responses and records the requests it saw.
type fakeModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	models    []string
	contents  [][]*genai.Content
	configs   []*genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	f.models = append(f.models, model)
	f.contents = append(f.contents, contents)
	f.configs = append(f.configs, cfg)

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp *genai.GenerateContentResponse
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func newTestClient(models contentGenerator, maxRetries int) (*Client, *[]time.Duration) {
	c := newClient(models, config.LLMConfig{MaxRetries: maxRetries, RetryDelaySeconds: 1},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return c, &delays
}

func testUnit(t *testing.T, capability string) *unit.Unit {
	t.Helper()
	u, err := unit.NewRegistry().Register(capability, "gemini-test-model")
	require.NoError(t, err)
	return u
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), config.LLMConfig{GeminiAPIKey: "key"}, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.LLMConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestNewClient_RetryDefaults(t *testing.T) {
	t.Parallel()

	c := newClient(&fakeModels{}, config.LLMConfig{MaxRetries: -1, RetryDelaySeconds: 0},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, defaultMaxRetries, c.maxRetries)
	assert.Equal(t, defaultRetryDelaySeconds*time.Second, c.baseDelay)
}

func TestClient_Backoff(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(&fakeModels{}, 3)
	for attempt := 0; attempt < 4; attempt++ {
		full := time.Duration(1<<attempt) * time.Second
		d := c.backoff(attempt)
		assert.GreaterOrEqual(t, d, full/2)
		assert.Less(t, d, full)
	}
}

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		models    *fakeModels
		wantText  string
		wantErr   error
		wantCalls int
	}{
		{
			name:      "success",
			models:    &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("hello")}},
			wantText:  "hello",
			wantCalls: 1,
		},
		{
			name: "retries transient errors",
			models: &fakeModels{
				errs:      []error{errors.New("503"), errors.New("503")},
				responses: []*genai.GenerateContentResponse{nil, nil, textResponse("ok")},
			},
			wantText:  "ok",
			wantCalls: 3,
		},
		{
			name:      "gives up after max retries",
			models:    &fakeModels{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}},
			wantErr:   generation.ErrTransientFailure,
			wantCalls: 3,
		},
		{
			name:      "nil response is not retried",
			models:    &fakeModels{responses: []*genai.GenerateContentResponse{nil}},
			wantErr:   generation.ErrInvalidResponse,
			wantCalls: 1,
		},
		{
			name:      "no candidates",
			models:    &fakeModels{responses: []*genai.GenerateContentResponse{{}}},
			wantErr:   generation.ErrInvalidResponse,
			wantCalls: 1,
		},
		{
			name: "safety block",
			models: &fakeModels{responses: []*genai.GenerateContentResponse{{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}}},
			wantErr:   generation.ErrContentBlocked,
			wantCalls: 1,
		},
		{
			name: "nil content",
			models: &fakeModels{responses: []*genai.GenerateContentResponse{{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
			}}},
			wantErr:   generation.ErrInvalidResponse,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, delays := newTestClient(tt.models, 2)
			text, err := c.generate(context.Background(), "model-a", []*genai.Part{{Text: "p"}}, nil)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, text)
			}
			assert.Equal(t, tt.wantCalls, tt.models.calls)
			assert.Len(t, *delays, max(tt.wantCalls-1, 0))
		})
	}
}

func TestClient_GenerateCancelledDuringDelay(t *testing.T) {
	t.Parallel()

	models := &fakeModels{errs: []error{errors.New("unavailable")}}
	c, _ := newTestClient(models, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.generate(ctx, "model-a", []*genai.Part{{Text: "p"}}, nil)
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 1, models.calls)
}

func TestClient_GenerateRequiresModel(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(&fakeModels{}, 0)
	_, err := c.generate(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestRecognizer_Recognize(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(
		"```json\n" + `{"label":"tongue","observations":[{"name":"coating","value":"thick","confidence":0.9}]}` + "\n```",
	)}}
	c, _ := newTestClient(models, 0)
	r := NewRecognizer(c)
	u := testUnit(t, unit.CapabilityPredictor)

	art := &domain.Artifact{Ref: "file://a.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	rec, err := r.Recognize(context.Background(), u, art)
	require.NoError(t, err)

	assert.Equal(t, "tongue", rec.Label)
	require.Len(t, rec.Observations, 1)
	assert.Equal(t, domain.Observation{Name: "coating", Value: "thick", Confidence: 0.9}, rec.Observations[0])

	require.Len(t, models.contents, 1)
	assert.Equal(t, "gemini-test-model", models.models[0])
	parts := models.contents[0][0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, art.Data, parts[1].InlineData.Data)
	assert.Equal(t, "application/json", models.configs[0].ResponseMIMEType)
}

func TestRecognizer_Errors(t *testing.T) {
	t.Parallel()

	art := &domain.Artifact{MIMEType: "image/png", Data: []byte("x")}

	t.Run("nil unit", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(&fakeModels{}, 0)
		_, err := NewRecognizer(c).Recognize(context.Background(), nil, art)
		assert.ErrorIs(t, err, generation.ErrUnitUnavailable)
	})

	t.Run("empty artifact", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(&fakeModels{}, 0)
		_, err := NewRecognizer(c).Recognize(context.Background(), testUnit(t, unit.CapabilityPredictor),
			&domain.Artifact{})
		assert.ErrorIs(t, err, generation.ErrUnreadableArtifact)
	})

	payloads := map[string]string{
		"not json":            "the image shows a tongue",
		"blank":               "   ",
		"missing name":        `{"label":"x","observations":[{"value":"y","confidence":0.5}]}`,
		"confidence too high": `{"label":"x","observations":[{"name":"a","value":"y","confidence":1.5}]}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(&fakeModels{responses: []*genai.GenerateContentResponse{textResponse(payload)}}, 0)
			_, err := NewRecognizer(c).Recognize(context.Background(), testUnit(t, unit.CapabilityPredictor), art)
			assert.ErrorIs(t, err, generation.ErrInvalidResponse)
		})
	}

	t.Run("nothing recognized", func(t *testing.T) {
		t.Parallel()
		c, _ := newTestClient(&fakeModels{responses: []*genai.GenerateContentResponse{
			textResponse(`{"label":"","observations":[]}`),
		}}, 0)
		rec, err := NewRecognizer(c).Recognize(context.Background(), testUnit(t, unit.CapabilityPredictor), art)
		require.NoError(t, err)
		assert.True(t, rec.Empty())
	})
}

func TestNarrator_Generate(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("  Mild dampness.\n")}}
	c, _ := newTestClient(models, 0)
	n := NewNarrator(c)
	u := testUnit(t, unit.CapabilityNarrator)

	text, err := n.Generate(context.Background(), u, "Describe the scores.")
	require.NoError(t, err)
	assert.Equal(t, "Mild dampness.", text)
	assert.Equal(t, "Describe the scores.", models.contents[0][0].Parts[0].Text)
	assert.Nil(t, models.configs[0])

	_, err = n.Generate(context.Background(), nil, "prompt")
	assert.ErrorIs(t, err, generation.ErrUnitUnavailable)

	_, err = n.Generate(context.Background(), u, " ")
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	blank, _ := newTestClient(&fakeModels{responses: []*genai.GenerateContentResponse{textResponse("")}}, 0)
	_, err = NewNarrator(blank).Generate(context.Background(), u, "prompt")
	assert.ErrorIs(t, err, generation.ErrNoData)
}
