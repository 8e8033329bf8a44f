// Package llm calls a chat-completions endpoint and guarantees the
// returned content payload is valid JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/collabscout/collabscout/internal/telemetry"
)

const (
	// DefaultEndpoint is the OpenRouter chat-completions URL.
	DefaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	// DefaultTemperature applies when the prompt sets none.
	DefaultTemperature = 0.2

	maxAttempts     = 3
	maxResponseSize = 20 * 1024 * 1024
)

// Client calls the LLM endpoint. Transport, clock and sleep are
// injectable for tests.
type Client struct {
	Endpoint string
	APIKey   string

	HTTP  *http.Client
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client against the default endpoint.
func NewClient(apiKey string) *Client {
	return &Client{
		Endpoint: DefaultEndpoint,
		APIKey:   apiKey,
		HTTP:     &http.Client{Timeout: 120 * time.Second},
		Now:      time.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
}

// CompletionRequest describes one call. Temperature and MaxTokens usually
// come from the prompt's model defaults.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

var llmMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var llmMetricsOnce sync.Once

func initLLMMetrics() {
	m := telemetry.Meter("github.com/collabscout/collabscout/llm")
	llmMetrics.inputTokens, _ = m.Int64Counter("cs.llm.input_tokens",
		metric.WithDescription("LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	llmMetrics.outputTokens, _ = m.Int64Counter("cs.llm.output_tokens",
		metric.WithDescription("LLM output tokens generated"),
		metric.WithUnit("{token}"))
	llmMetrics.duration, _ = m.Float64Histogram("cs.llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"))
}

// attemptError distinguishes retryable failures and carries an optional
// server-directed wait.
type attemptError struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

// Complete issues the chat call and returns the parsed content payload.
// Up to three attempts with exponential backoff 2^(attempt-1) seconds;
// a 429's Retry-After overrides the computed wait. The returned payload
// is guaranteed to be syntactically valid JSON.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	llmMetricsOnce.Do(initLLMMetrics)

	tracer := telemetry.Tracer("github.com/collabscout/collabscout/llm")
	ctx, span := tracer.Start(ctx, "llm.chat.completions")
	defer span.End()
	span.SetAttributes(attribute.String("cs.llm.model", req.Model))

	if req.Temperature == 0 {
		req.Temperature = DefaultTemperature
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		content, aerr := c.attempt(ctx, req)
		if aerr == nil {
			span.SetAttributes(attribute.Int("cs.llm.attempts", attempt))
			return content, nil
		}
		lastErr = aerr.err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !aerr.retryable || attempt == maxAttempts {
			break
		}
		wait := bo.NextBackOff()
		if aerr.retryAfter > 0 {
			wait = aerr.retryAfter
		}
		if err := c.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, req CompletionRequest) (json.RawMessage, *attemptError) {
	body := chatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	body.ResponseFormat.Type = "json_object"

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, &attemptError{err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	t0 := c.Now()
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &attemptError{err: &Error{Kind: KindNetwork, Detail: err.Error()}, retryable: true}
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	_ = resp.Body.Close()
	if llmMetrics.duration != nil {
		llmMetrics.duration.Record(ctx, float64(c.Now().Sub(t0).Milliseconds()),
			metric.WithAttributes(attribute.String("cs.llm.model", req.Model)))
	}
	if readErr != nil {
		return nil, &attemptError{err: &Error{Kind: KindNetwork, Detail: readErr.Error()}, retryable: true}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &attemptError{
			err:        &Error{Kind: KindHTTP, Status: resp.StatusCode, Body: string(respBody)},
			retryable:  true,
			retryAfter: retryAfter,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &attemptError{err: &Error{Kind: KindHTTP, Status: resp.StatusCode, Body: string(respBody)}}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &attemptError{
			err:       &Error{Kind: KindInvalidOutput, Detail: "response body is not JSON"},
			retryable: true,
		}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &attemptError{
			err:       &Error{Kind: KindInvalidOutput, Detail: "response has no content field"},
			retryable: true,
		}
	}

	if llmMetrics.inputTokens != nil {
		attr := metric.WithAttributes(attribute.String("cs.llm.model", req.Model))
		llmMetrics.inputTokens.Add(ctx, parsed.Usage.PromptTokens, attr)
		llmMetrics.outputTokens.Add(ctx, parsed.Usage.CompletionTokens, attr)
	}

	content := []byte(parsed.Choices[0].Message.Content)
	if !json.Valid(content) {
		return nil, &attemptError{
			err:       &Error{Kind: KindInvalidOutput, Detail: "content is not valid JSON"},
			retryable: true,
		}
	}
	return json.RawMessage(content), nil
}
