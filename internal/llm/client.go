package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBaseURL = "https://api.anthropic.com/v1/messages"

// Message is one prior exchange turn, used for continuation calls.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result pairs one concurrent call's output with its error, index-aligned
// with the originating prompt list.
type Result struct {
	Text string
	Err  error
}

// Client calls the Anthropic Messages API. It owns all retry and backoff
// policy: a call is retried up to MaxRetries times with increasing linear
// backoff, and exhaustion surfaces as an error the caller treats as "no
// answer" rather than a reason to abort a build.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	stats      *Stats

	maxRetries int
	retryDelay time.Duration
}

func NewClient(apiKey string, log *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		log:        log,
		stats:      NewStats(time.Hour),
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
}

// Stats returns the rolling call statistics tracker.
func (c *Client) Stats() *Stats { return c.stats }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call issues a single prompt and returns the model's text.
func (c *Client) Call(ctx context.Context, prompt, model string, maxTokens int, history []Message) (string, error) {
	text, _, err := c.CallWithStop(ctx, prompt, model, maxTokens, history)
	return text, err
}

// CallWithStop additionally reports whether the output was cut off by the
// model's length limit. Callers that need the remainder issue a continuation
// call with the prior exchange as history.
func (c *Client) CallWithStop(ctx context.Context, prompt, model string, maxTokens int, history []Message) (string, bool, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return "", false, ctx.Err()
			}
		}
		text, truncated, err := c.do(ctx, prompt, model, maxTokens, history)
		if err == nil {
			return text, truncated, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		c.log.Warn("retryable llm error", "attempt", attempt, "error", err)
	}
	return "", false, fmt.Errorf("llm call failed: %w", lastErr)
}

// CallConcurrently dispatches independent prompts over a bounded worker pool.
// Results come back in prompt order regardless of completion order; a failing
// prompt occupies its own slot and does not affect its siblings.
func (c *Client) CallConcurrently(ctx context.Context, prompts []string, model string, maxTokens, maxWorkers int) []Result {
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	results := make([]Result, len(prompts))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i, prompt := range prompts {
		g.Go(func() error {
			text, err := c.Call(ctx, prompt, model, maxTokens, nil)
			mu.Lock()
			results[i] = Result{Text: text, Err: err}
			mu.Unlock()
			// Errors stay in the result slot so sibling calls keep running.
			return nil
		})
	}
	g.Wait()
	return results
}

func (c *Client) do(ctx context.Context, prompt, model string, maxTokens int, history []Message) (string, bool, error) {
	start := time.Now()
	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: prompt})

	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, fmt.Errorf("llm api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, fmt.Errorf("llm error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		c.stats.Record(time.Since(start).Milliseconds(), false)
		return "", false, fmt.Errorf("empty response from model")
	}

	c.stats.Record(time.Since(start).Milliseconds(), true)
	return apiResp.Content[0].Text, apiResp.StopReason == "max_tokens", nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Close releases resources.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
