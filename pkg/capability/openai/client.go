// Package openai implements the capability adapters against an
// OpenAI-compatible HTTP API: whisper-style audio transcription and chat
// completions for summarization.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/skaldhq/skald/pkg/capability"
)

const providerName = "openai"

// Config configures the OpenAI capability client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is the bearer token. Required.
	APIKey string

	// TranscribeModel is the speech-to-text model name.
	// Default: "whisper-1".
	TranscribeModel string

	// SummarizeModel is the chat model used for summarization.
	// Default: "gpt-4.1-mini".
	SummarizeModel string

	// RequestTimeout bounds a single HTTP round trip.
	// Default: 5 minutes (audio uploads are slow).
	RequestTimeout time.Duration

	// RateLimit is the maximum requests per second to the provider.
	// Zero means unlimited.
	RateLimit float64

	// MaxCompletionTokens caps the summarization response length.
	// Default: 2000.
	MaxCompletionTokens int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API key is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.TranscribeModel == "" {
		c.TranscribeModel = "whisper-1"
	}
	if c.SummarizeModel == "" {
		c.SummarizeModel = "gpt-4.1-mini"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.MaxCompletionTokens <= 0 {
		c.MaxCompletionTokens = 2000
	}
	return c
}

// Client calls an OpenAI-compatible API. It implements both
// capability.Transcriber and capability.Summarizer and is safe for
// concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

var (
	_ capability.Transcriber = (*Client)(nil)
	_ capability.Summarizer  = (*Client)(nil)
)

// New creates a capability client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
	}, nil
}

// Transcribe sends one audio chunk to the transcription endpoint and returns
// the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.cfg.TranscribeModel); err != nil {
		return "", c.wrap(capability.OpTranscribe, 0, err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", c.wrap(capability.OpTranscribe, 0, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", c.wrap(capability.OpTranscribe, 0, err)
	}
	if err := mw.Close(); err != nil {
		return "", c.wrap(capability.OpTranscribe, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/audio/transcriptions"), &body)
	if err != nil {
		return "", c.wrap(capability.OpTranscribe, 0, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var parsed struct {
		Text string `json:"text"`
	}
	status, err := c.do(req, &parsed)
	if err != nil {
		return "", c.wrap(capability.OpTranscribe, status, err)
	}
	return parsed.Text, nil
}

// Summarize sends text plus a role prompt to the chat completions endpoint
// and returns the generated summary.
func (c *Client) Summarize(ctx context.Context, text, rolePrompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	payload := chatRequest{
		Model: c.cfg.SummarizeModel,
		Messages: []chatMessage{
			{Role: "system", Content: rolePrompt},
			{Role: "user", Content: text},
		},
		MaxTokens:   c.cfg.MaxCompletionTokens,
		Temperature: 0.3,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", c.wrap(capability.OpSummarize, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/chat/completions"), bytes.NewReader(raw))
	if err != nil {
		return "", c.wrap(capability.OpSummarize, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var parsed chatResponse
	status, err := c.do(req, &parsed)
	if err != nil {
		return "", c.wrap(capability.OpSummarize, status, err)
	}
	if len(parsed.Choices) == 0 {
		return "", c.wrap(capability.OpSummarize, status,
			fmt.Errorf("%w: no choices in completion", capability.ErrMalformedResponse))
	}
	return parsed.Choices[0].Message.Content, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// do executes the request and decodes a 2xx response into out. It returns the
// HTTP status code (zero on transport failure) and a classified error.
func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		// Transport-level failures are indistinguishable from outages.
		return 0, fmt.Errorf("%w: %v", capability.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %v", capability.ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, classifyStatus(resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", capability.ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}

// classifyStatus maps upstream HTTP statuses onto the capability error
// taxonomy so the runner can decide retry versus immediate failure.
func classifyStatus(status int, body []byte) error {
	detail := upstreamDetail(body)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", capability.ErrThrottled, detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", capability.ErrInvalidCredentials, detail)
	case status >= 500:
		return fmt.Errorf("%w: %s", capability.ErrUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", capability.ErrInvalidInput, detail)
	}
}

// upstreamDetail extracts the provider's error message when the body carries
// the usual {"error":{"message":...}} envelope, falling back to a truncated
// raw body.
func upstreamDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	const maxDetail = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetail {
		s = s[:maxDetail]
	}
	if s == "" {
		s = "no response body"
	}
	return s
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) wrap(op capability.OperationType, status int, err error) error {
	return &capability.Error{
		Op:         op,
		Provider:   providerName,
		StatusCode: status,
		Err:        err,
	}
}
