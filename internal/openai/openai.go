package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/providers"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	op             = "openai complete"
)

// OpenAI is a provider for OpenAI chat completions
type OpenAI struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new OpenAI provider
func New(apiKey string) *OpenAI {
	return &OpenAI{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{},
	}
}

func (o *OpenAI) Name() string {
	return "openai"
}

// Complete sends the prompt as a single user message
func (o *OpenAI) Complete(ctx context.Context, config providers.Config) (string, error) {
	if o.APIKey == "" {
		return "", failure.Permanentf(op, "OPENAI_API_KEY not set")
	}

	body := map[string]interface{}{
		"model": config.Model,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": config.Prompt,
			},
		},
		"temperature": config.Temperature,
	}
	if config.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", failure.Wrap(failure.KindInternal, op, fmt.Errorf("failed to marshal request body: %w", err))
	}

	url := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", failure.Wrap(failure.KindInternal, op, fmt.Errorf("failed to create new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client().Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", failure.FromHTTPStatus(op, resp.StatusCode, string(body), providers.ParseRetryAfter(resp.Header))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", failure.Wrap(failure.KindUpstream, op, fmt.Errorf("failed to decode response body: %w", err))
	}

	if len(response.Choices) == 0 {
		return "", failure.New(failure.KindUpstream, op, "no choices returned from OpenAI")
	}
	if response.Choices[0].FinishReason == "content_filter" {
		return "", failure.New(failure.KindContentRejected, op, "response withheld by content filter")
	}

	return response.Choices[0].Message.Content, nil
}

func (o *OpenAI) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.KindUpstreamTimeout, op, err)
	}
	return failure.Wrap(failure.KindUpstream, op, fmt.Errorf("failed to send request: %w", err))
}
