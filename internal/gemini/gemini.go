package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/providers"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const op = "gemini complete"

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
	opts   []option.ClientOption
}

// New returns a new Gemini provider
func New(apiKey string, opts ...option.ClientOption) *Gemini {
	return &Gemini{apiKey: apiKey, opts: opts}
}

func (g *Gemini) Name() string {
	return "gemini"
}

// Complete sends the prompt to Gemini and returns the concatenated text parts
func (g *Gemini) Complete(ctx context.Context, config providers.Config) (string, error) {
	if g.apiKey == "" {
		return "", failure.Permanentf(op, "GEMINI_API_KEY not set")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", failure.Wrap(failure.KindInternal, op, fmt.Errorf("failed to create new gemini client: %w", err))
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(config.Prompt))
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Candidates) == 0 {
		return "", failure.New(failure.KindUpstream, op, "no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", failure.New(failure.KindContentRejected, op, "response blocked by safety filters")
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", failure.New(failure.KindUpstream, op, "empty content returned from Gemini")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", failure.New(failure.KindUpstream, op, "unexpected response format from Gemini")
	}
	return b.String(), nil
}

// classify maps a Gemini client error onto a failure kind.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return failure.Wrap(failure.KindContentRejected, op, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		fe := failure.FromHTTPStatus(op, apiErr.Code, apiErr.Message, 0)
		fe.Err = err
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.KindUpstreamTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return failure.Wrap(failure.KindUpstream, op, fmt.Errorf("failed to generate content: %w", err))
}
