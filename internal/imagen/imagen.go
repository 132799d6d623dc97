package imagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/mangaroo/internal/failure"
	"github.com/lehigh-university-libraries/mangaroo/internal/prompt"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	DefaultModel       = "imagen-3.0-generate-002"
	DefaultAspectRatio = "3:4"
	defaultMIMEType    = "image/png"

	op = "image synthesis"
)

// Image is one generated illustration.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// imageModels is the slice of the genai client the synthesizer calls.
type imageModels interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Config configures a Synthesizer.
type Config struct {
	APIKey      string
	Model       string
	AspectRatio string

	// RequestsPerMinute caps calls across all sessions. Zero disables the cap.
	RequestsPerMinute int
}

// Synthesizer renders prompts into images with Imagen.
type Synthesizer struct {
	models      imageModels
	model       string
	aspectRatio string
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Synthesizer backed by the Gemini API.
func New(ctx context.Context, cfg Config) (*Synthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for image synthesis")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newSynthesizer(client.Models, cfg), nil
}

func newSynthesizer(models imageModels, cfg Config) *Synthesizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = DefaultAspectRatio
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	return &Synthesizer{
		models:      models,
		model:       cfg.Model,
		aspectRatio: cfg.AspectRatio,
		limiter:     rate.NewLimiter(limit, 2),
		logger:      slog.Default(),
	}
}

// Synthesize renders one image for req.
func (s *Synthesizer) Synthesize(ctx context.Context, req prompt.Request) (Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return Image{}, err
		}
		return Image{}, failure.Wrap(failure.KindUpstreamTimeout, op, fmt.Errorf("rate limiter: %w", err))
	}

	aspect := req.AspectRatio
	if aspect == "" {
		aspect = s.aspectRatio
	}

	text := req.Prompt
	if req.NegativePrompt != "" {
		text += ". Avoid: " + req.NegativePrompt
	}

	start := time.Now()
	resp, err := s.models.GenerateImages(ctx, s.model, text, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      aspect,
		PersonGeneration: genai.PersonGenerationAllowAdult,
		IncludeRAIReason: true,
	})
	if err != nil {
		return Image{}, classify(err)
	}

	img, err := firstImage(resp)
	if err != nil {
		return Image{}, err
	}
	s.logger.Info("Generated image",
		"model", s.model,
		"style", req.Style,
		"bytes", len(img.Data),
		"duration", time.Since(start),
	)
	return img, nil
}

func firstImage(resp *genai.GenerateImagesResponse) (Image, error) {
	if resp == nil {
		return Image{}, failure.New(failure.KindUpstream, op, "empty response")
	}
	var reason string
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image != nil && len(gi.Image.ImageBytes) > 0 {
			mime := gi.Image.MIMEType
			if mime == "" {
				mime = defaultMIMEType
			}
			return Image{Data: gi.Image.ImageBytes, MIMEType: mime}, nil
		}
		if gi.RAIFilteredReason != "" && reason == "" {
			reason = gi.RAIFilteredReason
		}
	}
	// Imagen drops filtered images from the response rather than erroring.
	if reason == "" {
		reason = "no images generated"
	}
	return Image{}, failure.New(failure.KindContentRejected, op, reason)
}

// classify maps a GenAI error onto a failure kind.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.KindUpstreamTimeout, op, err)
	}

	code, msg, ok := apiErrorCode(err)
	if !ok {
		return failure.Wrap(failure.KindUpstream, op, err)
	}
	fe := failure.FromHTTPStatus(op, code, msg, 0)
	if code == 400 && isSafetyMessage(msg) {
		fe = failure.New(failure.KindContentRejected, op, msg)
	}
	fe.Err = err
	return fe
}

func apiErrorCode(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) && apiPtr != nil {
		return apiPtr.Code, apiPtr.Message, true
	}
	return 0, "", false
}

func isSafetyMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"safety", "responsible ai", "blocked"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
