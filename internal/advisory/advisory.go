// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package advisory hides language and vision model providers behind the two
// capabilities the generator needs: extracting branch keywords from a prompt
// and scoring a generated image against its prompt.
//
// Providers implement Backend, a single completion call. NewGateway layers
// prompts, response parsing and request timeouts over a Backend. WithRetry
// and WithKeywordCache decorate any Gateway.
package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/metrics"
	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultTimeout bounds one advisory request when config leaves it zero.
const DefaultTimeout = 30 * time.Second

// Gateway is the advisory capability set.
type Gateway interface {
	// ExtractKeywords returns up to MaxKeywords short visual phrases for prompt.
	ExtractKeywords(ctx context.Context, prompt string) ([]string, error)

	// ScoreQuality rates artifact against prompt on a 0-10 scale.
	ScoreQuality(ctx context.Context, artifact []byte, prompt string) (Evaluation, error)
}

// Evaluation is a scored judgement of one artifact.
type Evaluation struct {
	Score          float64  `json:"score" yaml:"score"`
	PromptAccuracy float64  `json:"prompt_accuracy" yaml:"prompt_accuracy"`
	Feedback       string   `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Defects        []string `json:"defects,omitempty" yaml:"defects,omitempty"`
}

// Request is one completion call to a provider.
type Request struct {
	System string
	Prompt string

	// Image, when set, is attached for vision models.
	Image []byte

	// JSON asks the provider to constrain output to JSON where supported.
	JSON bool
}

// Backend is one provider's completion call. Implementations return errors
// wrapping types.ErrAdvisoryUnavailable for transient failures.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type gateway struct {
	backend Backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewGateway returns a Gateway over backend. A non-positive timeout uses
// DefaultTimeout.
func NewGateway(backend Backend, timeout time.Duration, logger *zap.Logger) Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &gateway{backend: backend, timeout: timeout, logger: logging.OrNop(logger)}
}

func (g *gateway) ExtractKeywords(ctx context.Context, prompt string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is empty", types.ErrConfiguration)
	}
	text, err := g.complete(ctx, Request{
		System: keywordSystemPrompt,
		Prompt: "Extract branch keywords from this image prompt: " + prompt,
		JSON:   true,
	})
	if err != nil {
		metrics.AdvisoryRequests.WithLabelValues("keywords", resultLabel(err)).Inc()
		return nil, err
	}

	keywords, err := ParseKeywords(text)
	metrics.AdvisoryRequests.WithLabelValues("keywords", resultLabel(err)).Inc()
	if err != nil {
		g.logger.Warn("unparseable keyword response", zap.Error(err), zap.String("response", clip(text)))
		return nil, err
	}
	return keywords, nil
}

func (g *gateway) ScoreQuality(ctx context.Context, artifact []byte, prompt string) (Evaluation, error) {
	if len(artifact) == 0 {
		return Evaluation{}, fmt.Errorf("%w: artifact is empty", types.ErrConfiguration)
	}
	text, err := g.complete(ctx, Request{
		System: evaluationSystemPrompt,
		Prompt: fmt.Sprintf("Evaluate this image.\n\nOriginal prompt: %s\n\nPay particular attention to how well the image matches the original prompt. Reply with the JSON object only.", prompt),
		Image:  artifact,
		JSON:   true,
	})
	if err != nil {
		metrics.AdvisoryRequests.WithLabelValues("score", resultLabel(err)).Inc()
		return Evaluation{}, err
	}

	eval, err := ParseEvaluation(text)
	metrics.AdvisoryRequests.WithLabelValues("score", resultLabel(err)).Inc()
	if err != nil {
		g.logger.Warn("unparseable evaluation response", zap.Error(err), zap.String("response", clip(text)))
		return Evaluation{}, err
	}
	return eval, nil
}

func (g *gateway) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.backend.Complete(ctx, req)
}

func resultLabel(err error) string {
	switch types.Kind(err) {
	case "":
		return "ok"
	case "advisory_invalid_response":
		return "invalid"
	case "advisory_unavailable":
		return "unavailable"
	}
	return "error"
}

func clip(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

const keywordSystemPrompt = `You are a visual keyword analyst preparing branch variations for an AI image generator.

From the given prompt, extract at most 4 keywords with strong visual expressiveness. Prefer concrete, drawable elements:
- visual objects (breeds, items, clothing, accessories)
- visual features (color, texture, shape, material, light)
- visual scenes (environment, background, time, weather)
- visual actions (pose, expression, state)
- visual styles (art style, photographic technique, composition)

Avoid abstract concepts. Every keyword must translate directly into a visual element.

Respond strictly with JSON:
{"keywords": [{"text": "keyword", "type": "visual_object", "description": "visual description"}]}`

const evaluationSystemPrompt = `You are an expert judge of AI-generated image quality, skilled at spotting the common failures of image models.

Check for critical defects first (if any is severe, the score must not exceed 6):
1. Anatomy: finger count, limb count, facial symmetry
2. Object logic: gravity, perspective, physical plausibility
3. Text and symbols: garbled or unreadable text
4. Repetition: abnormal repeated patterns or elements

Then rate composition, color and lighting, detail and clarity, consistency, aesthetics, and match with the prompt.

Scoring: severe anatomical errors cap the score at 6; moderate issues cap it at 8; no visible issues allow 8 to 10.

Respond with JSON:
{
  "score": overall score 0-10,
  "feedback": "detailed assessment",
  "suggestions": ["improvement 1", "improvement 2"],
  "defects_found": ["defect 1"],
  "consistency_issues": ["issue 1"],
  "original_prompt_accuracy": prompt match score 0-10
}`
