// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/pdiddy/image-tree/internal/httputil"
	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultOllamaURL is the local Ollama server address.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaBackend completes requests with a local Ollama server through
// /api/generate. Images go through the request's Images field.
type OllamaBackend struct {
	client      *api.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOllamaBackend returns a backend for cfg. An empty base URL uses
// DefaultOllamaURL.
func NewOllamaBackend(cfg types.AdvisoryConfig, httpClient *http.Client) (*OllamaBackend, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultOllamaURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: ollama base url: %v", types.ErrConfiguration, err)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: ollama model is required", types.ErrConfiguration)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaBackend{
		client:      api.NewClient(u, httpClient),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete implements Backend.
func (b *OllamaBackend) Complete(ctx context.Context, req Request) (string, error) {
	stream := false
	options := map[string]any{}
	if b.temperature > 0 {
		options["temperature"] = b.temperature
	}
	if b.maxTokens > 0 {
		options["num_predict"] = b.maxTokens
	}

	gen := &api.GenerateRequest{
		Model:   b.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  &stream,
		Options: options,
	}
	if req.JSON {
		gen.Format = json.RawMessage(`"json"`)
	}
	if len(req.Image) > 0 {
		gen.Images = []api.ImageData{req.Image}
	}

	var sb strings.Builder
	err := b.client.Generate(ctx, gen, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", classifyOllamaError(err)
	}
	return sb.String(), nil
}

// classifyOllamaError maps 429 and 5xx to unavailable and other statuses to
// an invalid response. Transport failures and request timeouts are
// unavailable.
func classifyOllamaError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		if httputil.Retryable(se.StatusCode) || se.StatusCode >= 500 {
			return fmt.Errorf("%w: ollama HTTP %d: %s", types.ErrAdvisoryUnavailable, se.StatusCode, se.ErrorMessage)
		}
		return fmt.Errorf("%w: ollama rejected request (HTTP %d): %s", types.ErrAdvisoryInvalidResponse, se.StatusCode, se.ErrorMessage)
	}
	return fmt.Errorf("%w: ollama: %v", types.ErrAdvisoryUnavailable, err)
}
