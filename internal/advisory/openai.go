// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package advisory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/pdiddy/image-tree/internal/httputil"
	"github.com/pdiddy/image-tree/pkg/types"
)

// Hosted provider endpoints.
const (
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// ChatBackend completes requests through an OpenAI-compatible chat
// completions endpoint. Images are sent as a base64 data URL message part.
type ChatBackend struct {
	model *openai.ChatModel
}

// NewChatBackend returns a backend for the openai, openrouter and
// openai_compatible providers.
func NewChatBackend(ctx context.Context, cfg types.AdvisoryConfig, httpClient *http.Client) (*ChatBackend, error) {
	base := cfg.BaseURL
	switch cfg.Provider {
	case types.ProviderOpenAI:
		if base == "" {
			base = DefaultOpenAIURL
		}
	case types.ProviderOpenRouter:
		if base == "" {
			base = DefaultOpenRouterURL
		}
	case types.ProviderOpenAICompatible:
		if base == "" {
			return nil, fmt.Errorf("%w: openai_compatible provider requires base_url", types.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("%w: provider %q is not chat-completions based", types.ErrConfiguration, cfg.Provider)
	}
	if cfg.Provider != types.ProviderOpenAICompatible && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s provider requires an API key", types.ErrConfiguration, cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: advisory model is required", types.ErrConfiguration)
	}

	modelCfg := &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    strings.TrimRight(base, "/"),
		Model:      cfg.Model,
		HTTPClient: httpClient,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := float32(cfg.Temperature)
		modelCfg.Temperature = &temperature
	}

	model, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating chat model: %v", types.ErrConfiguration, err)
	}
	return &ChatBackend{model: model}, nil
}

// Complete implements Backend.
func (b *ChatBackend) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]*schema.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	if len(req.Image) > 0 {
		msgs = append(msgs, &schema.Message{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: req.Prompt},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: dataURL(req.Image)}},
			},
		})
	} else {
		msgs = append(msgs, schema.UserMessage(req.Prompt))
	}

	out, err := b.model.Generate(ctx, msgs)
	if err != nil {
		return "", classifyChatError(err)
	}
	if out == nil {
		return "", fmt.Errorf("%w: empty chat completion", types.ErrAdvisoryInvalidResponse)
	}
	return out.Content, nil
}

// classifyChatError maps a chat completion failure to an error kind. A 4xx
// other than 429 (bad key, unknown model, malformed request) will not
// succeed on retry and is an invalid response; anything else is unavailable.
func classifyChatError(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && !httputil.Retryable(status) {
		return fmt.Errorf("%w: chat completion rejected (HTTP %d): %v", types.ErrAdvisoryInvalidResponse, status, err)
	}
	return fmt.Errorf("%w: chat completion: %v", types.ErrAdvisoryUnavailable, err)
}

func dataURL(img []byte) string {
	return "data:" + http.DetectContentType(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
