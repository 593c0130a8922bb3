package foundry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
	anthropicProvider "edge-gateway/internal/provider/anthropic"
	openaiProvider "edge-gateway/internal/provider/openai"
)

// anthropicModelPrefixes selects the Anthropic wire; any other model uses
// the OpenAI wire.
var anthropicModelPrefixes = []string{"claude"}

// Provider routes each call on a model-catalog endpoint to the OpenAI-wire or
// the Anthropic-wire adapter.
type Provider struct {
	name           string
	model          string
	forceAnthropic bool
	openaiAdapter  *openaiProvider.Provider
	claudeAdapter  *anthropicProvider.Provider
}

// New constructs the dual-backend model-catalog adapter.
func New(cfg config.FoundryConfig, client *http.Client) (*Provider, error) {
	return build(string(config.KindFoundry), cfg, client, false)
}

// NewAnthropic constructs an adapter on the same endpoint that always uses
// the Anthropic wire.
func NewAnthropic(cfg config.FoundryConfig, client *http.Client) (*Provider, error) {
	return build(string(config.KindAnthropic), cfg, client, true)
}

func build(name string, cfg config.FoundryConfig, client *http.Client, forceAnthropic bool) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(name, "%v", err)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	auth := provider.HeaderAuth{Header: "api-key", Value: cfg.APIKey}

	p := &Provider{
		name:           name,
		model:          cfg.Model,
		forceAnthropic: forceAnthropic,
	}

	if !forceAnthropic {
		adapter, err := openaiProvider.New(openaiProvider.Options{
			Name:             name,
			ChatURL:          endpoint + "/models/chat/completions?api-version=" + url.QueryEscape(cfg.APIVersion),
			Model:            cfg.Model,
			Auth:             auth,
			CompletionTokens: openaiProvider.UsesCompletionTokens,
		}, client)
		if err != nil {
			return nil, fmt.Errorf("initialize openai adapter: %w", err)
		}
		p.openaiAdapter = adapter
	}

	messagesURL := endpoint + "/anthropic/v1/messages"
	adapter, err := anthropicProvider.New(anthropicProvider.Options{
		Name:     name,
		Endpoint: func(string, bool) string { return messagesURL },
		Model:    cfg.Model,
		Version:  cfg.AnthropicVersion,
		Auth:     provider.HeaderAuth{Header: "x-api-key", Value: cfg.APIKey},
	}, client)
	if err != nil {
		return nil, fmt.Errorf("initialize anthropic adapter: %w", err)
	}
	p.claudeAdapter = adapter

	return p, nil
}

// IsAnthropicModel reports whether model is served over the Anthropic wire.
// Matching is a case-insensitive prefix test.
func IsAnthropicModel(model string) bool {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range anthropicModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	req, err := p.resolve(req)
	if err != nil {
		return nil, err
	}
	if p.useAnthropic(req.Model) {
		return p.claudeAdapter.Chat(ctx, req)
	}
	return p.openaiAdapter.Chat(ctx, req)
}

func (p *Provider) ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	req, err := p.resolve(req)
	if err != nil {
		return nil, err
	}
	if p.useAnthropic(req.Model) {
		return p.claudeAdapter.ChatStream(ctx, req)
	}
	return p.openaiAdapter.ChatStream(ctx, req)
}

func (p *Provider) resolve(req models.ChatRequest) (models.ChatRequest, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = p.model
	}
	if strings.TrimSpace(req.Model) == "" {
		return req, gatewayerr.Invalid(p.name, "model must be provided")
	}
	return req, nil
}

func (p *Provider) useAnthropic(model string) bool {
	return p.forceAnthropic || IsAnthropicModel(model)
}
