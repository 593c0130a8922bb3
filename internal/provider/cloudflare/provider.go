package cloudflare

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
)

// Provider calls Workers AI text generation. It has no streaming path.
type Provider struct {
	name     string
	baseURL  string
	model    string
	upstream provider.Upstream
}

// New constructs a Workers AI adapter.
func New(cfg config.CloudflareConfig, client *http.Client) (*Provider, error) {
	name := string(config.KindCloudflare)
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(name, "%v", err)
	}

	return &Provider{
		name:    name,
		baseURL: cfg.BaseURL + "/accounts/" + url.PathEscape(cfg.AccountID) + "/ai/run/",
		model:   cfg.Model,
		upstream: provider.Upstream{
			Name:   name,
			Client: client,
			Auth:   provider.BearerAuth(cfg.APIToken),
		},
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

type runPayload struct {
	Messages    []runMessage `json:"messages"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
}

type runMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runResponse struct {
	Success bool `json:"success"`
	Result  *struct {
		Response *string `json:"response"`
		Usage    *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, gatewayerr.Invalid(p.name, "%v", err)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.model
	}
	if model == "" {
		return nil, gatewayerr.Invalid(p.name, "model must be provided")
	}

	payload := runPayload{
		Messages:    make([]runMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, runMessage{Role: msg.Role, Content: msg.Content.String()})
	}

	var resp runResponse
	// Model ids contain slashes (@cf/meta/...) and are appended verbatim.
	if err := p.upstream.DoJSON(ctx, p.baseURL+model, payload, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		return nil, gatewayerr.Provider(p.name, resp.errorMessage(), nil)
	}
	if resp.Result == nil || resp.Result.Response == nil || *resp.Result.Response == "" {
		return nil, gatewayerr.Provider(p.name, "response did not include text", nil)
	}

	var usage *models.Usage
	if u := resp.Result.Usage; u != nil {
		usage = models.NewUsage(u.PromptTokens, u.CompletionTokens)
	}
	return models.NewTextResponse(
		models.NewCompletionID(),
		model,
		time.Now().Unix(),
		*resp.Result.Response,
		models.FinishStop,
		usage,
	), nil
}

func (r runResponse) errorMessage() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) == 0 {
		return "request was not successful"
	}
	return strings.Join(msgs, "; ")
}
