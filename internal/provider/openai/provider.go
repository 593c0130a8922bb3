package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
)

// Options configures an OpenAI-wire adapter. The same wire serves OpenAI,
// Azure OpenAI deployments and the model-catalog OpenAI path.
type Options struct {
	Name    string
	ChatURL string
	Model   string

	// OmitModel leaves the model out of the body; Azure selects the
	// deployment by URL.
	OmitModel bool

	Auth    provider.Authorizer
	Headers map[string]string

	// CompletionTokens reports models that take max_completion_tokens in place
	// of max_tokens.
	CompletionTokens func(model string) bool
}

// Provider implements provider.StreamProvider for OpenAI-compatible APIs.
type Provider struct {
	opts     Options
	upstream provider.Upstream
}

// New creates an OpenAI-wire adapter.
func New(opts Options, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(opts.ChatURL) == "" {
		return nil, gatewayerr.Config(opts.Name, "chat url must not be empty")
	}
	return &Provider{
		opts: opts,
		upstream: provider.Upstream{
			Name:    opts.Name,
			Client:  client,
			Auth:    opts.Auth,
			Headers: opts.Headers,
		},
	}, nil
}

// NewOpenAI creates the adapter for api.openai.com or a compatible base URL.
func NewOpenAI(cfg config.OpenAIConfig, client *http.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(string(config.KindOpenAI), "%v", err)
	}
	var headers map[string]string
	if cfg.Organization != "" {
		headers = map[string]string{"OpenAI-Organization": cfg.Organization}
	}
	return New(Options{
		Name:             string(config.KindOpenAI),
		ChatURL:          cfg.BaseURL + "/chat/completions",
		Model:            cfg.Model,
		Auth:             provider.BearerAuth(cfg.APIKey),
		Headers:          headers,
		CompletionTokens: UsesCompletionTokens,
	}, client)
}

// NewAzure creates the adapter for one Azure OpenAI deployment.
func NewAzure(cfg config.AzureConfig, client *http.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(string(config.KindAzure), "%v", err)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	chatURL := endpoint + "/openai/deployments/" + url.PathEscape(cfg.Deployment) +
		"/chat/completions?api-version=" + url.QueryEscape(cfg.APIVersion)
	return New(Options{
		Name:      string(config.KindAzure),
		ChatURL:   chatURL,
		Model:            cfg.Deployment,
		OmitModel:        true,
		Auth:             provider.HeaderAuth{Header: "api-key", Value: cfg.APIKey},
		CompletionTokens: UsesCompletionTokens,
	}, client)
}

func (p *Provider) Name() string {
	return p.opts.Name
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	payload, model, err := p.buildPayload(req, false)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := p.upstream.DoJSON(ctx, p.opts.ChatURL, payload, &resp); err != nil {
		return nil, err
	}
	return resp.toCanonical(p.opts.Name, model)
}

// ChatStream returns the upstream body unchanged: the OpenAI wire already is
// the canonical stream format.
func (p *Provider) ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	payload, _, err := p.buildPayload(req, true)
	if err != nil {
		return nil, err
	}
	return p.upstream.OpenStream(ctx, p.opts.ChatURL, payload)
}

type chatPayload struct {
	Model               string          `json:"model,omitempty"`
	Messages            []openAIMessage `json:"messages"`
	Stream              bool            `json:"stream,omitempty"`
	MaxTokens           *int            `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int            `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role    string         `json:"role"`
	Content models.Content `json:"content"`
	Name    string         `json:"name,omitempty"`
}

func (p *Provider) buildPayload(req models.ChatRequest, stream bool) (chatPayload, string, error) {
	if err := req.Validate(); err != nil {
		return chatPayload{}, "", gatewayerr.Invalid(p.opts.Name, "%v", err)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.opts.Model
	}
	if model == "" && !p.opts.OmitModel {
		return chatPayload{}, "", gatewayerr.Invalid(p.opts.Name, "model must be provided")
	}

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		})
	}

	payload := chatPayload{
		Messages:    messages,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if !p.opts.OmitModel {
		payload.Model = model
	}
	if req.MaxTokens != nil {
		if p.opts.CompletionTokens != nil && p.opts.CompletionTokens(model) {
			payload.MaxCompletionTokens = req.MaxTokens
		} else {
			payload.MaxTokens = req.MaxTokens
		}
	}

	return payload, model, nil
}

type chatResponse struct {
	ID      string       `json:"id"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) toCanonical(name, requested string) (*models.ChatResponse, error) {
	if len(r.Choices) == 0 {
		return nil, gatewayerr.Provider(name, "response did not include choices", nil)
	}

	out := &models.ChatResponse{
		ID:      r.ID,
		Object:  models.ObjectChatCompletion,
		Created: r.Created,
		Model:   r.Model,
		Choices: make([]models.Choice, 0, len(r.Choices)),
	}
	if out.ID == "" {
		out.ID = models.NewCompletionID()
	}
	if out.Created == 0 {
		out.Created = time.Now().Unix()
	}
	if out.Model == "" {
		out.Model = requested
	}

	for _, c := range r.Choices {
		role := c.Message.Role
		if role == "" {
			role = models.RoleAssistant
		}
		var reason models.FinishReason
		if c.FinishReason != nil {
			reason = models.NormalizeFinishReason(*c.FinishReason)
		}
		out.Choices = append(out.Choices, models.Choice{
			Index:        c.Index,
			Message:      models.ResponseMessage{Role: role, Content: c.Message.Content},
			FinishReason: reason,
		})
	}

	if r.Usage != nil {
		out.Usage = models.NewUsage(r.Usage.PromptTokens, r.Usage.CompletionTokens)
	}
	return out, nil
}
