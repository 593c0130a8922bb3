package anthropic

import (
	"context"
	"encoding/json"
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
	"edge-gateway/internal/stream"
)

// DefaultMaxTokens is sent when the request leaves max_tokens unset; the
// messages API requires the field.
const DefaultMaxTokens = 4096

// Options configures an Anthropic-wire adapter.
type Options struct {
	Name string

	// Endpoint returns the URL for model. Vertex encodes the model and the
	// streaming mode in the path.
	Endpoint func(model string, stream bool) string

	Model   string
	Version string

	// VersionInBody sends anthropic_version in the body instead of the
	// anthropic-version header, and leaves the model out of the body.
	VersionInBody bool

	Auth    provider.Authorizer
	Headers map[string]string
}

// Provider implements provider.StreamProvider for the Anthropic messages API.
type Provider struct {
	opts     Options
	upstream provider.Upstream
}

// New constructs an Anthropic-wire adapter.
func New(opts Options, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if opts.Endpoint == nil {
		return nil, gatewayerr.Config(opts.Name, "endpoint must be set")
	}

	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if !opts.VersionInBody && opts.Version != "" {
		headers["anthropic-version"] = opts.Version
	}

	return &Provider{
		opts: opts,
		upstream: provider.Upstream{
			Name:    opts.Name,
			Client:  client,
			Auth:    opts.Auth,
			Headers: headers,
		},
	}, nil
}

// NewVertex creates the adapter for Claude models published on Vertex AI.
func NewVertex(cfg config.VertexConfig, auth provider.Authorizer, client *http.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(string(config.KindVertexClaude), "%v", err)
	}
	if auth == nil {
		return nil, gatewayerr.Config(string(config.KindVertexClaude), "service account credentials are required")
	}

	base := cfg.BaseURL + "/projects/" + url.PathEscape(cfg.ProjectID) +
		"/locations/" + url.PathEscape(cfg.Region) + "/publishers/anthropic/models/"
	return New(Options{
		Name: string(config.KindVertexClaude),
		Endpoint: func(model string, stream bool) string {
			method := ":rawPredict"
			if stream {
				method = ":streamRawPredict"
			}
			return base + url.PathEscape(model) + method
		},
		Model:         cfg.ClaudeModel,
		Version:       config.DefaultVertexClaudeVersion,
		VersionInBody: true,
		Auth:          auth,
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

	var resp messagesResponse
	if err := p.upstream.DoJSON(ctx, p.opts.Endpoint(model, false), payload, &resp); err != nil {
		return nil, err
	}
	return resp.toCanonical(model), nil
}

func (p *Provider) ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	payload, model, err := p.buildPayload(req, true)
	if err != nil {
		return nil, err
	}

	body, err := p.upstream.OpenStream(ctx, p.opts.Endpoint(model, true), payload)
	if err != nil {
		return nil, err
	}
	return stream.NewTranscoder(body, stream.AnthropicMapper, stream.NewMeta(model)), nil
}

type messagesPayload struct {
	AnthropicVersion string             `json:"anthropic_version,omitempty"`
	Model            string             `json:"model,omitempty"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *Provider) buildPayload(req models.ChatRequest, stream bool) (messagesPayload, string, error) {
	if err := req.Validate(); err != nil {
		return messagesPayload{}, "", gatewayerr.Invalid(p.opts.Name, "%v", err)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.opts.Model
	}
	if model == "" {
		return messagesPayload{}, "", gatewayerr.Invalid(p.opts.Name, "model must be provided")
	}

	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		text, err := flatten(msg.Content)
		if err != nil {
			return messagesPayload{}, "", gatewayerr.Invalid(p.opts.Name, "encode message content: %v", err)
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: text})
	}
	if len(messages) == 0 {
		return messagesPayload{}, "", gatewayerr.Invalid(p.opts.Name, "at least one user or assistant message is required")
	}

	payload := messagesPayload{
		System:        req.SystemPrompt(),
		Messages:      messages,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        stream,
	}
	if req.MaxTokens != nil {
		payload.MaxTokens = *req.MaxTokens
	}
	if p.opts.VersionInBody {
		payload.AnthropicVersion = p.opts.Version
	} else {
		payload.Model = model
	}

	return payload, model, nil
}

// flatten returns plain text unchanged and serialises content parts to their
// JSON form.
func flatten(c models.Content) (string, error) {
	if !c.IsParts() {
		return c.Text, nil
	}
	raw, err := json.Marshal(c.Parts)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (r messagesResponse) toCanonical(requested string) *models.ChatResponse {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	id := r.ID
	if id == "" {
		id = models.NewCompletionID()
	}
	model := r.Model
	if model == "" {
		model = requested
	}

	return models.NewTextResponse(
		id,
		model,
		time.Now().Unix(),
		b.String(),
		MapStopReason(r.StopReason),
		models.NewUsage(r.Usage.InputTokens, r.Usage.OutputTokens),
	)
}

// MapStopReason converts an Anthropic stop_reason: max_tokens becomes length
// and every other value becomes stop.
func MapStopReason(reason string) models.FinishReason {
	if reason == "max_tokens" {
		return models.FinishLength
	}
	return models.FinishStop
}
