package gemini

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
	"edge-gateway/internal/stream"
)

// Options configures a Gemini-wire adapter.
type Options struct {
	Name string
	// Base is the URL prefix that the model name and method are appended to.
	Base  string
	Model string
	Auth  provider.Authorizer
}

// Provider implements provider.StreamProvider for generateContent.
type Provider struct {
	opts     Options
	upstream provider.Upstream
}

// New constructs a Gemini-wire adapter.
func New(opts Options, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	if strings.TrimSpace(opts.Base) == "" {
		return nil, gatewayerr.Config(opts.Name, "base url must not be empty")
	}
	return &Provider{
		opts: opts,
		upstream: provider.Upstream{
			Name:   opts.Name,
			Client: client,
			Auth:   opts.Auth,
		},
	}, nil
}

// NewGemini creates the adapter for the Gemini API authenticated by API key.
func NewGemini(cfg config.GeminiConfig, client *http.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(string(config.KindGemini), "%v", err)
	}
	return New(Options{
		Name:  string(config.KindGemini),
		Base:  cfg.BaseURL + "/models/",
		Model: cfg.Model,
		Auth:  provider.HeaderAuth{Header: "x-goog-api-key", Value: cfg.APIKey},
	}, client)
}

// NewVertex creates the adapter for Gemini models on Vertex AI. auth supplies
// the service-account bearer token.
func NewVertex(cfg config.VertexConfig, auth provider.Authorizer, client *http.Client) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, gatewayerr.Config(string(config.KindVertex), "%v", err)
	}
	if auth == nil {
		return nil, gatewayerr.Config(string(config.KindVertex), "service account credentials are required")
	}
	return New(Options{
		Name: string(config.KindVertex),
		Base: cfg.BaseURL + "/projects/" + url.PathEscape(cfg.ProjectID) +
			"/locations/" + url.PathEscape(cfg.Region) + "/publishers/google/models/",
		Model: cfg.Model,
		Auth:  auth,
	}, client)
}

func (p *Provider) Name() string {
	return p.opts.Name
}

func (p *Provider) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	payload, model, err := p.buildPayload(req)
	if err != nil {
		return nil, err
	}

	var resp generateResponse
	if err := p.upstream.DoJSON(ctx, p.endpoint(model, false), payload, &resp); err != nil {
		return nil, err
	}
	return resp.toCanonical(p.opts.Name, model)
}

func (p *Provider) ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error) {
	payload, model, err := p.buildPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := p.upstream.OpenStream(ctx, p.endpoint(model, true), payload)
	if err != nil {
		return nil, err
	}
	return stream.NewTranscoder(body, stream.GeminiMapper, stream.NewMeta(model)), nil
}

func (p *Provider) endpoint(model string, stream bool) string {
	if stream {
		return p.opts.Base + url.PathEscape(model) + ":streamGenerateContent?alt=sse"
	}
	return p.opts.Base + url.PathEscape(model) + ":generateContent"
}

func (p *Provider) buildPayload(req models.ChatRequest) (generateRequest, string, error) {
	if err := req.Validate(); err != nil {
		return generateRequest{}, "", gatewayerr.Invalid(p.opts.Name, "%v", err)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.opts.Model
	}
	if model == "" {
		return generateRequest{}, "", gatewayerr.Invalid(p.opts.Name, "model must be provided")
	}

	payload, err := buildRequest(req)
	if err != nil {
		return generateRequest{}, "", gatewayerr.Invalid(p.opts.Name, "%v", err)
	}
	return payload, model, nil
}

func (r generateResponse) toCanonical(name, requested string) (*models.ChatResponse, error) {
	model := r.ModelVersion
	if model == "" {
		model = requested
	}
	var usage *models.Usage
	if u := r.UsageMetadata; u != nil {
		usage = models.NewUsage(u.PromptTokenCount, u.CandidatesTokenCount)
	}
	id := r.ResponseID
	if id == "" {
		id = models.NewCompletionID()
	}

	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			resp := models.NewTextResponse(id, model, time.Now().Unix(), "", models.FinishContentFilter, usage)
			resp.Choices[0].Message.Content = nil
			return resp, nil
		}
		return nil, gatewayerr.Provider(name, "response did not include candidates", nil)
	}

	candidate := r.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	return models.NewTextResponse(
		id,
		model,
		time.Now().Unix(),
		text.String(),
		MapFinishReason(candidate.FinishReason),
		usage,
	), nil
}

// MapFinishReason converts a Gemini finishReason onto the canonical
// enumeration.
func MapFinishReason(reason string) models.FinishReason {
	switch strings.ToUpper(strings.TrimSpace(reason)) {
	case "":
		return models.FinishNone
	case "MAX_TOKENS":
		return models.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return models.FinishContentFilter
	default:
		return models.FinishStop
	}
}
