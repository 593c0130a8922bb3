package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/credentials"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
	"edge-gateway/internal/provider/factory"
)

// Route is the outcome of dispatch for one request.
type Route struct {
	Kind     config.Kind
	Model    string
	Provider provider.Provider
}

// Router dispatches canonical requests to provider adapters. Adapters are
// built on first use and cached.
type Router struct {
	cfg      config.Config
	registry *provider.Registry
	client   *http.Client
	metrics  *metrics.Collector
	logger   *slog.Logger
	credOpts []credentials.Option

	credMu sync.Mutex
	creds  *credentials.Manager
}

// Option customises a Router.
type Option func(*Router)

// WithHTTPClient sets the client shared by every adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Router) {
		if c != nil {
			r.client = c
		}
	}
}

// WithMetrics records upstream calls and token refreshes.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCredentialOptions passes extra options to the service-account manager.
func WithCredentialOptions(opts ...credentials.Option) Option {
	return func(r *Router) {
		r.credOpts = append(r.credOpts, opts...)
	}
}

// New constructs a router over cfg.
func New(cfg config.Config, opts ...Option) *Router {
	r := &Router{
		cfg:      cfg,
		registry: provider.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = factory.NewHTTPClient(0)
	}
	return r
}

// Resolve applies aliases, then the prefix/model convention, then the
// default provider. A prefix that is not a provider kind is part of the
// model name.
func (r *Router) Resolve(model string) (config.Kind, string, error) {
	model = strings.TrimSpace(model)
	if target, ok := r.cfg.Aliases[model]; ok {
		model = strings.TrimSpace(target)
	}

	if prefix, rest, ok := strings.Cut(model, "/"); ok {
		if kind, known := config.ParseKind(prefix); known {
			return kind, strings.TrimSpace(rest), nil
		}
	}

	if r.cfg.DefaultProvider == "" {
		return "", "", gatewayerr.Config("", "model %q has no provider prefix and no default_provider is configured", model)
	}
	return r.cfg.DefaultProvider, model, nil
}

// Route resolves the adapter for req, constructing it if needed.
func (r *Router) Route(req models.ChatRequest) (Route, error) {
	kind, model, err := r.Resolve(req.Model)
	if err != nil {
		return Route{}, err
	}

	p, err := r.registry.GetOrCreate(string(kind), func() (provider.Provider, error) {
		return r.build(kind)
	})
	if err != nil {
		return Route{}, gatewayerr.Wrap(string(kind), gatewayerr.KindConfig, err)
	}

	r.logger.Debug("routed request", "provider", kind, "model", model, "requested", req.Model)
	return Route{Kind: kind, Model: model, Provider: p}, nil
}

func (r *Router) build(kind config.Kind) (provider.Provider, error) {
	pc, err := r.cfg.ProviderConfig(kind)
	if err != nil {
		return nil, gatewayerr.Config(string(kind), "%v", err)
	}
	if err := pc.Validate(); err != nil {
		return nil, gatewayerr.Config(string(kind), "%v", err)
	}

	deps := factory.Deps{Client: r.client}
	if vc, ok := pc.(config.VertexConfig); ok {
		creds, err := r.credentials(vc)
		if err != nil {
			return nil, err
		}
		deps.Credentials = creds
	}

	p, err := factory.New(kind, pc, deps)
	if err != nil {
		return nil, err
	}
	r.logger.Info("initialised provider", "provider", kind)
	return p, nil
}

// credentials returns the manager shared by vertex and vertex-claude.
func (r *Router) credentials(cfg config.VertexConfig) (*credentials.Manager, error) {
	r.credMu.Lock()
	defer r.credMu.Unlock()

	if r.creds != nil {
		return r.creds, nil
	}
	opts := []credentials.Option{credentials.WithHTTPClient(r.client)}
	if r.metrics != nil {
		opts = append(opts, credentials.WithRefreshObserver(r.metrics.ObserveTokenRefresh))
	}
	opts = append(opts, r.credOpts...)

	m, err := factory.NewCredentials(cfg, opts...)
	if err != nil {
		return nil, err
	}
	r.creds = m
	return m, nil
}

// Active lists the providers whose adapters have been built.
func (r *Router) Active() []string {
	return r.registry.Names()
}

// Chat routes and performs a synchronous call.
func (r *Router) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, Route, error) {
	route, err := r.Route(req)
	if err != nil {
		return nil, Route{}, err
	}
	req.Model = route.Model

	start := time.Now()
	resp, err := route.Provider.Chat(ctx, req)
	r.observe(route, start, err)
	if err != nil {
		return nil, route, err
	}
	return resp, route, nil
}

// ChatStream routes and opens a canonical SSE stream. It returns an error
// wrapping provider.ErrStreamingUnsupported when the adapter cannot stream.
func (r *Router) ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, Route, error) {
	route, err := r.Route(req)
	if err != nil {
		return nil, Route{}, err
	}
	sp, ok := route.Provider.(provider.StreamProvider)
	if !ok {
		return nil, route, fmt.Errorf("%s: %w", route.Kind, provider.ErrStreamingUnsupported)
	}
	req.Model = route.Model

	start := time.Now()
	body, err := sp.ChatStream(ctx, req)
	r.observe(route, start, err)
	if err != nil {
		return nil, route, err
	}
	return body, route, nil
}

func (r *Router) observe(route Route, start time.Time, err error) {
	r.metrics.ObserveUpstream(string(route.Kind), time.Since(start), err)
	if err == nil {
		return
	}
	attrs := []any{"provider", route.Kind, "model", route.Model, "error", err}
	var gerr *gatewayerr.Error
	if errors.As(err, &gerr) {
		attrs = append(attrs, "kind", gerr.Kind, "upstream_status", gerr.UpstreamStatus)
	}
	r.logger.Warn("upstream call failed", attrs...)
}
