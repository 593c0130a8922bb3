package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"edge-gateway/internal/config"
	"edge-gateway/internal/credentials"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/provider"
	anthropicProvider "edge-gateway/internal/provider/anthropic"
	cloudflareProvider "edge-gateway/internal/provider/cloudflare"
	foundryProvider "edge-gateway/internal/provider/foundry"
	geminiProvider "edge-gateway/internal/provider/gemini"
	openaiProvider "edge-gateway/internal/provider/openai"
)

const (
	defaultHTTPTimeout     = 120 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// Deps are the shared collaborators handed to every adapter.
type Deps struct {
	Client *http.Client

	// Credentials authorizes Vertex calls. Required for vertex and
	// vertex-claude only.
	Credentials provider.Authorizer
}

// New constructs the adapter for kind from its configuration variant.
func New(kind config.Kind, cfg config.ProviderConfig, deps Deps) (provider.Provider, error) {
	if cfg == nil {
		return nil, gatewayerr.Config(string(kind), "provider is not configured")
	}
	client := deps.Client
	if client == nil {
		client = NewHTTPClient(defaultHTTPTimeout)
	}

	switch c := cfg.(type) {
	case config.OpenAIConfig:
		if kind == config.KindOpenAI {
			return adapt(openaiProvider.NewOpenAI(c, client))
		}
	case config.AzureConfig:
		if kind == config.KindAzure {
			return adapt(openaiProvider.NewAzure(c, client))
		}
	case config.FoundryConfig:
		switch kind {
		case config.KindFoundry:
			return adapt(foundryProvider.New(c, client))
		case config.KindAnthropic:
			return adapt(foundryProvider.NewAnthropic(c, client))
		}
	case config.CloudflareConfig:
		if kind == config.KindCloudflare {
			return adapt(cloudflareProvider.New(c, client))
		}
	case config.GeminiConfig:
		if kind == config.KindGemini {
			return adapt(geminiProvider.NewGemini(c, client))
		}
	case config.VertexConfig:
		switch kind {
		case config.KindVertex:
			return adapt(geminiProvider.NewVertex(c, deps.Credentials, client))
		case config.KindVertexClaude:
			return adapt(anthropicProvider.NewVertex(c, deps.Credentials, client))
		}
	}
	return nil, gatewayerr.Config(string(kind), "configuration of type %T cannot build provider %q", cfg, kind)
}

// adapt keeps a failed constructor from yielding a non-nil interface holding
// a nil pointer.
func adapt[P provider.Provider](p P, err error) (provider.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewCredentials builds the service-account token manager for a Vertex
// section. Inline key material takes precedence over the key file.
func NewCredentials(cfg config.VertexConfig, opts ...credentials.Option) (*credentials.Manager, error) {
	var (
		account credentials.ServiceAccount
		err     error
	)
	switch {
	case strings.TrimSpace(cfg.ServiceAccount) != "":
		account, err = credentials.ParseServiceAccount([]byte(cfg.ServiceAccount))
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		account, err = credentials.LoadServiceAccount(cfg.ServiceAccountFile)
	default:
		err = errors.New("service_account or service_account_file must be provided")
	}
	if err != nil {
		return nil, gatewayerr.Config(string(config.KindVertex), "%v", fmt.Errorf("load service account: %w", err))
	}
	return credentials.NewManager(account, opts...), nil
}

// NewHTTPClient returns the tuned upstream client. timeout bounds whole
// calls, streams included; zero disables it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
