package config

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a provider adapter. Kinds double as model-name routing prefixes.
type Kind string

const (
	KindOpenAI       Kind = "openai"
	KindAzure        Kind = "azure"
	KindFoundry      Kind = "foundry"
	KindAnthropic    Kind = "anthropic"
	KindCloudflare   Kind = "cloudflare"
	KindGemini       Kind = "gemini"
	KindVertex       Kind = "vertex"
	KindVertexClaude Kind = "vertex-claude"
)

// Default endpoints and versions.
const (
	DefaultOpenAIBaseURL       = "https://api.openai.com/v1"
	DefaultAzureAPIVersion     = "2024-10-21"
	DefaultFoundryAPIVersion   = "2024-05-01-preview"
	DefaultAnthropicVersion    = "2023-06-01"
	DefaultCloudflareBaseURL   = "https://api.cloudflare.com/client/v4"
	DefaultGeminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	DefaultVertexClaudeVersion = "vertex-2023-10-16"
)

// ErrNotConfigured reports that the section for a provider is absent.
var ErrNotConfigured = errors.New("provider is not configured")

var allKinds = []Kind{
	KindOpenAI,
	KindAzure,
	KindFoundry,
	KindAnthropic,
	KindCloudflare,
	KindGemini,
	KindVertex,
	KindVertexClaude,
}

// Kinds returns every known provider kind.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind matches a name case-insensitively.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range allKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

// ProviderConfig is one variant of the per-provider configuration.
type ProviderConfig interface {
	Kind() Kind
	Validate() error
}

// ProviderConfig returns the variant used by kind, with defaults applied.
func (c Config) ProviderConfig(kind Kind) (ProviderConfig, error) {
	p := c.Providers
	switch kind {
	case KindOpenAI:
		if p.OpenAI != nil {
			return p.OpenAI.withDefaults(), nil
		}
	case KindAzure:
		if p.Azure != nil {
			return p.Azure.withDefaults(), nil
		}
	case KindFoundry, KindAnthropic:
		if p.Foundry != nil {
			return p.Foundry.withDefaults(), nil
		}
	case KindCloudflare:
		if p.Cloudflare != nil {
			return p.Cloudflare.withDefaults(), nil
		}
	case KindGemini:
		if p.Gemini != nil {
			return p.Gemini.withDefaults(), nil
		}
	case KindVertex, KindVertexClaude:
		if p.Vertex != nil {
			return p.Vertex.withDefaults(), nil
		}
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
	return nil, fmt.Errorf("%s: %w", kind, ErrNotConfigured)
}

// OpenAIConfig configures api.openai.com or a compatible endpoint.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Model        string `yaml:"model"`
	Organization string `yaml:"organization"`
}

func (c OpenAIConfig) Kind() Kind { return KindOpenAI }

func (c OpenAIConfig) Validate() error {
	return required(KindOpenAI, field{"api_key", c.APIKey})
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	c.BaseURL = orDefault(c.BaseURL, DefaultOpenAIBaseURL)
	return c
}

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

func (c AzureConfig) Kind() Kind { return KindAzure }

func (c AzureConfig) Validate() error {
	return required(KindAzure,
		field{"endpoint", c.Endpoint},
		field{"api_key", c.APIKey},
		field{"deployment", c.Deployment},
	)
}

func (c AzureConfig) withDefaults() AzureConfig {
	c.APIVersion = orDefault(c.APIVersion, DefaultAzureAPIVersion)
	return c
}

// FoundryConfig configures an Azure model-catalog endpoint serving both
// OpenAI-style and Anthropic-style models.
type FoundryConfig struct {
	Endpoint         string `yaml:"endpoint"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	APIVersion       string `yaml:"api_version"`
	AnthropicVersion string `yaml:"anthropic_version"`
}

func (c FoundryConfig) Kind() Kind { return KindFoundry }

func (c FoundryConfig) Validate() error {
	return required(KindFoundry,
		field{"endpoint", c.Endpoint},
		field{"api_key", c.APIKey},
	)
}

func (c FoundryConfig) withDefaults() FoundryConfig {
	c.APIVersion = orDefault(c.APIVersion, DefaultFoundryAPIVersion)
	c.AnthropicVersion = orDefault(c.AnthropicVersion, DefaultAnthropicVersion)
	return c
}

// CloudflareConfig configures Workers AI.
type CloudflareConfig struct {
	AccountID string `yaml:"account_id"`
	APIToken  string `yaml:"api_token"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
}

func (c CloudflareConfig) Kind() Kind { return KindCloudflare }

func (c CloudflareConfig) Validate() error {
	return required(KindCloudflare,
		field{"account_id", c.AccountID},
		field{"api_token", c.APIToken},
	)
}

func (c CloudflareConfig) withDefaults() CloudflareConfig {
	c.BaseURL = orDefault(c.BaseURL, DefaultCloudflareBaseURL)
	return c
}

// GeminiConfig configures the Gemini API with an API key.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

func (c GeminiConfig) Kind() Kind { return KindGemini }

func (c GeminiConfig) Validate() error {
	return required(KindGemini, field{"api_key", c.APIKey})
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	c.BaseURL = orDefault(c.BaseURL, DefaultGeminiBaseURL)
	return c
}

// VertexConfig configures Vertex AI with a service account. It serves both
// Gemini models and Claude models published on Vertex.
type VertexConfig struct {
	ProjectID          string `yaml:"project_id"`
	Region             string `yaml:"region"`
	Model              string `yaml:"model"`
	ClaudeModel        string `yaml:"claude_model"`
	ServiceAccount     string `yaml:"service_account"`
	ServiceAccountFile string `yaml:"service_account_file"`
	// BaseURL overrides https://{region}-aiplatform.googleapis.com/v1.
	BaseURL string `yaml:"base_url"`
}

func (c VertexConfig) Kind() Kind { return KindVertex }

func (c VertexConfig) Validate() error {
	if err := required(KindVertex,
		field{"project_id", c.ProjectID},
		field{"region", c.Region},
	); err != nil {
		return err
	}
	if strings.TrimSpace(c.ServiceAccount) == "" && strings.TrimSpace(c.ServiceAccountFile) == "" {
		return fmt.Errorf("provider %s: service_account or service_account_file must be provided", KindVertex)
	}
	return nil
}

func (c VertexConfig) withDefaults() VertexConfig {
	c.BaseURL = orDefault(c.BaseURL, fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", strings.TrimSpace(c.Region)))
	return c
}

type field struct {
	name  string
	value string
}

func required(kind Kind, fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("provider %s: %s must be provided", kind, f.name)
		}
	}
	return nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimRight(strings.TrimSpace(value), "/")
}
