package factory

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/provider"
)

func serviceAccountJSON(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	raw, _ := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "gateway@proj.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	return string(raw)
}

func TestNewBuildsEveryKind(t *testing.T) {
	vertex := config.VertexConfig{ProjectID: "p", Region: "us-central1", ServiceAccount: serviceAccountJSON(t), BaseURL: "https://vertex.test/v1"}
	creds, err := NewCredentials(vertex)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	deps := Deps{Client: NewHTTPClient(0), Credentials: creds}

	tests := []struct {
		kind      config.Kind
		cfg       config.ProviderConfig
		streaming bool
	}{
		{config.KindOpenAI, config.OpenAIConfig{APIKey: "k", BaseURL: config.DefaultOpenAIBaseURL}, true},
		{config.KindAzure, config.AzureConfig{Endpoint: "https://a", APIKey: "k", Deployment: "d", APIVersion: config.DefaultAzureAPIVersion}, true},
		{config.KindFoundry, config.FoundryConfig{Endpoint: "https://f", APIKey: "k"}, true},
		{config.KindAnthropic, config.FoundryConfig{Endpoint: "https://f", APIKey: "k"}, true},
		{config.KindCloudflare, config.CloudflareConfig{AccountID: "a", APIToken: "t", BaseURL: config.DefaultCloudflareBaseURL}, false},
		{config.KindGemini, config.GeminiConfig{APIKey: "k", BaseURL: config.DefaultGeminiBaseURL}, true},
		{config.KindVertex, vertex, true},
		{config.KindVertexClaude, vertex, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			p, err := New(tt.kind, tt.cfg, deps)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Name() != string(tt.kind) {
				t.Fatalf("name = %q", p.Name())
			}
			if _, ok := p.(provider.StreamProvider); ok != tt.streaming {
				t.Fatalf("streaming = %v, want %v", ok, tt.streaming)
			}
		})
	}
}

func TestNewReportsConfigErrors(t *testing.T) {
	tests := map[string]struct {
		kind config.Kind
		cfg  config.ProviderConfig
		deps Deps
	}{
		"missing key":         {config.KindOpenAI, config.OpenAIConfig{BaseURL: config.DefaultOpenAIBaseURL}, Deps{}},
		"mismatched variant":  {config.KindGemini, config.OpenAIConfig{APIKey: "k"}, Deps{}},
		"nil config":          {config.KindOpenAI, nil, Deps{}},
		"vertex without auth": {config.KindVertex, config.VertexConfig{ProjectID: "p", Region: "r", ServiceAccountFile: "/sa.json"}, Deps{}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := New(tt.kind, tt.cfg, tt.deps)
			if p != nil {
				t.Fatalf("expected nil provider, got %T", p)
			}
			if gatewayerr.KindOf(err) != gatewayerr.KindConfig {
				t.Fatalf("kind = %s (%v)", gatewayerr.KindOf(err), err)
			}
		})
	}
}

func TestNewCredentialsErrors(t *testing.T) {
	for name, cfg := range map[string]config.VertexConfig{
		"none":         {},
		"missing file": {ServiceAccountFile: "/nonexistent/sa.json"},
		"bad json":     {ServiceAccount: "{not json"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewCredentials(cfg); gatewayerr.KindOf(err) != gatewayerr.KindConfig {
				t.Fatalf("kind = %s", gatewayerr.KindOf(err))
			}
		})
	}
}
