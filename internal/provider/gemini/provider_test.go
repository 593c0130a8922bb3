package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
	"edge-gateway/internal/stream"
)

type capture struct {
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func newUpstream(t *testing.T, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path, c.query, c.header = r.URL.Path, r.URL.RawQuery, r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
			t.Errorf("decode upstream body: %v", err)
		}
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const okResponse = `{"candidates":[{"content":{"role":"model","parts":[{"text":"bon"},{"text":"jour"}]},"finishReason":"MAX_TOKENS"}],"usageMetadata":{"promptTokenCount":4,"candidatesTokenCount":6,"totalTokenCount":10},"modelVersion":"gemini-2.0-flash-001"}`

func apiKeyAdapter(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := NewGemini(config.GeminiConfig{APIKey: "g-key", Model: "gemini-2.0-flash", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return p
}

func TestRoleMappingAndSystemInstruction(t *testing.T) {
	srv, c := newUpstream(t, okResponse)
	p := apiKeyAdapter(t, srv)

	resp, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: models.TextContent("translate")},
			{Role: models.RoleUser, Content: models.TextContent("hello")},
			{Role: models.RoleAssistant, Content: models.TextContent("salut")},
			{Role: models.RoleTool, Content: models.TextContent("tool output")},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if c.path != "/models/gemini-2.0-flash:generateContent" || c.header.Get("x-goog-api-key") != "g-key" {
		t.Fatalf("path=%q headers=%v", c.path, c.header)
	}
	if _, ok := c.body["generationConfig"]; ok {
		t.Fatal("generationConfig must be omitted when nothing is set")
	}

	sys := c.body["systemInstruction"].(map[string]any)
	if text := sys["parts"].([]any)[0].(map[string]any)["text"]; text != "translate" {
		t.Fatalf("systemInstruction = %v", sys)
	}

	contents := c.body["contents"].([]any)
	var roles []string
	for _, item := range contents {
		roles = append(roles, item.(map[string]any)["role"].(string))
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Fatalf("roles = %v", roles)
	}

	if resp.Choices[0].Message.Text() != "bonjour" || resp.Choices[0].FinishReason != models.FinishLength {
		t.Fatalf("choice = %+v", resp.Choices[0])
	}
	if resp.Model != "gemini-2.0-flash-001" || resp.Usage.TotalTokens != 10 {
		t.Fatalf("resp = %+v usage=%+v", resp, resp.Usage)
	}
}

func TestGenerationConfigRenamesKeys(t *testing.T) {
	srv, c := newUpstream(t, okResponse)
	p := apiKeyAdapter(t, srv)

	topP := 0.5
	_, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: models.TextContent("x")}},
		TopP:     &topP,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	cfg := c.body["generationConfig"].(map[string]any)
	if cfg["topP"] != 0.5 || len(cfg) != 1 {
		t.Fatalf("generationConfig = %v", cfg)
	}
}

func TestImageParts(t *testing.T) {
	srv, c := newUpstream(t, okResponse)
	p := apiKeyAdapter(t, srv)

	_, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: models.PartsContent(
			models.ContentPart{Type: models.PartText, Text: "what is this"},
			models.ContentPart{Type: models.PartImageURL, ImageURL: &models.ImageURL{URL: "data:image/png;base64,AAAA"}},
			models.ContentPart{Type: models.PartImageURL, ImageURL: &models.ImageURL{URL: "gs://bucket/cat.jpg"}},
		)}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	parts := c.body["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/png" || inline["data"] != "AAAA" {
		t.Fatalf("inlineData = %v", inline)
	}
	if parts[2].(map[string]any)["fileData"].(map[string]any)["fileUri"] != "gs://bucket/cat.jpg" {
		t.Fatalf("fileData = %v", parts[2])
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := map[string]models.FinishReason{
		"STOP":               models.FinishStop,
		"MAX_TOKENS":         models.FinishLength,
		"SAFETY":             models.FinishContentFilter,
		"RECITATION":         models.FinishContentFilter,
		"PROHIBITED_CONTENT": models.FinishContentFilter,
		"OTHER":              models.FinishStop,
		"":                   models.FinishNone,
	}
	for in, want := range tests {
		if got := MapFinishReason(in); got != want {
			t.Errorf("MapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlockedPrompt(t *testing.T) {
	srv, _ := newUpstream(t, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	p := apiKeyAdapter(t, srv)

	resp, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: models.TextContent("x")}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Choices[0].FinishReason != models.FinishContentFilter || resp.Choices[0].Message.Content != nil {
		t.Fatalf("choice = %+v", resp.Choices[0])
	}
}

func TestVertexUsesBearerToken(t *testing.T) {
	srv, c := newUpstream(t, okResponse)
	calls := 0
	auth := provider.AuthorizerFunc(func(_ context.Context, r *http.Request) error {
		calls++
		r.Header.Set("Authorization", "Bearer ya29.vertex")
		return nil
	})
	p, err := NewVertex(config.VertexConfig{
		ProjectID:      "proj",
		Region:         "europe-west4",
		Model:          "gemini-1.5-pro",
		ServiceAccount: "{}",
		BaseURL:        srv.URL,
	}, auth, srv.Client())
	if err != nil {
		t.Fatalf("NewVertex: %v", err)
	}

	if _, err := p.Chat(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: models.TextContent("x")}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if c.path != "/projects/proj/locations/europe-west4/publishers/google/models/gemini-1.5-pro:generateContent" {
		t.Fatalf("path = %q", c.path)
	}
	if c.header.Get("Authorization") != "Bearer ya29.vertex" || c.header.Get("x-goog-api-key") != "" || calls != 1 {
		t.Fatalf("headers = %v calls=%d", c.header, calls)
	}
}

func TestVertexRequiresCredentials(t *testing.T) {
	_, err := NewVertex(config.VertexConfig{ProjectID: "p", Region: "r", ServiceAccount: "{}"}, nil, http.DefaultClient)
	if gatewayerr.KindOf(err) != gatewayerr.KindConfig {
		t.Fatalf("kind = %s", gatewayerr.KindOf(err))
	}
}

func TestChatStream(t *testing.T) {
	sse := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Bon\"}]}}]}\r\n\r\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"jour\"}]},\"finishReason\":\"STOP\"}]}\r\n\r\n"
	srv, c := newUpstream(t, sse)
	p := apiKeyAdapter(t, srv)

	body, err := p.ChatStream(context.Background(), models.ChatRequest{
		Messages: []models.Message{{Role: models.RoleUser, Content: models.TextContent("x")}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer body.Close()
	out, _ := io.ReadAll(body)

	if c.path != "/models/gemini-2.0-flash:streamGenerateContent" || c.query != "alt=sse" {
		t.Fatalf("url = %s?%s", c.path, c.query)
	}
	text := string(out)
	if strings.Count(text, "data: ") != 3 || !strings.Contains(text, `"content":"Bon"`) || !strings.Contains(text, `"content":"jour"`) {
		t.Fatalf("stream = %q", text)
	}
	if !strings.HasSuffix(text, stream.DoneEvent) {
		t.Fatalf("missing done event: %q", text)
	}
}
