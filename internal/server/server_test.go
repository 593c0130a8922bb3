package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/metrics"
	"edge-gateway/internal/router"
)

const gatewayKey = "gw-secret"

// fakeUpstreams serves an OpenAI-wire chat endpoint and a Gemini stream.
func fakeUpstreams(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/openai/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] == "rate-limited" {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"quota exceeded"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-up","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],`+
			`"usage":{"prompt_tokens":2,"completion_tokens":2,"total_tokens":4}}`)
	})
	mux.HandleFunc("/gemini/models/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Hel", "lo"} {
			_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"`+text+`"}]}}]}`+"\r\n\r\n")
			flusher.Flush()
		}
	})
	mux.HandleFunc("/cloudflare/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"result":{"response":"from the edge"},"errors":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newServer(t *testing.T, authKey string) *Server {
	t.Helper()
	up := fakeUpstreams(t)

	cfg, err := config.Parse([]byte(`
server:
  port: 8080
  auth_key: "` + authKey + `"
  allowed_origins: ["https://app.example.com"]
default_provider: openai
providers:
  openai:
    api_key: sk-upstream
    base_url: ` + up.URL + `/openai
  gemini:
    api_key: g-key
    base_url: ` + up.URL + `/gemini
  cloudflare:
    account_id: acct
    api_token: cf
    base_url: ` + up.URL + `/cloudflare
`))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}

	m := metrics.NewCollector()
	rt := router.New(cfg, router.WithHTTPClient(up.Client()), router.WithMetrics(m))
	srv, err := New(cfg, rt, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func newGateway(t *testing.T, authKey string) *httptest.Server {
	t.Helper()
	gw := httptest.NewServer(newServer(t, authKey).Handler())
	t.Cleanup(gw.Close)
	return gw
}

func newClient(gw *httptest.Server, key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = gw.URL + "/v1"
	cfg.HTTPClient = gw.Client()
	return openai.NewClientWithConfig(cfg)
}

func TestChatCompletionEndToEnd(t *testing.T) {
	gw := newGateway(t, gatewayKey)
	client := newClient(gw, gatewayKey)

	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Role != openai.ChatMessageRoleAssistant || choice.Message.Content != "hello there" {
		t.Fatalf("message = %+v", choice.Message)
	}
	switch choice.FinishReason {
	case openai.FinishReasonStop, openai.FinishReasonLength, openai.FinishReasonContentFilter,
		openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall, openai.FinishReasonNull, "":
	default:
		t.Fatalf("finish reason %q outside the enumeration", choice.FinishReason)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestChatCompletionStreamEndToEnd(t *testing.T) {
	gw := newGateway(t, gatewayKey)
	client := newClient(gw, gatewayKey)

	stream, err := client.CreateChatCompletionStream(context.Background(), openai.ChatCompletionRequest{
		Model:    "gemini/gemini-2.0-flash",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream: %v", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if chunk.Object != "chat.completion.chunk" || chunk.Model != "gemini-2.0-flash" {
			t.Fatalf("chunk envelope = %+v", chunk)
		}
		for _, c := range chunk.Choices {
			text.WriteString(c.Delta.Content)
		}
	}
	if text.String() != "Hello" {
		t.Fatalf("streamed text = %q", text.String())
	}
}

func TestStreamFallsBackForNonStreamingProviders(t *testing.T) {
	gw := newGateway(t, "")

	resp := post(t, gw, "", `{"model":"cloudflare/@cf/meta/llama-3.1-8b-instruct","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message.Content != "from the edge" {
		t.Fatalf("response = %+v", out)
	}
}

func post(t *testing.T, gw *httptest.Server, key, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, gw.URL+"/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := gw.Client().Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Fatal("error message missing")
	}
	return body
}

func TestErrorResponses(t *testing.T) {
	gw := newGateway(t, gatewayKey)

	tests := []struct {
		name       string
		key        string
		body       string
		wantStatus int
		wantKind   gatewayerr.Kind
	}{
		{"missing key", "", `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusUnauthorized, gatewayerr.KindAuthentication},
		{"wrong key", "nope", `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusUnauthorized, gatewayerr.KindAuthentication},
		{"malformed json", gatewayKey, `{"messages":`, http.StatusBadRequest, gatewayerr.KindInvalidRequest},
		{"empty messages", gatewayKey, `{"messages":[]}`, http.StatusBadRequest, gatewayerr.KindInvalidRequest},
		{"empty body", gatewayKey, ``, http.StatusBadRequest, gatewayerr.KindInvalidRequest},
		{"unconfigured prefix", gatewayKey, `{"model":"azure/gpt-4o","messages":[{"role":"user","content":"hi"}]}`, http.StatusInternalServerError, gatewayerr.KindConfig},
		{"upstream rate limit", gatewayKey, `{"model":"rate-limited","messages":[{"role":"user","content":"hi"}]}`, http.StatusTooManyRequests, gatewayerr.KindRateLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, gw, tt.key, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, resp); body.Kind != tt.wantKind {
				t.Fatalf("kind = %s, want %s", body.Kind, tt.wantKind)
			}
		})
	}
}

func TestClientSeesUpstreamStatus(t *testing.T) {
	gw := newGateway(t, gatewayKey)
	client := newClient(gw, gatewayKey)

	_, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model:    "rate-limited",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	var reqErr *openai.RequestError
	if !errors.As(err, &reqErr) || reqErr.HTTPStatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(string(reqErr.Body), "quota exceeded") {
		t.Fatalf("body = %s", reqErr.Body)
	}
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	gw := newGateway(t, gatewayKey)

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := gw.Client().Get(gw.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestHealthReportsProviders(t *testing.T) {
	gw := newGateway(t, "")

	resp := post(t, gw, "", `{"model":"openai/gpt-4o-mini","messages":[{"role":"user","content":"hi"}]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}

	resp, err := gw.Client().Get(gw.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "ok" || len(health.Configured) != 3 {
		t.Fatalf("health = %+v", health)
	}
	if len(health.Active) != 1 || health.Active[0] != "openai" {
		t.Fatalf("active = %v", health.Active)
	}
}

func TestCORSPreflight(t *testing.T) {
	gw := newGateway(t, gatewayKey)

	req, _ := http.NewRequest(http.MethodOptions, gw.URL+"/v1/chat/completions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := gw.Client().Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin = %q (status %d)", got, resp.StatusCode)
	}
}

func TestBodyLimit(t *testing.T) {
	srv := newServer(t, "")
	huge := `{"messages":[{"role":"user","content":"` + strings.Repeat("a", 2<<20) + `"}]}`

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(huge))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Kind != gatewayerr.KindInvalidRequest {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
