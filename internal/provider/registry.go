package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"

	"edge-gateway/internal/models"
)

// ErrStreamingUnsupported indicates the provider has no streaming path.
var ErrStreamingUnsupported = errors.New("provider does not support streaming")

// Provider performs synchronous chat against one upstream.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
}

// StreamProvider is implemented by adapters whose upstream can stream. The
// returned reader yields canonical SSE bytes ending with the done sentinel;
// closing it releases the upstream connection.
type StreamProvider interface {
	Provider
	ChatStream(ctx context.Context, req models.ChatRequest) (io.ReadCloser, error)
}

// Authorizer attaches credentials to an outbound request.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *http.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// HeaderAuth sets a static credential header, e.g. Authorization: Bearer <key>
// or api-key: <key>.
type HeaderAuth struct {
	Header string
	Prefix string
	Value  string
}

func (h HeaderAuth) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set(h.Header, h.Prefix+h.Value)
	return nil
}

// BearerAuth returns an Authorization: Bearer authorizer.
func BearerAuth(token string) HeaderAuth {
	return HeaderAuth{Header: "Authorization", Prefix: "Bearer ", Value: token}
}

// Registry caches constructed adapters by name. Failed constructions are not
// cached.
type Registry struct {
	mu     sync.Mutex
	byName map[string]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Provider),
	}
}

// GetOrCreate returns the adapter registered under name, building it on first
// use.
func (r *Registry) GetOrCreate(name string, build func() (Provider, error)) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	p, err := build()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("provider builder returned nil")
	}
	r.byName[name] = p
	return p, nil
}

// Names lists constructed adapters in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
