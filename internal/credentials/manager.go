// Package credentials obtains and caches Google OAuth2 access tokens using a
// service-account signed JWT assertion.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/sync/singleflight"

	"edge-gateway/internal/gatewayerr"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	DefaultScope    = "https://www.googleapis.com/auth/cloud-platform"

	// RefreshMargin is how long before expiry a cached token stops being used.
	RefreshMargin = 5 * time.Minute

	assertionLifetime = time.Hour
	exchangeTimeout   = 30 * time.Second
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	providerName      = "google-oauth"
)

// CachedToken is an access token and the instant it expires.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// FreshAt reports whether the token may still be used at now.
func (t CachedToken) FreshAt(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// Manager owns the cached token for one service account. It is safe for
// concurrent use; refreshes are collapsed into a single in-flight exchange.
type Manager struct {
	account   ServiceAccount
	client    *http.Client
	tokenURL  string
	scope     string
	margin    time.Duration
	now       func() time.Time
	onRefresh func(error)

	mu    sync.RWMutex
	token CachedToken
	group singleflight.Group
}

// Option customises a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithScope overrides the OAuth scope.
func WithScope(scope string) Option {
	return func(m *Manager) {
		if scope != "" {
			m.scope = scope
		}
	}
}

// WithRefreshObserver is called after every exchange attempt.
func WithRefreshObserver(fn func(error)) Option {
	return func(m *Manager) {
		m.onRefresh = fn
	}
}

// NewManager returns a manager with no token cached.
func NewManager(account ServiceAccount, opts ...Option) *Manager {
	tokenURL := strings.TrimSpace(account.TokenURI)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	m := &Manager{
		account:  account,
		client:   &http.Client{Timeout: exchangeTimeout},
		tokenURL: tokenURL,
		scope:    DefaultScope,
		margin:   RefreshMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a bearer token, refreshing it when it is within the margin of
// expiry.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if tok, ok := m.cached(); ok {
		return tok, nil
	}

	v, err, _ := m.group.Do("token", func() (any, error) {
		if tok, ok := m.cached(); ok {
			return tok, nil
		}
		// Detached so one caller's cancellation does not fail the others sharing this flight.
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()

		tok, err := m.refresh(refreshCtx)
		if m.onRefresh != nil {
			m.onRefresh(err)
		}
		if err != nil {
			return "", err
		}

		m.mu.Lock()
		m.token = tok
		m.mu.Unlock()
		slog.Info("refreshed google access token", "account", m.account.ClientEmail, "expires_at", tok.ExpiresAt.UTC())
		return tok.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Authorize sets the bearer token on an outbound request.
func (m *Manager) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := m.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// Cached returns a copy of the current cache entry.
func (m *Manager) Cached() CachedToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *Manager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token.FreshAt(m.now(), m.margin) {
		return m.token.AccessToken, true
	}
	return "", false
}

func (m *Manager) refresh(ctx context.Context) (CachedToken, error) {
	now := m.now()
	assertion, err := m.signAssertion(now)
	if err != nil {
		return CachedToken{}, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, gatewayerr.Wrap(providerName, gatewayerr.KindConfig, fmt.Errorf("construct token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return CachedToken{}, gatewayerr.Network(providerName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, gatewayerr.MaxRawBytes))
	if err != nil {
		return CachedToken{}, gatewayerr.Network(providerName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gerr := gatewayerr.FromStatus(providerName, resp.StatusCode, body)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			// The token endpoint answers invalid grants with 400.
			gerr.Kind = gatewayerr.KindAuthentication
			gerr.Status = gatewayerr.StatusFor(gatewayerr.KindAuthentication)
		}
		return CachedToken{}, gerr
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return CachedToken{}, gatewayerr.Provider(providerName, fmt.Sprintf("decode token response: %v", err), body)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return CachedToken{}, gatewayerr.New(gatewayerr.KindAuthentication, providerName, "token response did not include an access_token")
	}

	lifetime := time.Duration(out.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = assertionLifetime
	}
	return CachedToken{
		AccessToken: out.AccessToken,
		ExpiresAt:   now.Add(lifetime),
	}, nil
}

// signAssertion builds the compact RS256 JWT exchanged for an access token.
func (m *Manager) signAssertion(now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(m.account.PrivateKey))
	if err != nil {
		e := gatewayerr.Config(providerName, "parse service account private key: %v", err)
		e.Cause = err
		return "", e
	}

	claims := jwt.MapClaims{
		"iss":   m.account.ClientEmail,
		"sub":   m.account.ClientEmail,
		"aud":   m.tokenURL,
		"scope": m.scope,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", gatewayerr.Wrap(providerName, gatewayerr.KindUnknown, fmt.Errorf("sign assertion: %w", err))
	}
	return signed, nil
}
