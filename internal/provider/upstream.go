package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"edge-gateway/internal/gatewayerr"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "edge-gateway/0.1"
)

// Upstream bundles what every adapter needs to call its provider.
type Upstream struct {
	Name    string
	Client  *http.Client
	Auth    Authorizer
	Headers map[string]string
}

// PostJSON sends payload and returns the response when the status is 2xx.
// Any other outcome is a gateway error and the body is already closed.
func (u Upstream) PostJSON(ctx context.Context, url string, payload any, accept string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, gatewayerr.Wrap(u.Name, gatewayerr.KindInvalidRequest, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Wrap(u.Name, gatewayerr.KindConfig, fmt.Errorf("construct request: %w", err))
	}

	if accept == "" {
		accept = contentTypeJSON
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	for k, v := range u.Headers {
		req.Header.Set(k, v)
	}
	if u.Auth != nil {
		if err := u.Auth.Authorize(ctx, req); err != nil {
			return nil, gatewayerr.Wrap(u.Name, gatewayerr.KindAuthentication, err)
		}
	}

	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, gatewayerr.Network(u.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, gatewayerr.MaxRawBytes))
		if readErr != nil {
			return nil, gatewayerr.Network(u.Name, fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, readErr))
		}
		return nil, gatewayerr.FromStatus(u.Name, resp.StatusCode, raw)
	}
	return resp, nil
}

// DoJSON posts payload and decodes a 2xx response into target.
func (u Upstream) DoJSON(ctx context.Context, url string, payload, target any) error {
	resp, err := u.PostJSON(ctx, url, payload, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gatewayerr.Network(u.Name, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return gatewayerr.Provider(u.Name, fmt.Sprintf("decode provider response: %v", err), raw)
	}
	return nil
}

// OpenStream posts payload expecting an event stream and returns the open body.
func (u Upstream) OpenStream(ctx context.Context, url string, payload any) (io.ReadCloser, error) {
	resp, err := u.PostJSON(ctx, url, payload, "text/event-stream")
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, gatewayerr.Provider(u.Name, "upstream returned no stream body", nil)
	}
	return resp.Body, nil
}
