package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/config"
	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
	"edge-gateway/internal/provider"
	"edge-gateway/internal/translator"
)

const streamBufferSize = 32 * 1024

type healthResponse struct {
	Status     string        `json:"status"`
	Configured []config.Kind `json:"configured"`
	Active     []string      `json:"active"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "ok",
		Configured: s.cfg.Configured(),
		Active:     s.router.Active(),
	})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	req, err := s.decodeChatRequest(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if req.Stream {
		body, _, err := s.router.ChatStream(ctx, req)
		switch {
		case err == nil:
			return writeStream(c, body)
		case errors.Is(err, provider.ErrStreamingUnsupported):
			req.Stream = false
		default:
			return err
		}
	}

	resp, _, err := s.router.Chat(ctx, req)
	if err != nil {
		return err
	}
	if resp == nil {
		return gatewayerr.Provider("", "upstream provider returned an empty response", nil)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) decodeChatRequest(c echo.Context) (models.ChatRequest, error) {
	r := c.Request()
	defer r.Body.Close()

	r.Body = http.MaxBytesReader(c.Response(), r.Body, s.cfg.Server.MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			e := gatewayerr.Invalid("", "request body exceeds %d bytes", tooLarge.Limit)
			e.Status = http.StatusRequestEntityTooLarge
			return models.ChatRequest{}, e
		}
		return models.ChatRequest{}, gatewayerr.Invalid("", "read request body: %v", err)
	}
	if len(data) == 0 {
		return models.ChatRequest{}, gatewayerr.Invalid("", "request body is required")
	}
	return translator.DecodeChatRequest(data)
}

// writeStream copies canonical SSE bytes to the client, flushing after every
// read. Closing body on return releases the upstream when the client leaves.
func writeStream(c echo.Context, body io.ReadCloser) error {
	defer body.Close()

	res := c.Response()
	header := res.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	buf := make([]byte, streamBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := res.Write(buf[:n]); werr != nil {
				slog.Debug("client went away during stream", "err", werr)
				return nil
			}
			res.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			slog.Debug("client went away during stream", "err", err)
			return nil
		}
		if err != nil {
			// Headers are gone; the only signal left is ending the stream early.
			slog.Warn("upstream stream failed", "err", err)
			return nil
		}
	}
}
