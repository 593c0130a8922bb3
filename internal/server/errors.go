package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"edge-gateway/internal/gatewayerr"
)

type errorBody struct {
	Error    string          `json:"error"`
	Kind     gatewayerr.Kind `json:"kind"`
	Provider string          `json:"provider,omitempty"`
}

// gatewayErrorHandler renders every failure as {"error": message} plus the
// taxonomy kind.
func gatewayErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	gerr := classify(err)
	if gerr.Kind == gatewayerr.KindUnknown || gerr.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", gerr.Kind, "provider", gerr.Provider, "err", err)
	}

	body := errorBody{
		Error:    gerr.Message,
		Kind:     gerr.Kind,
		Provider: gerr.Provider,
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(gerr.Status)
		return
	}
	_ = c.JSON(gerr.Status, body)
}

func classify(err error) *gatewayerr.Error {
	if gerr, ok := gatewayerr.As(err); ok {
		return gerr
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := gatewayerr.KindForStatus(he.Code)
		if he.Code == http.StatusMethodNotAllowed {
			kind = gatewayerr.KindInvalidRequest
		}
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return &gatewayerr.Error{Kind: kind, Status: he.Code, Message: msg}
	}

	return &gatewayerr.Error{
		Kind:    gatewayerr.KindUnknown,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Cause:   err,
	}
}
