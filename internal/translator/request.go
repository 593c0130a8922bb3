package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"edge-gateway/internal/gatewayerr"
	"edge-gateway/internal/models"
)

var (
	errUnsupportedStop = errors.New("stop must be a string or an array of strings")
	errMaxTokens       = errors.New("max_tokens must be positive")
	errTemperature     = errors.New("temperature must be between 0 and 2")
	errTopP            = errors.New("top_p must be in (0, 1]")
	errTimeout         = errors.New("timeout must be positive")
)

// chatCompletionRequest models the inbound OpenAI chat/completions payload.
type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	MaxTokens   *int             `json:"max_tokens"`
	Temperature *float64         `json:"temperature"`
	TopP        *float64         `json:"top_p"`
	Stop        json.RawMessage  `json:"stop"`
	Timeout     *float64         `json:"timeout"`
}

// DecodeChatRequest parses and validates an inbound chat request body.
// Failures are INVALID_REQUEST gateway errors.
func DecodeChatRequest(data []byte) (models.ChatRequest, error) {
	var raw chatCompletionRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.ChatRequest{}, invalid(fmt.Errorf("invalid JSON payload: %w", err))
	}

	stop, err := parseStop(raw.Stop)
	if err != nil {
		return models.ChatRequest{}, invalid(err)
	}

	req := models.ChatRequest{
		Model:       strings.TrimSpace(raw.Model),
		Messages:    raw.Messages,
		MaxTokens:   raw.MaxTokens,
		Temperature: raw.Temperature,
		TopP:        raw.TopP,
		Stop:        stop,
		Stream:      raw.Stream,
		Timeout:     raw.Timeout,
	}
	for i := range req.Messages {
		req.Messages[i].Role = strings.ToLower(strings.TrimSpace(req.Messages[i].Role))
	}

	if err := validate(req); err != nil {
		return models.ChatRequest{}, invalid(err)
	}
	return req, nil
}

func validate(req models.ChatRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return errMaxTokens
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return errTemperature
	}
	if req.TopP != nil && (*req.TopP <= 0 || *req.TopP > 1) {
		return errTopP
	}
	if req.Timeout != nil && *req.Timeout <= 0 {
		return errTimeout
	}
	return nil
}

func invalid(err error) error {
	return &gatewayerr.Error{
		Kind:    gatewayerr.KindInvalidRequest,
		Status:  gatewayerr.StatusFor(gatewayerr.KindInvalidRequest),
		Message: err.Error(),
		Cause:   err,
	}
}

func parseStop(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil, errUnsupportedStop
		}
		return []string{single}, nil
	}

	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		out := make([]string, 0, len(multi))
		for _, item := range multi {
			if strings.TrimSpace(item) == "" {
				return nil, errUnsupportedStop
			}
			out = append(out, item)
		}
		return out, nil
	}
	return nil, errUnsupportedStop
}
