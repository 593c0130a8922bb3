package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FinishReason describes why generation stopped. The zero value encodes as
// JSON null.
type FinishReason string

const (
	FinishNone          FinishReason = ""
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishFunctionCall  FinishReason = "function_call"
)

// NormalizeFinishReason maps an upstream value onto the fixed enumeration.
// Unknown non-empty values collapse to stop.
func NormalizeFinishReason(raw string) FinishReason {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return FinishNone
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	case "tool_calls":
		return FinishToolCalls
	case "function_call":
		return FinishFunctionCall
	default:
		return FinishStop
	}
}

// MarshalJSON encodes FinishNone as null.
func (f FinishReason) MarshalJSON() ([]byte, error) {
	if f == FinishNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(f))
}

// UnmarshalJSON decodes null as FinishNone.
func (f *FinishReason) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = FinishNone
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = NormalizeFinishReason(raw)
	return nil
}
