package stream

import (
	"encoding/json"

	"edge-gateway/internal/models"
)

// Event is one canonical fragment extracted from an upstream payload.
type Event struct {
	Text   string
	Finish models.FinishReason
}

// Mapper turns one upstream JSON payload into zero or more events.
type Mapper func(payload json.RawMessage) []Event

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// AnthropicMapper maps content_block_delta text and message_stop; every
// other event type is ignored.
func AnthropicMapper(payload json.RawMessage) []Event {
	var ev anthropicEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil
	}
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta.Text == "" {
			return nil
		}
		return []Event{{Text: ev.Delta.Text}}
	case "message_stop":
		return []Event{{Finish: models.FinishStop}}
	default:
		return nil
	}
}

type geminiEvent struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GeminiMapper maps candidates[0].content.parts[0].text. Gemini has no stop
// event; the stream ends when the upstream closes.
func GeminiMapper(payload json.RawMessage) []Event {
	var ev geminiEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil
	}
	if len(ev.Candidates) == 0 || len(ev.Candidates[0].Content.Parts) == 0 {
		return nil
	}
	text := ev.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return nil
	}
	return []Event{{Text: text}}
}
