package gemini

import (
	"fmt"
	"strings"

	"edge-gateway/internal/models"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type generationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
	ResponseID   string `json:"responseId"`
}

// buildRequest maps roles (assistant to model, everything else to user) and
// lifts system messages into systemInstruction.
func buildRequest(req models.ChatRequest) (generateRequest, error) {
	var out generateRequest

	if system := req.SystemPrompt(); system != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}

	for _, msg := range req.Messages {
		if msg.Role == models.RoleSystem {
			continue
		}
		role := roleUser
		if msg.Role == models.RoleAssistant {
			role = roleModel
		}
		parts, err := toParts(msg.Content)
		if err != nil {
			return generateRequest{}, err
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: parts})
	}
	if len(out.Contents) == 0 {
		return generateRequest{}, fmt.Errorf("at least one non-system message is required")
	}

	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil || len(req.Stop) > 0 {
		out.GenerationConfig = &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			StopSequences:   req.Stop,
		}
	}
	return out, nil
}

func toParts(c models.Content) ([]part, error) {
	if !c.IsParts() {
		return []part{{Text: c.Text}}, nil
	}
	parts := make([]part, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case models.PartText:
			parts = append(parts, part{Text: p.Text})
		case models.PartImageURL:
			img, err := imagePart(p.ImageURL.URL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, img)
		}
	}
	return parts, nil
}

// imagePart turns data: URIs into inline data and any other URL into a file
// reference.
func imagePart(ref string) (part, error) {
	if !strings.HasPrefix(ref, "data:") {
		return part{FileData: &fileData{FileURI: ref}}, nil
	}
	meta, data, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return part{}, fmt.Errorf("image data url must be base64 encoded")
	}
	return part{InlineData: &inlineData{
		MimeType: strings.TrimSuffix(meta, ";base64"),
		Data:     data,
	}}, nil
}
