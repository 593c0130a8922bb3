package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

var errInvalidPart = errors.New("invalid content part")

// ContentPart is one element of a multimodal message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// Content holds either plain text or an ordered list of parts.
type Content struct {
	Text  string
	Parts []ContentPart
	valid bool
}

// TextContent wraps a plain string.
func TextContent(text string) Content {
	return Content{Text: text, valid: true}
}

// PartsContent wraps a list of parts.
func PartsContent(parts ...ContentPart) Content {
	if parts == nil {
		parts = []ContentPart{}
	}
	return Content{Parts: parts, valid: true}
}

// Valid reports whether the content was set as a string or a part list.
func (c Content) Valid() bool {
	return c.valid
}

// IsParts reports whether the content is a part list.
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// String returns the text, joining text parts when the content is a list.
func (c Content) String() string {
	if !c.IsParts() {
		return c.Text
	}
	var b strings.Builder
	for _, part := range c.Parts {
		if part.Type == PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// MarshalJSON writes a string or an array depending on the content form.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a JSON string or an array of content parts.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errMissingValue
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("decode content: %w", err)
		}
		*c = TextContent(text)
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("decode content parts: %w", err)
		}
		for i, part := range parts {
			if err := part.validate(); err != nil {
				return fmt.Errorf("part[%d]: %w", i, err)
			}
		}
		*c = PartsContent(parts...)
		return nil
	default:
		return errMissingValue
	}
}

func (p ContentPart) validate() error {
	switch p.Type {
	case PartText:
		return nil
	case PartImageURL:
		if p.ImageURL == nil || strings.TrimSpace(p.ImageURL.URL) == "" {
			return fmt.Errorf("%w: image_url.url is required", errInvalidPart)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %q", errInvalidPart, p.Type)
	}
}
