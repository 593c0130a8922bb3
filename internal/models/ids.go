package models

import "github.com/google/uuid"

// NewCompletionID returns an identifier in the chatcmpl-<uuid> form.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.NewString()
}
