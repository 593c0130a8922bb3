package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ServiceAccount is the subset of a Google service-account key file the
// gateway needs.
type ServiceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccount decodes a JSON key file.
func ParseServiceAccount(data []byte) (ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return ServiceAccount{}, fmt.Errorf("decode service account: %w", err)
	}

	sa.ClientEmail = strings.TrimSpace(sa.ClientEmail)
	// Keys pasted through environment variables often carry escaped newlines.
	sa.PrivateKey = strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")

	if sa.ClientEmail == "" {
		return ServiceAccount{}, errors.New("service account client_email is required")
	}
	if strings.TrimSpace(sa.PrivateKey) == "" {
		return ServiceAccount{}, errors.New("service account private_key is required")
	}
	return sa, nil
}

// LoadServiceAccount reads and parses a key file from disk.
func LoadServiceAccount(path string) (ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceAccount{}, fmt.Errorf("read service account file %q: %w", path, err)
	}
	return ParseServiceAccount(data)
}
