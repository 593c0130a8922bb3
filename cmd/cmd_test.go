package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	good := writeConfig(t, "server: {port: 8080}\ndefault_provider: gemini\nproviders:\n  gemini: {api_key: k}\n")
	out, err := run(t, "validate", "--config", good)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "1 provider(s) configured, default gemini") {
		t.Fatalf("output = %q", out)
	}

	bad := writeConfig(t, "server: {port: 8080}\nproviders:\n  azure: {endpoint: https://x, api_key: k}\n")
	if _, err := run(t, "validate", "--config", bad); err == nil || !strings.Contains(err.Error(), "deployment") {
		t.Fatalf("expected deployment error, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "edge-gateway dev") {
		t.Fatalf("output = %q", out)
	}
}

func TestLoggingFlags(t *testing.T) {
	if _, err := run(t, "--log-level", "verbose", "version"); err == nil {
		t.Fatal("expected invalid log level error")
	}
	if _, err := run(t, "--log-format", "xml", "version"); err == nil {
		t.Fatal("expected invalid log format error")
	}
	if _, err := run(t, "--log-level", "debug", "--log-format", "json", "version"); err != nil {
		t.Fatalf("valid flags: %v", err)
	}
}

func TestServeRejectsMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := run(t, "serve", "--config", missing); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
