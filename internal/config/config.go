package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultMaxBodyBytes = 1 << 20 // 1 MiB

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server          ServerConfig      `yaml:"server"`
	DefaultProvider Kind              `yaml:"default_provider"`
	Aliases         map[string]string `yaml:"aliases"`
	Providers       ProvidersConfig   `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AuthKey        string   `yaml:"auth_key"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

// ProvidersConfig holds one optional section per provider kind.
type ProvidersConfig struct {
	OpenAI     *OpenAIConfig     `yaml:"openai"`
	Azure      *AzureConfig      `yaml:"azure"`
	Foundry    *FoundryConfig    `yaml:"foundry"`
	Cloudflare *CloudflareConfig `yaml:"cloudflare"`
	Gemini     *GeminiConfig     `yaml:"gemini"`
	Vertex     *VertexConfig     `yaml:"vertex"`
}

// Load reads YAML configuration from disk, expands ${VAR} references from the
// environment and validates the result.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (Config, error) {
	expanded := expandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references only, so a bare $ inside a secret
// survives.
func expandEnv(text string) string {
	return envRef.ReplaceAllStringFunc(text, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

func (c *Config) applyDefaults() {
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	c.DefaultProvider = Kind(strings.ToLower(strings.TrimSpace(string(c.DefaultProvider))))
}

// Validate performs the eager checks. Provider sections are validated lazily
// when a provider is first selected; see ValidateProviders.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if c.DefaultProvider != "" {
		if _, ok := ParseKind(string(c.DefaultProvider)); !ok {
			return fmt.Errorf("default_provider %q is not a known provider", c.DefaultProvider)
		}
	}

	for alias, target := range c.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("alias name must not be empty")
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("alias %q target must not be empty", alias)
		}
	}

	for _, origin := range c.Server.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("server.allowed_origins must not contain empty entries")
		}
	}

	return nil
}

// ValidateProviders validates every provider section that is present.
func (c Config) ValidateProviders() error {
	for _, kind := range Kinds() {
		pc, err := c.ProviderConfig(kind)
		if err != nil {
			continue
		}
		if err := pc.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Configured lists the kinds whose section is present.
func (c Config) Configured() []Kind {
	var out []Kind
	for _, kind := range Kinds() {
		if _, err := c.ProviderConfig(kind); err == nil {
			out = append(out, kind)
		}
	}
	return out
}
