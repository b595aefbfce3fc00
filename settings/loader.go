package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the settings of the HTTP service around the flow
type ServerConfig struct {
	Port            string `env:"PORT" envDefault:"8080"`
	UseHTTPS        bool   `env:"USE_HTTPS" envDefault:"false"`
	DatabasePath    string `env:"DATABASE_PATH" envDefault:"gitlab_login.db"`
	// SessionProvider is memory, redis (shared by replicas) or session
	// (pending data inside the server-side cookie session)
	SessionProvider string `env:"SESSION_PROVIDER" envDefault:"memory"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	LogEnv          string `env:"LOG_ENV" envDefault:"dev"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
}

// gitlabEnv holds the raw environment overrides for Settings
type gitlabEnv struct {
	File         string   `env:"GITLAB_SETTINGS_FILE"`
	ClientID     string   `env:"GITLAB_CLIENT_ID"`
	ClientSecret string   `env:"GITLAB_CLIENT_SECRET"`
	BaseURL      string   `env:"GITLAB_BASE_URL"`
	Scopes       []string `env:"GITLAB_SCOPES" envSeparator:","`
	Endpoints    string   `env:"GITLAB_ENDPOINTS"`
	RedirectURL  string   `env:"GITLAB_REDIRECT_URL"`
	Proxy        string   `env:"GITLAB_PROXY"`
}

// LoadDotEnv loads a .env file when one is present
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load the env vars: %w", err)
	}
	return nil
}

// LoadServerConfig reads the service configuration from the environment
func LoadServerConfig() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load builds the GitLab settings from an optional YAML file and environment
// overrides. It does not validate them; callers decide when a missing
// credential matters.
func Load() (*Settings, error) {
	var raw gitlabEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	s := &Settings{}
	if raw.File != "" {
		fileSettings, err := LoadFile(raw.File)
		if err != nil {
			return nil, err
		}
		s = fileSettings
	}

	if raw.ClientID != "" {
		s.ClientIDValue = raw.ClientID
	}
	if raw.ClientSecret != "" {
		s.ClientSecretValue = raw.ClientSecret
	}
	if raw.BaseURL != "" {
		s.BaseAPIURLValue = raw.BaseURL
	}
	if scopes := cleanScopes(raw.Scopes); len(scopes) > 0 {
		s.ScopesValue = scopes
	}
	if strings.TrimSpace(raw.Endpoints) != "" {
		endpoints, err := ParseEndpoints(raw.Endpoints)
		if err != nil {
			return nil, fmt.Errorf("GITLAB_ENDPOINTS: %w", err)
		}
		s.EndpointsValue = endpoints
	}
	if raw.RedirectURL != "" {
		s.RedirectURLValue = raw.RedirectURL
	}
	if raw.Proxy != "" {
		s.Proxy = raw.Proxy
	}

	s.BaseAPIURLValue = strings.TrimRight(s.BaseAPIURLValue, "/")
	return s, nil
}

// LoadFile reads settings from a YAML file
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	s.ScopesValue = cleanScopes(s.ScopesValue)

	return &s, nil
}

func cleanScopes(scopes []string) []string {
	var out []string
	for _, sc := range scopes {
		if sc = strings.TrimSpace(sc); sc != "" {
			out = append(out, sc)
		}
	}
	return out
}
