package settings

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseAPIURL is used when no base URL is configured
const DefaultBaseAPIURL = "https://gitlab.com/api"

// ErrConfigurationMissing means the provider cannot be used until an administrator
// configures the client credentials
var ErrConfigurationMissing = errors.New("gitlab client id and client secret must be configured")

// Endpoint is an extra API call made on first login
type Endpoint struct {
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Provider exposes the GitLab settings read by the authentication flow
type Provider interface {
	ClientID() string
	ClientSecret() string
	BaseAPIURL() string
	Scopes() []string
	Endpoints() []Endpoint
	RedirectURL() string
	Validate() error
}

// Settings holds the GitLab OAuth2 client settings
type Settings struct {
	ClientIDValue     string     `yaml:"client_id"`
	ClientSecretValue string     `yaml:"client_secret"`
	BaseAPIURLValue   string     `yaml:"base_url"`
	ScopesValue       []string   `yaml:"scopes"`
	EndpointsValue    []Endpoint `yaml:"endpoints"`
	RedirectURLValue  string     `yaml:"redirect_url"`
	Proxy             string     `yaml:"proxy"`
}

func (s *Settings) ClientID() string     { return s.ClientIDValue }
func (s *Settings) ClientSecret() string { return s.ClientSecretValue }
func (s *Settings) RedirectURL() string  { return s.RedirectURLValue }

// BaseAPIURL returns the API base URL without a trailing slash
func (s *Settings) BaseAPIURL() string {
	if s.BaseAPIURLValue == "" {
		return DefaultBaseAPIURL
	}
	return strings.TrimRight(s.BaseAPIURLValue, "/")
}

// InstanceURL returns the GitLab instance root, which hosts the OAuth endpoints
func (s *Settings) InstanceURL() string {
	return strings.TrimSuffix(s.BaseAPIURL(), "/api")
}

// Scopes returns a copy of the requested scopes, defaulting to read_user
func (s *Settings) Scopes() []string {
	if len(s.ScopesValue) == 0 {
		return []string{"read_user"}
	}
	return append([]string(nil), s.ScopesValue...)
}

// Endpoints returns a copy of the extra endpoints in declaration order
func (s *Settings) Endpoints() []Endpoint {
	return append([]Endpoint(nil), s.EndpointsValue...)
}

// Validate checks the settings are usable before any flow starts
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.ClientIDValue) == "" || strings.TrimSpace(s.ClientSecretValue) == "" {
		return ErrConfigurationMissing
	}

	u, err := url.Parse(s.BaseAPIURL())
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("the gitlab base URL %q is invalid", s.BaseAPIURLValue)
	}

	if s.RedirectURLValue != "" {
		u, err := url.Parse(s.RedirectURLValue)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("the redirect URL %q must be absolute", s.RedirectURLValue)
		}
	}

	for _, ep := range s.EndpointsValue {
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("endpoint %q must start with /", ep.Path)
		}
	}

	return nil
}

// ParseEndpoints parses one path|name pair per line
func ParseEndpoints(text string) ([]Endpoint, error) {
	var endpoints []Endpoint

	for i, line := range strings.Split(strings.ReplaceAll(text, ";", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		path, name, ok := strings.Cut(line, "|")
		if !ok {
			return nil, fmt.Errorf("line %d: expected path|name, got %q", i+1, line)
		}

		path = strings.TrimSpace(path)
		name = strings.TrimSpace(name)
		if path == "" {
			return nil, fmt.Errorf("line %d: empty endpoint path", i+1)
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if name == "" {
			name = nameFromPath(path)
		}

		endpoints = append(endpoints, Endpoint{Path: path, Name: name})
	}

	return endpoints, nil
}

// nameFromPath turns /v4/user/keys into user_keys
func nameFromPath(path string) string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p == "" || p == "api" || (len(p) == 2 && p[0] == 'v' && p[1] >= '0' && p[1] <= '9') {
			continue
		}
		p = strings.Trim(p, "{}:")
		parts = append(parts, p)
	}
	return strings.Join(parts, "_")
}
