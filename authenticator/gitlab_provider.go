package authenticator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blogem/gitlab-login/settings"
	"golang.org/x/oauth2"
)

// maxBodyBytes caps how much of a provider response is read
const maxBodyBytes = 1 << 20

// GitLabProvider implements the Client interface for GitLab
type GitLabProvider struct {
	baseAPIURL string
	config     oauth2.Config
	http       *http.Client
	verifier   IDTokenVerifier
}

// GitLabConfig holds GitLab-specific configuration
type GitLabConfig struct {
	BaseAPIURL   string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	Proxy        string
	HTTPClient   *http.Client
	// Verifier checks ID tokens when the openid scope is requested
	Verifier IDTokenVerifier
}

// NewGitLabProvider creates a new GitLab provider with the given configuration
func NewGitLabProvider(cfg GitLabConfig) (Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, settings.ErrConfigurationMissing
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("callback URL is required")
	}

	base := strings.TrimRight(cfg.BaseAPIURL, "/")
	if base == "" {
		base = settings.DefaultBaseAPIURL
	}
	instance := strings.TrimSuffix(base, "/api")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy URL: %w", err)
			}
			httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	conf := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   instance + "/oauth/authorize",
			TokenURL:  instance + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}

	return &GitLabProvider{
		baseAPIURL: base,
		config:     conf,
		http:       httpClient,
		verifier:   cfg.Verifier,
	}, nil
}

// NewGitLabProviderFromSettings builds the provider from validated settings
func NewGitLabProviderFromSettings(s *settings.Settings, callbackURL string, verifier IDTokenVerifier) (Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.RedirectURL() != "" {
		callbackURL = s.RedirectURL()
	}
	return NewGitLabProvider(GitLabConfig{
		BaseAPIURL:   s.BaseAPIURL(),
		ClientID:     s.ClientID(),
		ClientSecret: s.ClientSecret(),
		CallbackURL:  callbackURL,
		Scopes:       s.Scopes(),
		Proxy:        s.Proxy,
		Verifier:     verifier,
	})
}

// AuthorizationURL returns the authorization URL for GitLab with a fresh state
func (p *GitLabProvider) AuthorizationURL(scopes []string, redirectURI string) (*AuthorizationRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	conf := p.config
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}

	return &AuthorizationRequest{
		URL:         conf.AuthCodeURL(state),
		State:       state,
		Scopes:      append([]string(nil), conf.Scopes...),
		RedirectURI: conf.RedirectURL,
	}, nil
}

// ExchangeCode exchanges an authorization code for tokens
func (p *GitLabProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrTokenExchangeFailed)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	oauth2Token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	// Convert oauth2.Token to our Token type
	token := &Token{
		AccessToken:  oauth2Token.AccessToken,
		RefreshToken: oauth2Token.RefreshToken,
		TokenType:    oauth2Token.Type(),
	}
	if !oauth2Token.Expiry.IsZero() {
		token.Expiry = oauth2Token.Expiry.Unix()
	}

	// Extract ID token if present
	if idToken, ok := oauth2Token.Extra("id_token").(string); ok {
		token.IDToken = idToken
	}

	if token.IDToken != "" && p.verifier != nil {
		subject, err := p.verifier.Verify(ctx, token.IDToken)
		if err != nil {
			return nil, fmt.Errorf("%w: id token: %v", ErrTokenExchangeFailed, err)
		}
		token.Subject = subject
	}

	return token, nil
}

// gitlabUser is the subset of GET /v4/user the flow needs
type gitlabUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// FetchResourceOwner fetches the current user using the access token
func (p *GitLabProvider) FetchResourceOwner(ctx context.Context, token *Token) (*Profile, error) {
	body, err := p.get(ctx, token, p.baseAPIURL+"/v4/user")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}

	var user gitlabUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user: %v", ErrProfileFetchFailed, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: user has no id", ErrProfileFetchFailed)
	}

	return &Profile{
		ExternalID:  strconv.FormatInt(user.ID, 10),
		Username:    user.Username,
		DisplayName: user.Name,
		Email:       user.Email,
		AvatarURL:   user.AvatarURL,
	}, nil
}

// FetchEndpoint requests a configured API path on behalf of the user. JSON
// bodies are returned as is, anything else as a JSON string.
func (p *GitLabProvider) FetchEndpoint(ctx context.Context, token *Token, pathTemplate, userID string) (json.RawMessage, error) {
	path := ExpandPath(pathTemplate, userID)

	body, err := p.get(ctx, token, p.baseAPIURL+path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraEndpointFailed, path, err)
	}

	if json.Valid(body) {
		return json.RawMessage(body), nil
	}
	raw, err := json.Marshal(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraEndpointFailed, path, err)
	}
	return raw, nil
}

// ExpandPath substitutes the {user_id} and :user_id placeholders
func ExpandPath(pathTemplate, userID string) string {
	id := url.PathEscape(userID)
	path := strings.ReplaceAll(pathTemplate, "{user_id}", id)
	return strings.ReplaceAll(path, ":user_id", id)
}

func (p *GitLabProvider) get(ctx context.Context, token *Token, rawURL string) ([]byte, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("missing access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gitlab api error: status %d", resp.StatusCode)
	}

	return body, nil
}
